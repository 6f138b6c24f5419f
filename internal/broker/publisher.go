package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher is the outbound side of the at-least-once broker channel.
type Publisher interface {
	// Publish writes one payload to the given topic. It must return within
	// a bounded time; a timeout is a failure, not a hang.
	Publish(ctx context.Context, topic string, key, payload []byte) error
	Close() error
}

// KafkaPublisher writes through a single kafka.Writer with per-message
// topics.
type KafkaPublisher struct {
	w       *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
		WriteTimeout:           timeout,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &KafkaPublisher{w: w, timeout: timeout}
}

var _ Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
