package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smskit/sim-gateway/internal/config"
)

// Consumer is a thin wrapper around a segmentio/kafka-go Reader bound to one
// topic. Fetch and Commit are split so the caller decides when an offset
// is done.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(cfg config.KafkaConfig, topic string) *Consumer {
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = 1 << 10 // 1KB
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20 // 10MB
	}
	commitInterval := time.Duration(cfg.CommitInterval) * time.Millisecond
	if commitInterval <= 0 {
		commitInterval = time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: commitInterval,
		MaxWait:        50 * time.Millisecond,
	})

	return &Consumer{r: r}
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
