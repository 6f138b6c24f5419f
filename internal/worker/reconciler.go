package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/broker"
	"github.com/smskit/sim-gateway/internal/logger"
)

// EventConsumer is the broker side the listener needs; satisfied by
// *broker.Consumer.
type EventConsumer interface {
	Fetch(ctx context.Context) (broker.Message, error)
	Commit(ctx context.Context, m broker.Message) error
	Close() error
}

// Handler processes one raw event payload. Errors are terminal per event:
// the listener logs them and commits anyway (at-most-once processing).
type Handler func(ctx context.Context, payload []byte) error

// Reconciler runs the long-lived listeners for the status and receive
// topics, concurrently with HTTP-triggered dispatch.
type Reconciler struct {
	Status   EventConsumer
	Receive  EventConsumer
	OnStatus Handler
	OnRecv   Handler
	Workers  int
}

// Run starts both listeners and blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	workers := r.Workers
	if workers <= 0 {
		workers = 8
	}

	go r.consume(ctx, "status", r.Status, r.OnStatus, workers)
	go r.consume(ctx, "receive", r.Receive, r.OnRecv, workers)

	<-ctx.Done()
	return nil
}

func (r *Reconciler) consume(ctx context.Context, kind string, c EventConsumer, handle Handler, workers int) {
	msgCh := make(chan broker.Message, workers*2)

	// fetcher
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := c.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Log.Error("listener: fetch failed",
						zap.String("kind", kind), zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				select {
				case msgCh <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// processors
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-msgCh:
					if !ok {
						return
					}
					if err := handle(ctx, m.Value); err != nil {
						// logged and dropped; no redelivery is requested
						logger.Log.Warn("listener: event dropped",
							zap.String("kind", kind),
							zap.String("topic", m.Topic),
							zap.Error(err))
					}
					if err := c.Commit(ctx, m); err != nil && ctx.Err() == nil {
						logger.Log.Error("listener: commit failed",
							zap.String("kind", kind), zap.Error(err))
					}
				}
			}
		}()
	}
}
