package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/metrics"
)

// Event names broadcast to connected clients.
const (
	EventSMSSent         = "sms_sent"
	EventSMSReceived     = "sms_received"
	EventSMSStatusUpdate = "sms_status_update"
)

// Notifier is a one-way fan-out to the real-time transport. No ack, no
// retry, no backpressure; a failed broadcast drops that event.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

// RedisNotifier broadcasts events over Redis pub/sub channels. Subscribers
// that are gone or slow simply miss the event.
type RedisNotifier struct {
	rds     *redis.Client
	timeout time.Duration
}

func NewRedisNotifier(rds *redis.Client) *RedisNotifier {
	return &RedisNotifier{rds: rds, timeout: time.Second}
}

var _ Notifier = (*RedisNotifier)(nil)

func (n *RedisNotifier) Notify(ctx context.Context, event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "dropped").Inc()
		logger.Log.Warn("notify: marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.rds.Publish(ctx, event, b).Err(); err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "dropped").Inc()
		logger.Log.Warn("notify: publish failed", zap.String("event", event), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues(event, "ok").Inc()
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, any) {}
