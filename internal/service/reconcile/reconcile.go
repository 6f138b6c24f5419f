package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/broker"
	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/metrics"
	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/notify"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/util"
)

// ErrMalformedPayload means an inbound event is missing required fields.
// Such events are logged and dropped, never retried.
var ErrMalformedPayload = errors.New("malformed event payload")

// Service reconciles asynchronous bridge events against message records.
// Processing is at-most-once: a failed event is logged and considered
// consumed, favoring availability over exactly-once guarantees.
type Service struct {
	sims    repository.SimsRepository
	msgs    repository.MessagesRepository
	logs    repository.LogsRepository
	history repository.StatusHistoryRepository
	pub     broker.Publisher
	ntf     notify.Notifier

	statusTopic string // ack publishes for received messages go here
}

func New(
	simsRepo repository.SimsRepository,
	messagesRepo repository.MessagesRepository,
	logsRepo repository.LogsRepository,
	historyRepo repository.StatusHistoryRepository,
	pub broker.Publisher,
	ntf notify.Notifier,
	statusTopic string,
) *Service {
	return &Service{
		sims:        simsRepo,
		msgs:        messagesRepo,
		logs:        logsRepo,
		history:     historyRepo,
		pub:         pub,
		ntf:         ntf,
		statusTopic: statusTopic,
	}
}

// OnStatusEvent consumes one delivery-status payload. The reported state is
// always recorded in history, even when the originating message record is
// gone; a matched message is transitioned per the lifecycle rules, with
// duplicate terminal reports treated as idempotent no-ops.
func (s *Service) OnStatusEvent(ctx context.Context, payload []byte) error {
	var ev model.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.BrokerEventsTotal.WithLabelValues("status", "malformed").Inc()
		logger.Log.Warn("reconcile: bad status payload", zap.Error(err))
		return ErrMalformedPayload
	}

	identified := ev.MessageID != "" ||
		(ev.SenderNumber != "" && ev.ReceiverNumber != "" && ev.Body != "")
	if !identified || ev.Status == "" {
		metrics.BrokerEventsTotal.WithLabelValues("status", "malformed").Inc()
		logger.Log.Warn("reconcile: status event missing identifying fields",
			zap.String("message_id", ev.MessageID))
		return ErrMalformedPayload
	}

	s.recordHistory(ctx, ev)

	if ev.MessageID == "" {
		metrics.BrokerEventsTotal.WithLabelValues("status", "ok").Inc()
		return nil
	}

	msg, err := s.msgs.GetByID(ctx, ev.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Degraded mode: the history row above preserves the report.
			metrics.BrokerEventsTotal.WithLabelValues("status", "unmatched").Inc()
			logger.Log.Warn("reconcile: status event for unknown message",
				zap.String("message_id", ev.MessageID),
				zap.String("status", ev.Status))
			s.appendStatusLog(ctx, ev.MessageID, "", ev.Status, model.OutcomeFailure, "unmatched message")
			return nil
		}
		metrics.BrokerEventsTotal.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("lookup message %s: %w", ev.MessageID, err)
	}

	next := model.MessageStatus(ev.Status)

	if msg.Status == next && msg.Status.Terminal() {
		// Duplicate delivery confirmation; the broker is at-least-once.
		metrics.BrokerEventsTotal.WithLabelValues("status", "ok").Inc()
		logger.Log.Debug("reconcile: duplicate terminal status",
			zap.String("message_id", msg.ID),
			zap.String("status", next.String()))
		return nil
	}

	if !msg.Status.CanTransition(next) {
		// Out-of-order or unknown transition: anomaly, but the external
		// status is trusted once matched. Last write wins.
		logger.Log.Warn("reconcile: anomalous status transition",
			zap.String("message_id", msg.ID),
			zap.String("from", msg.Status.String()),
			zap.String("to", next.String()))
	}

	updated, err := s.msgs.UpdateStatus(ctx, msg.ID, next)
	if err != nil {
		metrics.BrokerEventsTotal.WithLabelValues("status", "error").Inc()
		s.appendStatusLog(ctx, msg.ID, msg.SimID, ev.Status, model.OutcomeFailure, err.Error())
		return fmt.Errorf("update status %s: %w", msg.ID, err)
	}
	metrics.MessagesTotal.WithLabelValues(updated.Direction.String(), updated.Status.String()).Inc()
	metrics.BrokerEventsTotal.WithLabelValues("status", "ok").Inc()

	s.appendStatusLog(ctx, updated.ID, updated.SimID, ev.Status, model.OutcomeSuccess, "")
	s.ntf.Notify(ctx, notify.EventSMSStatusUpdate, updated)

	return nil
}

// OnReceiveEvent consumes one inbound-SMS payload: it creates a received
// message, auto-registers the sending SIM when unknown, and acknowledges
// back to the broker. Duplicate broker deliveries repeat the whole path;
// duplicate records are tolerated.
func (s *Service) OnReceiveEvent(ctx context.Context, payload []byte) error {
	var ev model.ReceiveEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.BrokerEventsTotal.WithLabelValues("receive", "malformed").Inc()
		logger.Log.Warn("reconcile: bad receive payload", zap.Error(err))
		return ErrMalformedPayload
	}
	if ev.Sender == "" || ev.Body == "" {
		metrics.BrokerEventsTotal.WithLabelValues("receive", "malformed").Inc()
		logger.Log.Warn("reconcile: receive event missing sender or message")
		return ErrMalformedPayload
	}

	sender, err := util.NormalizeNumber(ev.Sender)
	if err != nil {
		metrics.BrokerEventsTotal.WithLabelValues("receive", "malformed").Inc()
		logger.Log.Warn("reconcile: receive event has invalid sender",
			zap.String("sender", ev.Sender))
		return ErrMalformedPayload
	}

	receiver := ""
	if ev.Receiver != "" {
		if r, err := util.NormalizeNumber(ev.Receiver); err == nil {
			receiver = r
		}
	}

	sim := s.resolveSenderSim(ctx, sender)

	msg := model.Message{
		ID:        util.NewID(),
		Direction: model.DirectionIncoming,
		Sender:    sender,
		Recipient: receiver,
		Body:      ev.Body,
		Status:    model.StatusReceived,
	}
	if sim != nil {
		msg.SimID = sim.ID
	}

	if err := s.msgs.Insert(ctx, msg); err != nil {
		metrics.BrokerEventsTotal.WithLabelValues("receive", "error").Inc()
		logger.Log.Error("reconcile: insert incoming message failed",
			zap.String("sender", sender), zap.Error(err))
		return fmt.Errorf("insert incoming message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(msg.Direction.String(), msg.Status.String()).Inc()
	metrics.BrokerEventsTotal.WithLabelValues("receive", "ok").Inc()

	s.appendReceiveLog(ctx, msg)
	s.publishAck(ctx, msg)
	s.ntf.Notify(ctx, notify.EventSMSReceived, &msg)

	return nil
}

// resolveSenderSim looks up the sending SIM and registers it (active) when
// unknown. A registry failure degrades to an unattributed message.
func (s *Service) resolveSenderSim(ctx context.Context, number string) *model.SimCard {
	sim, err := s.sims.GetByNumber(ctx, number)
	if err == nil {
		return sim
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.Log.Error("reconcile: sim lookup failed",
			zap.String("number", number), zap.Error(err))
		return nil
	}

	fresh := model.SimCard{
		ID:     util.NewID(),
		Number: number,
		Status: model.SimActive,
	}
	if err := s.sims.Register(ctx, fresh); err != nil {
		// A concurrent receive from the same sender may have registered
		// it first; the unique number constraint rejects the loser.
		if sim, gerr := s.sims.GetByNumber(ctx, number); gerr == nil {
			return sim
		}
		logger.Log.Error("reconcile: sim auto-register failed",
			zap.String("number", number), zap.Error(err))
		return nil
	}
	logger.Log.Info("reconcile: auto-registered sim",
		zap.String("sim_id", fresh.ID), zap.String("number", number))
	return &fresh
}

func (s *Service) recordHistory(ctx context.Context, ev model.StatusEvent) {
	at := time.Now().UTC()
	if ev.Timestamp > 0 {
		at = time.Unix(ev.Timestamp, 0).UTC()
	}
	rec := model.SmsStatus{
		ID:             util.NewID(),
		SenderNumber:   ev.SenderNumber,
		ReceiverNumber: ev.ReceiverNumber,
		Body:           ev.Body,
		Status:         ev.Status,
		CreatedAt:      at,
	}
	if err := s.history.Record(ctx, rec); err != nil {
		logger.Log.Error("reconcile: record status history failed",
			zap.String("message_id", ev.MessageID), zap.Error(err))
	}
}

func (s *Service) publishAck(ctx context.Context, msg model.Message) {
	ack, _ := json.Marshal(model.StatusEvent{
		MessageID:      msg.ID,
		SenderNumber:   msg.Sender,
		ReceiverNumber: msg.Recipient,
		Body:           msg.Body,
		Status:         model.StatusReceived.String(),
		Timestamp:      time.Now().Unix(),
	})
	if err := s.pub.Publish(ctx, s.statusTopic, []byte(msg.ID), ack); err != nil {
		logger.Log.Warn("reconcile: receive ack publish failed",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}

type statusLogDetails struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (s *Service) appendStatusLog(ctx context.Context, messageID, simID, status string, outcome model.LogOutcome, errDetail string) {
	details, _ := json.Marshal(statusLogDetails{
		MessageID: messageID,
		Status:    status,
		Error:     errDetail,
	})
	entry := model.LogEntry{
		ID:      util.NewID(),
		Action:  model.ActionStatusUpdate,
		Details: details,
		Outcome: outcome,
		SimID:   simID,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Log.Error("reconcile: append status log failed",
			zap.String("message_id", messageID), zap.Error(err))
	}
}

type receiveLogDetails struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
}

func (s *Service) appendReceiveLog(ctx context.Context, msg model.Message) {
	details, _ := json.Marshal(receiveLogDetails{
		MessageID: msg.ID,
		Sender:    msg.Sender,
	})
	entry := model.LogEntry{
		ID:      util.NewID(),
		Action:  model.ActionReceive,
		Details: details,
		Outcome: model.OutcomeSuccess,
		SimID:   msg.SimID,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Log.Error("reconcile: append receive log failed",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}
