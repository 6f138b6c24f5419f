package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/broker"
	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/metrics"
	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/notify"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/util"
)

// Service is the dispatch engine: it claims a SIM, persists the message,
// publishes it to the per-SIM send topic and settles the outcome. The SIM
// claim and the message record exist before the publish so transport
// failures are observable, not silent.
type Service struct {
	sims repository.SimsRepository
	msgs repository.MessagesRepository
	logs repository.LogsRepository
	pub  broker.Publisher
	ntf  notify.Notifier
}

func New(
	simsRepo repository.SimsRepository,
	messagesRepo repository.MessagesRepository,
	logsRepo repository.LogsRepository,
	pub broker.Publisher,
	ntf notify.Notifier,
) *Service {
	return &Service{
		sims: simsRepo,
		msgs: messagesRepo,
		logs: logsRepo,
		pub:  pub,
		ntf:  ntf,
	}
}

// Request is one outbound send. SimID is optional; empty means least-loaded
// selection.
type Request struct {
	Recipient string
	Body      string
	SimID     string
}

// Result reports the settled outcome of a dispatch.
type Result struct {
	Message model.Message
	Sim     model.SimCard
}

// Dispatch validates the request, claims a SIM, creates the message record
// with status=pending, publishes it and transitions to sent or failed. A
// send LogEntry is written regardless of outcome.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Result, error) {
	recipient, err := util.NormalizeNumber(req.Recipient)
	if err != nil {
		return nil, &ValidationError{Field: "recipient", Reason: "must contain digits after the + sign"}
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	sim, err := s.sims.ClaimForSend(ctx, req.SimID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvalidSim
		case errors.Is(err, repository.ErrSimInactive):
			return nil, ErrSimInactive
		case errors.Is(err, repository.ErrNoneAvailable):
			return nil, ErrNoSimAvailable
		}
		return nil, fmt.Errorf("claim sim: %w", err)
	}

	msg := model.Message{
		ID:        util.NewID(),
		Direction: model.DirectionOutgoing,
		Sender:    sim.Number,
		Recipient: recipient,
		Body:      body,
		Status:    model.StatusPending,
		SimID:     sim.ID,
	}

	if err := s.msgs.Insert(ctx, msg); err != nil {
		// The claim is compensated so the load count stays honest.
		if rerr := s.sims.ReleaseClaim(ctx, sim.ID); rerr != nil {
			logger.Log.Error("dispatch: release claim failed",
				zap.String("sim_id", sim.ID), zap.Error(rerr))
		}
		s.appendLog(ctx, msg, *sim, model.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("create message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(msg.Direction.String(), msg.Status.String()).Inc()

	payload, err := json.Marshal(model.SendPayload{
		Number:    msg.Recipient,
		Message:   msg.Body,
		MessageID: msg.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal send payload: %w", err)
	}

	status := model.StatusSent
	var publishErr error
	if publishErr = s.pub.Publish(ctx, broker.SendTopic(sim.Number), []byte(msg.ID), payload); publishErr != nil {
		status = model.StatusFailed
		logger.Log.Error("dispatch: broker publish failed",
			zap.String("message_id", msg.ID),
			zap.String("topic", broker.SendTopic(sim.Number)),
			zap.Error(publishErr))
	}

	updated, err := s.msgs.UpdateStatus(ctx, msg.ID, status)
	if err != nil {
		// The publish outcome stands; the reconciler will settle the row
		// when the bridge reports back.
		logger.Log.Error("dispatch: status update failed",
			zap.String("message_id", msg.ID),
			zap.String("status", status.String()),
			zap.Error(err))
		msg.Status = status
		updated = &msg
	}
	metrics.MessagesTotal.WithLabelValues(updated.Direction.String(), updated.Status.String()).Inc()

	outcome := model.OutcomeSuccess
	detail := ""
	if publishErr != nil {
		outcome = model.OutcomeFailure
		detail = publishErr.Error()
	}
	s.appendLog(ctx, *updated, *sim, outcome, detail)

	s.ntf.Notify(ctx, notify.EventSMSSent, updated)

	if publishErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, publishErr)
	}
	return &Result{Message: *updated, Sim: *sim}, nil
}

type sendLogDetails struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	SimNumber string `json:"sim_number"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (s *Service) appendLog(ctx context.Context, msg model.Message, sim model.SimCard, outcome model.LogOutcome, errDetail string) {
	details, _ := json.Marshal(sendLogDetails{
		MessageID: msg.ID,
		Recipient: msg.Recipient,
		SimNumber: sim.Number,
		Status:    msg.Status.String(),
		Error:     errDetail,
	})
	entry := model.LogEntry{
		ID:      util.NewID(),
		Action:  model.ActionSend,
		Details: details,
		Outcome: outcome,
		SimID:   sim.ID,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Log.Error("dispatch: append log failed",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}
