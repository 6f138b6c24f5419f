package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smskit/sim-gateway/internal/logger"
	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/repository"
	"github.com/smskit/sim-gateway/internal/util"
)

var (
	ErrNotFound      = errors.New("sim card not found")
	ErrInvalidNumber = errors.New("sim card number must contain digits after the + sign")
	ErrInvalidStatus = errors.New("sim card status must be active or inactive")
)

// Service is the admin layer over the SIM registry. The repository itself
// does not log; registry mutations are logged here.
type Service struct {
	sims repository.SimsRepository
	logs repository.LogsRepository
}

func New(simsRepo repository.SimsRepository, logsRepo repository.LogsRepository) *Service {
	return &Service{sims: simsRepo, logs: logsRepo}
}

// Register normalizes the number and creates an active SIM unless another
// status is given.
func (s *Service) Register(ctx context.Context, number string, status model.SimStatus) (*model.SimCard, error) {
	normalized, err := util.NormalizeNumber(number)
	if err != nil {
		return nil, ErrInvalidNumber
	}
	if status == "" {
		status = model.SimActive
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	sim := model.SimCard{
		ID:     util.NewID(),
		Number: normalized,
		Status: status,
	}
	if err := s.sims.Register(ctx, sim); err != nil {
		s.appendLog(ctx, model.ActionSimRegister, sim, model.OutcomeFailure, err.Error())
		return nil, fmt.Errorf("register sim: %w", err)
	}
	s.appendLog(ctx, model.ActionSimRegister, sim, model.OutcomeSuccess, "")
	return &sim, nil
}

// Update changes number and/or status of an existing SIM.
func (s *Service) Update(ctx context.Context, id string, number *string, status *model.SimStatus) (*model.SimCard, error) {
	var upd repository.SimUpdate

	if number != nil {
		normalized, err := util.NormalizeNumber(*number)
		if err != nil {
			return nil, ErrInvalidNumber
		}
		upd.Number = &normalized
	}
	if status != nil {
		if !status.Valid() {
			return nil, ErrInvalidStatus
		}
		upd.Status = status
	}

	sim, err := s.sims.Update(ctx, id, upd)
	if err != nil {
		s.appendLog(ctx, model.ActionSimUpdate, model.SimCard{ID: id}, model.OutcomeFailure, err.Error())
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update sim: %w", err)
	}
	s.appendLog(ctx, model.ActionSimUpdate, *sim, model.OutcomeSuccess, "")
	return sim, nil
}

// Deregister soft-deletes a SIM by marking it inactive. Messages keep
// referencing it, so rows are never removed.
func (s *Service) Deregister(ctx context.Context, id string) error {
	if err := s.sims.Deactivate(ctx, id); err != nil {
		s.appendLog(ctx, model.ActionSimRemove, model.SimCard{ID: id}, model.OutcomeFailure, err.Error())
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deregister sim: %w", err)
	}
	s.appendLog(ctx, model.ActionSimRemove, model.SimCard{ID: id}, model.OutcomeSuccess, "")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.SimCard, error) {
	sim, err := s.sims.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sim, err
}

func (s *Service) List(ctx context.Context) ([]model.SimCard, error) {
	return s.sims.List(ctx)
}

type simLogDetails struct {
	SimID  string `json:"sim_id"`
	Number string `json:"number,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Service) appendLog(ctx context.Context, action model.LogAction, sim model.SimCard, outcome model.LogOutcome, errDetail string) {
	details, _ := json.Marshal(simLogDetails{
		SimID:  sim.ID,
		Number: sim.Number,
		Status: sim.Status.String(),
		Error:  errDetail,
	})
	entry := model.LogEntry{
		ID:      util.NewID(),
		Action:  action,
		Details: details,
		Outcome: outcome,
		SimID:   sim.ID,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Log.Error("registry: append log failed",
			zap.String("sim_id", sim.ID), zap.Error(err))
	}
}
