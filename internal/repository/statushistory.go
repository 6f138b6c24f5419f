package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/smskit/sim-gateway/internal/model"
)

// StatusHistoryRepository records every delivery state the bridge reports,
// keyed by (sender, receiver, body, status, timestamp). History survives
// even when the originating message record is gone.
type StatusHistoryRepository interface {
	Record(ctx context.Context, s model.SmsStatus) error
	List(ctx context.Context, limit, offset int) ([]model.SmsStatus, error)
}

type statusHistoryRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewStatusHistoryRepository(ch *sqlx.DB) StatusHistoryRepository {
	return &statusHistoryRepository{ch: ch}
}

func (r *statusHistoryRepository) Record(ctx context.Context, s model.SmsStatus) error {
	const q = `
		INSERT INTO simgw.sms_status (id, sender_number, receiver_number, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.ch.ExecContext(ctx, q,
		s.ID, s.SenderNumber, s.ReceiverNumber, s.Body, s.Status, s.CreatedAt,
	)
	return err
}

func (r *statusHistoryRepository) List(ctx context.Context, limit, offset int) ([]model.SmsStatus, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []model.SmsStatus
	err := r.ch.SelectContext(ctx, &rows, `
		SELECT id, sender_number, receiver_number, body, status, created_at
		  FROM simgw.sms_status
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
