package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/smskit/sim-gateway/internal/model"
)

// LogsRepository defines persistence for the append-only logs table.
// Entries are never mutated after creation.
type LogsRepository interface {
	Append(ctx context.Context, e model.LogEntry) error
	List(ctx context.Context, limit, offset int) ([]model.LogEntry, error)
}

type LogsRepositoryImpl struct {
	db *sqlx.DB
}

func NewLogsRepository(db *sqlx.DB) *LogsRepositoryImpl {
	return &LogsRepositoryImpl{db: db}
}

var _ LogsRepository = (*LogsRepositoryImpl)(nil)

func (r *LogsRepositoryImpl) Append(ctx context.Context, e model.LogEntry) error {
	const q = `
		INSERT INTO logs (id, action, details, outcome, sim_id, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Action.String(), []byte(e.Details), e.Outcome.String(), e.SimID,
	)
	return err
}

func (r *LogsRepositoryImpl) List(ctx context.Context, limit, offset int) ([]model.LogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []model.LogEntry
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, action, details, outcome, sim_id, created_at
		  FROM logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
