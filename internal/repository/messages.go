package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/smskit/sim-gateway/internal/model"
)

// MessagesRepository defines persistence for the messages table.
type MessagesRepository interface {
	Insert(ctx context.Context, m model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// UpdateStatus overwrites the status and returns the updated row.
	// Transition legality is the caller's concern; the store applies what
	// it is told (last write wins).
	UpdateStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error)
	ListByDirection(ctx context.Context, direction model.Direction, limit, offset int) ([]model.Message, error)
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

func (r *MessagesRepositoryImpl) Insert(ctx context.Context, m model.Message) error {
	const q = `
		INSERT INTO messages
		    (id, direction, sender, recipient, body, status, sim_id, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,      ?,         ?,    ?,      ?,      NOW(),      NOW())
	`
	// Unattributed messages carry no SIM; NULL keeps the FK satisfied.
	var simID any
	if m.SimID != "" {
		simID = m.SimID
	}
	_, err := r.db.ExecContext(ctx, q,
		m.ID, m.Direction.String(), m.Sender, m.Recipient, m.Body, m.Status.String(), simID,
	)
	return err
}

func (r *MessagesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := r.db.GetContext(ctx, &m, `
		SELECT id, direction, sender, recipient, body, status, COALESCE(sim_id, '') AS sim_id, created_at, updated_at
		  FROM messages
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessagesRepositoryImpl) UpdateStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error) {
	var out *model.Message
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var m model.Message
		err := tx.GetContext(ctx, &m, `
			SELECT id, direction, sender, recipient, body, status, COALESCE(sim_id, '') AS sim_id, created_at, updated_at
			  FROM messages
			 WHERE id = ? FOR UPDATE
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET status = ?, updated_at = NOW() WHERE id = ?
		`, status.String(), id); err != nil {
			return err
		}
		m.Status = status
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MessagesRepositoryImpl) ListByDirection(ctx context.Context, direction model.Direction, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []model.Message
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, direction, sender, recipient, body, status, COALESCE(sim_id, '') AS sim_id, created_at, updated_at
		  FROM messages
		 WHERE direction = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?
	`, direction.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessagesRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
