package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/smskit/sim-gateway/internal/model"
)

// SimUpdate carries the mutable SimCard fields; nil means leave unchanged.
type SimUpdate struct {
	Number *string
	Status *model.SimStatus
}

// SimsRepository defines persistence for the sim_cards table. ClaimForSend
// is the load-balancing primitive: it must serialize the load-count read
// against concurrent claims so two dispatches never pick on the same
// snapshot.
type SimsRepository interface {
	Register(ctx context.Context, sim model.SimCard) error
	GetByID(ctx context.Context, id string) (*model.SimCard, error)
	GetByNumber(ctx context.Context, number string) (*model.SimCard, error)
	List(ctx context.Context) ([]model.SimCard, error)
	Update(ctx context.Context, id string, upd SimUpdate) (*model.SimCard, error)
	Deactivate(ctx context.Context, id string) error

	// ClaimForSend picks the SIM for an outgoing message and increments its
	// load in one transaction. With preferredID empty it selects the active
	// SIM with the lowest load, earliest-registered first.
	ClaimForSend(ctx context.Context, preferredID string) (*model.SimCard, error)

	// ReleaseClaim undoes a claim whose message never materialized.
	ReleaseClaim(ctx context.Context, id string) error
}

type SimsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSimsRepository(db *sqlx.DB) *SimsRepositoryImpl {
	return &SimsRepositoryImpl{db: db}
}

var _ SimsRepository = (*SimsRepositoryImpl)(nil)

func (r *SimsRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
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

func (r *SimsRepositoryImpl) Register(ctx context.Context, sim model.SimCard) error {
	const q = `
		INSERT INTO sim_cards (id, number, status, msg_load, created_at, updated_at)
		VALUES (?, ?, ?, 0, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, q, sim.ID, sim.Number, sim.Status.String())
	return err
}

func (r *SimsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.SimCard, error) {
	var s model.SimCard
	err := r.db.GetContext(ctx, &s, `
		SELECT id, number, status, msg_load, created_at, updated_at
		  FROM sim_cards
		 WHERE id = ? LIMIT 1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SimsRepositoryImpl) GetByNumber(ctx context.Context, number string) (*model.SimCard, error) {
	var s model.SimCard
	err := r.db.GetContext(ctx, &s, `
		SELECT id, number, status, msg_load, created_at, updated_at
		  FROM sim_cards
		 WHERE number = ? LIMIT 1
	`, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SimsRepositoryImpl) List(ctx context.Context) ([]model.SimCard, error) {
	var sims []model.SimCard
	err := r.db.SelectContext(ctx, &sims, `
		SELECT id, number, status, msg_load, created_at, updated_at
		  FROM sim_cards
		 ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return sims, nil
}

func (r *SimsRepositoryImpl) Update(ctx context.Context, id string, upd SimUpdate) (*model.SimCard, error) {
	var out *model.SimCard
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var s model.SimCard
		err := tx.GetContext(ctx, &s, `
			SELECT id, number, status, msg_load, created_at, updated_at
			  FROM sim_cards
			 WHERE id = ? FOR UPDATE
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if upd.Number != nil {
			s.Number = *upd.Number
		}
		if upd.Status != nil {
			s.Status = *upd.Status
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sim_cards SET number = ?, status = ?, updated_at = NOW() WHERE id = ?
		`, s.Number, s.Status.String(), id); err != nil {
			return err
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate soft-deletes a SIM. Rows are never hard-deleted while messages
// reference them.
func (r *SimsRepositoryImpl) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sim_cards SET status = ?, updated_at = NOW() WHERE id = ?
	`, model.SimInactive.String(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SimsRepositoryImpl) ClaimForSend(ctx context.Context, preferredID string) (*model.SimCard, error) {
	var out *model.SimCard
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var s model.SimCard
		var err error

		if preferredID != "" {
			err = tx.GetContext(ctx, &s, `
				SELECT id, number, status, msg_load, created_at, updated_at
				  FROM sim_cards
				 WHERE id = ?
				 FOR UPDATE
			`, preferredID)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if s.Status != model.SimActive {
				return ErrSimInactive
			}
		} else {
			// FOR UPDATE serializes the load read against concurrent claims.
			err = tx.GetContext(ctx, &s, `
				SELECT id, number, status, msg_load, created_at, updated_at
				  FROM sim_cards
				 WHERE status = ?
				 ORDER BY msg_load ASC, created_at ASC, id ASC
				 LIMIT 1
				 FOR UPDATE
			`, model.SimActive.String())
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoneAvailable
			}
			if err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sim_cards SET msg_load = msg_load + 1, updated_at = NOW() WHERE id = ?
		`, s.ID); err != nil {
			return err
		}
		s.MsgLoad++
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SimsRepositoryImpl) ReleaseClaim(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sim_cards SET msg_load = GREATEST(msg_load - 1, 0), updated_at = NOW() WHERE id = ?
	`, id)
	return err
}
