package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/smskit/sim-gateway/internal/config"
	"github.com/smskit/sim-gateway/internal/db"
	"github.com/smskit/sim-gateway/internal/model"
	"github.com/smskit/sim-gateway/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo SIM cards and API clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo SIM cards and API clients...")

		if err := seedSims(sqlDB); err != nil {
			return err
		}
		if err := seedClients(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

// seedSims inserts 3 deterministic demo SIMs, keyed on number (UNIQUE).
func seedSims(dbx *sqlx.DB) error {
	sims := []model.SimCard{
		{Number: "+15550100001", Status: model.SimActive},
		{Number: "+15550100002", Status: model.SimActive},
		{Number: "+15550100003", Status: model.SimInactive},
	}

	const q = `
INSERT INTO sim_cards
    (id, number, status, msg_load, created_at, updated_at)
VALUES
    (?, ?, ?, 0, ?, ?)
ON DUPLICATE KEY UPDATE
    status     = VALUES(status),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, s := range sims {
		if _, err := tx.Exec(q, util.NewID(), s.Number, s.Status.String(), now, now); err != nil {
			return fmt.Errorf("insert sim %q: %w", s.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sims: %w", err)
	}
	return nil
}

// seedClients inserts demo API clients (idempotent on api_key).
func seedClients(dbx *sqlx.DB) error {
	clients := []model.APIClient{
		{
			Name:         "Acme Corp",
			APIKey:       "11111111111111111111111111111111",
			Status:       "active",
			RateLimitRPS: intptr(20),
		},
		{
			Name:         "Beta Testers",
			APIKey:       "22222222222222222222222222222222",
			Status:       "active",
			RateLimitRPS: intptr(5),
		},
		{
			Name:         "Suspended Inc",
			APIKey:       "33333333333333333333333333333333",
			Status:       "suspended",
			RateLimitRPS: nil,
		},
	}

	const q = `
INSERT INTO api_clients
    (name, api_key, status, rate_limit_rps, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name           = VALUES(name),
    status         = VALUES(status),
    rate_limit_rps = VALUES(rate_limit_rps),
    updated_at     = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, c := range clients {
		if _, err := tx.Exec(q, c.Name, c.APIKey, c.Status, c.RateLimitRPS, now, now); err != nil {
			return fmt.Errorf("insert client %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clients: %w", err)
	}
	return nil
}

func intptr(i int) *int { return &i }
