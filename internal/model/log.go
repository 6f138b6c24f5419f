package model

import (
	"encoding/json"
	"time"
)

type LogAction string

const (
	ActionSend         LogAction = "send"
	ActionReceive      LogAction = "receive"
	ActionStatusUpdate LogAction = "status_update"
	ActionSimRegister  LogAction = "sim_register"
	ActionSimUpdate    LogAction = "sim_update"
	ActionSimRemove    LogAction = "sim_remove"
)

func (a LogAction) String() string { return string(a) }

type LogOutcome string

const (
	OutcomeSuccess LogOutcome = "success"
	OutcomeFailure LogOutcome = "failure"
)

func (o LogOutcome) String() string { return string(o) }

// LogEntry is an append-only audit record. Every state-changing operation
// writes one regardless of outcome, so the log is the ground truth of what
// was attempted.
type LogEntry struct {
	ID        string          `db:"id" json:"id"`
	Action    LogAction       `db:"action" json:"action"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	Outcome   LogOutcome      `db:"outcome" json:"outcome"`
	SimID     string          `db:"sim_id" json:"sim_id,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
