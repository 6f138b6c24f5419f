package model

import "time"

type SimStatus string

const (
	SimActive   SimStatus = "active"
	SimInactive SimStatus = "inactive"
)

func (s SimStatus) String() string { return string(s) }

func (s SimStatus) Valid() bool {
	return s == SimActive || s == SimInactive
}

// SimCard is a sending identity. MsgLoad counts outgoing messages
// attributed to it and drives least-loaded selection.
type SimCard struct {
	ID        string    `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	Status    SimStatus `db:"status" json:"status"`
	MsgLoad   int64     `db:"msg_load" json:"msg_load"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
