package model

import "time"

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
	StatusReceived  MessageStatus = "received"
)

func (s MessageStatus) String() string { return string(s) }

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusReceived:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected.
func (s MessageStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusReceived
}

// CanTransition reports whether s -> next follows the outgoing lifecycle:
// pending -> sent -> delivered|failed, with pending -> failed allowed for
// publish failures. Anything else is an out-of-order or unknown transition;
// callers log it as an anomaly but external statuses win once matched.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusFailed
	case StatusSent:
		return next == StatusDelivered || next == StatusFailed
	}
	return false
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

func (d Direction) String() string { return string(d) }

func (d Direction) Valid() bool {
	return d == DirectionOutgoing || d == DirectionIncoming
}

// Message is the DB entity persisted in the messages table.
type Message struct {
	ID        string        `db:"id" json:"id"`
	Direction Direction     `db:"direction" json:"direction"`
	Sender    string        `db:"sender" json:"sender"`
	Recipient string        `db:"recipient" json:"recipient"`
	Body      string        `db:"body" json:"body"`
	Status    MessageStatus `db:"status" json:"status"`
	SimID     string        `db:"sim_id" json:"sim_id,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// SendPayload is the JSON body published to the per-SIM send topic for the
// external GSM bridge.
type SendPayload struct {
	Number    string `json:"number"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}
