package model

import "time"

// SmsStatus is a historical record of a delivery state reported by the
// external bridge. It is append-only and kept even when the originating
// message record is gone.
type SmsStatus struct {
	ID             string    `db:"id" json:"id"`
	SenderNumber   string    `db:"sender_number" json:"sender_number"`
	ReceiverNumber string    `db:"receiver_number" json:"receiver_number"`
	Body           string    `db:"body" json:"message"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"timestamp"`
}

// StatusEvent is the payload consumed from the broker status topic. Either
// MessageID or the (sender, receiver, message) triple must be present.
type StatusEvent struct {
	MessageID      string `json:"message_id,omitempty"`
	SenderNumber   string `json:"sender_number,omitempty"`
	ReceiverNumber string `json:"receiver_number,omitempty"`
	Body           string `json:"message,omitempty"`
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp,omitempty"`
}

// ReceiveEvent is the payload consumed from the broker receive topic when
// the bridge picks up an inbound SMS.
type ReceiveEvent struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver,omitempty"` // number of the SIM that received it
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
