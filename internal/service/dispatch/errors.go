package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSimAvailable means no active SIM could be claimed for sending.
	ErrNoSimAvailable = errors.New("no available sim cards")

	// ErrInvalidSim means the caller named a SIM that does not exist.
	ErrInvalidSim = errors.New("invalid sim card id")

	// ErrSimInactive means the caller named a SIM that is not active.
	ErrSimInactive = errors.New("sim card is inactive")

	// ErrDispatchFailed means the broker publish failed; the message is
	// persisted with status=failed for audit.
	ErrDispatchFailed = errors.New("dispatch failed")
)

// ValidationError reports malformed dispatch input, recoverable by caller
// correction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
