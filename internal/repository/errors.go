package repository

import "errors"

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSimInactive is returned when a claim names a SIM that exists but
	// is not active.
	ErrSimInactive = errors.New("sim card is inactive")

	// ErrNoneAvailable is returned when no active SIM can be claimed.
	ErrNoneAvailable = errors.New("no active sim cards available")
)
