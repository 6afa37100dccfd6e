package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a unique key that already exists (token mint, trade id).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	// Validation runs before any connection is borrowed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance is returned when a simulated buy exceeds the virtual balance.
	ErrInsufficientBalance = errors.New("insufficient virtual balance")
)
