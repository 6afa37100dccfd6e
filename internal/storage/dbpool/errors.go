package dbpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
)

// Pool errors.
var (
	// ErrPoolInit is returned by Initialize when no connection could be created.
	ErrPoolInit = errors.New("failed to initialize connection pool")

	// ErrPoolExhausted is returned when every connection stays checked out
	// for the whole acquire window. Callers may retry later.
	ErrPoolExhausted = errors.New("no database connections available")

	// ErrRecoveryFailed is returned when a broken connection could not be replaced.
	ErrRecoveryFailed = errors.New("failed to recover database connection")
)

// ErrorKind classifies a database failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindBusy
	KindLocked
	KindMissingTable
	KindTimeout
	KindConnection
	KindUniqueViolation
)

var kindNames = map[ErrorKind]string{
	KindOther:           "other",
	KindBusy:            "busy",
	KindLocked:          "locked",
	KindMissingTable:    "missing_table",
	KindTimeout:         "timeout",
	KindConnection:      "connection",
	KindUniqueViolation: "unique_violation",
}

// String returns the label used in logs and metrics.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsConnectionError reports whether the kind warrants replacing the connection.
func (k ErrorKind) IsConnectionError() bool {
	switch k {
	case KindBusy, KindLocked, KindMissingTable, KindConnection:
		return true
	}
	return false
}

// Error is a classified database error. Kind is set where the driver error is caught.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind carried by err, or KindOther.
func KindOf(err error) ErrorKind {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return KindOther
}

// RetryError is returned by ExecuteWithRetry when every attempt failed.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	msg := "<nil>"
	if e.Last != nil {
		msg = e.Last.Error()
	}
	return fmt.Sprintf("database operation failed after %d attempts: %s", e.Attempts, msg)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

// classify wraps err into *Error using generic rules first and the dialect second.
func classify(d Dialect, op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}
	return &Error{Kind: kindFor(d, err), Op: op, Err: err}
}

func kindFor(d Dialect, err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return KindConnection
	}
	if d == nil {
		return KindOther
	}
	return d.Classify(err)
}
