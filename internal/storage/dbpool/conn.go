package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Querier is satisfied by both Conn and Tx so stores can share SQL helpers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*Conn)(nil)
	_ Querier = (*Tx)(nil)
)

// Conn is one pooled physical connection. It is owned by the pool and only
// valid between GetConnection and ReleaseConnection.
type Conn struct {
	id      int
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
}

// ID returns the pool-local identifier of the connection.
func (c *Conn) ID() int { return c.id }

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.conn.ExecContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(c.dialect, "exec", err)
	}
	return res, nil
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(c.dialect, "query", err)
	}
	return rows, nil
}

// QueryRowContext defers errors to Scan. The pool classifies them when the
// operation returns.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, c.dialect.Rebind(query), args...)
}

func (c *Conn) begin(ctx context.Context) (*Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(c.dialect, "begin", err)
	}
	return &Tx{tx: tx, conn: c}, nil
}

func (c *Conn) close() error {
	var errs []error
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("close conn: %w", err))
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	return errors.Join(errs...)
}

// Tx is a transaction on a pooled connection. Commit and Rollback are
// idempotent: only the first terminal call reaches the database.
type Tx struct {
	tx   *sql.Tx
	conn *Conn

	mu        sync.Mutex
	finalized bool
}

// Finalized reports whether Commit or Rollback has already run.
func (t *Tx) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

// Commit commits the transaction. A no-op once finalized.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return nil
	}
	t.finalized = true
	if err := t.tx.Commit(); err != nil {
		return classify(t.conn.dialect, "commit", err)
	}
	return nil
}

// Rollback aborts the transaction. A no-op once finalized.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return nil
	}
	t.finalized = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify(t.conn.dialect, "rollback", err)
	}
	return nil
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.conn.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(t.conn.dialect, "exec", err)
	}
	return res, nil
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.conn.dialect.Rebind(query), args...)
	if err != nil {
		return nil, classify(t.conn.dialect, "query", err)
	}
	return rows, nil
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.conn.dialect.Rebind(query), args...)
}
