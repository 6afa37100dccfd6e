package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PostgreSQL error codes
const (
	pgErrUniqueViolation   = "23505" // unique_violation
	pgErrUndefinedTable    = "42P01" // undefined_table
	pgErrLockNotAvailable  = "55P03" // lock_not_available
	pgErrDeadlockDetected  = "40P01" // deadlock_detected
	pgErrSerialization     = "40001" // serialization_failure
	pgErrConnectionClass   = "08"    // connection_exception class
	pgErrAdminShutdownCode = "57P01" // admin_shutdown
)

// Postgres is the server-backed dialect using pgx through database/sql.
type Postgres struct {
	DSN string
}

func (d Postgres) Name() string { return "postgres" }

func (d Postgres) Open(ctx context.Context) (*sql.DB, error) {
	if strings.TrimSpace(d.DSN) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", d.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (d Postgres) Configure(ctx context.Context, conn *sql.Conn, busyTimeout time.Duration) error {
	stmt := fmt.Sprintf("SET lock_timeout = %d", busyTimeout.Milliseconds())
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	return nil
}

func (d Postgres) Rebind(query string) string { return rebindDollar(query) }

func (d Postgres) Classify(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) {
			return KindConnection
		}
		return KindOther
	}

	switch {
	case pgErr.Code == pgErrUniqueViolation:
		return KindUniqueViolation
	case pgErr.Code == pgErrUndefinedTable:
		return KindMissingTable
	case pgErr.Code == pgErrLockNotAvailable:
		return KindLocked
	case pgErr.Code == pgErrDeadlockDetected, pgErr.Code == pgErrSerialization:
		return KindBusy
	case strings.HasPrefix(pgErr.Code, pgErrConnectionClass), pgErr.Code == pgErrAdminShutdownCode:
		return KindConnection
	}
	return KindOther
}
