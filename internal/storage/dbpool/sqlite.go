package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite is the embedded single-file dialect backed by modernc.org/sqlite.
type SQLite struct {
	Path string
}

func (d SQLite) Name() string { return "sqlite" }

// DSN returns the driver data source name. Transactions take the write lock at
// BEGIN so concurrent writers wait on busy_timeout instead of failing at COMMIT.
func (d SQLite) DSN() string {
	v := url.Values{}
	v.Set("_txlock", "immediate")
	return "file:" + d.Path + "?" + v.Encode()
}

func (d SQLite) Open(ctx context.Context) (*sql.DB, error) {
	if strings.TrimSpace(d.Path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", d.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func (d SQLite) Configure(ctx context.Context, conn *sql.Conn, busyTimeout time.Duration) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

func (d SQLite) Rebind(query string) string { return query }

func (d SQLite) Classify(err error) ErrorKind {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return KindOther
	}

	code := sqliteErr.Code()
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY:
		return KindBusy
	case sqlite3.SQLITE_LOCKED:
		return KindLocked
	case sqlite3.SQLITE_CONSTRAINT:
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return KindUniqueViolation
		}
		if strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed") {
			return KindUniqueViolation
		}
	case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_MISUSE:
		return KindConnection
	case sqlite3.SQLITE_ERROR:
		// Missing tables only surface as a generic SQLITE_ERROR.
		if strings.Contains(sqliteErr.Error(), "no such table") {
			return KindMissingTable
		}
	}
	return KindOther
}
