package dbpool

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Dialect abstracts the database driver behind the pool.
type Dialect interface {
	// Name identifies the dialect in logs and metrics.
	Name() string
	// Open returns a handle that the pool restricts to a single physical connection.
	Open(ctx context.Context) (*sql.DB, error)
	// Configure applies per-connection settings such as the lock wait timeout.
	Configure(ctx context.Context, conn *sql.Conn, busyTimeout time.Duration) error
	// Rebind rewrites '?' placeholders into the dialect's syntax.
	Rebind(query string) string
	// Classify maps a driver error to an ErrorKind.
	Classify(err error) ErrorKind
}

// rebindDollar rewrites '?' placeholders to $1, $2, ... outside of quoted literals.
func rebindDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
