// Package sqlstore implements the record stores on top of dbpool. Writes run
// inside pool transactions, reads and deletes through the retrying executor.
package sqlstore

import (
	"errors"
	"fmt"

	"solana-trade-tracker/internal/storage"
	"solana-trade-tracker/internal/storage/dbpool"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// mapError translates pool errors into storage sentinels.
func mapError(pool *dbpool.Pool, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInsufficientBalance) {
		return err
	}
	if pool.Classify(err) == dbpool.KindUniqueViolation {
		return storage.ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}
