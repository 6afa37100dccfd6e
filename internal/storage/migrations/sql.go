package migrations

import (
	"context"
	"fmt"

	"solana-trade-tracker/internal/storage/dbpool"
)

// Run applies the migrations for the pool's dialect. Every statement is
// idempotent, so a retried file is safe.
func Run(ctx context.Context, pool *dbpool.Pool) error {
	files, err := load(SQLFS, pool.Dialect().Name())
	if err != nil {
		return err
	}

	for _, m := range files {
		err := pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
			for _, stmt := range m.stmts {
				if _, err := conn.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
