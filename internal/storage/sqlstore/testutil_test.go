package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage/dbpool"
	"solana-trade-tracker/internal/storage/migrations"
)

const (
	mintA = "So11111111111111111111111111111111111111112"
	mintB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testPoolConfig() dbpool.Config {
	return dbpool.Config{
		MaxConnections:    2,
		MaxRetries:        1,
		AcquireRetries:    10,
		OperationRetries:  2,
		RetryDelay:        5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		ConnectionTimeout: 5 * time.Second,
		BusyTimeout:       3 * time.Second,
	}
}

// setupSQLite returns a migrated pool over a fresh database file.
func setupSQLite(t *testing.T) *dbpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool := dbpool.New(dbpool.SQLite{Path: filepath.Join(t.TempDir(), "store.db")}, testPoolConfig(), nil)
	require.NoError(t, pool.Initialize(ctx))
	t.Cleanup(pool.CloseAll)

	require.NoError(t, migrations.Run(ctx, pool))
	return pool
}

// setupPostgres starts a PostgreSQL container and returns a migrated pool.
func setupPostgres(t *testing.T) *dbpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool := dbpool.New(dbpool.Postgres{DSN: dsn}, testPoolConfig(), nil)
	require.NoError(t, pool.Initialize(ctx))
	t.Cleanup(pool.CloseAll)

	require.NoError(t, migrations.Run(ctx, pool))
	return pool
}

// truncateAll empties every record-store table.
func truncateAll(t *testing.T, pool *dbpool.Pool) {
	t.Helper()
	err := pool.Execute(context.Background(), func(ctx context.Context, c *dbpool.Conn) error {
		for _, table := range []string{"holdings", "tokens", "virtual_balance", "simulated_trades", "token_tracking"} {
			if _, err := c.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newHolding(token string, at int64) *domain.HoldingRecord {
	return &domain.HoldingRecord{
		Time:             at,
		Token:            token,
		TokenName:        "N/A",
		Balance:          1500.5,
		SolPaid:          0.1,
		SolFeePaid:       0.001,
		SolFeePaidUSDC:   0.15,
		PerTokenPaidUSDC: 0.0123,
		Slot:             250_000_000,
		Program:          "raydium",
	}
}

func ptr[T any](v T) *T {
	return &v
}
