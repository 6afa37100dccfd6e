package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"solana-trade-tracker/internal/config"
	"solana-trade-tracker/internal/storage"
	chstore "solana-trade-tracker/internal/storage/clickhouse"
	"solana-trade-tracker/internal/storage/dbpool"
	"solana-trade-tracker/internal/storage/memory"
	"solana-trade-tracker/internal/storage/migrations"
	"solana-trade-tracker/internal/storage/sqlstore"
)

// allStores holds all storage implementations.
type allStores struct {
	driver   string
	pool     *dbpool.Pool // nil with in-memory storage
	holdings storage.HoldingStore
	tokens   storage.TokenStore
	paper    storage.PaperTradingStore
	samples  storage.PriceSampleStore // nil without ClickHouse
}

// createStores opens the record store backend and the optional ClickHouse archive.
// A pool that cannot be initialized is fatal; an unreachable ClickHouse only disables archiving.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *logrus.Logger) (*allStores, func(), error) {
	risk := cfg.PaperTrading.Risk()

	if useMemory {
		return &allStores{
			driver:   "memory",
			holdings: memory.NewHoldingStore(),
			tokens:   memory.NewTokenStore(),
			paper:    memory.NewPaperTradingStore(risk),
		}, func() {}, nil
	}

	var dialect dbpool.Dialect
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dialect = dbpool.Postgres{DSN: cfg.Database.DSN}
	default:
		if dir := filepath.Dir(cfg.Database.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialect = dbpool.SQLite{Path: cfg.Database.Path}
	}

	pool := dbpool.New(dialect, cfg.Pool, logger)
	if err := pool.Initialize(ctx); err != nil {
		return nil, nil, err
	}
	if err := migrations.Run(ctx, pool); err != nil {
		pool.CloseAll()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	st := &allStores{
		driver:   dialect.Name(),
		pool:     pool,
		holdings: sqlstore.NewHoldingStore(pool),
		tokens:   sqlstore.NewTokenStore(pool),
		paper:    sqlstore.NewPaperTradingStore(pool, risk),
	}
	cleanup := pool.CloseAll

	if dsn := cfg.Database.ClickhouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, price samples will not be archived")
		} else {
			st.samples = chstore.NewPriceSampleStore(conn)
			cleanup = func() {
				if err := conn.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close ClickHouse connection")
				}
				pool.CloseAll()
			}
		}
	}

	return st, cleanup, nil
}
