package clickhouse

import (
	"context"
	"fmt"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk appends samples in one batch. MergeTree keeps duplicates, the
// archive is append-only.
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, p := range samples {
		if err := storage.ValidateMint(p.Mint); err != nil {
			return err
		}
		if p.TimestampMs <= 0 {
			return fmt.Errorf("%w: sample timestamp must be positive", storage.ErrInvalidInput)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (mint, timestamp_ms, source, price, accepted)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		var accepted uint8
		if p.Accepted {
			accepted = 1
		}
		err = batch.Append(p.Mint, uint64(p.TimestampMs), p.Source.String(), p.Price, accepted)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples for a mint within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceSample, error) {
	query := `
		SELECT mint, timestamp_ms, source, price, accepted
		FROM price_samples
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, source ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanPriceSamples(rows chRows) ([]*domain.PriceSample, error) {
	var samples []*domain.PriceSample

	for rows.Next() {
		var p domain.PriceSample
		var timestampMs uint64
		var source string
		var accepted uint8

		if err := rows.Scan(&p.Mint, &timestampMs, &source, &p.Price, &accepted); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		p.Source = domain.PriceSource(source)
		p.Accepted = accepted == 1
		samples = append(samples, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}

	return samples, nil
}
