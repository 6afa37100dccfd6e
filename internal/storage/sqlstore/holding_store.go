package sqlstore

import (
	"context"
	"database/sql"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
	"solana-trade-tracker/internal/storage/dbpool"
)

// HoldingStore implements storage.HoldingStore.
type HoldingStore struct {
	pool *dbpool.Pool
}

// NewHoldingStore creates a new HoldingStore.
func NewHoldingStore(pool *dbpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HoldingStore = (*HoldingStore)(nil)

const holdingColumns = `id, time, token, token_name, balance, sol_paid, sol_fee_paid,
	sol_paid_usdc, sol_fee_paid_usdc, per_token_paid_usdc, slot, program, wallet_address`

// Insert adds a holding and sets its ID.
func (s *HoldingStore) Insert(ctx context.Context, h *domain.HoldingRecord) error {
	if err := storage.ValidateHolding(h); err != nil {
		return err
	}

	query := `
		INSERT INTO holdings (
			time, token, token_name, balance, sol_paid, sol_fee_paid,
			sol_paid_usdc, sol_fee_paid_usdc, per_token_paid_usdc, slot, program, wallet_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	var id int64
	err := s.pool.Transaction(ctx, func(ctx context.Context, tx *dbpool.Tx) error {
		return tx.QueryRowContext(ctx, query,
			h.Time,
			h.Token,
			h.TokenName,
			h.Balance,
			h.SolPaid,
			h.SolFeePaid,
			nullFloat(h.SolPaidUSDC),
			h.SolFeePaidUSDC,
			h.PerTokenPaidUSDC,
			h.Slot,
			h.Program,
			h.WalletAddress,
		).Scan(&id)
	})
	if err != nil {
		return mapError(s.pool, "insert holding", err)
	}
	h.ID = id
	return nil
}

// Remove deletes every holding for token.
func (s *HoldingStore) Remove(ctx context.Context, token string) error {
	if err := storage.ValidateMint(token); err != nil {
		return err
	}

	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		_, err := conn.ExecContext(ctx, `DELETE FROM holdings WHERE token = ?`, token)
		return err
	})
	return mapError(s.pool, "remove holding", err)
}

// List retrieves all holdings, newest first.
func (s *HoldingStore) List(ctx context.Context) ([]*domain.HoldingRecord, error) {
	query := `SELECT ` + holdingColumns + ` FROM holdings ORDER BY time DESC, id DESC`
	return s.query(ctx, "list holdings", query)
}

// GetByToken retrieves holdings for a token mint, newest first.
func (s *HoldingStore) GetByToken(ctx context.Context, token string) ([]*domain.HoldingRecord, error) {
	if err := storage.ValidateMint(token); err != nil {
		return nil, err
	}
	query := `SELECT ` + holdingColumns + ` FROM holdings WHERE token = ? ORDER BY time DESC, id DESC`
	return s.query(ctx, "get holdings by token", query, token)
}

func (s *HoldingStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.HoldingRecord, error) {
	var out []*domain.HoldingRecord
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			h, err := scanHolding(rows)
			if err != nil {
				return err
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(s.pool, op, err)
	}
	return out, nil
}

func scanHolding(row scanner) (*domain.HoldingRecord, error) {
	var h domain.HoldingRecord
	var usdc sql.NullFloat64

	err := row.Scan(
		&h.ID,
		&h.Time,
		&h.Token,
		&h.TokenName,
		&h.Balance,
		&h.SolPaid,
		&h.SolFeePaid,
		&usdc,
		&h.SolFeePaidUSDC,
		&h.PerTokenPaidUSDC,
		&h.Slot,
		&h.Program,
		&h.WalletAddress,
	)
	if err != nil {
		return nil, err
	}
	if usdc.Valid {
		h.SolPaidUSDC = &usdc.Float64
	}
	return &h, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
