package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
	"solana-trade-tracker/internal/storage/dbpool"
)

// DefaultRecentTrades is used by GetRecentTrades for a non-positive limit.
const DefaultRecentTrades = 50

// PaperTradingStore implements storage.PaperTradingStore.
type PaperTradingStore struct {
	pool *dbpool.Pool
	risk storage.RiskConfig
	now  func() time.Time
}

// NewPaperTradingStore creates a new PaperTradingStore. risk sets the
// stop-loss and take-profit of positions opened by buys.
func NewPaperTradingStore(pool *dbpool.Pool, risk storage.RiskConfig) *PaperTradingStore {
	return &PaperTradingStore{pool: pool, risk: risk, now: time.Now}
}

// Compile-time interface check.
var _ storage.PaperTradingStore = (*PaperTradingStore)(nil)

const trackingColumns = `token_mint, token_name, amount, buy_price, current_price, last_updated, stop_loss, take_profit`

// EnsureBalance seeds the ledger with initialSOL unless it already has a row.
func (s *PaperTradingStore) EnsureBalance(ctx context.Context, initialSOL float64) (*domain.VirtualBalance, error) {
	if err := storage.ValidateBalance(initialSOL); err != nil {
		return nil, err
	}

	var out *domain.VirtualBalance
	err := s.pool.Transaction(ctx, func(ctx context.Context, tx *dbpool.Tx) error {
		current, err := latestBalance(ctx, tx)
		if err == nil {
			out = current
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		out, err = appendBalance(ctx, tx, decimal.NewFromFloat(initialSOL), s.now().UnixMilli())
		return err
	})
	if err != nil {
		return nil, mapError(s.pool, "ensure virtual balance", err)
	}
	return out, nil
}

// GetVirtualBalance retrieves the latest balance. Returns ErrNotFound if the ledger is empty.
func (s *PaperTradingStore) GetVirtualBalance(ctx context.Context) (*domain.VirtualBalance, error) {
	var out *domain.VirtualBalance
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		b, err := latestBalance(ctx, conn)
		if errors.Is(err, storage.ErrNotFound) {
			out = nil
			return nil
		}
		out = b
		return err
	})
	if err != nil {
		return nil, mapError(s.pool, "get virtual balance", err)
	}
	if out == nil {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// RecordSimulatedTrade stores t, appends the new balance and updates the
// position in one transaction. A buy debits amount+fees and accumulates the
// position. A sell credits amount-fees, floored at zero, and closes the position.
func (s *PaperTradingStore) RecordSimulatedTrade(ctx context.Context, t *domain.SimulatedTrade) error {
	if err := storage.ValidateSimulatedTrade(t); err != nil {
		return err
	}
	if t.TradeID == "" {
		t.TradeID = uuid.NewString()
	}

	var id int64
	err := s.pool.Transaction(ctx, func(ctx context.Context, tx *dbpool.Tx) error {
		current, err := latestBalance(ctx, tx)
		if err != nil {
			return err
		}

		next := applyTrade(decimal.NewFromFloat(current.BalanceSOL), t)
		if next.IsNegative() {
			return fmt.Errorf("%w: have %.9f SOL, need %.9f SOL",
				storage.ErrInsufficientBalance, current.BalanceSOL, t.AmountSOL+t.Fees)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO simulated_trades (
				trade_id, timestamp, token_mint, token_name, amount_sol,
				amount_token, price_per_token, type, fees
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`,
			t.TradeID,
			t.Timestamp,
			t.TokenMint,
			t.TokenName,
			t.AmountSOL,
			t.AmountToken,
			t.PricePerToken,
			string(t.Type),
			t.Fees,
		).Scan(&id)
		if err != nil {
			return err
		}

		if _, err := appendBalance(ctx, tx, next, t.Timestamp); err != nil {
			return err
		}

		if t.Type == domain.TradeTypeSell {
			_, err = tx.ExecContext(ctx, `DELETE FROM token_tracking WHERE token_mint = ?`, t.TokenMint)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO token_tracking (`+trackingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (token_mint) DO UPDATE SET
				token_name    = excluded.token_name,
				amount        = token_tracking.amount + excluded.amount,
				buy_price     = excluded.buy_price,
				current_price = excluded.current_price,
				last_updated  = excluded.last_updated,
				stop_loss     = excluded.stop_loss,
				take_profit   = excluded.take_profit
		`,
			t.TokenMint,
			t.TokenName,
			t.AmountToken,
			t.PricePerToken,
			t.PricePerToken,
			t.Timestamp,
			s.risk.StopLoss(t.PricePerToken),
			s.risk.TakeProfit(t.PricePerToken),
		)
		return err
	})
	if err != nil {
		return mapError(s.pool, "record simulated trade", err)
	}

	t.ID = id
	return nil
}

// UpdateTokenPrice sets the current price of a tracked token.
func (s *PaperTradingStore) UpdateTokenPrice(ctx context.Context, mint string, price float64) (*domain.TokenTracking, error) {
	if err := storage.ValidateMint(mint); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", storage.ErrInvalidInput)
	}

	var out *domain.TokenTracking
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		row := conn.QueryRowContext(ctx, `
			UPDATE token_tracking SET current_price = ?, last_updated = ?
			WHERE token_mint = ?
			RETURNING `+trackingColumns,
			price, s.now().UnixMilli(), mint)
		tt, err := scanTracking(row)
		if errors.Is(err, sql.ErrNoRows) {
			out = nil
			return nil
		}
		out = tt
		return err
	})
	if err != nil {
		return nil, mapError(s.pool, "update token price", err)
	}
	if out == nil {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// GetTrackedTokens retrieves all open positions in opening order.
func (s *PaperTradingStore) GetTrackedTokens(ctx context.Context) ([]*domain.TokenTracking, error) {
	var out []*domain.TokenTracking
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT `+trackingColumns+` FROM token_tracking ORDER BY id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			tt, err := scanTracking(rows)
			if err != nil {
				return err
			}
			out = append(out, tt)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(s.pool, "get tracked tokens", err)
	}
	return out, nil
}

// GetRecentTrades retrieves up to limit trades, newest first.
func (s *PaperTradingStore) GetRecentTrades(ctx context.Context, limit int) ([]*domain.SimulatedTrade, error) {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}

	var out []*domain.SimulatedTrade
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT id, trade_id, timestamp, token_mint, token_name, amount_sol,
				amount_token, price_per_token, type, fees
			FROM simulated_trades
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			var t domain.SimulatedTrade
			var tradeType string
			err := rows.Scan(&t.ID, &t.TradeID, &t.Timestamp, &t.TokenMint, &t.TokenName,
				&t.AmountSOL, &t.AmountToken, &t.PricePerToken, &tradeType, &t.Fees)
			if err != nil {
				return err
			}
			t.Type = domain.TradeType(tradeType)
			out = append(out, &t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(s.pool, "get recent trades", err)
	}
	return out, nil
}

// ResetPaperTrading wipes the ledger and starts over at initialSOL.
func (s *PaperTradingStore) ResetPaperTrading(ctx context.Context, initialSOL float64) error {
	if err := storage.ValidateBalance(initialSOL); err != nil {
		return err
	}

	err := s.pool.Transaction(ctx, func(ctx context.Context, tx *dbpool.Tx) error {
		for _, table := range []string{"simulated_trades", "token_tracking", "virtual_balance"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		_, err := appendBalance(ctx, tx, decimal.NewFromFloat(initialSOL), s.now().UnixMilli())
		return err
	})
	return mapError(s.pool, "reset paper trading", err)
}

// applyTrade returns the balance after t.
func applyTrade(balance decimal.Decimal, t *domain.SimulatedTrade) decimal.Decimal {
	amount := decimal.NewFromFloat(t.AmountSOL)
	fees := decimal.NewFromFloat(t.Fees)
	if t.Type == domain.TradeTypeBuy {
		return balance.Sub(amount.Add(fees))
	}
	// A sell never debits, even when its fees exceed the proceeds.
	return balance.Add(decimal.Max(amount.Sub(fees), decimal.Zero))
}

func latestBalance(ctx context.Context, q dbpool.Querier) (*domain.VirtualBalance, error) {
	var b domain.VirtualBalance
	err := q.QueryRowContext(ctx,
		`SELECT id, balance_sol, updated_at FROM virtual_balance ORDER BY id DESC LIMIT 1`,
	).Scan(&b.ID, &b.BalanceSOL, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func appendBalance(ctx context.Context, q dbpool.Querier, balance decimal.Decimal, at int64) (*domain.VirtualBalance, error) {
	b := domain.VirtualBalance{BalanceSOL: balance.InexactFloat64(), UpdatedAt: at}
	err := q.QueryRowContext(ctx,
		`INSERT INTO virtual_balance (balance_sol, updated_at) VALUES (?, ?) RETURNING id`,
		b.BalanceSOL, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return nil, fmt.Errorf("append balance: %w", err)
	}
	return &b, nil
}

func scanTracking(row scanner) (*domain.TokenTracking, error) {
	var t domain.TokenTracking
	err := row.Scan(
		&t.TokenMint,
		&t.TokenName,
		&t.Amount,
		&t.BuyPrice,
		&t.CurrentPrice,
		&t.LastUpdated,
		&t.StopLoss,
		&t.TakeProfit,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
