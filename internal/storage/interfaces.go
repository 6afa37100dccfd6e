package storage

import (
	"context"

	"solana-trade-tracker/internal/domain"
)

// HoldingStore provides access to holdings storage.
type HoldingStore interface {
	// Insert adds a new holding inside a transaction.
	Insert(ctx context.Context, h *domain.HoldingRecord) error

	// Remove deletes every holding for a token mint. Returns ErrInvalidInput for a blank mint.
	Remove(ctx context.Context, token string) error

	// List retrieves all holdings, newest first.
	List(ctx context.Context) ([]*domain.HoldingRecord, error)

	// GetByToken retrieves holdings for a token mint, newest first.
	GetByToken(ctx context.Context, token string) ([]*domain.HoldingRecord, error)
}

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a discovered token. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, t *domain.NewTokenRecord) error

	// FindByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
	FindByMint(ctx context.Context, mint string) (*domain.NewTokenRecord, error)

	// FindByNameOrCreator retrieves tokens whose name matches name or whose creator matches creator.
	FindByNameOrCreator(ctx context.Context, name, creator string) ([]*domain.NewTokenRecord, error)
}

// PaperTradingStore provides access to the paper-trading tables
// (virtual_balance, simulated_trades, token_tracking).
type PaperTradingStore interface {
	// EnsureBalance inserts the initial balance if the ledger is empty.
	EnsureBalance(ctx context.Context, initialSOL float64) (*domain.VirtualBalance, error)

	// GetVirtualBalance retrieves the latest balance snapshot. Returns ErrNotFound if the ledger is empty.
	GetVirtualBalance(ctx context.Context) (*domain.VirtualBalance, error)

	// RecordSimulatedTrade stores the trade, appends the resulting balance and
	// updates token tracking atomically. Returns ErrDuplicateKey if trade_id exists.
	RecordSimulatedTrade(ctx context.Context, t *domain.SimulatedTrade) error

	// UpdateTokenPrice sets the current price of a tracked token. Returns ErrNotFound if not tracked.
	UpdateTokenPrice(ctx context.Context, mint string, price float64) (*domain.TokenTracking, error)

	// GetTrackedTokens retrieves all open simulated positions.
	GetTrackedTokens(ctx context.Context) ([]*domain.TokenTracking, error)

	// GetRecentTrades retrieves the latest trades, newest first.
	GetRecentTrades(ctx context.Context, limit int) ([]*domain.SimulatedTrade, error)

	// ResetPaperTrading wipes trades, positions and balance history and starts over at initialSOL.
	ResetPaperTrading(ctx context.Context, initialSOL float64) error
}

// PriceSampleStore archives feed observations.
type PriceSampleStore interface {
	// InsertBulk adds multiple samples.
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetByTimeRange retrieves samples for a mint within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.PriceSample, error)
}

// RiskConfig holds the stop-loss / take-profit percentages applied to new positions.
type RiskConfig struct {
	StopLossPercent   float64 // e.g. 10 means sell at -10%
	TakeProfitPercent float64 // e.g. 25 means sell at +25%
}

// StopLoss returns the stop-loss price for a buy price.
func (r RiskConfig) StopLoss(buyPrice float64) float64 {
	return buyPrice * (1 - r.StopLossPercent/100)
}

// TakeProfit returns the take-profit price for a buy price.
func (r RiskConfig) TakeProfit(buyPrice float64) float64 {
	return buyPrice * (1 + r.TakeProfitPercent/100)
}
