package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

func trade(typ domain.TradeType, mint string, at int64, sol, price, fees float64) *domain.SimulatedTrade {
	return &domain.SimulatedTrade{
		Timestamp:     at,
		TokenMint:     mint,
		AmountSOL:     sol,
		AmountToken:   sol / price,
		PricePerToken: price,
		Type:          typ,
		Fees:          fees,
	}
}

func TestPaperTradingStore_BuySell(t *testing.T) {
	store := NewPaperTradingStore(storage.RiskConfig{StopLossPercent: 10, TakeProfitPercent: 25})
	ctx := context.Background()

	assert.ErrorIs(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeBuy, mintA, 1, 0.1, 0.01, 0)), storage.ErrNotFound)

	_, err := store.EnsureBalance(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeBuy, mintA, 1, 0.1, 0.01, 0.01)))
	b, err := store.GetVirtualBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.89, b.BalanceSOL, 1e-9)
	assert.Equal(t, int64(2), b.ID)

	tracked, err := store.GetTrackedTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.InDelta(t, 0.009, tracked[0].StopLoss, 1e-12)
	assert.InDelta(t, 0.0125, tracked[0].TakeProfit, 1e-12)

	tt, err := store.UpdateTokenPrice(ctx, mintA, 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 100, tt.PnLPercent(), 1e-9)

	require.NoError(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeSell, mintA, 2, 0.2, 0.02, 0.01)))
	b, err = store.GetVirtualBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.08, b.BalanceSOL, 1e-9)

	tracked, err = store.GetTrackedTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)

	trades, err := store.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.TradeTypeSell, trades[0].Type)
	assert.NotEmpty(t, trades[0].TradeID)
}

func TestPaperTradingStore_Rejections(t *testing.T) {
	store := NewPaperTradingStore(storage.RiskConfig{StopLossPercent: 10, TakeProfitPercent: 25})
	ctx := context.Background()
	_, err := store.EnsureBalance(ctx, 0.5)
	require.NoError(t, err)

	first := trade(domain.TradeTypeBuy, mintA, 1, 0.1, 0.01, 0)
	first.TradeID = "t-1"
	require.NoError(t, store.RecordSimulatedTrade(ctx, first))

	replay := trade(domain.TradeTypeBuy, mintB, 2, 0.1, 0.01, 0)
	replay.TradeID = "t-1"
	assert.ErrorIs(t, store.RecordSimulatedTrade(ctx, replay), storage.ErrDuplicateKey)

	assert.ErrorIs(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeBuy, mintB, 3, 1, 0.01, 0)), storage.ErrInsufficientBalance)

	b, err := store.GetVirtualBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, b.BalanceSOL, 1e-9)

	require.NoError(t, store.ResetPaperTrading(ctx, 2))
	b, err = store.GetVirtualBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, b.BalanceSOL)
	tracked, err := store.GetTrackedTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestPaperTradingStore_DustSellNeverDebits(t *testing.T) {
	store := NewPaperTradingStore(storage.RiskConfig{StopLossPercent: 10, TakeProfitPercent: 25})
	ctx := context.Background()
	_, err := store.EnsureBalance(ctx, 0.005)
	require.NoError(t, err)

	require.NoError(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeBuy, mintA, 1, 0.004, 0.0004, 0.001)))
	require.NoError(t, store.RecordSimulatedTrade(ctx, trade(domain.TradeTypeSell, mintA, 2, 0.001, 0.0001, 0.01)))

	b, err := store.GetVirtualBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0, b.BalanceSOL, 1e-9)
	assert.False(t, b.BalanceSOL < 0)

	tracked, err := store.GetTrackedTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracked)
}
