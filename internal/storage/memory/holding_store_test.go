package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

const (
	mintA = "So11111111111111111111111111111111111111112"
	mintB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func newHolding(token string, at int64) *domain.HoldingRecord {
	return &domain.HoldingRecord{
		Time:       at,
		Token:      token,
		Balance:    10,
		SolPaid:    0.1,
		SolFeePaid: 0.001,
		Slot:       1,
		Program:    "raydium",
	}
}

func TestHoldingStore_RoundTrip(t *testing.T) {
	store := NewHoldingStore()
	ctx := context.Background()

	usd := 12.5
	older := newHolding(mintA, 100)
	newer := newHolding(mintB, 200)
	newer.SolPaidUSDC = &usd

	require.NoError(t, store.Insert(ctx, older))
	require.NoError(t, store.Insert(ctx, newer))

	got, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, mintB, got[0].Token)
	assert.Equal(t, older.ID, got[1].ID)

	// Returned records are copies.
	*got[0].SolPaidUSDC = 99
	again, err := store.GetByToken(ctx, mintB)
	require.NoError(t, err)
	assert.Equal(t, 12.5, *again[0].SolPaidUSDC)

	require.NoError(t, store.Remove(ctx, mintA))
	got, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mintB, got[0].Token)

	assert.ErrorIs(t, store.Remove(ctx, ""), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, newHolding(mintA, 0)), storage.ErrInvalidInput)
}
