package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

func newToken(mint, name, creator string, at int64) *domain.NewTokenRecord {
	return &domain.NewTokenRecord{Time: at, Name: name, Mint: mint, Creator: creator}
}

func TestTokenStore_InsertAndFind(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken(mintA, "Wrapped SOL", "creator-1", 100)))

	got, err := store.FindByMint(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, "Wrapped SOL", got.Name)
	assert.NotZero(t, got.ID)

	_, err = store.FindByMint(ctx, mintB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStore_DuplicateMint(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken(mintA, "Wrapped SOL", "creator-1", 100)))
	err := store.Insert(ctx, newToken(mintA, "Other", "creator-2", 200))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTokenStore_InvalidInput(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, newToken(mintA, "", "creator-1", 100)), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, newToken(mintA, "Wrapped SOL", "creator-1", 0)), storage.ErrInvalidInput)

	_, err := store.FindByNameOrCreator(ctx, "Wrapped SOL", "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTokenStore_FindByNameOrCreator(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken(mintA, "Doge", "creator-1", 100)))
	require.NoError(t, store.Insert(ctx, newToken(mintB, "Shiba", "creator-2", 200)))
	require.NoError(t, store.Insert(ctx, newToken("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", "Pepe", "creator-3", 300)))

	got, err := store.FindByNameOrCreator(ctx, "Doge", "creator-2")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, mintB, got[0].Mint)
	assert.Equal(t, mintA, got[1].Mint)

	got, err = store.FindByNameOrCreator(ctx, "Nobody", "creator-9")
	require.NoError(t, err)
	assert.Empty(t, got)
}
