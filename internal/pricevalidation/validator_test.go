package pricevalidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-tracker/internal/domain"
)

const testMint = "So11111111111111111111111111111111111111112"

func seeded(t *testing.T, n int, price float64, source domain.PriceSource) *Validator {
	t.Helper()
	v := New(DefaultConfig())
	for i := 0; i < n; i++ {
		v.AddPricePoint(testMint, domain.TokenPrice{Price: price, TimestampMs: int64(1000 + i), Source: source})
	}
	return v
}

func TestValidatePrice_Bootstrap(t *testing.T) {
	v := seeded(t, 5, 100, domain.PriceSourceJupiter)

	for _, price := range []float64{1, 100, 10_000} {
		got := v.ValidatePrice(testMint, price, domain.PriceSourceJupiter)
		assert.True(t, got.IsValid)
		assert.Equal(t, 0.5, got.Confidence)
		assert.Equal(t, ReasonInsufficientData, got.Reason)
		assert.Nil(t, got.SuggestedPrice)
	}

	got := v.ValidatePrice("unknown", 42, domain.PriceSourceDexScreener)
	assert.True(t, got.IsValid)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestValidatePrice_UpwardDeviation(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)

	got := v.ValidatePrice(testMint, 104, domain.PriceSourceJupiter)
	assert.True(t, got.IsValid)
	assert.Equal(t, ReasonWithinRange, got.Reason)
	assert.InDelta(t, 0.96, got.Confidence, 1e-9)

	got = v.ValidatePrice(testMint, 106, domain.PriceSourceJupiter)
	assert.False(t, got.IsValid)
	assert.Contains(t, got.Reason, "deviation")
	assert.Equal(t, "price deviation (6.00%) exceeds maximum allowed (5.00%)", got.Reason)

	got = v.ValidatePrice(testMint, 110, domain.PriceSourceJupiter)
	assert.False(t, got.IsValid)
	require.NotNil(t, got.SuggestedPrice)
	assert.InDelta(t, 100, *got.SuggestedPrice, 1e-9)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

func TestValidatePrice_AsymmetricTolerance(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)

	got := v.ValidatePrice(testMint, 94, domain.PriceSourceJupiter)
	assert.True(t, got.IsValid, "a six percent drop is inside the downside band")

	got = v.ValidatePrice(testMint, 92, domain.PriceSourceJupiter)
	assert.False(t, got.IsValid)
	assert.Equal(t, "price deviation (8.00%) exceeds maximum allowed (7.50%)", got.Reason)
}

func TestValidatePrice_DivergenceTakesPrecedence(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)
	v.AddPricePoint(testMint, domain.TokenPrice{Price: 102, TimestampMs: 2000, Source: domain.PriceSourceDexScreener})

	got := v.ValidatePrice(testMint, 108, domain.PriceSourceJupiter)

	assert.False(t, got.IsValid)
	assert.Contains(t, got.Reason, "price sources diverge by")
	assert.Equal(t, "price sources diverge by 5.88%", got.Reason)
	require.NotNil(t, got.SuggestedPrice)
	assert.InDelta(t, (600.0+102)/7, *got.SuggestedPrice, 1e-9)
}

func TestValidatePrice_UsesLatestSampleOfOtherSource(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)
	v.AddPricePoint(testMint, domain.TokenPrice{Price: 130, TimestampMs: 2000, Source: domain.PriceSourceDexScreener})
	v.AddPricePoint(testMint, domain.TokenPrice{Price: 101, TimestampMs: 2001, Source: domain.PriceSourceDexScreener})

	got := v.ValidatePrice(testMint, 102, domain.PriceSourceJupiter)

	assert.True(t, got.IsValid, "only the most recent secondary sample matters: %s", got.Reason)
}

func TestValidatePrice_RejectsNonPositivePrice(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)

	got := v.ValidatePrice(testMint, 0, domain.PriceSourceJupiter)

	assert.False(t, got.IsValid)
	assert.Zero(t, got.Confidence)
	assert.Equal(t, ReasonNonPositivePrice, got.Reason)
}

func TestValidatePrice_ConfidenceClamped(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)

	got := v.ValidatePrice(testMint, 1000, domain.PriceSourceJupiter)

	assert.False(t, got.IsValid)
	assert.Zero(t, got.Confidence)
}

func TestValidatePrice_UpdatesLastValidation(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)
	v.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	v.ValidatePrice(testMint, 100, domain.PriceSourceJupiter)

	h, ok := v.History(testMint)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_000_000), h.LastValidation)
}

func TestAddPricePoint_WindowEviction(t *testing.T) {
	v := New(DefaultConfig())
	window := v.Config().WindowSize

	for i := 0; i < window+5; i++ {
		v.AddPricePoint(testMint, domain.TokenPrice{Price: float64(100 + i), TimestampMs: int64(i), Source: domain.PriceSourceJupiter})
	}

	h, ok := v.History(testMint)
	require.True(t, ok)
	require.Len(t, h.Prices, window)
	assert.Equal(t, int64(5), h.Prices[0].TimestampMs, "oldest evicted first")
	assert.Equal(t, int64(window+4), h.Prices[window-1].TimestampMs)
}

func TestHistory_ReturnsCopy(t *testing.T) {
	v := seeded(t, 3, 100, domain.PriceSourceJupiter)

	h, ok := v.History(testMint)
	require.True(t, ok)
	h.Prices[0].Price = -1

	again, _ := v.History(testMint)
	assert.Equal(t, 100.0, again.Prices[0].Price)
}

func TestClearHistory(t *testing.T) {
	v := seeded(t, 6, 100, domain.PriceSourceJupiter)
	v.AddPricePoint("other", domain.TokenPrice{Price: 1, TimestampMs: 1, Source: domain.PriceSourceJupiter})
	assert.Equal(t, []string{testMint, "other"}, v.Tracked())

	v.ClearHistory(testMint)

	_, ok := v.History(testMint)
	assert.False(t, ok)
	assert.Equal(t, []string{"other"}, v.Tracked())
	got := v.ValidatePrice(testMint, 500, domain.PriceSourceJupiter)
	assert.Equal(t, ReasonInsufficientData, got.Reason)
}
