package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/pricevalidation"
	"solana-trade-tracker/internal/storage/memory"
)

type fakeFeed struct {
	source domain.PriceSource
	prices map[string]float64
	err    error
}

func (f *fakeFeed) Source() domain.PriceSource { return f.source }

func (f *fakeFeed) Prices(_ context.Context, mints []string) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

func jup(prices map[string]float64) *fakeFeed {
	return &fakeFeed{source: domain.PriceSourceJupiter, prices: prices}
}

func dex(prices map[string]float64) *fakeFeed {
	return &fakeFeed{source: domain.PriceSourceDexScreener, prices: prices}
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(5000) }
}

func TestResolver_PrefersConfiguredSource(t *testing.T) {
	r := NewResolver(ResolverConfig{Preferred: domain.PriceSourceDexScreener},
		[]Feed{jup(map[string]float64{mintA: 1.0}), dex(map[string]float64{mintA: 1.01})},
		pricevalidation.New(pricevalidation.DefaultConfig()), nil)

	quotes, err := r.Resolve(context.Background(), []string{mintA})
	require.NoError(t, err)

	q := quotes[mintA]
	assert.Equal(t, domain.PriceSourceDexScreener, q.Source)
	assert.Equal(t, 1.01, q.Price)
	assert.False(t, q.Fallback)
	require.NotNil(t, q.Validation)
	assert.Equal(t, pricevalidation.ReasonInsufficientData, q.Validation.Reason)
}

func TestResolver_RecordsBothSourcesInHistory(t *testing.T) {
	v := pricevalidation.New(pricevalidation.DefaultConfig())
	r := NewResolver(ResolverConfig{Preferred: domain.PriceSourceJupiter},
		[]Feed{jup(map[string]float64{mintA: 1.0}), dex(map[string]float64{mintA: 1.02})},
		v, nil, WithClock(fixedClock()))

	_, err := r.Resolve(context.Background(), []string{mintA, mintA})
	require.NoError(t, err)

	h, ok := v.History(mintA)
	require.True(t, ok)
	require.Len(t, h.Prices, 2)
	assert.Equal(t, domain.TokenPrice{Price: 1.0, TimestampMs: 5000, Source: domain.PriceSourceJupiter}, h.Prices[0])
	assert.Equal(t, domain.TokenPrice{Price: 1.02, TimestampMs: 5000, Source: domain.PriceSourceDexScreener}, h.Prices[1])
}

func TestResolver_FallsBackWhenPreferredRejected(t *testing.T) {
	v := pricevalidation.New(pricevalidation.DefaultConfig())
	for i := 0; i < 12; i++ {
		v.AddPricePoint(mintA, domain.TokenPrice{Price: 1.0, TimestampMs: int64(i + 1), Source: domain.PriceSourceJupiter})
	}
	archive := memory.NewPriceSampleStore()

	r := NewResolver(ResolverConfig{Preferred: domain.PriceSourceDexScreener},
		[]Feed{jup(map[string]float64{mintA: 1.0}), dex(map[string]float64{mintA: 0})},
		v, nil, WithArchive(archive), WithClock(fixedClock()))

	quotes, err := r.Resolve(context.Background(), []string{mintA})
	require.NoError(t, err)

	q, ok := quotes[mintA]
	require.True(t, ok)
	assert.Equal(t, domain.PriceSourceJupiter, q.Source)
	assert.Equal(t, 1.0, q.Price)
	assert.True(t, q.Fallback)

	samples, err := archive.GetByTimeRange(context.Background(), mintA, 5000, 5000)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, domain.PriceSourceDexScreener, samples[0].Source)
	assert.False(t, samples[0].Accepted)
	assert.Equal(t, domain.PriceSourceJupiter, samples[1].Source)
	assert.True(t, samples[1].Accepted)
}

func TestResolver_FallsBackWhenPreferredMissing(t *testing.T) {
	r := NewResolver(ResolverConfig{Preferred: domain.PriceSourceJupiter},
		[]Feed{jup(map[string]float64{}), dex(map[string]float64{mintA: 2.0})},
		nil, nil)

	quotes, err := r.Resolve(context.Background(), []string{mintA, mintB})
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	assert.Equal(t, Quote{Mint: mintA, Price: 2.0, Source: domain.PriceSourceDexScreener, Fallback: true}, quotes[mintA])
}

func TestResolver_SkipsMintWhenBothRejected(t *testing.T) {
	v := pricevalidation.New(pricevalidation.DefaultConfig())
	for i := 0; i < 12; i++ {
		v.AddPricePoint(mintA, domain.TokenPrice{Price: 1.0, TimestampMs: int64(i + 1), Source: domain.PriceSourceJupiter})
	}

	r := NewResolver(ResolverConfig{Preferred: domain.PriceSourceJupiter},
		[]Feed{jup(map[string]float64{mintA: 1.5}), dex(map[string]float64{mintA: 1.0})},
		v, nil)

	quotes, err := r.Resolve(context.Background(), []string{mintA})
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestResolver_SingleSourceFallback(t *testing.T) {
	feedErr := errors.New("dexscreener down")
	feeds := []Feed{
		jup(map[string]float64{mintA: 1.0}),
		&fakeFeed{source: domain.PriceSourceDexScreener, err: feedErr},
	}

	strict := NewResolver(ResolverConfig{Preferred: domain.PriceSourceDexScreener}, feeds, nil, nil)
	_, err := strict.Resolve(context.Background(), []string{mintA})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.ErrorIs(t, err, feedErr)

	lenient := NewResolver(ResolverConfig{Preferred: domain.PriceSourceDexScreener, FallbackToSingleSource: true}, feeds, nil, nil)
	quotes, err := lenient.Resolve(context.Background(), []string{mintA})
	require.NoError(t, err)
	assert.Equal(t, domain.PriceSourceJupiter, quotes[mintA].Source)
	assert.True(t, quotes[mintA].Fallback)
}

// blockingFeed waits for cancellation before answering.
type blockingFeed struct {
	source    domain.PriceSource
	cancelled chan struct{}
}

func (f *blockingFeed) Source() domain.PriceSource { return f.source }

func (f *blockingFeed) Prices(ctx context.Context, _ []string) (map[string]float64, error) {
	<-ctx.Done()
	close(f.cancelled)
	return nil, ctx.Err()
}

func TestResolver_StrictFailureCancelsOtherFeeds(t *testing.T) {
	feedErr := errors.New("jupiter down")
	slow := &blockingFeed{source: domain.PriceSourceDexScreener, cancelled: make(chan struct{})}
	r := NewResolver(ResolverConfig{}, []Feed{
		&fakeFeed{source: domain.PriceSourceJupiter, err: feedErr},
		slow,
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.Resolve(ctx, []string{mintA})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.ErrorIs(t, err, feedErr)
	assert.NotErrorIs(t, err, context.Canceled)
	select {
	case <-slow.cancelled:
	default:
		t.Fatal("slow feed was not cancelled")
	}
}

func TestResolver_AllFeedsDown(t *testing.T) {
	r := NewResolver(ResolverConfig{FallbackToSingleSource: true}, []Feed{
		&fakeFeed{source: domain.PriceSourceJupiter, err: errors.New("a")},
		&fakeFeed{source: domain.PriceSourceDexScreener, err: errors.New("b")},
	}, nil, nil)

	_, err := r.Resolve(context.Background(), []string{mintA})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestResolver_NoFeeds(t *testing.T) {
	_, err := NewResolver(ResolverConfig{}, nil, nil, nil).Resolve(context.Background(), []string{mintA})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
