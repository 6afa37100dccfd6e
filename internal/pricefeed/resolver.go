package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/pricevalidation"
	"solana-trade-tracker/internal/storage"
)

// ErrFeedUnavailable is returned when a feed failed and single-source operation is not allowed.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// ResolverConfig controls source preference.
type ResolverConfig struct {
	// Preferred is validated first; the other source is the fallback.
	Preferred domain.PriceSource
	// FallbackToSingleSource allows resolving when one feed failed outright.
	FallbackToSingleSource bool
}

// Quote is the resolved price of one mint.
type Quote struct {
	Mint       string
	Price      float64
	Source     domain.PriceSource
	Fallback   bool                     // price came from the non-preferred source
	Validation *domain.ValidationResult // nil when validation is disabled
}

// Resolver combines the feeds, the validator and the optional sample archive.
type Resolver struct {
	cfg       ResolverConfig
	feeds     map[domain.PriceSource]Feed
	validator *pricevalidation.Validator
	archive   storage.PriceSampleStore
	log       *logrus.Entry
	now       func() time.Time
}

// ResolverOption configures Resolver.
type ResolverOption func(*Resolver)

// WithArchive stores every observed sample.
func WithArchive(s storage.PriceSampleStore) ResolverOption {
	return func(r *Resolver) {
		r.archive = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver over feeds. A nil validator accepts every positive price.
func NewResolver(cfg ResolverConfig, feeds []Feed, v *pricevalidation.Validator, logger *logrus.Logger, opts ...ResolverOption) *Resolver {
	if !cfg.Preferred.IsValid() {
		cfg.Preferred = domain.PriceSourceJupiter
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	r := &Resolver{
		cfg:       cfg,
		feeds:     make(map[domain.PriceSource]Feed, len(feeds)),
		validator: v,
		log:       logger.WithField("component", "price_resolver"),
		now:       time.Now,
	}
	for _, f := range feeds {
		r.feeds[f.Source()] = f
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches all feeds concurrently, records every observation in the
// validator, and picks per mint the preferred source if valid, else the other.
// Mints without a valid price are absent from the result.
func (r *Resolver) Resolve(ctx context.Context, mints []string) (map[string]Quote, error) {
	if len(r.feeds) == 0 {
		return nil, fmt.Errorf("resolve prices: %w: no feeds configured", ErrFeedUnavailable)
	}

	// Without single-source fallback one failed feed fails the whole call, so
	// the first failure cancels the feeds still in flight.
	var (
		mu      sync.Mutex
		prices  = make(map[domain.PriceSource]map[string]float64, len(r.feeds))
		failed  []error
		g, gctx = errgroup.WithContext(ctx)
	)
	for src, feed := range r.feeds {
		g.Go(func() error {
			p, err := feed.Prices(gctx, mints)
			if err != nil {
				if gctx.Err() != nil && ctx.Err() == nil {
					// cancelled by a sibling failure
					return nil
				}
				r.log.WithError(err).WithField("source", src).Warn("Price feed failed")
				err = fmt.Errorf("%s: %w", src, err)
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
				if !r.cfg.FallbackToSingleSource {
					return err
				}
				return nil
			}
			mu.Lock()
			prices[src] = p
			mu.Unlock()
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, fmt.Errorf("resolve prices: %w (single source disabled): %w", ErrFeedUnavailable, errors.Join(failed...))
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("resolve prices: %w: %w", ErrFeedUnavailable, errors.Join(failed...))
	}

	nowMs := r.now().UnixMilli()
	order := []domain.PriceSource{r.cfg.Preferred, r.cfg.Preferred.Other()}
	quotes := make(map[string]Quote, len(mints))
	seen := make(map[string]struct{}, len(mints))
	var samples []*domain.PriceSample

	for _, mint := range mints {
		if _, dup := seen[mint]; dup {
			continue
		}
		seen[mint] = struct{}{}
		if r.validator != nil {
			for _, src := range order {
				if p, ok := prices[src][mint]; ok && p > 0 {
					r.validator.AddPricePoint(mint, domain.TokenPrice{Price: p, TimestampMs: nowMs, Source: src})
				}
			}
		}

		var (
			quote  Quote
			picked bool
		)
		for i, src := range order {
			p, ok := prices[src][mint]
			if !ok {
				continue
			}
			sample := &domain.PriceSample{Mint: mint, TimestampMs: nowMs, Source: src, Price: p}
			samples = append(samples, sample)
			if picked {
				continue
			}

			var verdict *domain.ValidationResult
			if r.validator != nil {
				res := r.validator.ValidatePrice(mint, p, src)
				verdict = &res
				if !res.IsValid {
					r.log.WithFields(logrus.Fields{
						"mint":   mint,
						"source": src,
						"price":  p,
						"reason": res.Reason,
					}).Warn("Price rejected")
					continue
				}
			} else if p <= 0 {
				continue
			}

			sample.Accepted = true
			quote = Quote{Mint: mint, Price: p, Source: src, Fallback: i > 0, Validation: verdict}
			picked = true
			if quote.Fallback {
				observability.RecordPriceFallback()
			}
		}

		if picked {
			quotes[mint] = quote
		} else {
			r.log.WithField("mint", mint).Debug("No valid price")
		}
	}

	r.archiveSamples(ctx, samples)
	return quotes, nil
}

func (r *Resolver) archiveSamples(ctx context.Context, samples []*domain.PriceSample) {
	if r.archive == nil || len(samples) == 0 {
		return
	}
	if err := r.archive.InsertBulk(ctx, samples); err != nil {
		r.log.WithError(err).WithField("count", len(samples)).Warn("Failed to archive price samples")
	}
}
