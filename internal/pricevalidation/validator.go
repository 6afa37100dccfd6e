// Package pricevalidation keeps a rolling per-mint price window across feeds
// and decides whether a proposed price is plausible.
package pricevalidation

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
)

// Validation reasons.
const (
	ReasonInsufficientData = "insufficient historical data"
	ReasonWithinRange      = "price within acceptable range"
	ReasonNonPositivePrice = "price must be positive"
)

// Config holds validator parameters.
type Config struct {
	WindowSize         int     `yaml:"window_size"`          // samples kept per mint
	MaxDeviation       float64 `yaml:"max_deviation"`        // allowed upward deviation and divergence, 0.05 = 5%
	MinDataPoints      int     `yaml:"min_data_points"`      // samples required before checks apply
	DownsideMultiplier float64 `yaml:"downside_multiplier"` // downward tolerance = MaxDeviation * multiplier
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:         12,
		MaxDeviation:       0.05,
		MinDataPoints:      6,
		DownsideMultiplier: 1.5,
	}
}

// Validator is safe for concurrent use.
type Validator struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	history map[string]*domain.PriceHistory
}

// New creates a validator. Zero config fields take defaults.
func New(cfg Config) *Validator {
	d := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = d.WindowSize
	}
	if cfg.MaxDeviation <= 0 {
		cfg.MaxDeviation = d.MaxDeviation
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = d.MinDataPoints
	}
	if cfg.DownsideMultiplier <= 0 {
		cfg.DownsideMultiplier = d.DownsideMultiplier
	}
	return &Validator{
		cfg:     cfg,
		now:     time.Now,
		history: make(map[string]*domain.PriceHistory),
	}
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// AddPricePoint records an observation, evicting the oldest beyond WindowSize.
func (v *Validator) AddPricePoint(mint string, p domain.TokenPrice) {
	v.mu.Lock()
	defer v.mu.Unlock()

	h, ok := v.history[mint]
	if !ok {
		h = &domain.PriceHistory{Mint: mint}
		v.history[mint] = h
	}
	h.Prices = append(h.Prices, p)
	if excess := len(h.Prices) - v.cfg.WindowSize; excess > 0 {
		h.Prices = append(h.Prices[:0], h.Prices[excess:]...)
	}
}

// ValidatePrice judges price from source against the mint's history.
//
// Cross-source divergence is checked before the rolling average. The rolling
// average check tolerates drops DownsideMultiplier times wider than spikes.
func (v *Validator) ValidatePrice(mint string, price float64, source domain.PriceSource) domain.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := v.validateLocked(mint, price, source)
	observability.RecordPriceValidation(source.String(), result.IsValid)
	return result
}

func (v *Validator) validateLocked(mint string, price float64, source domain.PriceSource) domain.ValidationResult {
	h, ok := v.history[mint]
	if ok {
		h.LastValidation = v.now().UnixMilli()
	}

	if !ok || len(h.Prices) < v.cfg.MinDataPoints {
		return domain.ValidationResult{
			IsValid:    true,
			Confidence: 0.5,
			Reason:     ReasonInsufficientData,
		}
	}

	avg := rollingAverage(h.Prices, v.cfg.WindowSize)

	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return reject(0, ReasonNonPositivePrice, avg)
	}

	if other, found := latestFrom(h.Prices, source.Other()); found && other.Price > 0 {
		divergence := math.Abs(price-other.Price) / other.Price
		if divergence > v.cfg.MaxDeviation {
			return reject(1-divergence,
				fmt.Sprintf("price sources diverge by %.2f%%", divergence*100), avg)
		}
	}

	deviation := (price - avg) / avg
	allowed := v.cfg.MaxDeviation
	if deviation < 0 {
		allowed *= v.cfg.DownsideMultiplier
	}
	if math.Abs(deviation) > allowed {
		return reject(1-math.Abs(deviation),
			fmt.Sprintf("price deviation (%.2f%%) exceeds maximum allowed (%.2f%%)", math.Abs(deviation)*100, allowed*100), avg)
	}

	return domain.ValidationResult{
		IsValid:    true,
		Confidence: clamp(1 - math.Abs(deviation)),
		Reason:     ReasonWithinRange,
	}
}

// ClearHistory drops all samples for mint.
func (v *Validator) ClearHistory(mint string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.history, mint)
}

// History returns a copy of the mint's history.
func (v *Validator) History(mint string) (domain.PriceHistory, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	h, ok := v.history[mint]
	if !ok {
		return domain.PriceHistory{}, false
	}
	out := *h
	out.Prices = append([]domain.TokenPrice(nil), h.Prices...)
	return out, true
}

// Tracked returns the mints with history, sorted.
func (v *Validator) Tracked() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	mints := make([]string, 0, len(v.history))
	for m := range v.history {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints
}

func rollingAverage(prices []domain.TokenPrice, window int) float64 {
	if len(prices) > window {
		prices = prices[len(prices)-window:]
	}
	var sum float64
	for _, p := range prices {
		sum += p.Price
	}
	return sum / float64(len(prices))
}

func latestFrom(prices []domain.TokenPrice, source domain.PriceSource) (domain.TokenPrice, bool) {
	for i := len(prices) - 1; i >= 0; i-- {
		if prices[i].Source == source {
			return prices[i], true
		}
	}
	return domain.TokenPrice{}, false
}

func reject(confidence float64, reason string, suggested float64) domain.ValidationResult {
	return domain.ValidationResult{
		IsValid:        false,
		Confidence:     clamp(confidence),
		Reason:         reason,
		SuggestedPrice: &suggested,
	}
}

func clamp(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
