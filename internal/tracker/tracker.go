package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/pricefeed"
	"solana-trade-tracker/internal/storage"
)

// DefaultInterval is the delay between holdings checks.
const DefaultInterval = 5 * time.Second

// SellReason explains why a holding is being sold.
type SellReason string

const (
	SellReasonTakeProfit SellReason = "take_profit"
	SellReasonStopLoss   SellReason = "stop_loss"
)

// Config controls the tracker loop and the auto-sell thresholds.
type Config struct {
	Interval          time.Duration `yaml:"interval"`
	AutoSell          bool          `yaml:"auto_sell"`
	TakeProfitPercent float64       `yaml:"take_profit_percent"`
	StopLossPercent   float64       `yaml:"stop_loss_percent"`
}

// Decide returns the sell reason for an unrealized PnL percentage, if any.
func (c Config) Decide(pnlPercent float64) (SellReason, bool) {
	switch {
	case pnlPercent >= c.TakeProfitPercent:
		return SellReasonTakeProfit, true
	case pnlPercent <= -c.StopLossPercent:
		return SellReasonStopLoss, true
	default:
		return "", false
	}
}

// PriceResolver resolves validated prices for mints.
type PriceResolver interface {
	Resolve(ctx context.Context, mints []string) (map[string]pricefeed.Quote, error)
}

// HistoryClearer drops price history of sold mints.
type HistoryClearer interface {
	ClearHistory(mint string)
}

// Seller executes a sell of a holding. executed=false means the signal was
// observed but nothing was sold, so the holding stays.
type Seller interface {
	Sell(ctx context.Context, h *domain.HoldingRecord, price float64, reason SellReason) (executed bool, err error)
}

// Position is a holding valued at the latest resolved price.
type Position struct {
	Holding           *domain.HoldingRecord
	Quote             pricefeed.Quote
	UnrealizedUSD     float64
	UnrealizedPercent float64
	SellSignal        SellReason // empty when thresholds are not hit
}

// Tracker periodically values holdings and triggers auto-sells.
type Tracker struct {
	cfg      Config
	holdings storage.HoldingStore
	resolver PriceResolver
	history  HistoryClearer
	seller   Seller
	log      *logrus.Entry

	mu        sync.RWMutex
	positions []Position
	lastRun   time.Time
}

// New creates a tracker. history and seller may be nil.
func New(cfg Config, holdings storage.HoldingStore, resolver PriceResolver, history HistoryClearer, seller Seller, logger *logrus.Logger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Tracker{
		cfg:      cfg,
		holdings: holdings,
		resolver: resolver,
		history:  history,
		seller:   seller,
		log:      logger.WithField("component", "tracker"),
	}
}

// Valuate computes unrealized PnL of h at price.
func Valuate(h *domain.HoldingRecord, price float64) (usd, percent float64) {
	usd = (price - h.PerTokenPaidUSDC) * h.Balance
	cost := h.PerTokenPaidUSDC * h.Balance
	if cost != 0 {
		percent = usd / cost * 100
	}
	return usd, percent
}

// Check values every holding once and sells those past a threshold when auto-sell is on.
// Holdings without a valid price are skipped.
func (t *Tracker) Check(ctx context.Context) ([]Position, error) {
	holdings, err := t.holdings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	if len(holdings) == 0 {
		t.publish(nil)
		return nil, nil
	}

	mints := make([]string, 0, len(holdings))
	for _, h := range holdings {
		mints = append(mints, h.Token)
	}
	quotes, err := t.resolver.Resolve(ctx, mints)
	if err != nil {
		return nil, fmt.Errorf("resolve prices: %w", err)
	}

	positions := make([]Position, 0, len(holdings))
	sold := make(map[string]bool)
	var sellErrs []error

	for _, h := range holdings {
		if sold[h.Token] {
			continue
		}
		q, ok := quotes[h.Token]
		if !ok {
			t.log.WithField("mint", h.Token).Debug("Skipping holding without valid price")
			continue
		}

		pos := Position{Holding: h, Quote: q}
		pos.UnrealizedUSD, pos.UnrealizedPercent = Valuate(h, q.Price)
		if reason, hit := t.cfg.Decide(pos.UnrealizedPercent); hit {
			pos.SellSignal = reason
		}

		if pos.SellSignal != "" && t.cfg.AutoSell && t.seller != nil {
			done, err := t.sell(ctx, h, q.Price, pos.SellSignal)
			if err != nil {
				sellErrs = append(sellErrs, err)
			}
			if done {
				sold[h.Token] = true
				continue
			}
		}
		positions = append(positions, pos)
	}

	t.publish(positions)
	observability.RecordTrackerRun(len(positions))
	return positions, errors.Join(sellErrs...)
}

func (t *Tracker) sell(ctx context.Context, h *domain.HoldingRecord, price float64, reason SellReason) (bool, error) {
	observability.RecordSellSignal(string(reason))
	log := t.log.WithFields(logrus.Fields{
		"mint":   h.Token,
		"name":   h.DisplayName(),
		"price":  price,
		"reason": reason,
	})

	executed, err := t.seller.Sell(ctx, h, price, reason)
	if err != nil {
		log.WithError(err).Error("Auto sell failed")
		return false, fmt.Errorf("sell %s: %w", h.Token, err)
	}
	if !executed {
		log.Info("Sell signal not executed")
		return false, nil
	}

	if err := t.holdings.Remove(ctx, h.Token); err != nil {
		log.WithError(err).Error("Failed to remove sold holding")
		return true, fmt.Errorf("remove holding %s: %w", h.Token, err)
	}
	if t.history != nil {
		t.history.ClearHistory(h.Token)
	}
	log.Info("Holding sold")
	return true, nil
}

func (t *Tracker) publish(positions []Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Holding.Time > positions[j].Holding.Time
	})
	t.mu.Lock()
	t.positions = positions
	t.lastRun = time.Now()
	t.mu.Unlock()
}

// Positions returns the snapshot of the last successful check.
func (t *Tracker) Positions() ([]Position, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Position(nil), t.positions...), t.lastRun
}

// Run checks holdings every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.log.WithFields(logrus.Fields{
		"interval":  t.cfg.Interval,
		"auto_sell": t.cfg.AutoSell,
	}).Info("Tracker started")

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := t.Check(ctx); err != nil && ctx.Err() == nil {
			t.log.WithError(err).Warn("Holdings check failed")
		}
		select {
		case <-ctx.Done():
			t.log.Info("Tracker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LogSeller reports sell signals without executing them.
type LogSeller struct {
	Log *logrus.Entry
}

// Sell logs the signal and reports it as not executed.
func (s LogSeller) Sell(_ context.Context, h *domain.HoldingRecord, price float64, reason SellReason) (bool, error) {
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"mint":   h.Token,
			"price":  price,
			"reason": reason,
		}).Warn("Auto sell signal (no executor configured)")
	}
	return false, nil
}
