package papertrading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/observability"
	"solana-trade-tracker/internal/pricefeed"
	"solana-trade-tracker/internal/storage"
)

// Default configuration values.
const (
	DefaultInitialBalanceSOL = 3.0
	DefaultCheckInterval     = time.Minute
	DefaultBuyAmountLamports = 100_000_000
	DefaultFeeLamports       = 10_000_000

	lamportsPerSOLExp = -9
)

// Sell reasons.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// ErrNoPrice is returned when no valid price could be resolved for a buy.
var ErrNoPrice = errors.New("no valid price")

// Config holds paper-trading parameters.
type Config struct {
	Enabled           bool          `yaml:"enabled"`
	InitialBalanceSOL float64       `yaml:"initial_balance_sol"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	BuyAmountLamports int64         `yaml:"buy_amount_lamports"`
	BuyFeeLamports    int64         `yaml:"buy_fee_lamports"`
	SellFeeLamports   int64         `yaml:"sell_fee_lamports"`
	StopLossPercent   float64       `yaml:"stop_loss_percent"`
	TakeProfitPercent float64       `yaml:"take_profit_percent"`
}

// DefaultConfig returns the default paper-trading configuration.
func DefaultConfig() Config {
	return Config{
		InitialBalanceSOL: DefaultInitialBalanceSOL,
		CheckInterval:     DefaultCheckInterval,
		BuyAmountLamports: DefaultBuyAmountLamports,
		BuyFeeLamports:    DefaultFeeLamports,
		SellFeeLamports:   DefaultFeeLamports,
		StopLossPercent:   10,
		TakeProfitPercent: 25,
	}
}

// Risk returns the stop-loss / take-profit settings for new positions.
func (c Config) Risk() storage.RiskConfig {
	return storage.RiskConfig{StopLossPercent: c.StopLossPercent, TakeProfitPercent: c.TakeProfitPercent}
}

// PriceResolver resolves validated prices for mints.
type PriceResolver interface {
	Resolve(ctx context.Context, mints []string) (map[string]pricefeed.Quote, error)
}

// Simulator executes virtual buys and sells against a PaperTradingStore.
type Simulator struct {
	cfg      Config
	store    storage.PaperTradingStore
	resolver PriceResolver
	log      *logrus.Entry
	now      func() time.Time
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config, store storage.PaperTradingStore, resolver PriceResolver, logger *logrus.Logger) *Simulator {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Simulator{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		log:      logger.WithField("component", "paper_trading"),
		now:      time.Now,
	}
}

// Init seeds the virtual balance if the ledger is empty.
func (s *Simulator) Init(ctx context.Context) (*domain.VirtualBalance, error) {
	b, err := s.store.EnsureBalance(ctx, s.cfg.InitialBalanceSOL)
	if err != nil {
		return nil, fmt.Errorf("ensure balance: %w", err)
	}
	observability.SetPaperBalance(b.BalanceSOL)
	return b, nil
}

// ExecuteBuy spends the configured amount on mint at price.
// Returns storage.ErrInsufficientBalance when balance cannot cover amount plus fees.
func (s *Simulator) ExecuteBuy(ctx context.Context, mint, name string, price float64) (*domain.SimulatedTrade, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: buy price must be positive", storage.ErrInvalidInput)
	}

	amount := lamportsToSOL(s.cfg.BuyAmountLamports)
	fees := lamportsToSOL(s.cfg.BuyFeeLamports)

	balance, err := s.store.GetVirtualBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("get virtual balance: %w", err)
	}
	if decimal.NewFromFloat(balance.BalanceSOL).LessThan(amount.Add(fees)) {
		return nil, fmt.Errorf("%w: have %.9f SOL, need %s SOL",
			storage.ErrInsufficientBalance, balance.BalanceSOL, amount.Add(fees).String())
	}

	t := &domain.SimulatedTrade{
		TradeID:       uuid.NewString(),
		Timestamp:     s.now().UnixMilli(),
		TokenMint:     mint,
		TokenName:     name,
		AmountSOL:     amount.InexactFloat64(),
		AmountToken:   amount.Div(decimal.NewFromFloat(price)).InexactFloat64(),
		PricePerToken: price,
		Type:          domain.TradeTypeBuy,
		Fees:          fees.InexactFloat64(),
	}
	if err := s.record(ctx, t); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"mint":   mint,
		"name":   name,
		"tokens": t.AmountToken,
		"price":  price,
		"sol":    t.AmountSOL,
		"fees":   t.Fees,
	}).Info("Paper buy")
	return t, nil
}

// BuyAtMarket resolves the current price of mint and buys at it.
func (s *Simulator) BuyAtMarket(ctx context.Context, mint, name string) (*domain.SimulatedTrade, error) {
	if err := storage.ValidateMint(mint); err != nil {
		return nil, err
	}
	quotes, err := s.resolver.Resolve(ctx, []string{mint})
	if err != nil {
		return nil, fmt.Errorf("resolve price: %w", err)
	}
	q, ok := quotes[mint]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoPrice, mint)
	}
	return s.ExecuteBuy(ctx, mint, name, q.Price)
}

// Sell closes the whole position at its current price.
func (s *Simulator) Sell(ctx context.Context, pos *domain.TokenTracking, reason string) (*domain.SimulatedTrade, error) {
	proceeds := decimal.NewFromFloat(pos.Amount).Mul(decimal.NewFromFloat(pos.CurrentPrice))
	t := &domain.SimulatedTrade{
		TradeID:       uuid.NewString(),
		Timestamp:     s.now().UnixMilli(),
		TokenMint:     pos.TokenMint,
		TokenName:     pos.TokenName,
		AmountSOL:     proceeds.InexactFloat64(),
		AmountToken:   pos.Amount,
		PricePerToken: pos.CurrentPrice,
		Type:          domain.TradeTypeSell,
		Fees:          lamportsToSOL(s.cfg.SellFeeLamports).InexactFloat64(),
	}
	if err := s.record(ctx, t); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"mint":   pos.TokenMint,
		"name":   pos.TokenName,
		"tokens": pos.Amount,
		"price":  pos.CurrentPrice,
		"sol":    t.AmountSOL,
		"reason": reason,
		"pnl":    fmt.Sprintf("%.2f%%", pos.PnLPercent()),
	}).Info("Paper sell")
	return t, nil
}

// CheckPositions refreshes prices of open positions and sells those at stop loss or take profit.
// Positions without a valid price keep their last price.
func (s *Simulator) CheckPositions(ctx context.Context) ([]*domain.SimulatedTrade, error) {
	positions, err := s.store.GetTrackedTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("get tracked tokens: %w", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	mints := make([]string, 0, len(positions))
	for _, p := range positions {
		mints = append(mints, p.TokenMint)
	}
	quotes, err := s.resolver.Resolve(ctx, mints)
	if err != nil {
		return nil, fmt.Errorf("resolve prices: %w", err)
	}

	var (
		sells []*domain.SimulatedTrade
		errs  []error
	)
	for _, p := range positions {
		q, ok := quotes[p.TokenMint]
		if !ok {
			continue
		}
		updated, err := s.store.UpdateTokenPrice(ctx, p.TokenMint, q.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("update price %s: %w", p.TokenMint, err))
			continue
		}

		var reason string
		switch {
		case updated.CurrentPrice <= updated.StopLoss:
			reason = ReasonStopLoss
		case updated.CurrentPrice >= updated.TakeProfit:
			reason = ReasonTakeProfit
		default:
			continue
		}

		t, err := s.Sell(ctx, updated, reason)
		if err != nil {
			errs = append(errs, fmt.Errorf("sell %s: %w", p.TokenMint, err))
			continue
		}
		observability.RecordSellSignal(reason)
		sells = append(sells, t)
	}
	return sells, errors.Join(errs...)
}

// Reset wipes the paper-trading state and restarts at the initial balance.
func (s *Simulator) Reset(ctx context.Context) error {
	if err := s.store.ResetPaperTrading(ctx, s.cfg.InitialBalanceSOL); err != nil {
		return fmt.Errorf("reset paper trading: %w", err)
	}
	observability.SetPaperBalance(s.cfg.InitialBalanceSOL)
	s.log.WithField("balance_sol", s.cfg.InitialBalanceSOL).Info("Paper trading reset")
	return nil
}

// Run checks positions every CheckInterval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	if _, err := s.Init(ctx); err != nil {
		return err
	}
	s.log.WithField("interval", s.cfg.CheckInterval).Info("Paper trading started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Paper trading stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CheckPositions(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("Position check failed")
			}
		}
	}
}

func (s *Simulator) record(ctx context.Context, t *domain.SimulatedTrade) error {
	if err := s.store.RecordSimulatedTrade(ctx, t); err != nil {
		return fmt.Errorf("record %s trade: %w", t.Type, err)
	}
	balance := 0.0
	if b, err := s.store.GetVirtualBalance(ctx); err == nil {
		balance = b.BalanceSOL
	}
	observability.RecordPaperTrade(string(t.Type), balance)
	return nil
}

func lamportsToSOL(lamports int64) decimal.Decimal {
	return decimal.New(lamports, lamportsPerSOLExp)
}
