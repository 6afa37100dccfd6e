package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

// PaperTradingStore is an in-memory implementation of storage.PaperTradingStore.
// Each method holds the lock for its whole update, which gives the same
// all-or-nothing behavior as the SQL transaction.
type PaperTradingStore struct {
	risk storage.RiskConfig
	now  func() time.Time

	mu       sync.RWMutex
	balances []domain.VirtualBalance
	trades   []*domain.SimulatedTrade
	tradeIDs map[string]struct{}
	tracking map[string]*domain.TokenTracking
	order    []string // tracking mints in opening order
	nextID   int64
}

// NewPaperTradingStore creates a new in-memory paper trading store.
func NewPaperTradingStore(risk storage.RiskConfig) *PaperTradingStore {
	s := &PaperTradingStore{risk: risk, now: time.Now}
	s.clear()
	return s
}

func (s *PaperTradingStore) clear() {
	s.balances = nil
	s.trades = nil
	s.tradeIDs = make(map[string]struct{})
	s.tracking = make(map[string]*domain.TokenTracking)
	s.order = nil
}

// EnsureBalance seeds the ledger with initialSOL unless it already has a row.
func (s *PaperTradingStore) EnsureBalance(_ context.Context, initialSOL float64) (*domain.VirtualBalance, error) {
	if err := storage.ValidateBalance(initialSOL); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.balances) == 0 {
		s.appendBalance(decimal.NewFromFloat(initialSOL), s.now().UnixMilli())
	}
	b := s.balances[len(s.balances)-1]
	return &b, nil
}

// GetVirtualBalance retrieves the latest balance. Returns ErrNotFound if the ledger is empty.
func (s *PaperTradingStore) GetVirtualBalance(_ context.Context) (*domain.VirtualBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.balances) == 0 {
		return nil, storage.ErrNotFound
	}
	b := s.balances[len(s.balances)-1]
	return &b, nil
}

// RecordSimulatedTrade stores t, appends the new balance and updates the position.
func (s *PaperTradingStore) RecordSimulatedTrade(_ context.Context, t *domain.SimulatedTrade) error {
	if err := storage.ValidateSimulatedTrade(t); err != nil {
		return err
	}
	if t.TradeID == "" {
		t.TradeID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.balances) == 0 {
		return storage.ErrNotFound
	}
	if _, exists := s.tradeIDs[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	current := s.balances[len(s.balances)-1].BalanceSOL
	amount := decimal.NewFromFloat(t.AmountSOL)
	fees := decimal.NewFromFloat(t.Fees)
	next := decimal.NewFromFloat(current)
	if t.Type == domain.TradeTypeBuy {
		next = next.Sub(amount.Add(fees))
	} else {
		next = next.Add(decimal.Max(amount.Sub(fees), decimal.Zero))
	}
	if next.IsNegative() {
		return fmt.Errorf("%w: have %.9f SOL, need %.9f SOL",
			storage.ErrInsufficientBalance, current, t.AmountSOL+t.Fees)
	}

	s.nextID++
	t.ID = s.nextID
	tradeCopy := *t
	s.trades = append(s.trades, &tradeCopy)
	s.tradeIDs[t.TradeID] = struct{}{}
	s.appendBalance(next, t.Timestamp)

	if t.Type == domain.TradeTypeSell {
		s.removeTracking(t.TokenMint)
		return nil
	}

	tt, exists := s.tracking[t.TokenMint]
	if !exists {
		tt = &domain.TokenTracking{TokenMint: t.TokenMint}
		s.tracking[t.TokenMint] = tt
		s.order = append(s.order, t.TokenMint)
	}
	tt.TokenName = t.TokenName
	tt.Amount += t.AmountToken
	tt.BuyPrice = t.PricePerToken
	tt.CurrentPrice = t.PricePerToken
	tt.LastUpdated = t.Timestamp
	tt.StopLoss = s.risk.StopLoss(t.PricePerToken)
	tt.TakeProfit = s.risk.TakeProfit(t.PricePerToken)
	return nil
}

// UpdateTokenPrice sets the current price of a tracked token.
func (s *PaperTradingStore) UpdateTokenPrice(_ context.Context, mint string, price float64) (*domain.TokenTracking, error) {
	if err := storage.ValidateMint(mint); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tt, exists := s.tracking[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	tt.CurrentPrice = price
	tt.LastUpdated = s.now().UnixMilli()
	ttCopy := *tt
	return &ttCopy, nil
}

// GetTrackedTokens retrieves all open positions in opening order.
func (s *PaperTradingStore) GetTrackedTokens(_ context.Context) ([]*domain.TokenTracking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TokenTracking, 0, len(s.order))
	for _, mint := range s.order {
		ttCopy := *s.tracking[mint]
		out = append(out, &ttCopy)
	}
	return out, nil
}

// GetRecentTrades retrieves up to limit trades, newest first.
func (s *PaperTradingStore) GetRecentTrades(_ context.Context, limit int) ([]*domain.SimulatedTrade, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SimulatedTrade, 0, len(s.trades))
	for _, t := range s.trades {
		tradeCopy := *t
		out = append(out, &tradeCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResetPaperTrading wipes the ledger and starts over at initialSOL.
func (s *PaperTradingStore) ResetPaperTrading(_ context.Context, initialSOL float64) error {
	if err := storage.ValidateBalance(initialSOL); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	s.appendBalance(decimal.NewFromFloat(initialSOL), s.now().UnixMilli())
	return nil
}

func (s *PaperTradingStore) appendBalance(balance decimal.Decimal, at int64) {
	var id int64 = 1
	if n := len(s.balances); n > 0 {
		id = s.balances[n-1].ID + 1
	}
	s.balances = append(s.balances, domain.VirtualBalance{ID: id, BalanceSOL: balance.InexactFloat64(), UpdatedAt: at})
}

func (s *PaperTradingStore) removeTracking(mint string) {
	if _, exists := s.tracking[mint]; !exists {
		return
	}
	delete(s.tracking, mint)
	for i, m := range s.order {
		if m == mint {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

var _ storage.PaperTradingStore = (*PaperTradingStore)(nil)
