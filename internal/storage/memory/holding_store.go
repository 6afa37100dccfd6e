package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

// HoldingStore is an in-memory implementation of storage.HoldingStore.
type HoldingStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []*domain.HoldingRecord
}

// NewHoldingStore creates a new in-memory holding store.
func NewHoldingStore() *HoldingStore {
	return &HoldingStore{}
}

// Insert adds a holding and sets its ID.
func (s *HoldingStore) Insert(_ context.Context, h *domain.HoldingRecord) error {
	if err := storage.ValidateHolding(h); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	h.ID = s.nextID
	s.rows = append(s.rows, copyHolding(h))
	return nil
}

// Remove deletes every holding for token.
func (s *HoldingStore) Remove(_ context.Context, token string) error {
	if err := storage.ValidateMint(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	for _, h := range s.rows {
		if h.Token != token {
			kept = append(kept, h)
		}
	}
	s.rows = kept
	return nil
}

// List retrieves all holdings, newest first.
func (s *HoldingStore) List(_ context.Context) ([]*domain.HoldingRecord, error) {
	return s.filter(func(*domain.HoldingRecord) bool { return true }), nil
}

// GetByToken retrieves holdings for a token mint, newest first.
func (s *HoldingStore) GetByToken(_ context.Context, token string) ([]*domain.HoldingRecord, error) {
	if err := storage.ValidateMint(token); err != nil {
		return nil, err
	}
	return s.filter(func(h *domain.HoldingRecord) bool { return h.Token == token }), nil
}

func (s *HoldingStore) filter(keep func(*domain.HoldingRecord) bool) []*domain.HoldingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.HoldingRecord
	for _, h := range s.rows {
		if keep(h) {
			out = append(out, copyHolding(h))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func copyHolding(h *domain.HoldingRecord) *domain.HoldingRecord {
	c := *h
	if h.SolPaidUSDC != nil {
		v := *h.SolPaidUSDC
		c.SolPaidUSDC = &v
	}
	return &c
}

var _ storage.HoldingStore = (*HoldingStore)(nil)
