package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu     sync.RWMutex
	byMint map[string][]*domain.PriceSample
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{byMint: make(map[string][]*domain.PriceSample)}
}

// InsertBulk appends samples.
func (s *PriceSampleStore) InsertBulk(_ context.Context, samples []*domain.PriceSample) error {
	for _, p := range samples {
		if err := storage.ValidateMint(p.Mint); err != nil {
			return err
		}
		if p.TimestampMs <= 0 {
			return fmt.Errorf("%w: sample timestamp must be positive", storage.ErrInvalidInput)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range samples {
		sampleCopy := *p
		s.byMint[p.Mint] = append(s.byMint[p.Mint], &sampleCopy)
	}
	return nil
}

// GetByTimeRange retrieves samples for a mint within [start, end] (inclusive), ordered by timestamp ASC.
func (s *PriceSampleStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PriceSample
	for _, p := range s.byMint[mint] {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			sampleCopy := *p
			out = append(out, &sampleCopy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TimestampMs != out[j].TimestampMs {
			return out[i].TimestampMs < out[j].TimestampMs
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)
