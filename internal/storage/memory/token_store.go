package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	nextID int64
	byMint map[string]*domain.NewTokenRecord // keyed by mint (unique)
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{byMint: make(map[string]*domain.NewTokenRecord)}
}

// Insert adds a token. Returns ErrDuplicateKey if the mint already exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.NewTokenRecord) error {
	if err := storage.ValidateNewToken(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMint[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	t.ID = s.nextID
	tokenCopy := *t
	s.byMint[t.Mint] = &tokenCopy
	return nil
}

// FindByMint retrieves a token by mint. Returns ErrNotFound if not exists.
func (s *TokenStore) FindByMint(_ context.Context, mint string) (*domain.NewTokenRecord, error) {
	if err := storage.ValidateMint(mint); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	tokenCopy := *t
	return &tokenCopy, nil
}

// FindByNameOrCreator returns tokens sharing the name or the creator, newest first.
func (s *TokenStore) FindByNameOrCreator(_ context.Context, name, creator string) ([]*domain.NewTokenRecord, error) {
	if err := storage.ValidateNameOrCreator(name, creator); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.NewTokenRecord
	for _, t := range s.byMint {
		if t.Name == name || t.Creator == creator {
			tokenCopy := *t
			out = append(out, &tokenCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
