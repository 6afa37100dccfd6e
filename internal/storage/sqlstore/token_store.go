package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/storage"
	"solana-trade-tracker/internal/storage/dbpool"
)

// TokenStore implements storage.TokenStore.
type TokenStore struct {
	pool *dbpool.Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *dbpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a discovered token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.NewTokenRecord) error {
	if err := storage.ValidateNewToken(t); err != nil {
		return err
	}

	var id int64
	err := s.pool.Transaction(ctx, func(ctx context.Context, tx *dbpool.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO tokens (time, name, mint, creator) VALUES (?, ?, ?, ?) RETURNING id`,
			t.Time, t.Name, t.Mint, t.Creator,
		).Scan(&id)
	})
	if err != nil {
		return mapError(s.pool, "insert token", err)
	}
	t.ID = id
	return nil
}

// FindByMint retrieves a token by mint. Returns ErrNotFound if not exists.
func (s *TokenStore) FindByMint(ctx context.Context, mint string) (*domain.NewTokenRecord, error) {
	if err := storage.ValidateMint(mint); err != nil {
		return nil, err
	}

	var found *domain.NewTokenRecord
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT id, time, name, mint, creator FROM tokens WHERE mint = ?`, mint)
		t, err := scanToken(row)
		if errors.Is(err, sql.ErrNoRows) {
			found = nil
			return nil
		}
		found = t
		return err
	})
	if err != nil {
		return nil, mapError(s.pool, "find token by mint", err)
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// FindByNameOrCreator returns tokens sharing the name or the creator, newest first.
func (s *TokenStore) FindByNameOrCreator(ctx context.Context, name, creator string) ([]*domain.NewTokenRecord, error) {
	if err := storage.ValidateNameOrCreator(name, creator); err != nil {
		return nil, err
	}

	var out []*domain.NewTokenRecord
	err := s.pool.Execute(ctx, func(ctx context.Context, conn *dbpool.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT id, time, name, mint, creator FROM tokens
			WHERE name = ? OR creator = ?
			ORDER BY time DESC, id DESC
		`, name, creator)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = nil
		for rows.Next() {
			t, err := scanToken(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(s.pool, "find tokens by name or creator", err)
	}
	return out, nil
}

func scanToken(row scanner) (*domain.NewTokenRecord, error) {
	var t domain.NewTokenRecord
	if err := row.Scan(&t.ID, &t.Time, &t.Name, &t.Mint, &t.Creator); err != nil {
		return nil, err
	}
	return &t, nil
}
