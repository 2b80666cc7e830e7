package imagecheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store is the PostgreSQL-backed hash registry.
type Store struct {
	db *sql.DB
}

// NewStore creates a hash store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Owner returns the user ID registered for the hash, or "" if unknown.
func (s *Store) Owner(ctx context.Context, hash string) (string, error) {
	const query = `SELECT user_id FROM image_hashes WHERE hash = $1`

	var owner string
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("imagecheck: owner lookup: %w", err)
	}
	return owner, nil
}

// Claim registers the hash for the user. Re-claiming an existing hash keeps
// the original owner row untouched (same-user re-upload is a no-op; a
// different user never reaches Claim because Owner rejects first).
func (s *Store) Claim(ctx context.Context, hash, userID string) error {
	const query = `
		INSERT INTO image_hashes (hash, user_id)
		VALUES ($1, $2)
		ON CONFLICT (hash) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, hash, userID); err != nil {
		return fmt.Errorf("imagecheck: claim: %w", err)
	}
	return nil
}
