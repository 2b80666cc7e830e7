// Package user defines the user entity and its PostgreSQL store. Strike and
// account-status writes happen exclusively through the sanction engine; this
// package only supplies the primitives, including the atomic strike
// increment that keeps concurrent violations from losing updates.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Roles.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
	RoleOwner     = "owner"
)

// Account statuses.
const (
	StatusActive     = "active"
	StatusRestricted = "restricted"
	StatusBanned     = "banned"
	StatusDeleted    = "deleted"
)

// ErrNotFound is returned when a user ID does not exist.
var ErrNotFound = errors.New("user: not found")

// User is one account.
type User struct {
	ID             string
	Username       string
	Role           string
	AccountStatus  string
	Strikes        int
	BanReason      *string
	VerifiedParent bool
	CreatedAt      time.Time
}

// IsModerator reports whether the user may perform moderator actions.
func (u *User) IsModerator() bool {
	switch u.Role {
	case RoleModerator, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// Store manages users in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a user store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new account with active status and zero strikes. A
// missing ID is generated.
func (s *Store) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	const query = `
		INSERT INTO users (id, username, role, account_status, verified_parent)
		VALUES ($1, $2, $3, 'active', $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, u.ID, u.Username, u.Role, u.VerifiedParent).
		Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("user: create: %w", err)
	}
	u.AccountStatus = StatusActive
	return nil
}

// Get returns a user by ID.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT id, username, role, account_status, strikes, ban_reason, verified_parent, created_at
		FROM users
		WHERE id = $1`

	var u User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Role, &u.AccountStatus,
		&u.Strikes, &u.BanReason, &u.VerifiedParent, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user: get: %w", err)
	}
	return &u, nil
}

// IncrementStrikes atomically bumps the strike counter and returns the new
// value. The read-increment-write happens inside the database so two
// concurrent violations are both counted.
func (s *Store) IncrementStrikes(ctx context.Context, id string) (int, error) {
	const query = `UPDATE users SET strikes = strikes + 1 WHERE id = $1 RETURNING strikes`

	var strikes int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&strikes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("user: increment strikes: %w", err)
	}
	return strikes, nil
}

// ResetStrikes sets the strike counter back to zero.
func (s *Store) ResetStrikes(ctx context.Context, id string) error {
	const query = `UPDATE users SET strikes = 0 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("user: reset strikes: %w", err)
	}
	return nil
}

// SetStatus updates the account status. banReason is stored for bans and
// cleared on unban.
func (s *Store) SetStatus(ctx context.Context, id, status string, banReason *string) error {
	const query = `UPDATE users SET account_status = $2, ban_reason = $3 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, status, banReason); err != nil {
		return fmt.Errorf("user: set status: %w", err)
	}
	return nil
}

// SetVerifiedParent records the parental verification flag.
func (s *Store) SetVerifiedParent(ctx context.Context, id string, verified bool) error {
	const query = `UPDATE users SET verified_parent = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, verified); err != nil {
		return fmt.Errorf("user: set verified parent: %w", err)
	}
	return nil
}

// Block records that blocker no longer wants contact with blocked.
// Blocking twice is a no-op.
func (s *Store) Block(ctx context.Context, blockerID, blockedID string) error {
	const query = `
		INSERT INTO blocks (blocker_id, blocked_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("user: block: %w", err)
	}
	return nil
}

// Unblock removes a block.
func (s *Store) Unblock(ctx context.Context, blockerID, blockedID string) error {
	const query = `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`

	if _, err := s.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("user: unblock: %w", err)
	}
	return nil
}

// BlockedEither reports whether either user has blocked the other.
func (s *Store) BlockedEither(ctx context.Context, a, b string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)`

	var blocked bool
	if err := s.db.QueryRowContext(ctx, query, a, b).Scan(&blocked); err != nil {
		return false, fmt.Errorf("user: blocked lookup: %w", err)
	}
	return blocked, nil
}

// ListByStatus returns users filtered by account status for the moderator
// dashboard; an empty status returns everyone.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]User, error) {
	query := `
		SELECT id, username, role, account_status, strikes, ban_reason, verified_parent, created_at
		FROM users`
	args := []interface{}{limit}
	if status != "" {
		query += ` WHERE account_status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.AccountStatus,
			&u.Strikes, &u.BanReason, &u.VerifiedParent, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("user: scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
