// Package modlog provides the append-only moderation audit trail and the
// prioritized review queue. Log entries are never updated or deleted; the
// queue feeds moderator dashboards and appeal re-reviews.
package modlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Actions recorded in the moderation log.
const (
	ActionStrike       = "strike"
	ActionRestrict     = "restrict"
	ActionBan          = "ban"
	ActionUnban        = "unban"
	ActionUnrestrict   = "unrestrict"
	ActionResetStrikes = "reset_strikes"
	ActionAutoBlock    = "auto_block" // classifier blocked/flagged a message
)

// Queue entry priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Entry is one immutable audit record. A nil ModeratorID marks an automated
// decision. Sanction entries carry StrikesAfter; classifier entries carry
// the scored content and verdict for moderator review.
type Entry struct {
	ID             int64
	UserID         string
	Action         string
	Reason         string
	ModeratorID    *string
	StrikesAfter   *int
	Content        *string
	Classification *string
	Score          *int
	CreatedAt      time.Time
}

// QueueEntry is one prioritized item awaiting moderator attention.
type QueueEntry struct {
	ID        int64
	Type      string // "report", "appeal"
	ReportID  int64
	Priority  string
	CreatedAt time.Time
}

// Store manages the moderation log and queue in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a log entry. There is no update or delete counterpart.
func (s *Store) Append(ctx context.Context, e *Entry) error {
	const query = `
		INSERT INTO moderation_logs
			(user_id, action, reason, moderator_id, strikes_after, content, classification, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		e.UserID, e.Action, e.Reason, e.ModeratorID,
		e.StrikesAfter, e.Content, e.Classification, e.Score,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("modlog: append: %w", err)
	}
	return nil
}

// Recent returns the newest log entries for the moderator dashboard.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const query = `
		SELECT id, user_id, action, reason, moderator_id, strikes_after,
		       content, classification, score, created_at
		FROM moderation_logs
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("modlog: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Reason, &e.ModeratorID,
			&e.StrikesAfter, &e.Content, &e.Classification, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("modlog: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ForUser returns a user's log history, newest first.
func (s *Store) ForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const query = `
		SELECT id, user_id, action, reason, moderator_id, strikes_after,
		       content, classification, score, created_at
		FROM moderation_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("modlog: for user: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Reason, &e.ModeratorID,
			&e.StrikesAfter, &e.Content, &e.Classification, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("modlog: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Enqueue adds a review-queue item.
func (s *Store) Enqueue(ctx context.Context, entryType string, reportID int64, priority string) error {
	const query = `
		INSERT INTO moderation_queue (type, report_id, priority)
		VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, entryType, reportID, priority); err != nil {
		return fmt.Errorf("modlog: enqueue: %w", err)
	}
	return nil
}

// PendingQueue lists open queue entries, high priority first, oldest first
// within the same priority.
func (s *Store) PendingQueue(ctx context.Context, limit int) ([]QueueEntry, error) {
	const query = `
		SELECT id, type, report_id, priority, created_at
		FROM moderation_queue
		WHERE done = FALSE
		ORDER BY (priority = 'high') DESC, created_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("modlog: pending queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var q QueueEntry
		if err := rows.Scan(&q.ID, &q.Type, &q.ReportID, &q.Priority, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("modlog: scan queue: %w", err)
		}
		entries = append(entries, q)
	}
	return entries, rows.Err()
}

// CompleteQueueEntries marks all open queue items for a report as done.
// Called when a moderator resolves the report.
func (s *Store) CompleteQueueEntries(ctx context.Context, reportID int64) error {
	const query = `UPDATE moderation_queue SET done = TRUE WHERE report_id = $1 AND done = FALSE`

	if _, err := s.db.ExecContext(ctx, query, reportID); err != nil {
		return fmt.Errorf("modlog: complete queue: %w", err)
	}
	return nil
}
