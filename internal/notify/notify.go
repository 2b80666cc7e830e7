// Package notify creates notification records for users affected by
// moderation actions and report outcomes. Records are insert-only; actual
// delivery (push, email) is a separate system's concern. Each notification
// type has its own payload struct so required fields are enforced by the
// compiler rather than an open-ended map.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Notification types.
const (
	TypeWarning        = "warning"
	TypeRestriction    = "restriction"
	TypeBan            = "ban"
	TypeUnban          = "unban"
	TypeUnrestrict     = "unrestrict"
	TypeStrikesReset   = "strikes_reset"
	TypeReportReceived = "report_received"
	TypeReportUpdate   = "report_update"
	TypeAppealReceived = "appeal_received"
)

// Payload marshals a notification's structured data.
type Payload interface {
	NotificationType() string
}

// WarningNotice informs a user about a strike.
type WarningNotice struct {
	Reason  string `json:"reason"`
	Strikes int    `json:"strikes"`
}

// RestrictionNotice informs a user their account was restricted.
type RestrictionNotice struct {
	Reason string `json:"reason"`
}

// BanNotice informs a user their account was banned.
type BanNotice struct {
	Reason string `json:"reason"`
}

// UnbanNotice informs a user their ban was lifted.
type UnbanNotice struct{}

// UnrestrictNotice informs a user their restriction was lifted.
type UnrestrictNotice struct{}

// StrikesResetNotice informs a user their strike counter was cleared.
type StrikesResetNotice struct{}

// ReportReceived confirms a filed report to the reporter.
type ReportReceived struct {
	ReportID int64 `json:"report_id"`
}

// ReportUpdate informs the reporter about the resolution of their report.
type ReportUpdate struct {
	ReportID    int64  `json:"report_id"`
	ActionTaken string `json:"action_taken,omitempty"`
	Rejected    bool   `json:"rejected,omitempty"`
}

// AppealReceived confirms an appeal submission to the reporter.
type AppealReceived struct {
	ReportID int64 `json:"report_id"`
}

func (WarningNotice) NotificationType() string      { return TypeWarning }
func (RestrictionNotice) NotificationType() string  { return TypeRestriction }
func (BanNotice) NotificationType() string          { return TypeBan }
func (UnbanNotice) NotificationType() string        { return TypeUnban }
func (UnrestrictNotice) NotificationType() string   { return TypeUnrestrict }
func (StrikesResetNotice) NotificationType() string { return TypeStrikesReset }
func (ReportReceived) NotificationType() string     { return TypeReportReceived }
func (ReportUpdate) NotificationType() string       { return TypeReportUpdate }
func (AppealReceived) NotificationType() string     { return TypeAppealReceived }

// Notification is one stored record.
type Notification struct {
	ID        int64
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      json.RawMessage
	Read      bool
	CreatedAt time.Time
}

// Store persists notifications in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a notification for a user.
func (s *Store) Create(ctx context.Context, userID, title, message string, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	const query = `
		INSERT INTO notifications (user_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.ExecContext(ctx, query, userID, payload.NotificationType(), title, message, data); err != nil {
		return fmt.Errorf("notify: insert: %w", err)
	}
	return nil
}

// Unread returns a user's unread notifications, newest first.
func (s *Store) Unread(ctx context.Context, userID string) ([]Notification, error) {
	const query = `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications
		WHERE user_id = $1 AND read = FALSE
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("notify: unread: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks a notification as read for its owner.
func (s *Store) MarkRead(ctx context.Context, id int64, userID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`

	if _, err := s.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	return nil
}
