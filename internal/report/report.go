// Package report implements user reports and the moderator review workflow,
// including the single-appeal lifecycle. A report targets either a specific
// message or a user profile. State transitions run through conditional
// updates so concurrent moderator actions cannot double-apply.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Report statuses.
const (
	StatusPending     = "pending"
	StatusReviewed    = "reviewed"
	StatusActionTaken = "action_taken"
	StatusRejected    = "rejected"
)

// Report reasons. The first group applies to message and user reports alike;
// the second group only to user (profile) reports.
const (
	ReasonGrooming     = "grooming"
	ReasonSexual       = "sexual"
	ReasonViolence     = "violence"
	ReasonDrugs        = "drugs"
	ReasonPersonalData = "personal_data"
	ReasonSpam         = "spam"
	ReasonOther        = "other"

	ReasonFakeProfile   = "fake_profile"
	ReasonInappropriate = "inappropriate"
	ReasonUnderage      = "underage"
)

var messageReasons = map[string]bool{
	ReasonGrooming:     true,
	ReasonSexual:       true,
	ReasonViolence:     true,
	ReasonDrugs:        true,
	ReasonPersonalData: true,
	ReasonSpam:         true,
	ReasonOther:        true,
}

var userReasons = map[string]bool{
	ReasonGrooming:      true,
	ReasonSexual:        true,
	ReasonViolence:      true,
	ReasonDrugs:         true,
	ReasonPersonalData:  true,
	ReasonSpam:          true,
	ReasonOther:         true,
	ReasonFakeProfile:   true,
	ReasonInappropriate: true,
	ReasonUnderage:      true,
}

// ValidReason reports whether reason is accepted for the report kind.
// Message reports use the narrower set; user reports additionally accept
// profile-specific reasons.
func ValidReason(reason string, messageReport bool) bool {
	if messageReport {
		return messageReasons[reason]
	}
	return userReasons[reason]
}

// ErrNotFound is returned when a report ID does not exist.
var ErrNotFound = errors.New("report: not found")

// Report is one filed report.
type Report struct {
	ID              int64
	ReporterID      string
	ReportedUserID  string
	MessageID       *int64
	Reason          string
	Detail          string
	Status          string
	ActionTaken     *string
	RejectionReason *string
	Appealed        bool
	AppealReason    *string
	ModeratorID     *string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// Store manages reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending report.
func (s *Store) Create(ctx context.Context, r *Report) error {
	const query = `
		INSERT INTO reports (reporter_id, reported_user_id, message_id, reason, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		r.ReporterID, r.ReportedUserID, r.MessageID, r.Reason, r.Detail,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("report: create: %w", err)
	}
	r.Status = StatusPending
	return nil
}

const reportColumns = `
	id, reporter_id, reported_user_id, message_id, reason, detail, status,
	action_taken, rejection_reason, appealed, appeal_reason, moderator_id,
	created_at, resolved_at`

func scanReport(row interface{ Scan(...interface{}) error }) (*Report, error) {
	var r Report
	err := row.Scan(
		&r.ID, &r.ReporterID, &r.ReportedUserID, &r.MessageID, &r.Reason,
		&r.Detail, &r.Status, &r.ActionTaken, &r.RejectionReason,
		&r.Appealed, &r.AppealReason, &r.ModeratorID, &r.CreatedAt, &r.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Get returns a report by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Report, error) {
	query := `SELECT` + reportColumns + ` FROM reports WHERE id = $1`

	r, err := scanReport(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("report: get: %w", err)
	}
	return r, nil
}

// Pending lists open reports, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Report, error) {
	query := `SELECT` + reportColumns + `
		FROM reports
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("report: pending: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ForReporter lists a user's own reports, newest first.
func (s *Store) ForReporter(ctx context.Context, reporterID string, limit int) ([]Report, error) {
	query := `SELECT` + reportColumns + `
		FROM reports
		WHERE reporter_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, reporterID, limit)
	if err != nil {
		return nil, fmt.Errorf("report: for reporter: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkActionTaken transitions a pending report to action_taken. Returns
// false when the report was not pending, which means another moderator got
// there first.
func (s *Store) MarkActionTaken(ctx context.Context, id int64, moderatorID, actionTaken string) (bool, error) {
	const query = `
		UPDATE reports
		SET status = 'action_taken', action_taken = $3, moderator_id = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id, moderatorID, actionTaken)
	if err != nil {
		return false, fmt.Errorf("report: mark action taken: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report: mark action taken: %w", err)
	}
	return n == 1, nil
}

// MarkRejected transitions a pending report to rejected, storing the
// moderator's rationale for a possible appeal.
func (s *Store) MarkRejected(ctx context.Context, id int64, moderatorID, rejectionReason string) (bool, error) {
	const query = `
		UPDATE reports
		SET status = 'rejected', rejection_reason = $3, moderator_id = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id, moderatorID, rejectionReason)
	if err != nil {
		return false, fmt.Errorf("report: mark rejected: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report: mark rejected: %w", err)
	}
	return n == 1, nil
}

// MarkReviewed transitions a pending report to reviewed (dismissed without
// action).
func (s *Store) MarkReviewed(ctx context.Context, id int64, moderatorID, note string) (bool, error) {
	const query = `
		UPDATE reports
		SET status = 'reviewed', action_taken = $3, moderator_id = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, id, moderatorID, note)
	if err != nil {
		return false, fmt.Errorf("report: mark reviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report: mark reviewed: %w", err)
	}
	return n == 1, nil
}

// MarkAppealed flips a rejected, never-appealed report back to pending and
// sets the permanent appealed flag. The rejection reason is kept for the
// re-review. Returns false when the report was not in an appealable state.
func (s *Store) MarkAppealed(ctx context.Context, id int64, appealReason string) (bool, error) {
	const query = `
		UPDATE reports
		SET appealed = TRUE, appeal_reason = $2, status = 'pending', resolved_at = NULL
		WHERE id = $1 AND status = 'rejected' AND appealed = FALSE`

	res, err := s.db.ExecContext(ctx, query, id, appealReason)
	if err != nil {
		return false, fmt.Errorf("report: mark appealed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("report: mark appealed: %w", err)
	}
	return n == 1, nil
}

// CountByStatus returns report counts per status for the dashboard.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	const query = `SELECT status, COUNT(*) FROM reports GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report: count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
