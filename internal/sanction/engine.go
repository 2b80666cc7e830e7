// Package sanction owns strike counters and account status transitions. It
// is the sole writer of users' strikes and account_status: the classifier,
// the report workflow, and moderator tooling all request sanctions here
// instead of mutating users directly, which makes this package the
// concurrency-safety boundary for those fields.
//
// Each operation mutates the user, appends a moderation-log entry, and
// creates a notification for the affected user. Log and notification writes
// are best-effort: a failed insert never rolls back the sanction itself.
package sanction

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/youthguard/chat-platform/internal/metrics"
	"github.com/youthguard/chat-platform/internal/modlog"
	"github.com/youthguard/chat-platform/internal/notify"
	"github.com/youthguard/chat-platform/internal/user"
)

// Auto-escalation thresholds, evaluated on every strike (not only at the
// moment of crossing): a user whose counter is jumped past a threshold is
// escalated on the next strike call. The escalations themselves are
// idempotent, so re-evaluating on a user already restricted or banned is a
// no-op.
const (
	RestrictThreshold = 3
	BanThreshold      = 5
)

// AutoEscalationReason is recorded for threshold-triggered sanctions.
const AutoEscalationReason = "Zu viele Verwarnungen"

var (
	// ErrPermission is returned when the acting moderator lacks the
	// moderator/admin/owner role.
	ErrPermission = errors.New("sanction: moderator role required")

	// ErrNotBanned is returned by Unban when the user is not banned.
	ErrNotBanned = errors.New("sanction: user is not banned")

	// ErrNotRestricted is returned by Unrestrict when the user is not restricted.
	ErrNotRestricted = errors.New("sanction: user is not restricted")
)

// UserStore is the slice of the user store the engine needs.
type UserStore interface {
	Get(ctx context.Context, id string) (*user.User, error)
	IncrementStrikes(ctx context.Context, id string) (int, error)
	ResetStrikes(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id, status string, banReason *string) error
}

// AuditLog appends moderation-log entries.
type AuditLog interface {
	Append(ctx context.Context, e *modlog.Entry) error
}

// Notifier creates notification records.
type Notifier interface {
	Create(ctx context.Context, userID, title, message string, payload notify.Payload) error
}

// EventSink receives "sanction applied" events for real-time fan-out.
type EventSink interface {
	SanctionApplied(userID, action, reason string)
}

type noopSink struct{}

func (noopSink) SanctionApplied(string, string, string) {}

// Engine applies sanctions.
type Engine struct {
	users  UserStore
	audit  AuditLog
	notify Notifier
	events EventSink
}

// NewEngine creates a sanction engine. A nil events sink is replaced with a
// no-op implementation.
func NewEngine(users UserStore, audit AuditLog, notifier Notifier, events EventSink) *Engine {
	if events == nil {
		events = noopSink{}
	}
	return &Engine{users: users, audit: audit, notify: notifier, events: events}
}

// Strike records one policy violation against the user and returns the new
// strike count. A nil moderatorID marks an automated decision. After
// incrementing, the auto-escalation thresholds are evaluated.
func (e *Engine) Strike(ctx context.Context, userID, reason string, moderatorID *string) (int, error) {
	if err := e.requireModerator(ctx, moderatorID); err != nil {
		return 0, err
	}

	strikes, err := e.users.IncrementStrikes(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sanction: strike: %w", err)
	}

	e.record(ctx, &modlog.Entry{
		UserID:       userID,
		Action:       modlog.ActionStrike,
		Reason:       reason,
		ModeratorID:  moderatorID,
		StrikesAfter: &strikes,
	})
	e.send(ctx, userID, "Verwarnung",
		fmt.Sprintf("Du hast eine Verwarnung erhalten: %s", reason),
		notify.WarningNotice{Reason: reason, Strikes: strikes})
	e.events.SanctionApplied(userID, modlog.ActionStrike, reason)
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionStrike).Inc()

	if strikes >= RestrictThreshold {
		if err := e.Restrict(ctx, userID, AutoEscalationReason, nil); err != nil {
			return strikes, fmt.Errorf("sanction: auto-restrict: %w", err)
		}
	}
	if strikes >= BanThreshold {
		if err := e.Ban(ctx, userID, AutoEscalationReason, nil); err != nil {
			return strikes, fmt.Errorf("sanction: auto-ban: %w", err)
		}
	}

	return strikes, nil
}

// Restrict limits an account. Idempotent: users already restricted, banned,
// or deleted are left untouched (status transitions are one-directional
// unless reversed by an explicit moderator action).
func (e *Engine) Restrict(ctx context.Context, userID, reason string, moderatorID *string) error {
	if err := e.requireModerator(ctx, moderatorID); err != nil {
		return err
	}

	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("sanction: restrict: %w", err)
	}
	if u.AccountStatus != user.StatusActive {
		return nil
	}

	if err := e.users.SetStatus(ctx, userID, user.StatusRestricted, nil); err != nil {
		return fmt.Errorf("sanction: restrict: %w", err)
	}

	e.record(ctx, &modlog.Entry{
		UserID:      userID,
		Action:      modlog.ActionRestrict,
		Reason:      reason,
		ModeratorID: moderatorID,
	})
	e.send(ctx, userID, "Account eingeschränkt",
		fmt.Sprintf("Dein Account wurde eingeschränkt: %s", reason),
		notify.RestrictionNotice{Reason: reason})
	e.events.SanctionApplied(userID, modlog.ActionRestrict, reason)
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionRestrict).Inc()
	return nil
}

// Ban locks an account. Idempotent: banning an already-banned user changes
// nothing and records nothing.
func (e *Engine) Ban(ctx context.Context, userID, reason string, moderatorID *string) error {
	if err := e.requireModerator(ctx, moderatorID); err != nil {
		return err
	}

	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("sanction: ban: %w", err)
	}
	if u.AccountStatus == user.StatusBanned || u.AccountStatus == user.StatusDeleted {
		return nil
	}

	if err := e.users.SetStatus(ctx, userID, user.StatusBanned, &reason); err != nil {
		return fmt.Errorf("sanction: ban: %w", err)
	}

	e.record(ctx, &modlog.Entry{
		UserID:      userID,
		Action:      modlog.ActionBan,
		Reason:      reason,
		ModeratorID: moderatorID,
	})
	e.send(ctx, userID, "Account gesperrt",
		fmt.Sprintf("Dein Account wurde gesperrt: %s", reason),
		notify.BanNotice{Reason: reason})
	e.events.SanctionApplied(userID, modlog.ActionBan, reason)
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionBan).Inc()
	return nil
}

// Unban reverses a ban. Requires a human moderator.
func (e *Engine) Unban(ctx context.Context, userID, moderatorID string) error {
	if err := e.requireModerator(ctx, &moderatorID); err != nil {
		return err
	}

	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("sanction: unban: %w", err)
	}
	if u.AccountStatus != user.StatusBanned {
		return ErrNotBanned
	}

	if err := e.users.SetStatus(ctx, userID, user.StatusActive, nil); err != nil {
		return fmt.Errorf("sanction: unban: %w", err)
	}

	e.record(ctx, &modlog.Entry{
		UserID:      userID,
		Action:      modlog.ActionUnban,
		ModeratorID: &moderatorID,
	})
	e.send(ctx, userID, "Account entsperrt",
		"Dein Account wurde wieder entsperrt.", notify.UnbanNotice{})
	e.events.SanctionApplied(userID, modlog.ActionUnban, "")
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionUnban).Inc()
	return nil
}

// Unrestrict reverses a restriction. Requires a human moderator.
func (e *Engine) Unrestrict(ctx context.Context, userID, moderatorID string) error {
	if err := e.requireModerator(ctx, &moderatorID); err != nil {
		return err
	}

	u, err := e.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("sanction: unrestrict: %w", err)
	}
	if u.AccountStatus != user.StatusRestricted {
		return ErrNotRestricted
	}

	if err := e.users.SetStatus(ctx, userID, user.StatusActive, nil); err != nil {
		return fmt.Errorf("sanction: unrestrict: %w", err)
	}

	e.record(ctx, &modlog.Entry{
		UserID:      userID,
		Action:      modlog.ActionUnrestrict,
		ModeratorID: &moderatorID,
	})
	e.send(ctx, userID, "Einschränkung aufgehoben",
		"Die Einschränkung deines Accounts wurde aufgehoben.", notify.UnrestrictNotice{})
	e.events.SanctionApplied(userID, modlog.ActionUnrestrict, "")
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionUnrestrict).Inc()
	return nil
}

// ResetStrikes clears the strike counter. Requires a human moderator; this
// is the only path on which strikes decrease.
func (e *Engine) ResetStrikes(ctx context.Context, userID, moderatorID string) error {
	if err := e.requireModerator(ctx, &moderatorID); err != nil {
		return err
	}

	if err := e.users.ResetStrikes(ctx, userID); err != nil {
		return fmt.Errorf("sanction: reset strikes: %w", err)
	}

	zero := 0
	e.record(ctx, &modlog.Entry{
		UserID:       userID,
		Action:       modlog.ActionResetStrikes,
		ModeratorID:  &moderatorID,
		StrikesAfter: &zero,
	})
	e.send(ctx, userID, "Verwarnungen zurückgesetzt",
		"Deine Verwarnungen wurden zurückgesetzt.", notify.StrikesResetNotice{})
	metrics.SanctionsTotal.WithLabelValues(modlog.ActionResetStrikes).Inc()
	return nil
}

// requireModerator verifies the acting moderator's role. A nil moderatorID
// denotes an automated decision and passes.
func (e *Engine) requireModerator(ctx context.Context, moderatorID *string) error {
	if moderatorID == nil {
		return nil
	}
	actor, err := e.users.Get(ctx, *moderatorID)
	if err != nil {
		return fmt.Errorf("sanction: moderator lookup: %w", err)
	}
	if !actor.IsModerator() {
		return ErrPermission
	}
	return nil
}

// record appends to the moderation log, best-effort.
func (e *Engine) record(ctx context.Context, entry *modlog.Entry) {
	if err := e.audit.Append(ctx, entry); err != nil {
		log.Printf("[sanction] audit append failed user=%s action=%s: %v", entry.UserID, entry.Action, err)
	}
}

// send creates a notification, best-effort. A failed insert never rolls
// back the sanction.
func (e *Engine) send(ctx context.Context, userID, title, message string, payload notify.Payload) {
	if err := e.notify.Create(ctx, userID, title, message, payload); err != nil {
		log.Printf("[sanction] notification failed user=%s type=%s: %v", userID, payload.NotificationType(), err)
	}
}
