package report

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

// Moderator decisions for Resolve.
const (
	DecisionWarn     = "warn"
	DecisionRestrict = "restrict"
	DecisionBan      = "ban"
	DecisionReject   = "reject"
	DecisionDismiss  = "dismiss"
)

// DismissNote is recorded when a moderator closes a report without action.
const DismissNote = "Keine Maßnahme erforderlich"

var (
	// ErrSelfReport is returned when a user reports themselves.
	ErrSelfReport = errors.New("report: cannot report yourself")

	// ErrInvalidReason is returned for a reason outside the accepted set.
	ErrInvalidReason = errors.New("report: invalid reason")

	// ErrInvalidDecision is returned for an unknown resolve decision.
	ErrInvalidDecision = errors.New("report: invalid decision")

	// ErrNotPending is returned when resolving a report that is no longer
	// pending, typically because another moderator resolved it first.
	ErrNotPending = errors.New("report: not pending")

	// ErrNotRejected is returned when appealing a report that was not rejected.
	ErrNotRejected = errors.New("report: not rejected")

	// ErrAlreadyAppealed is returned on a second appeal attempt. Each report
	// can be appealed exactly once.
	ErrAlreadyAppealed = errors.New("report: already appealed")

	// ErrPermission is returned when the actor lacks the required role or
	// does not own the report.
	ErrPermission = errors.New("report: permission denied")
)

// User-facing labels for report reasons, used in sanction reasons and
// moderator views.
var reasonLabels = map[string]string{
	ReasonGrooming:      "Grooming-Verdacht",
	ReasonSexual:        "Sexuelle Inhalte",
	ReasonViolence:      "Gewalt",
	ReasonDrugs:         "Drogen",
	ReasonPersonalData:  "Weitergabe persönlicher Daten",
	ReasonSpam:          "Spam",
	ReasonOther:         "Sonstiges",
	ReasonFakeProfile:   "Fake-Profil",
	ReasonInappropriate: "Unangemessenes Verhalten",
	ReasonUnderage:      "Altersverstoß",
}

// ReasonLabel returns the German label for a reason code.
func ReasonLabel(reason string) string {
	if l, ok := reasonLabels[reason]; ok {
		return l
	}
	return reasonLabels[ReasonOther]
}

// Reports is the slice of the report store the workflow needs.
type Reports interface {
	Create(ctx context.Context, r *Report) error
	Get(ctx context.Context, id int64) (*Report, error)
	MarkActionTaken(ctx context.Context, id int64, moderatorID, actionTaken string) (bool, error)
	MarkRejected(ctx context.Context, id int64, moderatorID, rejectionReason string) (bool, error)
	MarkReviewed(ctx context.Context, id int64, moderatorID, note string) (bool, error)
	MarkAppealed(ctx context.Context, id int64, appealReason string) (bool, error)
}

// Sanctions applies moderation sanctions to reported users.
type Sanctions interface {
	Strike(ctx context.Context, userID, reason string, moderatorID *string) (int, error)
	Restrict(ctx context.Context, userID, reason string, moderatorID *string) error
	Ban(ctx context.Context, userID, reason string, moderatorID *string) error
}

// Queue manages the prioritized moderation review queue.
type Queue interface {
	Enqueue(ctx context.Context, entryType string, reportID int64, priority string) error
	CompleteQueueEntries(ctx context.Context, reportID int64) error
}

// Notifier creates notification records.
type Notifier interface {
	Create(ctx context.Context, userID, title, message string, payload notify.Payload) error
}

// Users resolves user IDs for role checks.
type Users interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// Workflow drives the report lifecycle: filing, moderator resolution, and
// the single appeal.
type Workflow struct {
	reports   Reports
	sanctions Sanctions
	queue     Queue
	notify    Notifier
	users     Users
}

// NewWorkflow wires the report workflow.
func NewWorkflow(reports Reports, sanctions Sanctions, queue Queue, notifier Notifier, users Users) *Workflow {
	return &Workflow{reports: reports, sanctions: sanctions, queue: queue, notify: notifier, users: users}
}

// File creates a pending report and queues it for review. A non-nil
// messageID marks a message report, which accepts the narrower reason set.
// The reporter gets a confirmation notification; queue and notification
// failures are logged but do not undo the report.
func (w *Workflow) File(ctx context.Context, reporterID, reportedUserID string, messageID *int64, reason, detail string) (*Report, error) {
	if reporterID == reportedUserID {
		return nil, ErrSelfReport
	}
	if !ValidReason(reason, messageID != nil) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	r := &Report{
		ReporterID:     reporterID,
		ReportedUserID: reportedUserID,
		MessageID:      messageID,
		Reason:         reason,
		Detail:         detail,
	}
	if err := w.reports.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := w.queue.Enqueue(ctx, "report", r.ID, modlog.PriorityNormal); err != nil {
		log.Printf("[report] enqueue failed report=%d: %v", r.ID, err)
	}
	w.send(ctx, reporterID, "Meldung eingegangen",
		"Deine Meldung wurde eingereicht und wird geprüft.",
		notify.ReportReceived{ReportID: r.ID})
	metrics.ReportsTotal.WithLabelValues(reason).Inc()

	return r, nil
}

// Resolve applies a moderator decision to a pending report. The conditional
// status update claims the report first, so of two concurrent resolutions
// exactly one wins and the other gets ErrNotPending; sanctions are only
// applied by the winner.
func (w *Workflow) Resolve(ctx context.Context, reportID int64, moderatorID, decision, detail string) error {
	if err := w.requireModerator(ctx, moderatorID); err != nil {
		return err
	}

	r, err := w.reports.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if r.Status != StatusPending {
		return ErrNotPending
	}

	switch decision {
	case DecisionWarn, DecisionRestrict, DecisionBan:
		if err := w.resolveWithSanction(ctx, r, moderatorID, decision); err != nil {
			return err
		}
	case DecisionReject:
		claimed, err := w.reports.MarkRejected(ctx, reportID, moderatorID, detail)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotPending
		}
		w.send(ctx, r.ReporterID, "Meldung abgelehnt",
			"Deine Meldung wurde geprüft und abgelehnt. Du kannst einmalig Einspruch einlegen.",
			notify.ReportUpdate{ReportID: reportID, Rejected: true})
	case DecisionDismiss:
		claimed, err := w.reports.MarkReviewed(ctx, reportID, moderatorID, DismissNote)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotPending
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	if err := w.queue.CompleteQueueEntries(ctx, reportID); err != nil {
		log.Printf("[report] queue completion failed report=%d: %v", reportID, err)
	}
	metrics.ReportResolutionsTotal.WithLabelValues(decision).Inc()
	return nil
}

func (w *Workflow) resolveWithSanction(ctx context.Context, r *Report, moderatorID, decision string) error {
	sanctionReason := fmt.Sprintf("Meldung: %s", ReasonLabel(r.Reason))

	var actionTaken string
	switch decision {
	case DecisionWarn:
		actionTaken = "Verwarnung ausgesprochen"
	case DecisionRestrict:
		actionTaken = "Account eingeschränkt"
	case DecisionBan:
		actionTaken = "Account gesperrt"
	}

	claimed, err := w.reports.MarkActionTaken(ctx, r.ID, moderatorID, actionTaken)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNotPending
	}

	switch decision {
	case DecisionWarn:
		_, err = w.sanctions.Strike(ctx, r.ReportedUserID, sanctionReason, &moderatorID)
	case DecisionRestrict:
		err = w.sanctions.Restrict(ctx, r.ReportedUserID, sanctionReason, &moderatorID)
	case DecisionBan:
		err = w.sanctions.Ban(ctx, r.ReportedUserID, sanctionReason, &moderatorID)
	}
	if err != nil {
		return fmt.Errorf("report: resolve %d: %w", r.ID, err)
	}

	w.send(ctx, r.ReporterID, "Meldung bearbeitet",
		fmt.Sprintf("Deine Meldung wurde bearbeitet: %s", actionTaken),
		notify.ReportUpdate{ReportID: r.ID, ActionTaken: actionTaken})
	return nil
}

// Appeal lets the reporter contest a rejected report, once. The conditional
// update enforces both constraints; when it does not apply, the current
// state decides which sentinel error comes back.
func (w *Workflow) Appeal(ctx context.Context, reportID int64, reporterID, appealReason string) error {
	r, err := w.reports.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if r.ReporterID != reporterID {
		return ErrPermission
	}

	applied, err := w.reports.MarkAppealed(ctx, reportID, appealReason)
	if err != nil {
		return err
	}
	if !applied {
		if r.Appealed {
			return ErrAlreadyAppealed
		}
		return ErrNotRejected
	}

	if err := w.queue.Enqueue(ctx, "appeal", reportID, modlog.PriorityHigh); err != nil {
		log.Printf("[report] appeal enqueue failed report=%d: %v", reportID, err)
	}
	w.send(ctx, reporterID, "Einspruch eingegangen",
		"Dein Einspruch wurde eingereicht und wird erneut geprüft.",
		notify.AppealReceived{ReportID: reportID})
	return nil
}

func (w *Workflow) requireModerator(ctx context.Context, moderatorID string) error {
	actor, err := w.users.Get(ctx, moderatorID)
	if err != nil {
		return fmt.Errorf("report: moderator lookup: %w", err)
	}
	if !actor.IsModerator() {
		return ErrPermission
	}
	return nil
}

func (w *Workflow) send(ctx context.Context, userID, title, message string, payload notify.Payload) {
	if err := w.notify.Create(ctx, userID, title, message, payload); err != nil {
		log.Printf("[report] notification failed user=%s type=%s: %v", userID, payload.NotificationType(), err)
	}
}
