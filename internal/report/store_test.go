package report

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/youthguard/chat-platform/internal/migrations"
	"github.com/youthguard/chat-platform/internal/user"
)

// testDB connects to a local Postgres instance and applies the schema. Tests
// that call this helper require a running Postgres; POSTGRES_DSN overrides
// the default address.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "postgres://localhost/chatplatform?sslmode=disable"
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		dsn = v
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("postgres not available: %v", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		t.Fatalf("migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, role string) *user.User {
	t.Helper()
	u := &user.User{Username: "report_test_" + uuid.NewString(), Role: role}
	if err := user.NewStore(db).Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		db.ExecContext(ctx, `DELETE FROM reports WHERE reporter_id = $1 OR reported_user_id = $1 OR moderator_id = $1`, u.ID)
		db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, u.ID)
	})
	return u
}

func createTestReport(t *testing.T, db *sql.DB, store *Store) (*Report, *user.User) {
	t.Helper()
	reporter := createTestUser(t, db, user.RoleUser)
	reported := createTestUser(t, db, user.RoleUser)
	mod := createTestUser(t, db, user.RoleModerator)

	r := &Report{
		ReporterID:     reporter.ID,
		ReportedUserID: reported.ID,
		Reason:         ReasonSpam,
		Detail:         "wirbt für einen anderen Dienst",
	}
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return r, mod
}

func TestCreateAndGet(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	r, _ := createTestReport(t, db, store)
	if r.ID == 0 {
		t.Fatal("Create() left ID unset")
	}
	if r.Status != StatusPending {
		t.Errorf("status = %q, want %q", r.Status, StatusPending)
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ReporterID != r.ReporterID || got.Reason != ReasonSpam || got.Status != StatusPending {
		t.Errorf("Get() = %+v, want the created report back", got)
	}
	if got.Appealed {
		t.Error("new report has appealed flag set")
	}

	if _, err := store.Get(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(-1) error = %v, want ErrNotFound", err)
	}
}

func TestMarkActionTakenClaimsOnce(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	r, mod := createTestReport(t, db, store)

	ok, err := store.MarkActionTaken(ctx, r.ID, mod.ID, "Verwarnung ausgesprochen")
	if err != nil {
		t.Fatalf("MarkActionTaken() error: %v", err)
	}
	if !ok {
		t.Fatal("first MarkActionTaken() = false")
	}

	// The report is claimed; a second resolution attempt must lose.
	ok, err = store.MarkActionTaken(ctx, r.ID, mod.ID, "Account gesperrt")
	if err != nil {
		t.Fatalf("MarkActionTaken() error: %v", err)
	}
	if ok {
		t.Error("second MarkActionTaken() = true, report resolved twice")
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusActionTaken {
		t.Errorf("status = %q, want %q", got.Status, StatusActionTaken)
	}
	if got.ActionTaken == nil || *got.ActionTaken != "Verwarnung ausgesprochen" {
		t.Errorf("action taken = %v, want the first moderator's text", got.ActionTaken)
	}
	if got.ModeratorID == nil || *got.ModeratorID != mod.ID {
		t.Errorf("moderator = %v, want %q", got.ModeratorID, mod.ID)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
}

func TestMarkAppealedLifecycle(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	r, mod := createTestReport(t, db, store)

	// Pending reports cannot be appealed.
	if ok, _ := store.MarkAppealed(ctx, r.ID, "bitte nochmal prüfen"); ok {
		t.Fatal("MarkAppealed() = true on a pending report")
	}

	if ok, _ := store.MarkRejected(ctx, r.ID, mod.ID, "kein Verstoß erkennbar"); !ok {
		t.Fatal("MarkRejected() = false on a pending report")
	}

	ok, err := store.MarkAppealed(ctx, r.ID, "bitte nochmal prüfen")
	if err != nil {
		t.Fatalf("MarkAppealed() error: %v", err)
	}
	if !ok {
		t.Fatal("MarkAppealed() = false on a rejected report")
	}

	got, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want %q after appeal", got.Status, StatusPending)
	}
	if !got.Appealed {
		t.Error("appealed flag not set")
	}
	if got.AppealReason == nil || *got.AppealReason != "bitte nochmal prüfen" {
		t.Errorf("appeal reason = %v, want the submitted text", got.AppealReason)
	}
	if got.RejectionReason == nil || *got.RejectionReason != "kein Verstoß erkennbar" {
		t.Errorf("rejection reason = %v, must be kept for the re-review", got.RejectionReason)
	}
	if got.ResolvedAt != nil {
		t.Error("resolved_at not cleared on appeal")
	}

	// A second rejection and appeal: the permanent flag blocks it.
	if ok, _ := store.MarkRejected(ctx, r.ID, mod.ID, "erneut abgelehnt"); !ok {
		t.Fatal("MarkRejected() = false on the re-opened report")
	}
	if ok, _ := store.MarkAppealed(ctx, r.ID, "noch einmal"); ok {
		t.Error("MarkAppealed() = true on an already-appealed report")
	}
}

func TestMarkReviewedClaimsOnce(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	r, mod := createTestReport(t, db, store)

	if ok, _ := store.MarkReviewed(ctx, r.ID, mod.ID, "Keine Maßnahme erforderlich"); !ok {
		t.Fatal("MarkReviewed() = false on a pending report")
	}
	if ok, _ := store.MarkRejected(ctx, r.ID, mod.ID, "zu spät"); ok {
		t.Error("MarkRejected() = true on an already-reviewed report")
	}

	got, _ := store.Get(ctx, r.ID)
	if got.Status != StatusReviewed {
		t.Errorf("status = %q, want %q", got.Status, StatusReviewed)
	}
}

func TestForReporter(t *testing.T) {
	db := testDB(t)
	store := NewStore(db)
	ctx := context.Background()

	reporter := createTestUser(t, db, user.RoleUser)
	first := createTestUser(t, db, user.RoleUser)
	second := createTestUser(t, db, user.RoleUser)

	for _, target := range []string{first.ID, second.ID} {
		r := &Report{ReporterID: reporter.ID, ReportedUserID: target, Reason: ReasonSpam}
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	got, err := store.ForReporter(ctx, reporter.ID, 10)
	if err != nil {
		t.Fatalf("ForReporter() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ForReporter() returned %d reports, want 2", len(got))
	}
	for _, r := range got {
		if r.ReporterID != reporter.ID {
			t.Errorf("foreign report in result: %+v", r)
		}
	}
}
