package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/youthguard/chat-platform/internal/classifier"
	"github.com/youthguard/chat-platform/internal/modlog"
	"github.com/youthguard/chat-platform/internal/user"
)

type fakeStore struct {
	chats    map[int64]*Chat
	messages []Message
	nextChat int64
	nextMsg  int64

	markReadOK     bool
	markChatReadOK bool
	softDeleteOK   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:          make(map[int64]*Chat),
		nextChat:       1,
		nextMsg:        1,
		markReadOK:     true,
		markChatReadOK: true,
		softDeleteOK:   true,
	}
}

func (f *fakeStore) EnsureChat(_ context.Context, a, b string) (*Chat, error) {
	userA, userB := normalizePair(a, b)
	for _, c := range f.chats {
		if c.UserA == userA && c.UserB == userB {
			return c, nil
		}
	}
	c := &Chat{ID: f.nextChat, UserA: userA, UserB: userB}
	f.nextChat++
	f.chats[c.ID] = c
	return c, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, chatID int64, senderID, content string, flagged bool) (*Message, error) {
	m := Message{
		ID: f.nextMsg, ChatID: chatID, SenderID: senderID,
		Content: content, Flagged: flagged, CreatedAt: time.Now(),
	}
	f.nextMsg++
	f.messages = append(f.messages, m)

	c := f.chats[chatID]
	c.LastMessage = preview(content)
	if c.UserA == senderID {
		c.UnreadB++
	} else {
		c.UnreadA++
	}
	return &m, nil
}

func (f *fakeStore) Messages(_ context.Context, chatID int64, _ int, _ int64) ([]Message, error) {
	var out []Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkMessageRead(context.Context, int64, string) (bool, error) {
	return f.markReadOK, nil
}

func (f *fakeStore) MarkChatRead(context.Context, int64, string) (bool, error) {
	return f.markChatReadOK, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, messageID int64, _ string) (bool, error) {
	if !f.softDeleteOK {
		return false, nil
	}
	for i := range f.messages {
		if f.messages[i].ID == messageID {
			f.messages[i].Deleted = true
		}
	}
	return true, nil
}

func (f *fakeStore) ChatsForUser(context.Context, string, int) ([]Summary, error) {
	return nil, nil
}

func (f *fakeStore) TotalUnread(context.Context, string) (int, error) {
	return 0, nil
}

type fakeUsers struct {
	users   map[string]*user.User
	blocked bool
}

func (f *fakeUsers) Get(_ context.Context, id string) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) BlockedEither(context.Context, string, string) (bool, error) {
	return f.blocked, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) {
	return f.allowed, f.err
}

type fakeAudit struct {
	entries []modlog.Entry
}

func (f *fakeAudit) Append(_ context.Context, e *modlog.Entry) error {
	f.entries = append(f.entries, *e)
	return nil
}

type strikeCall struct {
	userID      string
	reason      string
	moderatorID *string
}

type fakeSanctions struct {
	strikes []strikeCall
}

func (f *fakeSanctions) Strike(_ context.Context, userID, reason string, moderatorID *string) (int, error) {
	f.strikes = append(f.strikes, strikeCall{userID, reason, moderatorID})
	return len(f.strikes), nil
}

type fakeTyping struct {
	set int
}

func (f *fakeTyping) Set(context.Context, int64, string) error {
	f.set++
	return nil
}

type chatEvent struct {
	chatID int64
	kind   string
}

type fakeEvents struct {
	events []chatEvent
}

func (f *fakeEvents) MessageSent(chatID int64, _ string, _ *Message) {
	f.events = append(f.events, chatEvent{chatID, "message"})
}

func (f *fakeEvents) Typing(chatID int64, _ string) {
	f.events = append(f.events, chatEvent{chatID, "typing"})
}

func verified(id string) *user.User {
	return &user.User{ID: id, Username: id, Role: user.RoleUser,
		AccountStatus: user.StatusActive, VerifiedParent: true}
}

type serviceFixture struct {
	svc    *Service
	store  *fakeStore
	users  *fakeUsers
	limit  *fakeLimiter
	audit  *fakeAudit
	sanc   *fakeSanctions
	typing *fakeTyping
	events *fakeEvents
}

func newServiceFixture() *serviceFixture {
	fx := &serviceFixture{
		store: newFakeStore(),
		users: &fakeUsers{users: map[string]*user.User{
			"anna": verified("anna"),
			"ben":  verified("ben"),
		}},
		limit:  &fakeLimiter{allowed: true},
		audit:  &fakeAudit{},
		sanc:   &fakeSanctions{},
		typing: &fakeTyping{},
		events: &fakeEvents{},
	}
	fx.svc = NewService(fx.store, fx.users, fx.limit, classifier.New(),
		fx.audit, fx.sanc, fx.typing, fx.events)
	return fx
}

func TestSendDeliversCleanMessage(t *testing.T) {
	fx := newServiceFixture()

	m, err := fx.svc.Send(context.Background(), "anna", "ben", "Hey, wie war dein Tag?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if m.Flagged {
		t.Error("clean message was flagged")
	}
	if len(fx.store.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(fx.store.messages))
	}

	c := fx.store.chats[m.ChatID]
	if c.UnreadB != 1 && c.UnreadA != 1 {
		t.Error("recipient unread counter was not incremented")
	}
	if len(fx.events.events) != 1 || fx.events.events[0].kind != "message" {
		t.Errorf("events = %v, want one message event", fx.events.events)
	}
	if len(fx.sanc.strikes) != 0 {
		t.Error("clean message triggered a strike")
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*serviceFixture)
		content string
		wantErr error
	}{
		{
			name:    "empty message",
			content: "   ",
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "oversized message",
			content: strings.Repeat("a", MaxTextChars+1),
			wantErr: ErrTooLong,
		},
		{
			name:    "invalid encoding",
			content: "hallo \xff\xfe welt",
			wantErr: ErrInvalidEncoding,
		},
		{
			name: "unverified sender",
			setup: func(fx *serviceFixture) {
				fx.users.users["anna"].VerifiedParent = false
			},
			content: "hallo",
			wantErr: ErrNotVerified,
		},
		{
			name: "banned sender",
			setup: func(fx *serviceFixture) {
				fx.users.users["anna"].AccountStatus = user.StatusBanned
			},
			content: "hallo",
			wantErr: ErrBanned,
		},
		{
			name: "blocked pair",
			setup: func(fx *serviceFixture) {
				fx.users.blocked = true
			},
			content: "hallo",
			wantErr: ErrBlocked,
		},
		{
			name: "rate limited",
			setup: func(fx *serviceFixture) {
				fx.limit.allowed = false
			},
			content: "hallo",
			wantErr: ErrRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newServiceFixture()
			if tt.setup != nil {
				tt.setup(fx)
			}

			_, err := fx.svc.Send(context.Background(), "anna", "ben", tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if len(fx.store.messages) != 0 {
				t.Error("rejected message was persisted")
			}
		})
	}
}

func TestSendUnknownRecipient(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.svc.Send(context.Background(), "anna", "ghost", "hallo")
	if !errors.Is(err, user.ErrNotFound) {
		t.Errorf("Send() error = %v, want %v", err, user.ErrNotFound)
	}
}

func TestSendBlockedContent(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.svc.Send(context.Background(), "anna", "ben",
		"Schreib mir lieber auf whatsapp")

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Send() error = %v, want *BlockedError", err)
	}
	if blocked.Notice != BlockedNotice {
		t.Errorf("Notice = %q, want the generic notice", blocked.Notice)
	}
	if len(fx.store.messages) != 0 {
		t.Error("blocked message was persisted")
	}

	if len(fx.sanc.strikes) != 1 {
		t.Fatalf("strikes = %d, want 1", len(fx.sanc.strikes))
	}
	if fx.sanc.strikes[0].moderatorID != nil {
		t.Error("automated strike carried a moderator ID")
	}

	if len(fx.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(fx.audit.entries))
	}
	e := fx.audit.entries[0]
	if e.Action != modlog.ActionAutoBlock || e.Content == nil || e.Score == nil {
		t.Errorf("audit entry incomplete: %+v", e)
	}
}

func TestSendFlagsBorderlineContent(t *testing.T) {
	fx := newServiceFixture()

	m, err := fx.svc.Send(context.Background(), "anna", "ben",
		"folg mir auf @sommer_vibes")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !m.Flagged {
		t.Error("borderline message was not flagged")
	}
	if len(fx.audit.entries) != 1 {
		t.Errorf("audit entries = %d, want 1 for flagged content", len(fx.audit.entries))
	}
	if len(fx.sanc.strikes) != 0 {
		t.Error("flagged message triggered a strike")
	}
}

func TestSendLimiterFailsOpen(t *testing.T) {
	fx := newServiceFixture()
	fx.limit.err = errors.New("redis down")

	if _, err := fx.svc.Send(context.Background(), "anna", "ben", "hallo"); err != nil {
		t.Fatalf("Send() error = %v, want limiter outage to fail open", err)
	}
}

func TestHistoryHidesDeletedContent(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	m, err := fx.svc.Send(ctx, "anna", "ben", "das nehme ich zurück")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := fx.svc.DeleteMessage(ctx, m.ID, "anna"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}

	msgs, err := fx.svc.History(ctx, m.ChatID, "ben", 50, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("history has %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != DeletedPlaceholder {
		t.Errorf("deleted content shown as %q", msgs[0].Content)
	}
	if !msgs[0].Deleted {
		t.Error("message not marked deleted")
	}
}

func TestHistoryRequiresParticipant(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	m, err := fx.svc.Send(ctx, "anna", "ben", "hallo")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := fx.svc.History(ctx, m.ChatID, "eve", 50, 0); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("History() error = %v, want %v", err, ErrNotParticipant)
	}
}

func TestMarkReadRecipientOnly(t *testing.T) {
	fx := newServiceFixture()
	fx.store.markReadOK = false

	err := fx.svc.MarkRead(context.Background(), 1, "anna")
	if !errors.Is(err, ErrNotParticipant) {
		t.Errorf("MarkRead() error = %v, want %v", err, ErrNotParticipant)
	}
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	fx := newServiceFixture()
	fx.store.softDeleteOK = false

	err := fx.svc.DeleteMessage(context.Background(), 1, "ben")
	if !errors.Is(err, ErrNotSender) {
		t.Errorf("DeleteMessage() error = %v, want %v", err, ErrNotSender)
	}
}

func TestSetTyping(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	m, err := fx.svc.Send(ctx, "anna", "ben", "hallo")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := fx.svc.SetTyping(ctx, m.ChatID, "ben"); err != nil {
		t.Fatalf("SetTyping() error = %v", err)
	}
	if fx.typing.set != 1 {
		t.Error("typing signal was not stored")
	}

	if err := fx.svc.SetTyping(ctx, m.ChatID, "eve"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("SetTyping() error = %v, want %v", err, ErrNotParticipant)
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "ä"
	}

	got := preview(long)
	if len([]rune(got)) != previewLen {
		t.Errorf("preview length = %d runes, want %d", len([]rune(got)), previewLen)
	}

	short := "kurz"
	if preview(short) != short {
		t.Errorf("preview(%q) = %q", short, preview(short))
	}
}
