package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/youthguard/chat-platform/internal/classifier"
	"github.com/youthguard/chat-platform/internal/metrics"
	"github.com/youthguard/chat-platform/internal/modlog"
	"github.com/youthguard/chat-platform/internal/user"
)

// BlockedNotice is the only thing a sender learns about a blocked message.
// Scores, matched terms, and the classification stay internal so the filter
// cannot be probed.
const BlockedNotice = "Diese Nachricht verstößt gegen unsere Regeln."

// DeletedPlaceholder replaces the content of soft-deleted messages in
// history responses.
const DeletedPlaceholder = "Nachricht gelöscht"

var (
	// ErrEmptyMessage is returned for empty or whitespace-only content.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrTooLong is returned when content exceeds the size limits.
	ErrTooLong = errors.New("chat: message too long")

	// ErrInvalidEncoding is returned for content that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("chat: invalid encoding")

	// ErrNotVerified is returned when the sender lacks parental verification.
	ErrNotVerified = errors.New("chat: sender not verified")

	// ErrBanned is returned when the sender's account is banned.
	ErrBanned = errors.New("chat: sender banned")

	// ErrBlocked is returned when either participant has blocked the other.
	ErrBlocked = errors.New("chat: user blocked")

	// ErrRateLimited is returned when the sender exceeds the message rate.
	ErrRateLimited = errors.New("chat: rate limited")

	// ErrNotParticipant is returned when the caller is not part of the chat.
	ErrNotParticipant = errors.New("chat: not a participant")

	// ErrNotSender is returned when someone other than the sender tries to
	// delete a message.
	ErrNotSender = errors.New("chat: not the sender")
)

// BlockedError rejects a message on moderation grounds. It carries only the
// user-safe notice.
type BlockedError struct {
	Notice string
}

func (e *BlockedError) Error() string { return e.Notice }

// Messages is the slice of the chat store the service needs.
type Messages interface {
	EnsureChat(ctx context.Context, a, b string) (*Chat, error)
	Get(ctx context.Context, id int64) (*Chat, error)
	SaveMessage(ctx context.Context, chatID int64, senderID, content string, flagged bool) (*Message, error)
	Messages(ctx context.Context, chatID int64, limit int, beforeID int64) ([]Message, error)
	MarkMessageRead(ctx context.Context, messageID int64, userID string) (bool, error)
	MarkChatRead(ctx context.Context, chatID int64, userID string) (bool, error)
	SoftDelete(ctx context.Context, messageID int64, userID string) (bool, error)
	ChatsForUser(ctx context.Context, userID string, limit int) ([]Summary, error)
	TotalUnread(ctx context.Context, userID string) (int, error)
}

// Users resolves accounts and block relations.
type Users interface {
	Get(ctx context.Context, id string) (*user.User, error)
	BlockedEither(ctx context.Context, a, b string) (bool, error)
}

// Limiter enforces the per-sender message rate.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuditLog appends moderation-log entries for flagged and blocked content.
type AuditLog interface {
	Append(ctx context.Context, e *modlog.Entry) error
}

// Sanctions issues automated strikes for blocked content.
type Sanctions interface {
	Strike(ctx context.Context, userID, reason string, moderatorID *string) (int, error)
}

// TypingSink stores ephemeral typing signals.
type TypingSink interface {
	Set(ctx context.Context, chatID int64, userID string) error
}

// EventSink receives chat events for real-time fan-out. Implementations
// handle their own delivery failures; the service treats emission as
// fire-and-forget.
type EventSink interface {
	MessageSent(chatID int64, recipientID string, m *Message)
	Typing(chatID int64, userID string)
}

type noopEvents struct{}

func (noopEvents) MessageSent(int64, string, *Message) {}
func (noopEvents) Typing(int64, string)                {}

// Service is the moderated chat delivery pipeline.
type Service struct {
	store    Messages
	users    Users
	limiter  Limiter
	classify *classifier.Classifier
	audit    AuditLog
	sanction Sanctions
	typing   TypingSink
	events   EventSink
}

// NewService wires the chat service. A nil events sink is replaced with a
// no-op implementation.
func NewService(store Messages, users Users, limiter Limiter, cls *classifier.Classifier,
	audit AuditLog, sanction Sanctions, typing TypingSink, events EventSink) *Service {
	if events == nil {
		events = noopEvents{}
	}
	return &Service{
		store:    store,
		users:    users,
		limiter:  limiter,
		classify: cls,
		audit:    audit,
		sanction: sanction,
		typing:   typing,
		events:   events,
	}
}

// Send runs the full delivery pipeline: sender gates, block check, rate
// limit, classification, persistence, event emission. A moderation block
// returns *BlockedError after striking the sender; nothing is persisted in
// that case.
func (s *Service) Send(ctx context.Context, senderID, recipientID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("chat: send: %w", err)
	}
	if sender.AccountStatus == user.StatusBanned {
		return nil, ErrBanned
	}
	if !sender.VerifiedParent {
		return nil, ErrNotVerified
	}
	if _, err := s.users.Get(ctx, recipientID); err != nil {
		return nil, fmt.Errorf("chat: send: recipient: %w", err)
	}

	blocked, err := s.users.BlockedEither(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("chat: send: %w", err)
	}
	if blocked {
		return nil, ErrBlocked
	}

	allowed, err := s.limiter.Allow(ctx, senderID)
	if err != nil {
		// Rate limiting is advisory; a Redis outage must not stop chat.
		log.Printf("[chat] rate limiter unavailable, allowing: %v", err)
	} else if !allowed {
		return nil, ErrRateLimited
	}

	start := time.Now()
	verdict := s.classify.Classify(content)
	metrics.ClassifyDuration.Observe(time.Since(start).Seconds())

	if verdict.Action != classifier.ActionAllow {
		s.logVerdict(ctx, senderID, content, verdict)
	}

	if verdict.Blocked() {
		if _, err := s.sanction.Strike(ctx, senderID, verdict.Reason, nil); err != nil {
			log.Printf("[chat] strike failed user=%s: %v", senderID, err)
		}
		metrics.MessagesTotal.WithLabelValues(string(classifier.ActionBlock)).Inc()
		return nil, &BlockedError{Notice: BlockedNotice}
	}

	c, err := s.store.EnsureChat(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	flagged := verdict.Action == classifier.ActionWarn
	m, err := s.store.SaveMessage(ctx, c.ID, senderID, content, flagged)
	if err != nil {
		return nil, err
	}

	s.events.MessageSent(c.ID, recipientID, m)
	metrics.MessagesTotal.WithLabelValues(string(verdict.Action)).Inc()
	return m, nil
}

// logVerdict records flagged or blocked content for moderator review.
// Best-effort: message handling proceeds even when the insert fails.
func (s *Service) logVerdict(ctx context.Context, senderID, content string, v classifier.Verdict) {
	cls := string(v.Classification)
	score := v.Score
	entry := &modlog.Entry{
		UserID:         senderID,
		Action:         modlog.ActionAutoBlock,
		Reason:         v.Reason,
		Content:        &content,
		Classification: &cls,
		Score:          &score,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Printf("[chat] audit append failed user=%s: %v", senderID, err)
	}
}

// History returns chat messages for a participant, ascending by ID.
// Soft-deleted messages keep their slot but show a placeholder.
func (s *Service) History(ctx context.Context, chatID int64, userID string, limit int, beforeID int64) ([]Message, error) {
	c, err := s.store.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.Partner(userID) == "" {
		return nil, ErrNotParticipant
	}

	msgs, err := s.store.Messages(ctx, chatID, limit, beforeID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Deleted {
			msgs[i].Content = DeletedPlaceholder
		}
	}
	return msgs, nil
}

// MarkRead marks one message read. Only the recipient may do this.
func (s *Service) MarkRead(ctx context.Context, messageID int64, userID string) error {
	ok, err := s.store.MarkMessageRead(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// MarkChatRead zeroes the caller's unread counter for the chat.
func (s *Service) MarkChatRead(ctx context.Context, chatID int64, userID string) error {
	ok, err := s.store.MarkChatRead(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, messageID int64, userID string) error {
	ok, err := s.store.SoftDelete(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotSender
	}
	return nil
}

// SetTyping records an ephemeral typing signal and fans it out.
func (s *Service) SetTyping(ctx context.Context, chatID int64, userID string) error {
	c, err := s.store.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if c.Partner(userID) == "" {
		return ErrNotParticipant
	}
	if err := s.typing.Set(ctx, chatID, userID); err != nil {
		return err
	}
	s.events.Typing(chatID, userID)
	return nil
}

// Chats returns the user's chat list.
func (s *Service) Chats(ctx context.Context, userID string, limit int) ([]Summary, error) {
	return s.store.ChatsForUser(ctx, userID, limit)
}

// TotalUnread returns the user's unread badge count.
func (s *Service) TotalUnread(ctx context.Context, userID string) (int, error) {
	return s.store.TotalUnread(ctx, userID)
}
