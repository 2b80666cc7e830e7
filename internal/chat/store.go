// Package chat implements one-to-one chat delivery: conversation storage,
// the moderated send pipeline, read tracking, and typing state. Every
// outbound message passes the content classifier before it is persisted.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// previewLen caps the last-message preview stored on the chat row.
const previewLen = 50

// ErrNotFound is returned when a chat ID does not exist.
var ErrNotFound = errors.New("chat: not found")

// Chat is one conversation between two users. The pair is stored normalized
// (UserA < UserB) so each pair maps to exactly one row.
type Chat struct {
	ID          int64
	UserA       string
	UserB       string
	LastMessage string
	UnreadA     int
	UnreadB     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Partner returns the other participant, or "" when userID is not part of
// the chat.
func (c *Chat) Partner(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// Message is one chat message. Flagged marks borderline content for
// moderator review; Deleted hides the content without erasing it.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  string
	Content   string
	Flagged   bool
	Deleted   bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Summary is one entry in a user's chat list.
type Summary struct {
	ChatID      int64
	PartnerID   string
	PartnerName string
	LastMessage string
	Unread      int
	UpdatedAt   time.Time
}

// Store manages chats and messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a chat store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// normalizePair orders two user IDs so (a, b) and (b, a) address the same
// chat row.
func normalizePair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// EnsureChat returns the chat between two users, creating it when it does
// not exist yet. Safe under concurrent calls for the same pair.
func (s *Store) EnsureChat(ctx context.Context, a, b string) (*Chat, error) {
	userA, userB := normalizePair(a, b)

	c, err := s.getByPair(ctx, userA, userB)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat: ensure: %w", err)
	}

	const insert = `
		INSERT INTO chats (user_a, user_b)
		VALUES ($1, $2)
		ON CONFLICT (user_a, user_b) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, insert, userA, userB); err != nil {
		return nil, fmt.Errorf("chat: ensure: %w", err)
	}

	// A concurrent insert may have won the conflict; either way the row
	// exists now.
	c, err = s.getByPair(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("chat: ensure: %w", err)
	}
	return c, nil
}

func (s *Store) getByPair(ctx context.Context, userA, userB string) (*Chat, error) {
	const query = `
		SELECT id, user_a, user_b, last_message, unread_a, unread_b, created_at, updated_at
		FROM chats
		WHERE user_a = $1 AND user_b = $2`

	var c Chat
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&c.ID, &c.UserA, &c.UserB, &c.LastMessage,
		&c.UnreadA, &c.UnreadB, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get returns a chat by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Chat, error) {
	const query = `
		SELECT id, user_a, user_b, last_message, unread_a, unread_b, created_at, updated_at
		FROM chats
		WHERE id = $1`

	var c Chat
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.UserA, &c.UserB, &c.LastMessage,
		&c.UnreadA, &c.UnreadB, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get: %w", err)
	}
	return &c, nil
}

// SaveMessage persists a message and updates the chat row (preview,
// updated_at, recipient unread counter) in one transaction. Message IDs are
// serial, which fixes the per-chat ordering.
func (s *Store) SaveMessage(ctx context.Context, chatID int64, senderID, content string, flagged bool) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: save message: %w", err)
	}
	defer tx.Rollback()

	m := &Message{ChatID: chatID, SenderID: senderID, Content: content, Flagged: flagged}

	const insert = `
		INSERT INTO messages (chat_id, sender_id, content, flagged)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	if err := tx.QueryRowContext(ctx, insert, chatID, senderID, content, flagged).
		Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("chat: save message: %w", err)
	}

	const update = `
		UPDATE chats
		SET last_message = $2,
		    updated_at = NOW(),
		    unread_a = unread_a + CASE WHEN user_a <> $3 THEN 1 ELSE 0 END,
		    unread_b = unread_b + CASE WHEN user_b <> $3 THEN 1 ELSE 0 END
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, update, chatID, preview(content), senderID); err != nil {
		return nil, fmt.Errorf("chat: save message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("chat: save message: %w", err)
	}
	return m, nil
}

// preview truncates content to the stored last-message length, counting
// runes so multi-byte text is not cut mid-character.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen])
}

// Messages returns up to limit messages of a chat in ascending ID order.
// A non-zero beforeID pages backwards through history.
func (s *Store) Messages(ctx context.Context, chatID int64, limit int, beforeID int64) ([]Message, error) {
	const query = `
		SELECT id, chat_id, sender_id, content, flagged, deleted, read_at, created_at
		FROM messages
		WHERE chat_id = $1 AND ($2 = 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, chatID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content,
			&m.Flagged, &m.Deleted, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query runs newest-first for the LIMIT; callers want ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MarkMessageRead sets the read timestamp. Only the recipient qualifies;
// returns false when the message does not exist or userID is the sender or
// an outsider. Idempotent for repeated reads.
func (s *Store) MarkMessageRead(ctx context.Context, messageID int64, userID string) (bool, error) {
	const query = `
		UPDATE messages m
		SET read_at = COALESCE(m.read_at, NOW())
		FROM chats c
		WHERE m.id = $1
		  AND c.id = m.chat_id
		  AND m.sender_id <> $2
		  AND (c.user_a = $2 OR c.user_b = $2)`

	res, err := s.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("chat: mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chat: mark message read: %w", err)
	}
	return n == 1, nil
}

// MarkChatRead zeroes the caller's unread counter. Returns false when
// userID is not a participant.
func (s *Store) MarkChatRead(ctx context.Context, chatID int64, userID string) (bool, error) {
	const query = `
		UPDATE chats
		SET unread_a = CASE WHEN user_a = $2 THEN 0 ELSE unread_a END,
		    unread_b = CASE WHEN user_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1 AND (user_a = $2 OR user_b = $2)`

	res, err := s.db.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("chat: mark chat read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chat: mark chat read: %w", err)
	}
	return n == 1, nil
}

// SoftDelete hides a message's content. Only the sender may delete; returns
// false otherwise.
func (s *Store) SoftDelete(ctx context.Context, messageID int64, userID string) (bool, error) {
	const query = `UPDATE messages SET deleted = TRUE WHERE id = $1 AND sender_id = $2`

	res, err := s.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("chat: soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("chat: soft delete: %w", err)
	}
	return n == 1, nil
}

// ChatsForUser returns the user's chat list, most recently active first,
// with the partner's username and the caller's unread counter.
func (s *Store) ChatsForUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	const query = `
		SELECT c.id,
		       CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END,
		       u.username,
		       c.last_message,
		       CASE WHEN c.user_a = $1 THEN c.unread_a ELSE c.unread_b END,
		       c.updated_at
		FROM chats c
		JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY c.updated_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("chat: chats for user: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ChatID, &sm.PartnerID, &sm.PartnerName,
			&sm.LastMessage, &sm.Unread, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// TotalUnread returns the user's unread message count across all chats,
// for the badge counter.
func (s *Store) TotalUnread(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COALESCE(SUM(CASE WHEN user_a = $1 THEN unread_a ELSE unread_b END), 0)
		FROM chats
		WHERE user_a = $1 OR user_b = $1`

	var total int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("chat: total unread: %w", err)
	}
	return total, nil
}
