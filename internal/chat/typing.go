package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// typingTTL is how long a typing signal stays visible without renewal.
const typingTTL = 5 * time.Second

// TypingState keeps ephemeral per-chat typing indicators in Redis. Keys
// expire on their own, so a client that stops sending signals simply
// disappears from the indicator.
type TypingState struct {
	rdb *redis.Client
}

// NewTypingState creates a typing-state store on the given Redis client.
func NewTypingState(rdb *redis.Client) *TypingState {
	return &TypingState{rdb: rdb}
}

func typingKey(chatID int64, userID string) string {
	return fmt.Sprintf("typing:%d:%s", chatID, userID)
}

// Set marks the user as typing in the chat for the TTL window.
func (t *TypingState) Set(ctx context.Context, chatID int64, userID string) error {
	if err := t.rdb.Set(ctx, typingKey(chatID, userID), "1", typingTTL).Err(); err != nil {
		return fmt.Errorf("chat: set typing: %w", err)
	}
	return nil
}

// Active reports whether the user is currently typing in the chat.
func (t *TypingState) Active(ctx context.Context, chatID int64, userID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, typingKey(chatID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("chat: typing lookup: %w", err)
	}
	return n == 1, nil
}

// Clear removes the typing signal, for clients that report explicitly.
func (t *TypingState) Clear(ctx context.Context, chatID int64, userID string) error {
	if err := t.rdb.Del(ctx, typingKey(chatID, userID)).Err(); err != nil {
		return fmt.Errorf("chat: clear typing: %w", err)
	}
	return nil
}
