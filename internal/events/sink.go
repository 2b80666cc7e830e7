package events

import (
	"log"

	"github.com/youthguard/chat-platform/internal/chat"
	"github.com/youthguard/chat-platform/internal/protocol"
)

// Sink adapts the NATS client to the event interfaces of the chat service
// and the sanction engine. Emission is fire-and-forget: failures are logged
// and never surface to the operation that produced the event.
type Sink struct {
	client *Client
}

// NewSink creates a sink on the given client.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// MessageSent publishes a delivered message to the chat's event subject.
func (s *Sink) MessageSent(chatID int64, recipientID string, m *chat.Message) {
	data, err := protocol.NewEvent(protocol.EventMessage, protocol.MessageEvent{
		ChatID:      chatID,
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		RecipientID: recipientID,
		Content:     m.Content,
		Flagged:     m.Flagged,
		CreatedAt:   m.CreatedAt,
	})
	if err != nil {
		log.Printf("[events] encode message event chat=%d: %v", chatID, err)
		return
	}
	if err := s.client.PublishChatEvent(chatID, data); err != nil {
		log.Printf("[events] publish message event chat=%d: %v", chatID, err)
	}
}

// Typing publishes a typing signal to the chat's event subject.
func (s *Sink) Typing(chatID int64, userID string) {
	data, err := protocol.NewEvent(protocol.EventTyping, protocol.TypingEvent{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		log.Printf("[events] encode typing event chat=%d: %v", chatID, err)
		return
	}
	if err := s.client.PublishChatEvent(chatID, data); err != nil {
		log.Printf("[events] publish typing event chat=%d: %v", chatID, err)
	}
}

// SanctionApplied publishes a sanction to the moderation subject and the
// affected user's notify subject.
func (s *Sink) SanctionApplied(userID, action, reason string) {
	data, err := protocol.NewEvent(protocol.EventSanction, protocol.SanctionEvent{
		UserID: userID,
		Action: action,
		Reason: reason,
	})
	if err != nil {
		log.Printf("[events] encode sanction event user=%s: %v", userID, err)
		return
	}
	if err := s.client.PublishModeration(data); err != nil {
		log.Printf("[events] publish sanction event user=%s: %v", userID, err)
	}
	if err := s.client.PublishUserNotify(userID, data); err != nil {
		log.Printf("[events] publish user notify user=%s: %v", userID, err)
	}
}
