// Package protocol defines the JSON payloads exchanged over NATS: the
// request and reply types for the service RPC subjects and the event
// payloads published for real-time fan-out. Events carry a type
// discriminator in a consistent envelope; RPC subjects carry one request
// type each, so requests need no envelope.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published on the fan-out subjects.
const (
	EventMessage        = "message"
	EventTyping         = "typing"
	EventSanction       = "sanction"
	EventNotification   = "notification"
	EventReportResolved = "report_resolved"
)

// Envelope holds an event's type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// NewEvent creates a JSON-encoded event. The eventType is injected into the
// payload under the "type" key.
func NewEvent(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = eventType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal event: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Event payloads
// ---------------------------------------------------------------------------

// MessageEvent announces a delivered chat message to subscribers of the
// chat's event subject.
type MessageEvent struct {
	Type        string    `json:"type"`
	ChatID      int64     `json:"chat_id"`
	MessageID   int64     `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	Flagged     bool      `json:"flagged,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TypingEvent announces a typing signal in a chat.
type TypingEvent struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id"`
	UserID string `json:"user_id"`
}

// SanctionEvent announces an applied sanction on the moderation subject.
type SanctionEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// ---------------------------------------------------------------------------
// RPC requests
// ---------------------------------------------------------------------------

// SendMessageRequest delivers one chat message.
type SendMessageRequest struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// SendMessageReply carries the persisted message's identifiers.
type SendMessageReply struct {
	MessageID int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRequest pages through a chat's messages.
type HistoryRequest struct {
	ChatID   int64  `json:"chat_id"`
	UserID   string `json:"user_id"`
	Limit    int    `json:"limit"`
	BeforeID int64  `json:"before_id"`
}

// HistoryMessage is one message in a history reply.
type HistoryMessage struct {
	ID        int64      `json:"id"`
	SenderID  string     `json:"sender_id"`
	Content   string     `json:"content"`
	Deleted   bool       `json:"deleted,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryReply returns a chat's messages in ascending order.
type HistoryReply struct {
	Messages []HistoryMessage `json:"messages"`
}

// ChatListRequest fetches a user's chat list.
type ChatListRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

// ChatListEntry is one entry in a chat list reply.
type ChatListEntry struct {
	ChatID      int64     `json:"chat_id"`
	PartnerID   string    `json:"partner_id"`
	PartnerName string    `json:"partner_name"`
	LastMessage string    `json:"last_message"`
	Unread      int       `json:"unread"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatListReply returns the chat list plus the total unread badge count.
type ChatListReply struct {
	Chats       []ChatListEntry `json:"chats"`
	TotalUnread int             `json:"total_unread"`
}

// MarkReadRequest marks one message as read.
type MarkReadRequest struct {
	MessageID int64  `json:"message_id"`
	UserID    string `json:"user_id"`
}

// MarkChatReadRequest zeroes the caller's unread counter for a chat.
type MarkChatReadRequest struct {
	ChatID int64  `json:"chat_id"`
	UserID string `json:"user_id"`
}

// TypingRequest records a typing signal.
type TypingRequest struct {
	ChatID int64  `json:"chat_id"`
	UserID string `json:"user_id"`
}

// DeleteMessageRequest soft-deletes a message.
type DeleteMessageRequest struct {
	MessageID int64  `json:"message_id"`
	UserID    string `json:"user_id"`
}

// BlockRequest blocks or unblocks another user.
type BlockRequest struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
}

// FileReportRequest files a report against a user or message.
type FileReportRequest struct {
	ReporterID     string `json:"reporter_id"`
	ReportedUserID string `json:"reported_user_id"`
	MessageID      *int64 `json:"message_id,omitempty"`
	Reason         string `json:"reason"`
	Detail         string `json:"detail,omitempty"`
}

// FileReportReply returns the created report's ID.
type FileReportReply struct {
	ReportID int64 `json:"report_id"`
}

// ResolveReportRequest applies a moderator decision to a pending report.
type ResolveReportRequest struct {
	ReportID    int64  `json:"report_id"`
	ModeratorID string `json:"moderator_id"`
	Decision    string `json:"decision"`
	Detail      string `json:"detail,omitempty"`
}

// AppealRequest contests a rejected report.
type AppealRequest struct {
	ReportID   int64  `json:"report_id"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
}

// VetImageRequest checks an uploaded image. Data is base64 via the standard
// JSON []byte encoding.
type VetImageRequest struct {
	UserID string `json:"user_id"`
	Data   []byte `json:"data"`
}

// VetImageReply returns the vetting outcome.
type VetImageReply struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// SanctionRequest applies a moderator-initiated sanction.
type SanctionRequest struct {
	UserID      string `json:"user_id"`
	ModeratorID string `json:"moderator_id"`
	Action      string `json:"action"`
	Reason      string `json:"reason,omitempty"`
}

// SanctionReply returns the strike count after a strike action.
type SanctionReply struct {
	Strikes int `json:"strikes,omitempty"`
}

// QueueRequest lists open moderation queue entries.
type QueueRequest struct {
	ModeratorID string `json:"moderator_id"`
	Limit       int    `json:"limit"`
}

// LogRequest lists moderation log entries, optionally for one user.
type LogRequest struct {
	ModeratorID string `json:"moderator_id"`
	UserID      string `json:"user_id,omitempty"`
	Limit       int    `json:"limit"`
}

// QueueEntry is one open review-queue item in a queue reply.
type QueueEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	ReportID  int64     `json:"report_id"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueReply lists open review-queue items, high priority first.
type QueueReply struct {
	Entries []QueueEntry `json:"entries"`
}

// LogEntry is one moderation-log record in a log reply. Content, score,
// and classification are only ever sent to moderators.
type LogEntry struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	ModeratorID    *string   `json:"moderator_id,omitempty"`
	StrikesAfter   *int      `json:"strikes_after,omitempty"`
	Content        *string   `json:"content,omitempty"`
	Classification *string   `json:"classification,omitempty"`
	Score          *int      `json:"score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LogReply lists moderation-log records, newest first.
type LogReply struct {
	Entries []LogEntry `json:"entries"`
}

// ReportEntry is one report in a reports reply.
type ReportEntry struct {
	ID              int64      `json:"id"`
	ReporterID      string     `json:"reporter_id"`
	ReportedUserID  string     `json:"reported_user_id"`
	MessageID       *int64     `json:"message_id,omitempty"`
	Reason          string     `json:"reason"`
	Detail          string     `json:"detail,omitempty"`
	Status          string     `json:"status"`
	ActionTaken     *string    `json:"action_taken,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Appealed        bool       `json:"appealed,omitempty"`
	AppealReason    *string    `json:"appeal_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// ReportsReply lists pending reports with per-status counts for the
// dashboard.
type ReportsReply struct {
	Reports []ReportEntry  `json:"reports"`
	Counts  map[string]int `json:"counts"`
}
