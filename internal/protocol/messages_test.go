package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/youthguard/chat-platform/internal/chat"
	"github.com/youthguard/chat-platform/internal/report"
	"github.com/youthguard/chat-platform/internal/sanction"
	"github.com/youthguard/chat-platform/internal/user"
)

func TestEnvelopeExtractsType(t *testing.T) {
	input := []byte(`{"type":"typing","chat_id":7,"user_id":"anna"}`)

	var env Envelope
	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != EventTyping {
		t.Fatalf("expected type %q, got %q", EventTyping, env.Type)
	}

	var ev TypingEvent
	if err := json.Unmarshal(env.Raw, &ev); err != nil {
		t.Fatalf("decoding deferred payload: %v", err)
	}
	if ev.ChatID != 7 || ev.UserID != "anna" {
		t.Errorf("payload = %+v", ev)
	}
}

func TestEnvelopeMissingType(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{"chat_id":7}`), &env); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestNewEventInjectsType(t *testing.T) {
	data, err := NewEvent(EventSanction, SanctionEvent{UserID: "u1", Action: "ban"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["type"] != EventSanction {
		t.Errorf("type = %v, want %q", m["type"], EventSanction)
	}
	if m["user_id"] != "u1" || m["action"] != "ban" {
		t.Errorf("payload = %v", m)
	}
}

func TestReplyRoundTrip(t *testing.T) {
	data := OKReply(SendMessageReply{MessageID: 12, ChatID: 3})

	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !r.OK || r.Error != nil {
		t.Fatalf("reply = %+v, want ok", r)
	}

	var payload SendMessageReply
	if err := json.Unmarshal(r.Data, &payload); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if payload.MessageID != 12 || payload.ChatID != 3 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestErrReply(t *testing.T) {
	data := ErrReply(CodeRateLimited, "zu viele Nachrichten")

	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if r.OK || r.Error == nil {
		t.Fatalf("reply = %+v, want error", r)
	}
	if r.Error.Code != CodeRateLimited {
		t.Errorf("code = %q, want %q", r.Error.Code, CodeRateLimited)
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{chat.ErrEmptyMessage, CodeEmptyMessage},
		{chat.ErrNotVerified, CodeNotVerified},
		{chat.ErrBanned, CodeBanned},
		{chat.ErrRateLimited, CodeRateLimited},
		{chat.ErrNotSender, CodeNotSender},
		{&chat.BlockedError{Notice: chat.BlockedNotice}, CodeModerationBlocked},
		{report.ErrSelfReport, CodeSelfReport},
		{report.ErrAlreadyAppealed, CodeAlreadyAppealed},
		{sanction.ErrPermission, CodePermission},
		{user.ErrNotFound, CodeNotFound},
		{fmt.Errorf("chat: send: %w", user.ErrNotFound), CodeNotFound},
		{errors.New("disk on fire"), CodeInternal},
	}

	for _, tt := range tests {
		if got := CodeFor(tt.err); got != tt.want {
			t.Errorf("CodeFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFailReplyHidesInternalDetail(t *testing.T) {
	data := FailReply(errors.New("pq: connection refused"))

	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if r.Error == nil || r.Error.Code != CodeInternal {
		t.Fatalf("reply = %+v, want internal error", r)
	}
	if r.Error.Message != "internal error" {
		t.Errorf("internal detail leaked: %q", r.Error.Message)
	}
}
