package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/youthguard/chat-platform/internal/chat"
	"github.com/youthguard/chat-platform/internal/report"
	"github.com/youthguard/chat-platform/internal/sanction"
	"github.com/youthguard/chat-platform/internal/user"
)

// Error codes returned on RPC replies.
const (
	CodeEmptyMessage      = "empty_message"
	CodeTooLong           = "message_too_long"
	CodeInvalidEncoding   = "invalid_encoding"
	CodeNotVerified       = "not_verified"
	CodeBanned            = "banned"
	CodeBlocked           = "blocked"
	CodeRateLimited       = "rate_limited"
	CodeModerationBlocked = "moderation_blocked"
	CodeNotParticipant    = "not_participant"
	CodeNotSender         = "not_sender"
	CodePermission        = "permission_denied"
	CodeSelfReport        = "self_report"
	CodeInvalidReason     = "invalid_reason"
	CodeInvalidDecision   = "invalid_decision"
	CodeNotPending        = "not_pending"
	CodeNotRejected       = "not_rejected"
	CodeAlreadyAppealed   = "already_appealed"
	CodeNotBanned         = "not_banned"
	CodeNotRestricted     = "not_restricted"
	CodeNotFound          = "not_found"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrorBody carries a machine-readable code and a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Reply is the uniform RPC response wrapper. Exactly one of Error and Data
// is meaningful, selected by OK.
type Reply struct {
	OK    bool            `json:"ok"`
	Error *ErrorBody      `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OKReply encodes a successful reply with the given payload. A nil payload
// yields an empty data field.
func OKReply(payload interface{}) []byte {
	r := Reply{OK: true}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return ErrReply(CodeInternal, fmt.Sprintf("encode reply: %v", err))
		}
		r.Data = data
	}
	out, _ := json.Marshal(r)
	return out
}

// ErrReply encodes a failed reply.
func ErrReply(code, message string) []byte {
	out, _ := json.Marshal(Reply{OK: false, Error: &ErrorBody{Code: code, Message: message}})
	return out
}

// FailReply encodes a failed reply from a Go error, mapping known sentinels
// to their codes. Internal errors are reported with a generic message so
// store details do not leak to clients.
func FailReply(err error) []byte {
	code := CodeFor(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return ErrReply(code, msg)
}

var sentinelCodes = []struct {
	err  error
	code string
}{
	{chat.ErrEmptyMessage, CodeEmptyMessage},
	{chat.ErrTooLong, CodeTooLong},
	{chat.ErrInvalidEncoding, CodeInvalidEncoding},
	{chat.ErrNotVerified, CodeNotVerified},
	{chat.ErrBanned, CodeBanned},
	{chat.ErrBlocked, CodeBlocked},
	{chat.ErrRateLimited, CodeRateLimited},
	{chat.ErrNotParticipant, CodeNotParticipant},
	{chat.ErrNotSender, CodeNotSender},
	{chat.ErrNotFound, CodeNotFound},
	{report.ErrSelfReport, CodeSelfReport},
	{report.ErrInvalidReason, CodeInvalidReason},
	{report.ErrInvalidDecision, CodeInvalidDecision},
	{report.ErrNotPending, CodeNotPending},
	{report.ErrNotRejected, CodeNotRejected},
	{report.ErrAlreadyAppealed, CodeAlreadyAppealed},
	{report.ErrPermission, CodePermission},
	{report.ErrNotFound, CodeNotFound},
	{sanction.ErrPermission, CodePermission},
	{sanction.ErrNotBanned, CodeNotBanned},
	{sanction.ErrNotRestricted, CodeNotRestricted},
	{user.ErrNotFound, CodeNotFound},
}

// CodeFor maps an error to its RPC code. A moderation block and the
// validation sentinels each have a fixed code; everything else is internal.
func CodeFor(err error) string {
	var blocked *chat.BlockedError
	if errors.As(err, &blocked) {
		return CodeModerationBlocked
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return CodeInternal
}
