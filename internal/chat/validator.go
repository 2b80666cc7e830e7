package chat

import "unicode/utf8"

const (
	// MaxMessageBytes caps the raw payload size.
	MaxMessageBytes = 4096

	// MaxTextChars caps the character count.
	MaxTextChars = 1000
)

// validateContent checks size and encoding of an already-trimmed message.
func validateContent(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes || utf8.RuneCountInString(text) > MaxTextChars {
		return ErrTooLong
	}
	if !utf8.ValidString(text) {
		return ErrInvalidEncoding
	}
	return nil
}
