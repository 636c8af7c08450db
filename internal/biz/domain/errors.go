package domain

import "errors"

var (
	// ErrEmptyPayload is returned when a scheduled message has neither text nor media
	ErrEmptyPayload = errors.New("scheduled payload is empty")

	// ErrChannelNotFound is returned when the target chat is missing or inaccessible
	ErrChannelNotFound = errors.New("target channel not found")

	// ErrNotFound is returned when a row does not exist in the caller's scope
	ErrNotFound = errors.New("not found")

	// ErrRuleConflict is returned when a channel's purge rule belongs to another scope
	ErrRuleConflict = errors.New("channel already has a purge rule in another scope")

	// ErrInvalidMode is returned for an unknown purge mode
	ErrInvalidMode = errors.New("invalid purge mode")
)

// ValidationError represents a rejected field on create/update
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TruncateError renders err for storage in last_error
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		msg = "unknown error"
	}
	return truncateRunes(msg, MaxErrorLength)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
