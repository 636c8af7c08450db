package domain

import (
	"net/url"
	"strings"
	"time"
)

const (
	MaxContentLength  = 1900
	MaxMediaItems     = 10
	MaxErrorLength    = 240
	MaxRepeatInterval = 30 * 24 * time.Hour
	MinLeadTime       = 5 * time.Second  // A new message must be due later than now+MinLeadTime
	RetryDelay        = 60 * time.Second // Failed sends are retried after this delay
	ResumeGrace       = 15 * time.Second // Resumed rows never fire sooner than this
)

// ScheduledMessage is a deferred or repeating outbound message
type ScheduledMessage struct {
	ID              int64     `json:"id"`
	ScopeID         string    `json:"scope_id"`
	ChannelID       string    `json:"channel_id"`
	Content         string    `json:"content"`
	Media           []string  `json:"media"`
	DueAt           time.Time `json:"due_at"`
	IntervalSeconds int64     `json:"interval_seconds"` // 0 = one-shot
	Active          bool      `json:"active"`
	LastError       string    `json:"last_error"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ScheduledMessageInput carries the operator's request to schedule a message
type ScheduledMessageInput struct {
	ScopeID         string
	ChannelID       string
	Content         string
	Media           []string
	DueAt           time.Time
	IntervalSeconds int64
	CreatedBy       string
}

// NewScheduledMessage validates the input and builds an active row
func NewScheduledMessage(in ScheduledMessageInput, now time.Time) (*ScheduledMessage, error) {
	if strings.TrimSpace(in.ScopeID) == "" {
		return nil, invalid("scope_id", "is required")
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, invalid("channel_id", "is required")
	}

	content := truncateRunes(strings.TrimSpace(in.Content), MaxContentLength)
	media := FilterMediaURLs(in.Media)
	if content == "" && len(media) == 0 {
		return nil, ErrEmptyPayload
	}

	if in.DueAt.IsZero() {
		return nil, invalid("due_at", "is required")
	}
	if !in.DueAt.After(now.Add(MinLeadTime)) {
		return nil, invalid("due_at", "must be in the future")
	}
	if in.IntervalSeconds < 0 {
		return nil, invalid("interval_seconds", "must not be negative")
	}
	if time.Duration(in.IntervalSeconds)*time.Second > MaxRepeatInterval {
		return nil, invalid("interval_seconds", "max is 30 days")
	}

	return &ScheduledMessage{
		ScopeID:         in.ScopeID,
		ChannelID:       in.ChannelID,
		Content:         content,
		Media:           media,
		DueAt:           time.Unix(in.DueAt.Unix(), 0),
		IntervalSeconds: in.IntervalSeconds,
		Active:          true,
		CreatedBy:       in.CreatedBy,
	}, nil
}

// Payload returns what should be sent when the row fires
func (m *ScheduledMessage) Payload() Payload {
	media := m.Media
	if len(media) > MaxMediaItems {
		media = media[:MaxMediaItems]
	}
	return Payload{
		Text:  truncateRunes(strings.TrimSpace(m.Content), MaxContentLength),
		Media: media,
	}
}

// IsRepeating reports whether the row reschedules itself after a successful send
func (m *ScheduledMessage) IsRepeating() bool {
	return m.IntervalSeconds > 0
}

// NextDueAfter returns the drift-corrected next due time for a repeating row
func (m *ScheduledMessage) NextDueAfter(now time.Time) time.Time {
	return NextDueAt(m.DueAt, time.Duration(m.IntervalSeconds)*time.Second, now)
}

// NextDueAt returns the smallest due+k*interval (k >= 1) strictly after now.
// Missed ticks collapse into a single catch-up run and the phase of due is kept.
func NextDueAt(due time.Time, interval time.Duration, now time.Time) time.Time {
	step := int64(interval / time.Second)
	if step <= 0 {
		return time.Time{}
	}
	next := due.Unix() + step
	if n := now.Unix(); next <= n {
		next += ((n-next)/step + 1) * step
	}
	return time.Unix(next, 0)
}

// FilterMediaURLs keeps absolute http(s) URLs, capped at MaxMediaItems
func FilterMediaURLs(in []string) []string {
	var out []string
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		out = append(out, u.String())
		if len(out) == MaxMediaItems {
			break
		}
	}
	return out
}

// ParseMediaURLs splits a comma/whitespace separated list of URLs
func ParseMediaURLs(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	return FilterMediaURLs(parts)
}
