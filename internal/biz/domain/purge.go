package domain

import (
	"strings"
	"time"
)

// PurgeMode selects which messages a purge removes
type PurgeMode string

const (
	PurgeModeAll      PurgeMode = "all"      // Every message
	PurgeModeMedia    PurgeMode = "media"    // Messages carrying attachments
	PurgeModeNonAdmin PurgeMode = "nonadmin" // Messages from authors without chat admin rights
)

const (
	MinPurgeInterval       = 5 * time.Second
	MaxPurgeInterval       = 30 * 24 * time.Hour
	MaxScanLimit           = 1000
	DefaultRuleScanLimit   = 200
	DefaultManualScanLimit = 100

	// Platform limits
	PurgePageLimit  = 100
	BulkRemoveLimit = 100
	PurgeAgeLimit   = 14 * 24 * time.Hour
)

// ParsePurgeMode validates a mode string
func ParsePurgeMode(s string) (PurgeMode, error) {
	switch m := PurgeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case PurgeModeAll, PurgeModeMedia, PurgeModeNonAdmin:
		return m, nil
	case "":
		return PurgeModeAll, nil
	default:
		return "", ErrInvalidMode
	}
}

// Valid checks whether the mode is known
func (m PurgeMode) Valid() bool {
	switch m {
	case PurgeModeAll, PurgeModeMedia, PurgeModeNonAdmin:
		return true
	}
	return false
}

// PurgeRule is a recurring cleanup of one chat
type PurgeRule struct {
	ID              int64     `json:"id"`
	ScopeID         string    `json:"scope_id"`
	ChannelID       string    `json:"channel_id"` // Unique across rules
	Mode            PurgeMode `json:"mode"`
	IntervalSeconds int64     `json:"interval_seconds"`
	ScanLimit       int       `json:"scan_limit"`
	NextRunAt       time.Time `json:"next_run_at"`
	Active          bool      `json:"active"`
	LastError       string    `json:"last_error"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PurgeRuleInput carries the operator's request to create or replace a rule
type PurgeRuleInput struct {
	ScopeID         string
	ChannelID       string
	Mode            string
	IntervalSeconds int64
	ScanLimit       int
	CreatedBy       string
}

// NewPurgeRule validates the input. The first run is one interval from now.
func NewPurgeRule(in PurgeRuleInput, now time.Time) (*PurgeRule, error) {
	if strings.TrimSpace(in.ScopeID) == "" {
		return nil, invalid("scope_id", "is required")
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		return nil, invalid("channel_id", "is required")
	}
	mode, err := ParsePurgeMode(in.Mode)
	if err != nil {
		return nil, invalid("mode", "use all, media, or nonadmin")
	}
	interval := time.Duration(in.IntervalSeconds) * time.Second
	if interval < MinPurgeInterval {
		return nil, invalid("interval_seconds", "minimum interval is 5 seconds")
	}
	if interval > MaxPurgeInterval {
		return nil, invalid("interval_seconds", "maximum interval is 30 days")
	}

	return &PurgeRule{
		ScopeID:         in.ScopeID,
		ChannelID:       in.ChannelID,
		Mode:            mode,
		IntervalSeconds: in.IntervalSeconds,
		ScanLimit:       ClampScanLimit(in.ScanLimit, DefaultRuleScanLimit),
		NextRunAt:       time.Unix(now.Unix()+in.IntervalSeconds, 0),
		Active:          true,
		CreatedBy:       in.CreatedBy,
	}, nil
}

// Interval returns the rule's run interval
func (r *PurgeRule) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// NextRunFrom returns when the rule should run again after an attempt at now
func (r *PurgeRule) NextRunFrom(now time.Time) time.Time {
	step := r.IntervalSeconds
	if step < 1 {
		step = 1
	}
	return time.Unix(now.Unix()+step, 0)
}

// ClampScanLimit bounds n to [1, MaxScanLimit], using fallback when n is unset
func ClampScanLimit(n, fallback int) int {
	if n == 0 {
		n = fallback
	}
	if n < 1 {
		return 1
	}
	if n > MaxScanLimit {
		return MaxScanLimit
	}
	return n
}

// PurgeResult summarizes one purge pass
type PurgeResult struct {
	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
	Deleted int `json:"deleted"`
	TooOld  int `json:"too_old"`
}
