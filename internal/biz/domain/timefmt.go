package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	unixTimeRe   = regexp.MustCompile(`^\d{10,13}$`)
	dayHourMinRe = regexp.MustCompile(`^(\d{1,3})/(\d{1,2})/(\d{1,2})$`)
	hourMinRe    = regexp.MustCompile(`^(\d{1,3})/(\d{1,2})$`)
	tokenFormRe  = regexp.MustCompile(`(?i)^(\d+\s*[dhms]\s*)+$`)
	tokenRe      = regexp.MustCompile(`(?i)(\d+)\s*([dhms])`)
	utcMinuteRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}$`)
	digitsRe     = regexp.MustCompile(`^\d+$`)
)

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseScheduleTime turns an operator supplied "when" into an absolute time.
//
// Accepted forms:
//   - unix seconds (10 digits) or milliseconds (13 digits)
//   - "dd/hh/mm" or "hh/mm" offsets from now
//   - token offsets from now such as "1d2h30m", "45m", "10s"
//   - "YYYY-MM-DD HH:MM" in UTC
//   - RFC3339 and a few ISO variants (UTC when no zone is given)
func ParseScheduleTime(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("when", "is required")
	}
	bad := invalid("when", "use ISO UTC, unix, dd/hh/mm, hh/mm, or token form like 1d2h30m")

	if unixTimeRe.MatchString(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, bad
		}
		if len(raw) == 13 {
			n /= 1000
		}
		return time.Unix(n, 0), nil
	}

	if m := dayHourMinRe.FindStringSubmatch(raw); m != nil {
		offset := atoi64(m[1])*86400 + atoi64(m[2])*3600 + atoi64(m[3])*60
		return offsetFrom(now, offset, bad)
	}
	if m := hourMinRe.FindStringSubmatch(raw); m != nil {
		offset := atoi64(m[1])*3600 + atoi64(m[2])*60
		return offsetFrom(now, offset, bad)
	}
	if tokenFormRe.MatchString(raw) {
		return offsetFrom(now, sumTokens(raw, false), bad)
	}

	if utcMinuteRe.MatchString(raw) {
		t, err := time.Parse("2006-01-02 15:04", strings.Join(strings.Fields(raw), " "))
		if err != nil {
			return time.Time{}, bad
		}
		return t, nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return time.Unix(t.Unix(), 0), nil
		}
	}
	return time.Time{}, bad
}

// ParseInterval parses a repeat/run interval in seconds: plain digits or token form ("1d2h")
func ParseInterval(raw string) (int64, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	bad := invalid("interval", "use seconds or token form like 1h30m")
	if raw == "" {
		return 0, bad
	}
	if digitsRe.MatchString(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return 0, bad
		}
		return n, nil
	}
	if tokenFormRe.MatchString(raw) {
		if total := sumTokens(raw, true); total > 0 {
			return total, nil
		}
	}
	return 0, bad
}

var unitSeconds = map[string]int64{
	"seconds": 1,
	"minutes": 60,
	"hours":   3600,
	"days":    86400,
}

// IntervalFromUnit converts "every N <unit>" into seconds
func IntervalFromUnit(every int64, unit string) (int64, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		unit = "minutes"
	}
	mult, ok := unitSeconds[unit]
	if !ok {
		return 0, invalid("unit", "use seconds, minutes, hours, or days")
	}
	if every < 1 {
		every = 1
	}
	return every * mult, nil
}

// FormatIntervalLabel renders an interval the way listings show it
func FormatIntervalLabel(seconds int64) string {
	switch {
	case seconds <= 0:
		return "one-time"
	case seconds%86400 == 0:
		return fmt.Sprintf("every %dd", seconds/86400)
	case seconds%3600 == 0:
		return fmt.Sprintf("every %dh", seconds/3600)
	case seconds%60 == 0:
		return fmt.Sprintf("every %dm", seconds/60)
	default:
		return fmt.Sprintf("every %ds", seconds)
	}
}

func offsetFrom(now time.Time, offset int64, bad error) (time.Time, error) {
	if offset <= 0 {
		return time.Time{}, bad
	}
	return time.Unix(now.Unix()+offset, 0), nil
}

// sumTokens adds up "<n><unit>" tokens. With strict set, a zero token voids the whole value.
func sumTokens(raw string, strict bool) int64 {
	var total int64
	for _, m := range tokenRe.FindAllStringSubmatch(raw, -1) {
		n := atoi64(m[1])
		if strict && n <= 0 {
			return 0
		}
		switch strings.ToLower(m[2]) {
		case "d":
			total += n * 86400
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
