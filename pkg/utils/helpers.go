package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration parses a duration string like "5m" or "24h".
// An empty string yields fallback.
func ParseDuration(d string, fallback time.Duration) (time.Duration, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return fallback, nil
	}
	duration, err := time.ParseDuration(d)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", d, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", d)
	}
	return duration, nil
}

// ParseDate accepts "2006-01-02" or RFC 3339 and returns the time in UTC.
// An empty string yields fallback.
func ParseDate(s string, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}
