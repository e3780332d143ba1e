package util

import (
	"fmt"
	"strings"
	"time"
)

// SignalTimeLayout is the literal layout of signal window bounds.
const SignalTimeLayout = "2006-01-02 15:04:05"

// ParseSignalTime parses a "YYYY-MM-DD HH:MM:SS" literal in loc and returns it in UTC.
func ParseSignalTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, fmt.Errorf("parse %q: time zone not configured", s)
	}
	t, err := time.ParseInLocation(SignalTimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	return t.UTC(), nil
}

// MinTime returns the earlier of a and b.
func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
