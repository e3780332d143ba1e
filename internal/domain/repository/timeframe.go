package repository

import "time"

// Interval is a candle resolution accepted by the venue.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
	Interval1h Interval = "1h"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1m, Interval5m, Interval1h:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the evaluation granularity.
func DefaultInterval() Interval { return Interval1m }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Duration returns the length of one candle.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval5m:
		return 5 * time.Minute
	case Interval1h:
		return time.Hour
	default:
		return time.Minute
	}
}
