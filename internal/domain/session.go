package domain

import "time"

// Session is a time interval during which one vehicle is associated
// with one meter — the sole bridge the analytics aggregator has
// between the AC and DC streams.
type Session struct {
	VehicleID string
	MeterID   string
	MappedAt  time.Time
	UnmappedAt *time.Time
	Active    bool
}

// Overlaps reports whether the session was active at any point during
// [windowStart, windowEnd]. Active alone is insufficient for historical
// windows that precede closure, so this checks the interval directly:
// mappedAt <= windowEnd AND (unmappedAt IS NULL OR unmappedAt >= windowStart).
func (s Session) Overlaps(windowStart, windowEnd time.Time) bool {
	if s.MappedAt.After(windowEnd) {
		return false
	}
	if s.UnmappedAt == nil {
		return true
	}
	return !s.UnmappedAt.Before(windowStart)
}
