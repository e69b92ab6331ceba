package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t)
}

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now().UTC())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// Before returns true if t is before u
func (t Timestamp) Before(u Timestamp) bool {
	return time.Time(t).Before(time.Time(u))
}

// After returns true if t is after u
func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// Sub returns the duration t-u
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Time(t).Sub(time.Time(u))
}

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

// String returns RFC3339 representation
func (t Timestamp) String() string { return t.Time().Format(time.RFC3339) }

// TimeWindow bounds a log query or an investigation to a start/end range
type TimeWindow struct {
	Start Timestamp `json:"start"`
	End   Timestamp `json:"end"`
}

// NewTimeWindow creates a window, swapping bounds if given in reverse
func NewTimeWindow(start, end time.Time) TimeWindow {
	if start.After(end) {
		start, end = end, start
	}
	return TimeWindow{Start: NewTimestamp(start), End: NewTimestamp(end)}
}

// Duration returns the span of the window
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether ts falls within the window (inclusive)
func (w TimeWindow) Contains(ts Timestamp) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// IsZero checks if the window is unset
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s..%s", w.Start, w.End)
}

// ParseTimeWindow parses a relative window expression like "1h", "24h", "7d"
// into an absolute window ending now. An empty expression defaults to the
// last 24 hours.
func ParseTimeWindow(expr string, now time.Time) (TimeWindow, error) {
	end := now.UTC()
	expr = strings.TrimSpace(strings.ToLower(expr))
	if expr == "" {
		return NewTimeWindow(end.Add(-24*time.Hour), end), nil
	}

	unit := expr[len(expr)-1:]
	amount, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || amount <= 0 {
		return TimeWindow{}, fmt.Errorf("invalid time window %q", expr)
	}

	var span time.Duration
	switch unit {
	case "m":
		span = time.Duration(amount) * time.Minute
	case "h":
		span = time.Duration(amount) * time.Hour
	case "d":
		span = time.Duration(amount) * 24 * time.Hour
	case "w":
		span = time.Duration(amount) * 7 * 24 * time.Hour
	default:
		return TimeWindow{}, fmt.Errorf("invalid time window unit %q in %q", unit, expr)
	}

	return NewTimeWindow(end.Add(-span), end), nil
}
