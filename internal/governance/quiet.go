package governance

import (
	"fmt"
	"time"
)

// QuietHours is a [start, end) local time-of-day window. A start after end
// spans midnight. Equal bounds disable the window.
type QuietHours struct {
	start, end int // minutes past midnight
}

// ParseQuietHours parses two HH:MM bounds.
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, err
	}
	return QuietHours{start: s, end: e}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuietHours, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Enabled reports whether the window is non-empty.
func (q QuietHours) Enabled() bool {
	return q.start != q.end
}

// Active reports whether t's wall clock falls inside the window. t is
// interpreted in its own location; callers pass local time.
func (q QuietHours) Active(t time.Time) bool {
	if !q.Enabled() {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if q.start < q.end {
		return m >= q.start && m < q.end
	}
	return m >= q.start || m < q.end
}

// String renders the window as HH:MM-HH:MM.
func (q QuietHours) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", q.start/60, q.start%60, q.end/60, q.end%60)
}
