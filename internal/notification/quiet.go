package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

// ParseClock parses "HH:MM" in 24h form.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", s)
	}
	return ClockTime(h*60 + m), nil
}

// ClockOf returns t's time of day in t's own location.
func ClockOf(t time.Time) ClockTime { return ClockTime(t.Hour()*60 + t.Minute()) }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// Contains reports whether now falls in [Start, End). A window whose start is
// after its end spans midnight; equal bounds make an empty window.
// Unparseable bounds contain nothing.
func (q QuietHours) Contains(now ClockTime) bool {
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil {
		return false
	}
	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

// Allows reports whether a record of priority p may interrupt at now.
func (q QuietHours) Allows(now ClockTime, p Priority) bool {
	if !q.Enabled || !q.Contains(now) {
		return true
	}
	return q.AllowUrgent && p == PriorityUrgent
}
