package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay from hour, minute and second.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// TimeOfDayOf returns the wall-clock time of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04:05", "15:04"} {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return TimeOfDayOf(parsed), nil
		}
	}
	return 0, fmt.Errorf("parse time of day %q: want HH:MM", raw)
}

// Valid reports whether t lies within one day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < secondsPerDay
}

// String formats t as HH:MM, adding seconds only when present.
func (t TimeOfDay) String() string {
	h, m, s := int(t)/3600, (int(t)%3600)/60, int(t)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// IsWithinWindow reports whether now falls inside [start, end]. Both bounds
// are inclusive. When start is after end the window wraps past midnight.
func IsWithinWindow(now, start, end TimeOfDay) bool {
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}

// NotificationWindow is the daily span in which a holder accepts reminders.
type NotificationWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// DefaultNotificationWindow is used when a holder has not chosen hours.
var DefaultNotificationWindow = NotificationWindow{
	Start: NewTimeOfDay(9, 0, 0),
	End:   NewTimeOfDay(22, 0, 0),
}

// ParseNotificationWindow parses "HH:MM-HH:MM".
func ParseNotificationWindow(raw string) (NotificationWindow, error) {
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return NotificationWindow{}, fmt.Errorf("parse window %q: want HH:MM-HH:MM", raw)
	}
	start, err := ParseTimeOfDay(startRaw)
	if err != nil {
		return NotificationWindow{}, err
	}
	end, err := ParseTimeOfDay(endRaw)
	if err != nil {
		return NotificationWindow{}, err
	}
	return NotificationWindow{Start: start, End: end}, nil
}

// Contains reports whether instant, seen in loc, falls inside the window.
func (w NotificationWindow) Contains(instant time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return IsWithinWindow(TimeOfDayOf(instant.In(loc)), w.Start, w.End)
}

// Wraps reports whether the window crosses midnight.
func (w NotificationWindow) Wraps() bool {
	return w.Start > w.End
}

func (w NotificationWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}
