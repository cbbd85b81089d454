// Package notify owns outbound chat messages: formatting, the quiet-hours
// gate and the single dispatcher task that performs every send.
package notify

import (
	"fmt"
	"time"

	"powerwatch/internal/types"
)

// timeOfDay is a wall-clock time with minute precision.
type timeOfDay struct {
	hour   int
	minute int
}

func (t timeOfDay) toMinutes() int {
	return t.hour*60 + t.minute
}

// parseTimeOfDay parses a "HH:MM" string.
func parseTimeOfDay(s string) (timeOfDay, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}

// inWindow reports whether minute lies in [start, end). A window whose start
// is after its end wraps past midnight. start == end is an empty window.
func inWindow(minute int, start, end timeOfDay) bool {
	s, e := start.toMinutes(), end.toMinutes()
	if s <= e {
		return minute >= s && minute < e
	}
	return minute >= s || minute < e
}

// QuietHours decides whether a send happening now should be silent.
// It never suppresses a message.
type QuietHours struct {
	enabled  bool
	start    timeOfDay
	end      timeOfDay
	location *time.Location
	clock    types.Clock
}

// NewQuietHours builds the gate from "HH:MM" bounds evaluated in loc.
func NewQuietHours(enabled bool, start, end string, loc *time.Location, clock types.Clock) (*QuietHours, error) {
	s, err := parseTimeOfDay(start)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid quiet hours start", err)
	}
	e, err := parseTimeOfDay(end)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid quiet hours end", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &QuietHours{enabled: enabled, start: s, end: e, location: loc, clock: clock}, nil
}

// Contains reports whether t, in the gate's location, is inside the window.
func (q *QuietHours) Contains(t time.Time) bool {
	if q == nil || !q.enabled {
		return false
	}
	return inWindow(types.MinuteOfDay(t.In(q.location)), q.start, q.end)
}

// Silent reports whether a message sent at this moment should be silent.
func (q *QuietHours) Silent() bool {
	if q == nil {
		return false
	}
	return q.Contains(q.clock.Now())
}
