package types

import (
	"fmt"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day.
const MinutesPerDay = 24 * 60

// FormatDuration renders whole seconds as "H h M m", or "M m" under an hour.
// Leftover seconds are truncated.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d h %d m", hours, minutes)
	}
	return fmt.Sprintf("%d m", minutes)
}

// FormatMinuteOfDay renders a minute-of-day as HH:MM. 1440 renders as "24:00".
func FormatMinuteOfDay(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// MinuteOfDay returns the minutes elapsed since midnight in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// SameDate reports whether a and b fall on the same calendar date in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
