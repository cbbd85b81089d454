package scheduler

import (
	"fmt"
	"time"
)

// Trigger yields the next firing instant strictly after a given time.
type Trigger interface {
	Next(after time.Time) time.Time
}

// parseTimeOfDay parses a "HH:MM" string into hour and minute components.
// The input must be exactly in HH:MM format (5 characters).
func parseTimeOfDay(s string) (int, int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	var hour, minute int
	n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil || n != 2 {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range [0,59]", minute)
	}
	return hour, minute, nil
}

// DailyTrigger fires every day at a local wall-clock time.
type DailyTrigger struct {
	hour, minute int
	loc          *time.Location
}

// NewDailyTrigger creates a DailyTrigger for "HH:MM" in loc.
func NewDailyTrigger(at string, loc *time.Location) (*DailyTrigger, error) {
	h, m, err := parseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	return &DailyTrigger{hour: h, minute: m, loc: orUTC(loc)}, nil
}

// Next returns the next occurrence of the time of day after the given time.
// time.Date normalizes DST gaps.
func (t *DailyTrigger) Next(after time.Time) time.Time {
	local := after.In(t.loc)
	c := time.Date(local.Year(), local.Month(), local.Day(), t.hour, t.minute, 0, 0, t.loc)
	if !c.After(after) {
		c = c.AddDate(0, 0, 1)
	}
	return c
}

// WeeklyTrigger fires on one weekday at a local wall-clock time.
type WeeklyTrigger struct {
	weekday      time.Weekday
	hour, minute int
	loc          *time.Location
}

// NewWeeklyTrigger creates a WeeklyTrigger.
func NewWeeklyTrigger(day time.Weekday, at string, loc *time.Location) (*WeeklyTrigger, error) {
	h, m, err := parseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	return &WeeklyTrigger{weekday: day, hour: h, minute: m, loc: orUTC(loc)}, nil
}

func (t *WeeklyTrigger) Next(after time.Time) time.Time {
	local := after.In(t.loc)
	ahead := (int(t.weekday) - int(local.Weekday()) + 7) % 7
	c := time.Date(local.Year(), local.Month(), local.Day()+ahead, t.hour, t.minute, 0, 0, t.loc)
	if !c.After(after) {
		c = c.AddDate(0, 0, 7)
	}
	return c
}

// MonthlyTrigger fires on one day of the month at a local wall-clock time.
// A day past the end of a short month fires on that month's last day.
type MonthlyTrigger struct {
	day          int
	hour, minute int
	loc          *time.Location
}

// NewMonthlyTrigger creates a MonthlyTrigger. day must be in [1, 31].
func NewMonthlyTrigger(day int, at string, loc *time.Location) (*MonthlyTrigger, error) {
	if day < 1 || day > 31 {
		return nil, fmt.Errorf("day of month %d out of range [1,31]", day)
	}
	h, m, err := parseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	return &MonthlyTrigger{day: day, hour: h, minute: m, loc: orUTC(loc)}, nil
}

func (t *MonthlyTrigger) Next(after time.Time) time.Time {
	local := after.In(t.loc)
	c := t.inMonth(local.Year(), local.Month())
	if !c.After(after) {
		first := time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, t.loc)
		c = t.inMonth(first.Year(), first.Month())
	}
	return c
}

func (t *MonthlyTrigger) inMonth(year int, month time.Month) time.Time {
	day := t.day
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.hour, t.minute, 0, 0, t.loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
