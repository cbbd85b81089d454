package types

import "time"

// PowerState is the last confirmed power state of the site.
type PowerState struct {
	IsPowered bool      `json:"is_powered"`
	Since     time.Time `json:"since"`
}

// PowerEvent is an immutable record of one confirmed transition.
// IsPlanned and ExpectedEndTime only carry meaning when IsPowered is false.
type PowerEvent struct {
	ID                           int64     `json:"id"`
	OccurredAt                   time.Time `json:"occurred_at"`
	IsPowered                    bool      `json:"is_powered"`
	PreviousStateDurationSeconds int64     `json:"previous_state_duration_seconds"`
	IsPlanned                    bool      `json:"is_planned"`
	ExpectedEndTime              *string   `json:"expected_end_time,omitempty"`
	ScheduleSnapshot             *string   `json:"schedule_snapshot,omitempty"`
}

// TransitionDetected is emitted by the monitor after an event is persisted.
type TransitionDetected struct {
	Event PowerEvent
}

// SlotKind distinguishes committed outages from advisory ones.
type SlotKind string

const (
	SlotDefinite SlotKind = "Definite"
	SlotOther    SlotKind = "Other"
)

// ScheduleSlot is a [Start, End) interval in minutes of a single day.
type ScheduleSlot struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Kind  SlotKind `json:"type"`
}

// Contains reports whether minute falls inside the slot.
func (s ScheduleSlot) Contains(minute int) bool {
	return s.Start <= minute && minute < s.End
}

// DaySchedule holds the slots published for one calendar day.
type DaySchedule struct {
	Date  time.Time      `json:"date"`
	Slots []ScheduleSlot `json:"slots"`
}

// DefiniteSlots returns the committed slots in document order.
func (d *DaySchedule) DefiniteSlots() []ScheduleSlot {
	if d == nil {
		return nil
	}
	out := make([]ScheduleSlot, 0, len(d.Slots))
	for _, s := range d.Slots {
		if s.Kind == SlotDefinite {
			out = append(out, s)
		}
	}
	return out
}

// ScheduleDocument is one fetched schedule for a group. Either day may be nil
// when the source did not publish it.
type ScheduleDocument struct {
	Group     string       `json:"group"`
	Today     *DaySchedule `json:"today,omitempty"`
	Tomorrow  *DaySchedule `json:"tomorrow,omitempty"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Day selects a sub-document of a ScheduleDocument.
type Day string

const (
	DayToday    Day = "today"
	DayTomorrow Day = "tomorrow"
)

// DailyStatistic is the aggregate row for one calendar day.
type DailyStatistic struct {
	Date                       time.Time `json:"date"`
	TotalOutages               int       `json:"total_outages"`
	PlannedOutages             int       `json:"planned_outages"`
	EmergencyOutages           int       `json:"emergency_outages"`
	TotalOutageDurationSeconds int64     `json:"total_outage_duration_seconds"`
	LongestOutageSeconds       int64     `json:"longest_outage_seconds"`
}

// StatusSnapshot answers "what is the power doing right now" without polling.
type StatusSnapshot struct {
	IsPowered         bool      `json:"is_powered"`
	Since             time.Time `json:"since"`
	DurationSeconds   int64     `json:"duration_seconds"`
	FormattedDuration string    `json:"formatted_duration"`
}

// DigestKind names the periodic reports.
type DigestKind string

const (
	DigestDaily   DigestKind = "daily"
	DigestWeekly  DigestKind = "weekly"
	DigestMonthly DigestKind = "monthly"
)

// Valid reports whether k is a known digest kind.
func (k DigestKind) Valid() bool {
	switch k {
	case DigestDaily, DigestWeekly, DigestMonthly:
		return true
	}
	return false
}
