// Package report folds daily statistics into weekly and monthly digests.
package report

import (
	"context"
	"errors"
	"fmt"

	"powerwatch/internal/types"
)

// Window sizes, in days, of the periodic reports.
const (
	WeeklyWindowDays  = 7
	MonthlyWindowDays = 30
)

// ErrDigestEmpty is returned when the period has no statistics rows at all.
// Callers render a distinct "nothing to report" message for it.
var ErrDigestEmpty = errors.New("no statistics recorded for the period")

// StatisticsReader is the slice of the event store the reporter needs.
type StatisticsReader interface {
	ReadDailyStatistics(ctx context.Context, sinceDays int) ([]types.DailyStatistic, error)
}

// Rollup is the folded view over a window of daily statistics.
type Rollup struct {
	Kind         types.DigestKind `json:"kind"`
	WindowDays   int              `json:"window_days"`
	DaysWithData int              `json:"days_with_data"`

	TotalOutages     int `json:"total_outages"`
	PlannedOutages   int `json:"planned_outages"`
	EmergencyOutages int `json:"emergency_outages"`

	TotalDurationSeconds   int64 `json:"total_duration_seconds"`
	AverageDurationSeconds int64 `json:"average_duration_seconds"`
	LongestOutageSeconds   int64 `json:"longest_outage_seconds"`

	// WorstDay is the day with the most time without power. It is set
	// whenever the window has rows, even if every day is at zero.
	WorstDay *types.DailyStatistic `json:"worst_day,omitempty"`
}

// Reporter computes digests from the event store.
type Reporter struct {
	store StatisticsReader
}

// NewReporter creates a Reporter.
func NewReporter(store StatisticsReader) *Reporter {
	return &Reporter{store: store}
}

// WeeklyDigest folds the last seven days.
func (r *Reporter) WeeklyDigest(ctx context.Context) (*Rollup, error) {
	return r.Digest(ctx, types.DigestWeekly)
}

// MonthlyDigest folds the last thirty days.
func (r *Reporter) MonthlyDigest(ctx context.Context) (*Rollup, error) {
	return r.Digest(ctx, types.DigestMonthly)
}

// Digest folds the window belonging to kind. Daily is not a statistics digest.
func (r *Reporter) Digest(ctx context.Context, kind types.DigestKind) (*Rollup, error) {
	var window int
	switch kind {
	case types.DigestWeekly:
		window = WeeklyWindowDays
	case types.DigestMonthly:
		window = MonthlyWindowDays
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, fmt.Sprintf("%s is not a statistics digest", kind), nil)
	}

	rows, err := r.store.ReadDailyStatistics(ctx, window)
	if err != nil {
		return nil, err
	}
	return Fold(kind, window, rows)
}

// Fold aggregates rows, which are ordered most recent first. Ties for the
// worst day go to the earliest date.
func Fold(kind types.DigestKind, window int, rows []types.DailyStatistic) (*Rollup, error) {
	if len(rows) == 0 {
		return nil, ErrDigestEmpty
	}

	r := &Rollup{Kind: kind, WindowDays: window, DaysWithData: len(rows)}
	for i := range rows {
		row := rows[i]
		r.TotalOutages += row.TotalOutages
		r.PlannedOutages += row.PlannedOutages
		r.EmergencyOutages += row.EmergencyOutages
		r.TotalDurationSeconds += row.TotalOutageDurationSeconds
		if row.LongestOutageSeconds > r.LongestOutageSeconds {
			r.LongestOutageSeconds = row.LongestOutageSeconds
		}

		if r.WorstDay == nil ||
			row.TotalOutageDurationSeconds > r.WorstDay.TotalOutageDurationSeconds ||
			(row.TotalOutageDurationSeconds == r.WorstDay.TotalOutageDurationSeconds && row.Date.Before(r.WorstDay.Date)) {
			r.WorstDay = &rows[i]
		}
	}

	if r.TotalOutages > 0 {
		r.AverageDurationSeconds = r.TotalDurationSeconds / int64(r.TotalOutages)
	}
	return r, nil
}
