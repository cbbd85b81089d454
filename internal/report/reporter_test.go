package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/types"
)

type stubStats struct {
	rows      []types.DailyStatistic
	err       error
	sinceDays []int
}

func (s *stubStats) ReadDailyStatistics(_ context.Context, sinceDays int) ([]types.DailyStatistic, error) {
	s.sinceDays = append(s.sinceDays, sinceDays)
	return s.rows, s.err
}

func date(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

func TestWeeklyDigest_Folds(t *testing.T) {
	store := &stubStats{rows: []types.DailyStatistic{
		{Date: date(10), TotalOutages: 2, PlannedOutages: 1, EmergencyOutages: 1, TotalOutageDurationSeconds: 3600, LongestOutageSeconds: 2400},
		{Date: date(9), TotalOutages: 0},
		{Date: date(7), TotalOutages: 1, PlannedOutages: 1, TotalOutageDurationSeconds: 5400, LongestOutageSeconds: 5400},
	}}
	r := NewReporter(store)

	got, err := r.WeeklyDigest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{7}, store.sinceDays)
	assert.Equal(t, types.DigestWeekly, got.Kind)
	assert.Equal(t, 3, got.DaysWithData)
	assert.Equal(t, 3, got.TotalOutages)
	assert.Equal(t, 2, got.PlannedOutages)
	assert.Equal(t, 1, got.EmergencyOutages)
	assert.Equal(t, int64(9000), got.TotalDurationSeconds)
	assert.Equal(t, int64(3000), got.AverageDurationSeconds)
	assert.Equal(t, int64(5400), got.LongestOutageSeconds)
	require.NotNil(t, got.WorstDay)
	assert.Equal(t, date(7), got.WorstDay.Date)
}

func TestMonthlyDigest_UsesThirtyDays(t *testing.T) {
	store := &stubStats{rows: []types.DailyStatistic{{Date: date(1), TotalOutages: 1}}}

	_, err := NewReporter(store).MonthlyDigest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{30}, store.sinceDays)
}

func TestDigest_EmptyIsNoData(t *testing.T) {
	r := NewReporter(&stubStats{})

	got, err := r.WeeklyDigest(context.Background())

	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrDigestEmpty)
}

func TestDigest_StoreErrorPropagates(t *testing.T) {
	storeErr := types.NewAppError(types.ErrCodeStoreRead, "down", errors.New("eof"))
	r := NewReporter(&stubStats{err: storeErr})

	_, err := r.MonthlyDigest(context.Background())

	assert.True(t, types.IsStoreError(err))
	assert.NotErrorIs(t, err, ErrDigestEmpty)
}

func TestDigest_RejectsDaily(t *testing.T) {
	_, err := NewReporter(&stubStats{}).Digest(context.Background(), types.DigestDaily)
	assert.Equal(t, types.ErrCodeValidationInvalidInput, types.CodeOf(err))
}

func TestFold_AverageIsZeroWithoutOutages(t *testing.T) {
	got, err := Fold(types.DigestWeekly, 7, []types.DailyStatistic{
		{Date: date(10)},
		{Date: date(9), TotalOutageDurationSeconds: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, got.TotalOutages)
	assert.Equal(t, int64(0), got.AverageDurationSeconds)
	require.NotNil(t, got.WorstDay)
	assert.Equal(t, date(9), got.WorstDay.Date)
	assert.NotContains(t, Render(got), "Worst day")
}

func TestFold_ZeroDurationDaysStillTieToEarliest(t *testing.T) {
	got, err := Fold(types.DigestWeekly, 7, []types.DailyStatistic{
		{Date: date(10), TotalOutages: 2, EmergencyOutages: 2},
		{Date: date(9), TotalOutages: 1, EmergencyOutages: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalOutages)
	require.NotNil(t, got.WorstDay)
	assert.Equal(t, date(9), got.WorstDay.Date)
}

func TestFold_AverageTruncates(t *testing.T) {
	got, err := Fold(types.DigestWeekly, 7, []types.DailyStatistic{
		{Date: date(10), TotalOutages: 3, TotalOutageDurationSeconds: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(33), got.AverageDurationSeconds)
}

func TestFold_WorstDayTieGoesToEarliestDate(t *testing.T) {
	got, err := Fold(types.DigestWeekly, 7, []types.DailyStatistic{
		{Date: date(10), TotalOutages: 1, TotalOutageDurationSeconds: 600},
		{Date: date(8), TotalOutages: 1, TotalOutageDurationSeconds: 600},
		{Date: date(9), TotalOutages: 1, TotalOutageDurationSeconds: 300},
	})
	require.NoError(t, err)
	require.NotNil(t, got.WorstDay)
	assert.Equal(t, date(8), got.WorstDay.Date)
}

func TestRender(t *testing.T) {
	got, err := Fold(types.DigestWeekly, 7, []types.DailyStatistic{
		{Date: date(10), TotalOutages: 2, PlannedOutages: 1, EmergencyOutages: 1, TotalOutageDurationSeconds: 7800, LongestOutageSeconds: 6000},
	})
	require.NoError(t, err)

	out := Render(got)

	assert.Contains(t, out, "Weekly report (today and the previous 7 days)")
	assert.Contains(t, out, "Outages: 2")
	assert.Contains(t, out, "Planned: 1")
	assert.Contains(t, out, "Emergency: 1")
	assert.Contains(t, out, "Total without power: 2 h 10 m")
	assert.Contains(t, out, "Average outage: 1 h 5 m")
	assert.Contains(t, out, "Worst day: 10.03 (2 h 10 m)")
}

func TestRenderNoData_IsDistinct(t *testing.T) {
	out := RenderNoData(types.DigestMonthly, 30)

	assert.Contains(t, out, "Monthly report")
	assert.Contains(t, out, "Nothing to report")
	assert.NotContains(t, out, "Outages:")
	assert.Contains(t, out, "today and the previous 30 days")
}

func TestRenderToday_NilIsZero(t *testing.T) {
	assert.Equal(t, RenderToday(&types.DailyStatistic{}), RenderToday(nil))
	assert.Contains(t, RenderToday(nil), "Outages: 0 (planned 0, emergency 0)")
}
