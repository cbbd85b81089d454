package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eet = time.FixedZone("EET", 2*3600)

func local(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, eet)
}

func TestDailyTrigger_Next(t *testing.T) {
	trig, err := NewDailyTrigger("07:00", eet)
	require.NoError(t, err)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before today's time", local(2025, 3, 10, 6, 59), local(2025, 3, 10, 7, 0)},
		{"exactly at time", local(2025, 3, 10, 7, 0), local(2025, 3, 11, 7, 0)},
		{"after time", local(2025, 3, 10, 20, 0), local(2025, 3, 11, 7, 0)},
		{"utc input", time.Date(2025, 3, 10, 4, 30, 0, 0, time.UTC), local(2025, 3, 10, 7, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(trig.Next(tt.after)), "got %s", trig.Next(tt.after))
		})
	}
}

func TestWeeklyTrigger_Next(t *testing.T) {
	// 2025-03-10 is a Monday.
	trig, err := NewWeeklyTrigger(time.Monday, "09:00", eet)
	require.NoError(t, err)

	assert.True(t, local(2025, 3, 10, 9, 0).Equal(trig.Next(local(2025, 3, 10, 8, 0))))
	assert.True(t, local(2025, 3, 17, 9, 0).Equal(trig.Next(local(2025, 3, 10, 9, 0))))
	assert.True(t, local(2025, 3, 17, 9, 0).Equal(trig.Next(local(2025, 3, 12, 12, 0))))
	assert.True(t, local(2025, 3, 17, 9, 0).Equal(trig.Next(local(2025, 3, 16, 23, 59))))
}

func TestMonthlyTrigger_ClampsToMonthLength(t *testing.T) {
	trig, err := NewMonthlyTrigger(31, "10:00", eet)
	require.NoError(t, err)

	assert.True(t, local(2025, 2, 28, 10, 0).Equal(trig.Next(local(2025, 2, 1, 0, 0))))
	assert.True(t, local(2025, 3, 31, 10, 0).Equal(trig.Next(local(2025, 2, 28, 10, 0))))
	assert.True(t, local(2025, 4, 30, 10, 0).Equal(trig.Next(local(2025, 4, 1, 0, 0))))
	assert.True(t, local(2024, 2, 29, 10, 0).Equal(trig.Next(local(2024, 2, 10, 0, 0))))
}

func TestMonthlyTrigger_RollsIntoNextYear(t *testing.T) {
	trig, err := NewMonthlyTrigger(1, "10:00", eet)
	require.NoError(t, err)

	assert.True(t, local(2026, 1, 1, 10, 0).Equal(trig.Next(local(2025, 12, 1, 10, 0))))
}

func TestTriggers_RejectBadInput(t *testing.T) {
	_, err := NewDailyTrigger("7:00", eet)
	assert.Error(t, err)
	_, err = NewWeeklyTrigger(time.Friday, "25:00", eet)
	assert.Error(t, err)
	_, err = NewMonthlyTrigger(0, "10:00", eet)
	assert.Error(t, err)
	_, err = NewMonthlyTrigger(32, "10:00", eet)
	assert.Error(t, err)
}
