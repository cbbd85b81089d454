package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerwatch/internal/types"
)

var t0 = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func TestTracker_FirstPollIsBaseline(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}}}
	tr := NewTracker(dev, clock)

	_, ok := tr.State()
	assert.False(t, ok, "state is unknown before the first poll")

	r, err := tr.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Baseline)
	assert.False(t, r.Changed)

	state, ok := tr.State()
	require.True(t, ok)
	assert.Equal(t, types.PowerState{IsPowered: true, Since: t0}, state)
}

func TestTracker_PollErrorLeavesStateUntouched(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{
		{on: true},
		{err: errors.New("timeout")},
		{on: true},
	}}
	tr := NewTracker(dev, clock)

	_, err := tr.Poll(context.Background())
	require.NoError(t, err)

	clock.Set(t0.Add(time.Minute))
	_, err = tr.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsPollError(err))

	r, err := tr.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Changed)
	state, _ := tr.State()
	assert.Equal(t, t0, state.Since)
}

func TestTracker_PreservesTypedPollError(t *testing.T) {
	dev := &scriptedDevice{readings: []devReading{{err: types.NewAppError(types.ErrCodePollMalformed, "no switch", nil)}}}
	tr := NewTracker(dev, newFakeClock(t0))

	_, err := tr.Poll(context.Background())

	assert.Equal(t, types.ErrCodePollMalformed, types.CodeOf(err))
}

func TestTracker_ChangeRequiresCommit(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}, {on: false}}}
	tr := NewTracker(dev, clock)

	_, _ = tr.Poll(context.Background())

	clock.Set(t0.Add(90 * time.Second))
	r, err := tr.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, int64(90), r.DurationSeconds)

	// Not committed: the same transition is reported again with a longer duration.
	clock.Set(t0.Add(120 * time.Second))
	r2, err := tr.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, r2.Changed)
	assert.Equal(t, int64(120), r2.DurationSeconds)

	tr.Commit(r2)
	state, _ := tr.State()
	assert.False(t, state.IsPowered)
	assert.Equal(t, t0.Add(120*time.Second), state.Since)
}

func TestTracker_StatusSnapshot(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: false}}}
	tr := NewTracker(dev, clock)

	_, ok := tr.StatusSnapshot()
	assert.False(t, ok)

	_, _ = tr.Poll(context.Background())
	clock.Set(t0.Add(2*time.Hour + 10*time.Minute + 59*time.Second))

	snap, ok := tr.StatusSnapshot()
	require.True(t, ok)
	assert.False(t, snap.IsPowered)
	assert.Equal(t, int64(7859), snap.DurationSeconds)
	assert.Equal(t, "2 h 10 m", snap.FormattedDuration)
}

func TestTracker_TransitionCountMatchesSignChanges(t *testing.T) {
	seq := []bool{false, false, true, false, false, true, true, true, false}
	readings := make([]devReading, len(seq))
	for i, v := range seq {
		readings[i] = devReading{on: v}
	}
	clock := newFakeClock(t0)
	tr := NewTracker(&scriptedDevice{readings: readings}, clock)

	transitions := 0
	for i := range seq {
		clock.Set(t0.Add(time.Duration(i) * time.Minute))
		r, err := tr.Poll(context.Background())
		require.NoError(t, err)
		if r.Changed {
			transitions++
			tr.Commit(r)
		}
	}

	signChanges := 0
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[i-1] {
			signChanges++
		}
	}
	assert.Equal(t, 4, signChanges)
	assert.Equal(t, signChanges, transitions)
}

func TestClassify(t *testing.T) {
	at := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, Classification{}, Classify(at, nil))

	c := Classify(at, &fakeSchedule{planned: true, end: ptr("12:00")})
	assert.True(t, c.IsPlanned)
	assert.Equal(t, "12:00", *c.ExpectedEnd)

	c = Classify(at, &fakeSchedule{planned: false, end: ptr("ignored")})
	assert.False(t, c.IsPlanned)
	assert.Nil(t, c.ExpectedEnd)
}
