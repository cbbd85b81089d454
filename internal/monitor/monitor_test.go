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

func newTestMonitor(dev *scriptedDevice, clock *fakeClock, store *fakeStore, sched ScheduleSource, out chan types.TransitionDetected) *Monitor {
	cfg := Config{
		Tracker:     NewTracker(dev, clock),
		Store:       store,
		Transitions: out,
	}
	if sched != nil {
		cfg.Schedule = sched
	}
	return New(cfg)
}

func TestMonitor_ReadingScenario(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{
		clock: clock,
		base:  t0,
		readings: []devReading{
			{on: true}, {on: true}, {on: false}, {on: false}, {on: true},
		},
		offsets: []int{0, 5, 5, 10, 40},
	}
	store := &fakeStore{}
	out := make(chan types.TransitionDetected, 10)
	m := newTestMonitor(dev, clock, store, nil, out)

	for i := 0; i < 5; i++ {
		_, err := m.Step(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, store.events, 2)

	lost := store.events[0]
	assert.False(t, lost.IsPowered)
	assert.Equal(t, int64(5), lost.PreviousStateDurationSeconds)
	assert.False(t, lost.IsPlanned)
	assert.Equal(t, t0.Add(5*time.Second), lost.OccurredAt)

	restored := store.events[1]
	assert.True(t, restored.IsPowered)
	assert.Equal(t, int64(35), restored.PreviousStateDurationSeconds)
	assert.False(t, restored.IsPlanned)
	assert.Nil(t, restored.ExpectedEndTime)

	require.Len(t, out, 2)
	first := <-out
	assert.Equal(t, int64(1), first.Event.ID)
	assert.False(t, first.Event.IsPowered)

	// Baseline plus one upsert per transition.
	require.Len(t, store.upserts, 3)
	assert.Equal(t, upsertCall{true, t0.Add(40 * time.Second)}, store.upserts[2])
}

func TestMonitor_PlannedOutage(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}}}
	store := &fakeStore{}
	sched := &fakeSchedule{planned: true, end: ptr("12:00")}
	m := newTestMonitor(dev, clock, store, sched, nil)

	_, _ = m.Step(context.Background())
	clock.Set(t0.Add(30 * time.Minute))
	event, err := m.Step(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.True(t, event.IsPlanned)
	assert.Equal(t, "12:00", *event.ExpectedEndTime)
	assert.Equal(t, "snapshot", *event.ScheduleSnapshot)
	assert.Equal(t, 1, sched.refreshes)
	assert.Equal(t, []time.Time{t0.Add(30 * time.Minute)}, sched.lookedUpAt)
}

func TestMonitor_RefreshFailureFallsBackToCache(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}}}
	store := &fakeStore{}
	sched := &fakeSchedule{planned: true, end: ptr("14:00"), refreshErr: errors.New("down")}
	m := newTestMonitor(dev, clock, store, sched, nil)

	_, _ = m.Step(context.Background())
	event, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.True(t, event.IsPlanned)
}

func TestMonitor_RestorationIsNeverClassified(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: false}, {on: true}}}
	store := &fakeStore{}
	sched := &fakeSchedule{planned: true, end: ptr("12:00")}
	m := newTestMonitor(dev, clock, store, sched, nil)

	_, _ = m.Step(context.Background())
	event, err := m.Step(context.Background())
	require.NoError(t, err)

	assert.True(t, event.IsPowered)
	assert.False(t, event.IsPlanned)
	assert.Nil(t, event.ExpectedEndTime)
	assert.Empty(t, sched.lookedUpAt)
	assert.Zero(t, sched.refreshes)
}

func TestMonitor_FailedAppendDoesNotAdvanceState(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}, {on: false}}}
	store := &fakeStore{}
	out := make(chan types.TransitionDetected, 4)
	m := newTestMonitor(dev, clock, store, nil, out)

	_, _ = m.Step(context.Background())

	store.appendErr = types.NewAppError(types.ErrCodeStoreWrite, "insert failed", nil)
	clock.Set(t0.Add(10 * time.Second))
	event, err := m.Step(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsStoreError(err))
	assert.Nil(t, event)
	assert.Empty(t, out)

	state, _ := m.tracker.State()
	assert.True(t, state.IsPowered)
	assert.Equal(t, t0, state.Since)

	// Store recovers: the same transition is recorded with the full duration.
	store.appendErr = nil
	clock.Set(t0.Add(20 * time.Second))
	event, err = m.Step(context.Background())
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, int64(20), event.PreviousStateDurationSeconds)
	assert.Len(t, store.events, 1)
}

func TestMonitor_UpsertFailureStillEmits(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}}}
	store := &fakeStore{}
	out := make(chan types.TransitionDetected, 1)
	m := newTestMonitor(dev, clock, store, nil, out)

	_, _ = m.Step(context.Background())
	store.upsertErr = errors.New("deadlock")
	event, err := m.Step(context.Background())

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Len(t, out, 1)
	state, _ := m.tracker.State()
	assert.False(t, state.IsPowered)
}

func TestMonitor_FullQueueDropsNotificationNotEvent(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}, {on: false}, {on: true}}}
	store := &fakeStore{}
	out := make(chan types.TransitionDetected, 1)
	m := newTestMonitor(dev, clock, store, nil, out)

	for i := 0; i < 3; i++ {
		_, err := m.Step(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, store.events, 2)
	assert.Len(t, out, 1)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}}}
	m := New(Config{
		Tracker:  NewTracker(dev, clock),
		Store:    &fakeStore{},
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMonitor_BaselineKeepsMatchingPersistedState(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}}}
	since := t0.Add(-3 * time.Hour)
	store := &fakeStore{current: &types.PowerState{IsPowered: true, Since: since}}
	m := newTestMonitor(dev, clock, store, nil, make(chan types.TransitionDetected, 1))

	ev, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Empty(t, store.events)
	assert.Empty(t, store.upserts)
}

func TestMonitor_BaselineCorrectsDisagreeingPersistedState(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: false}}}
	store := &fakeStore{current: &types.PowerState{IsPowered: true, Since: t0.Add(-time.Hour)}}
	m := newTestMonitor(dev, clock, store, nil, make(chan types.TransitionDetected, 1))

	_, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.Empty(t, store.events)
	assert.Equal(t, []upsertCall{{false, t0}}, store.upserts)
}

func TestMonitor_BaselineSkipsWriteWhenReadFails(t *testing.T) {
	clock := newFakeClock(t0)
	dev := &scriptedDevice{readings: []devReading{{on: true}}}
	store := &fakeStore{readErr: errors.New("db down")}
	m := newTestMonitor(dev, clock, store, nil, make(chan types.TransitionDetected, 1))

	_, err := m.Step(context.Background())

	require.NoError(t, err)
	assert.Empty(t, store.upserts)
}
