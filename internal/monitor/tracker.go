// Package monitor turns polled device readings into classified, persisted
// power transitions.
package monitor

import (
	"context"
	"sync"
	"time"

	"powerwatch/internal/types"
)

// Reading is the outcome of one successful poll.
type Reading struct {
	IsPowered bool
	At        time.Time
	// Baseline is set on the first successful poll; it never carries a transition.
	Baseline bool
	// Changed is set when IsPowered differs from the last confirmed state.
	Changed bool
	// DurationSeconds is the time spent in the previous state. Only set when Changed.
	DurationSeconds int64
}

// Tracker owns the last confirmed power state. Poll detects a transition but
// does not confirm it; the caller confirms with Commit once the transition
// has been persisted, so a failed write leaves the tracker untouched and the
// next poll detects the same transition again.
type Tracker struct {
	device types.DeviceStatusProvider
	clock  types.Clock

	mu             sync.RWMutex
	known          bool
	lastKnownState bool
	lastChangeTime time.Time
}

// NewTracker creates a Tracker with no baseline.
func NewTracker(device types.DeviceStatusProvider, clock types.Clock) *Tracker {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Tracker{device: device, clock: clock}
}

// Poll queries the device once. A failed query returns a poll error and
// leaves the tracker state untouched.
func (t *Tracker) Poll(ctx context.Context) (Reading, error) {
	state, err := t.device.GetState(ctx)
	if err != nil {
		if types.IsPollError(err) {
			return Reading{}, err
		}
		return Reading{}, types.NewAppError(types.ErrCodePollUnreachable, "device status query failed", err)
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.known {
		t.known = true
		t.lastKnownState = state
		t.lastChangeTime = now
		return Reading{IsPowered: state, At: now, Baseline: true}, nil
	}

	if state == t.lastKnownState {
		return Reading{IsPowered: state, At: now}, nil
	}

	return Reading{
		IsPowered:       state,
		At:              now,
		Changed:         true,
		DurationSeconds: elapsedSeconds(t.lastChangeTime, now),
	}, nil
}

// Commit confirms a transition returned by Poll.
func (t *Tracker) Commit(r Reading) {
	if !r.Changed {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastKnownState = r.IsPowered
	if r.At.After(t.lastChangeTime) {
		t.lastChangeTime = r.At
	}
}

// State returns the confirmed state, or false before the first successful poll.
func (t *Tracker) State() (types.PowerState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.known {
		return types.PowerState{}, false
	}
	return types.PowerState{IsPowered: t.lastKnownState, Since: t.lastChangeTime}, true
}

// StatusSnapshot reports the current state and how long it has lasted,
// without polling the device.
func (t *Tracker) StatusSnapshot() (types.StatusSnapshot, bool) {
	state, ok := t.State()
	if !ok {
		return types.StatusSnapshot{}, false
	}
	secs := elapsedSeconds(state.Since, t.clock.Now())
	return types.StatusSnapshot{
		IsPowered:         state.IsPowered,
		Since:             state.Since,
		DurationSeconds:   secs,
		FormattedDuration: types.FormatDuration(secs),
	}, true
}

func elapsedSeconds(from, to time.Time) int64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
