package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"powerwatch/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type devReading struct {
	on  bool
	err error
}

// scriptedDevice returns readings in order; each read first moves the clock
// to the paired timestamp.
type scriptedDevice struct {
	clock    *fakeClock
	base     time.Time
	readings []devReading
	offsets  []int
	i        int
}

func (d *scriptedDevice) GetState(context.Context) (bool, error) {
	if d.i >= len(d.readings) {
		return false, errors.New("script exhausted")
	}
	r := d.readings[d.i]
	if d.clock != nil && d.i < len(d.offsets) {
		d.clock.Set(d.base.Add(time.Duration(d.offsets[d.i]) * time.Second))
	}
	d.i++
	return r.on, r.err
}

type upsertCall struct {
	isPowered bool
	at        time.Time
}

type fakeStore struct {
	mu        sync.Mutex
	events    []types.PowerEvent
	upserts   []upsertCall
	appendErr error
	upsertErr error
	readErr   error
	current   *types.PowerState
	nextID    int64
}

func (s *fakeStore) AppendEvent(_ context.Context, e types.PowerEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	s.nextID++
	e.ID = s.nextID
	s.events = append(s.events, e)
	return s.nextID, nil
}

func (s *fakeStore) UpsertCurrentState(_ context.Context, isPowered bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, upsertCall{isPowered, at})
	return nil
}

func (s *fakeStore) ReadCurrentState(context.Context) (*types.PowerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.readErr
}

type fakeSchedule struct {
	planned     bool
	end         *string
	refreshErr  error
	refreshes   int
	lookedUpAt  []time.Time
	digestCalls int
}

func (f *fakeSchedule) IsOutageAt(t time.Time) (bool, *string) {
	f.lookedUpAt = append(f.lookedUpAt, t)
	return f.planned, f.end
}

func (f *fakeSchedule) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeSchedule) RenderDigest(types.Day) string {
	f.digestCalls++
	return "snapshot"
}

func ptr(s string) *string { return &s }
