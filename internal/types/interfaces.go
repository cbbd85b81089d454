package types

import (
	"context"
	"time"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock, returning UTC time.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// DeviceStatusProvider reports whether the monitored plug is reachable and on.
type DeviceStatusProvider interface {
	GetState(ctx context.Context) (bool, error)
}

// ScheduleFetcher retrieves the outage schedule for one group.
type ScheduleFetcher interface {
	Fetch(ctx context.Context, group string) (*ScheduleDocument, error)
}

// Notifier delivers a formatted message to the configured recipient.
type Notifier interface {
	Send(ctx context.Context, text string, silent bool) error
}
