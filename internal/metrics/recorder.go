// Package metrics records monitor activity to Prometheus and CloudWatch.
package metrics

import (
	"context"
	"time"

	"powerwatch/internal/types"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultError
}

// Recorder receives monitor activity. Implementations must not block and
// must swallow their own failures.
type Recorder interface {
	PollCompleted(ctx context.Context, ok bool, latency time.Duration)
	TransitionRecorded(ctx context.Context, isPowered, isPlanned bool)
	ScheduleRefreshed(ctx context.Context, ok bool)
	NotificationSent(ctx context.Context, kind string, ok bool)
	DigestGenerated(ctx context.Context, kind types.DigestKind, ok bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PollCompleted(context.Context, bool, time.Duration)      {}
func (Nop) TransitionRecorded(context.Context, bool, bool)          {}
func (Nop) ScheduleRefreshed(context.Context, bool)                 {}
func (Nop) NotificationSent(context.Context, string, bool)          {}
func (Nop) DigestGenerated(context.Context, types.DigestKind, bool) {}

// Multi fans every call out to each Recorder in order.
type Multi []Recorder

func (m Multi) PollCompleted(ctx context.Context, ok bool, latency time.Duration) {
	for _, r := range m {
		r.PollCompleted(ctx, ok, latency)
	}
}

func (m Multi) TransitionRecorded(ctx context.Context, isPowered, isPlanned bool) {
	for _, r := range m {
		r.TransitionRecorded(ctx, isPowered, isPlanned)
	}
}

func (m Multi) ScheduleRefreshed(ctx context.Context, ok bool) {
	for _, r := range m {
		r.ScheduleRefreshed(ctx, ok)
	}
}

func (m Multi) NotificationSent(ctx context.Context, kind string, ok bool) {
	for _, r := range m {
		r.NotificationSent(ctx, kind, ok)
	}
}

func (m Multi) DigestGenerated(ctx context.Context, kind types.DigestKind, ok bool) {
	for _, r := range m {
		r.DigestGenerated(ctx, kind, ok)
	}
}

func transitionLabels(isPowered, isPlanned bool) (state, class string) {
	if isPowered {
		return "restored", "none"
	}
	if isPlanned {
		return "lost", "planned"
	}
	return "lost", "emergency"
}
