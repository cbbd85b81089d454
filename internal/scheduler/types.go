package scheduler

import (
	"time"

	"powerwatch/internal/types"
)

// DigestPayload is the JSON event accepted by the digest runner function.
//
//	{
//	  "kind": "weekly",
//	  "reference_time": "2025-03-10T07:00:00Z"  // optional
//	}
type DigestPayload struct {
	Kind types.DigestKind `json:"kind"`
	// ReferenceTime overrides "now" for manual invocation. If nil, the
	// current time is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// DigestResult is returned by the digest runner function.
type DigestResult struct {
	Kind      types.DigestKind `json:"kind"`
	Delivered bool             `json:"delivered"`
	Skipped   bool             `json:"skipped,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Timer abstracts the wait between triggers so tests can drive the loop.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

// RealTimer waits on the wall clock.
type RealTimer struct{}

func (RealTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }
