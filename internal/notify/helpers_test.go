package notify

import (
	"context"
	"sync"
	"time"

	"powerwatch/internal/types"
)

var kyiv = time.FixedZone("EET", 2*3600)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type sent struct {
	Text   string
	Silent bool
}

// recordingNotifier captures sends and signals each one on delivered.
type recordingNotifier struct {
	mu        sync.Mutex
	sent      []sent
	err       error
	delivered chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{delivered: make(chan struct{}, 16)}
}

func (n *recordingNotifier) Send(_ context.Context, text string, silent bool) error {
	n.mu.Lock()
	n.sent = append(n.sent, sent{Text: text, Silent: silent})
	err := n.err
	n.mu.Unlock()
	n.delivered <- struct{}{}
	return err
}

func (n *recordingNotifier) all() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

func localAt(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, kyiv)
}

func ptr[T any](v T) *T { return &v }

var _ types.Notifier = (*recordingNotifier)(nil)
