package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"powerwatch/internal/metrics"
	"powerwatch/internal/types"
)

// KindTransition labels transition messages in logs and metrics.
const KindTransition = "transition"

// Message is one queued outbound text.
type Message struct {
	ID   string
	Kind string
	Text string

	// result receives the send outcome when the producer waits for it.
	result chan error
}

// Publisher mirrors persisted transitions to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, event types.PowerEvent) error
}

// DispatcherConfig holds the dependencies for NewDispatcher.
type DispatcherConfig struct {
	Notifier    types.Notifier
	QuietHours  *QuietHours // nil means never silent
	Transitions <-chan types.TransitionDetected
	Publisher   Publisher // optional
	Location    *time.Location
	QueueSize   int
	SendTimeout time.Duration
	Metrics     metrics.Recorder
	Logger      *slog.Logger
}

// Dispatcher is the single task that performs every send. Producers hand it
// work over channels and never wait on delivery.
type Dispatcher struct {
	notifier    types.Notifier
	quiet       *QuietHours
	transitions <-chan types.TransitionDetected
	messages    chan Message
	publisher   Publisher
	location    *time.Location
	sendTimeout time.Duration
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		notifier:    cfg.Notifier,
		quiet:       cfg.QuietHours,
		transitions: cfg.Transitions,
		messages:    make(chan Message, cfg.QueueSize),
		publisher:   cfg.Publisher,
		location:    cfg.Location,
		sendTimeout: cfg.SendTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Enqueue queues text for delivery without blocking. A full queue drops the
// message and returns notify_queue_full.
func (d *Dispatcher) Enqueue(kind, text string) error {
	return d.enqueue(Message{ID: uuid.NewString(), Kind: kind, Text: text})
}

func (d *Dispatcher) enqueue(msg Message) error {
	select {
	case d.messages <- msg:
		return nil
	default:
		d.logger.Warn("notification queue full, message dropped", "kind", msg.Kind, "message_id", msg.ID)
		d.metrics.NotificationSent(context.Background(), msg.Kind, false)
		return types.NewAppError(types.ErrCodeNotifyQueueFull, "notification queue is full", nil)
	}
}

// Deliver queues a digest and waits for its send outcome or ctx. It
// satisfies the scheduler's sink.
func (d *Dispatcher) Deliver(ctx context.Context, kind types.DigestKind, text string) error {
	msg := Message{ID: uuid.NewString(), Kind: string(kind), Text: text, result: make(chan error, 1)}
	if err := d.enqueue(msg); err != nil {
		return err
	}
	select {
	case err := <-msg.result:
		return err
	case <-ctx.Done():
		return types.NewAppError(types.ErrCodeNotifyDelivery, "digest delivery outcome unknown", ctx.Err())
	}
}

// Run consumes transitions and queued messages until ctx is cancelled.
// Delivery failures are logged and discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "dispatcher stopped")
			return nil
		case t, ok := <-d.transitions:
			if !ok {
				d.transitions = nil
				continue
			}
			d.handleTransition(ctx, t)
		case msg := <-d.messages:
			err := d.send(ctx, msg)
			if msg.result != nil {
				msg.result <- err
			}
		}
	}
}

func (d *Dispatcher) handleTransition(ctx context.Context, t types.TransitionDetected) {
	msg := Message{ID: uuid.NewString(), Kind: KindTransition, Text: FormatTransition(t.Event, d.location)}
	_ = d.send(ctx, msg)

	if d.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.publisher.Publish(pctx, t.Event); err != nil {
		d.logger.WarnContext(ctx, "transition mirror failed", "event_id", t.Event.ID, "error", err)
	}
}

// send delivers msg with the silent flag evaluated at this moment.
func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	silent := d.quiet.Silent()
	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	err := d.notifier.Send(sctx, msg.Text, silent)
	d.metrics.NotificationSent(ctx, msg.Kind, err == nil)
	if err != nil {
		d.logger.WarnContext(ctx, "notification delivery failed",
			"kind", msg.Kind,
			"message_id", msg.ID,
			"silent", silent,
			"error", err,
		)
		return err
	}
	d.logger.InfoContext(ctx, "notification sent", "kind", msg.Kind, "message_id", msg.ID, "silent", silent)
	return nil
}

// DirectSink sends synchronously on the caller's goroutine. It is used where
// no dispatcher task runs, such as a one-shot digest invocation.
type DirectSink struct {
	notifier types.Notifier
	quiet    *QuietHours
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewDirectSink creates a DirectSink.
func NewDirectSink(notifier types.Notifier, quiet *QuietHours, rec metrics.Recorder, logger *slog.Logger) *DirectSink {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectSink{notifier: notifier, quiet: quiet, metrics: rec, logger: logger}
}

// Deliver sends text now and returns the delivery error, if any.
func (s *DirectSink) Deliver(ctx context.Context, kind types.DigestKind, text string) error {
	silent := s.quiet.Silent()
	err := s.notifier.Send(ctx, text, silent)
	s.metrics.NotificationSent(ctx, string(kind), err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "digest delivery failed", "digest", kind, "silent", silent, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "digest sent", "digest", kind, "silent", silent)
	return nil
}
