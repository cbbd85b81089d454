package monitor

import (
	"context"
	"log/slog"
	"time"

	"powerwatch/internal/metrics"
	"powerwatch/internal/types"
)

// EventStore is the persistence the poll loop needs.
type EventStore interface {
	AppendEvent(ctx context.Context, event types.PowerEvent) (int64, error)
	UpsertCurrentState(ctx context.Context, isPowered bool, at time.Time) error
	ReadCurrentState(ctx context.Context) (*types.PowerState, error)
}

// ScheduleSource is the schedule view consulted when power is lost.
type ScheduleSource interface {
	OutageLookup
	Refresh(ctx context.Context) error
	RenderDigest(day types.Day) string
}

// Monitor runs the fixed-interval poll loop: detect, classify, persist,
// confirm, then emit.
type Monitor struct {
	tracker      *Tracker
	schedule     ScheduleSource
	store        EventStore
	transitions  chan<- types.TransitionDetected
	interval     time.Duration
	pollTimeout  time.Duration
	fetchTimeout time.Duration
	metrics      metrics.Recorder
	logger       *slog.Logger
}

// Config holds the dependencies for New.
type Config struct {
	Tracker  *Tracker
	Schedule ScheduleSource // optional
	Store    EventStore
	// Transitions receives one value per persisted event. Sends never block;
	// a full channel drops the notification, not the event.
	Transitions  chan<- types.TransitionDetected
	Interval     time.Duration
	PollTimeout  time.Duration
	FetchTimeout time.Duration
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		tracker:      cfg.Tracker,
		schedule:     cfg.Schedule,
		store:        cfg.Store,
		transitions:  cfg.Transitions,
		interval:     cfg.Interval,
		pollTimeout:  cfg.PollTimeout,
		fetchTimeout: cfg.FetchTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// Run polls immediately and then every interval until ctx is done. Failures
// are logged and retried on the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "monitor started", "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		_, _ = m.Step(ctx)

		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Step performs one poll. It returns the persisted event when a transition
// was recorded, nil otherwise.
func (m *Monitor) Step(ctx context.Context) (*types.PowerEvent, error) {
	started := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, m.pollTimeout)
	reading, err := m.tracker.Poll(pollCtx)
	cancel()
	m.metrics.PollCompleted(ctx, err == nil, time.Since(started))

	if err != nil {
		m.logger.WarnContext(ctx, "device poll failed", "error", err)
		return nil, err
	}

	if reading.Baseline {
		m.logger.InfoContext(ctx, "baseline established", "is_powered", reading.IsPowered)
		m.persistBaseline(ctx, reading)
		return nil, nil
	}
	if !reading.Changed {
		return nil, nil
	}

	event := m.buildEvent(ctx, reading)

	id, err := m.store.AppendEvent(ctx, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to persist transition",
			"is_powered", event.IsPowered,
			"error", err,
		)
		return nil, err
	}
	event.ID = id
	m.tracker.Commit(reading)

	// The event is durable at this point; a stale current-state row is
	// corrected by the next transition.
	if err := m.store.UpsertCurrentState(ctx, reading.IsPowered, reading.At); err != nil {
		m.logger.ErrorContext(ctx, "failed to update current state", "event_id", id, "error", err)
	}

	m.metrics.TransitionRecorded(ctx, event.IsPowered, event.IsPlanned)
	m.logger.InfoContext(ctx, "transition recorded",
		"event_id", id,
		"is_powered", event.IsPowered,
		"is_planned", event.IsPlanned,
		"previous_duration_seconds", event.PreviousStateDurationSeconds,
	)

	m.emit(ctx, event)
	return &event, nil
}

// persistBaseline writes the first reading only when the stored row is
// missing or disagrees with it, so a restart keeps the persisted since.
func (m *Monitor) persistBaseline(ctx context.Context, r Reading) {
	current, err := m.store.ReadCurrentState(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to read persisted state", "error", err)
		return
	}
	if current != nil && current.IsPowered == r.IsPowered {
		return
	}
	if err := m.store.UpsertCurrentState(ctx, r.IsPowered, r.At); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist baseline state", "error", err)
	}
}

func (m *Monitor) buildEvent(ctx context.Context, r Reading) types.PowerEvent {
	event := types.PowerEvent{
		OccurredAt:                   r.At,
		IsPowered:                    r.IsPowered,
		PreviousStateDurationSeconds: r.DurationSeconds,
	}
	if r.IsPowered || m.schedule == nil {
		return event
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	if err := m.schedule.Refresh(fetchCtx); err != nil {
		m.logger.WarnContext(ctx, "schedule refresh before classification failed, using cached schedule", "error", err)
	}
	cancel()

	c := Classify(r.At, m.schedule)
	event.IsPlanned = c.IsPlanned
	event.ExpectedEndTime = c.ExpectedEnd
	snapshot := m.schedule.RenderDigest(types.DayToday)
	event.ScheduleSnapshot = &snapshot
	return event
}

func (m *Monitor) emit(ctx context.Context, event types.PowerEvent) {
	if m.transitions == nil {
		return
	}
	select {
	case m.transitions <- types.TransitionDetected{Event: event}:
	default:
		m.logger.WarnContext(ctx, "transition queue full, notification dropped", "event_id", event.ID)
	}
}
