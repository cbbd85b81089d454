// Package scheduler fires the daily, weekly and monthly digests from a single
// injected clock and hands each rendered payload to the notification sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"powerwatch/internal/metrics"
	"powerwatch/internal/report"
	"powerwatch/internal/types"
)

// DigestLockTTL bounds how long a fired slot stays claimed.
const DigestLockTTL = 6 * time.Hour

// ErrAlreadyDelivered is returned by Fire when another run claimed the slot.
var ErrAlreadyDelivered = errors.New("digest already delivered for this slot")

var kindOrder = []types.DigestKind{types.DigestDaily, types.DigestWeekly, types.DigestMonthly}

// ScheduleDigester refreshes and renders the cached schedule.
type ScheduleDigester interface {
	Refresh(ctx context.Context) error
	RenderDigest(day types.Day) string
}

// Reporter produces the statistics rollups.
type Reporter interface {
	Digest(ctx context.Context, kind types.DigestKind) (*report.Rollup, error)
}

// Sink receives each rendered digest exactly once.
type Sink interface {
	Deliver(ctx context.Context, kind types.DigestKind, text string) error
}

// Locker claims a digest slot so a repeated trigger does not send twice.
type Locker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
}

// RunRecorder stores digest run history.
type RunRecorder interface {
	Start(ctx context.Context, kind types.DigestKind) (int64, error)
	Finish(ctx context.Context, id int64, status string, runErr error) error
}

// Config holds the dependencies for New.
type Config struct {
	Triggers     map[types.DigestKind]Trigger
	Schedule     ScheduleDigester
	Reporter     Reporter
	Sink         Sink
	Locker       Locker      // optional
	Runs         RunRecorder // optional
	Clock        types.Clock
	Timer        Timer
	Location     *time.Location
	FetchTimeout time.Duration
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// DigestScheduler evaluates its triggers against one clock. Each kind fires
// on its own goroutine; a kind still running when it comes due again is
// skipped rather than overlapped.
type DigestScheduler struct {
	triggers     map[types.DigestKind]Trigger
	schedule     ScheduleDigester
	reporter     Reporter
	sink         Sink
	locker       Locker
	runs         RunRecorder
	clock        types.Clock
	timer        Timer
	location     *time.Location
	fetchTimeout time.Duration
	metrics      metrics.Recorder
	logger       *slog.Logger
	workerID     string
	running      map[types.DigestKind]*atomic.Bool
}

// New creates a DigestScheduler.
func New(cfg Config) *DigestScheduler {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Timer == nil {
		cfg.Timer = RealTimer{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
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
	running := make(map[types.DigestKind]*atomic.Bool, len(kindOrder))
	for _, k := range kindOrder {
		running[k] = &atomic.Bool{}
	}
	return &DigestScheduler{
		triggers:     cfg.Triggers,
		schedule:     cfg.Schedule,
		reporter:     cfg.Reporter,
		sink:         cfg.Sink,
		locker:       cfg.Locker,
		runs:         cfg.Runs,
		clock:        cfg.Clock,
		timer:        cfg.Timer,
		location:     cfg.Location,
		fetchTimeout: cfg.FetchTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		workerID:     uuid.NewString(),
		running:      running,
	}
}

// Run waits for the earliest due trigger, fires every kind that is due and
// repeats until ctx is cancelled. In-flight digests finish before Run returns.
func (s *DigestScheduler) Run(ctx context.Context) error {
	if len(s.triggers) == 0 {
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	now := s.clock.Now()
	next := make(map[types.DigestKind]time.Time, len(s.triggers))
	for kind, trig := range s.triggers {
		next[kind] = trig.Next(now)
		s.logger.InfoContext(ctx, "digest scheduled", "digest", kind, "next_run", next[kind].Format(time.RFC3339))
	}

	for {
		wait := s.earliest(next).Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.timer.After(wait):
		}

		now := s.clock.Now()
		for _, kind := range kindOrder {
			at, ok := next[kind]
			if !ok || at.After(now) {
				continue
			}
			next[kind] = s.triggers[kind].Next(now)

			flag := s.running[kind]
			if !flag.CompareAndSwap(false, true) {
				s.logger.WarnContext(ctx, "digest still running, skipping", "digest", kind)
				continue
			}
			wg.Add(1)
			go func(kind types.DigestKind) {
				defer wg.Done()
				defer flag.Store(false)
				if err := s.Fire(ctx, kind); err != nil {
					s.logger.ErrorContext(ctx, "digest failed", "digest", kind, "error", err)
				}
			}(kind)
		}
	}
}

func (s *DigestScheduler) earliest(next map[types.DigestKind]time.Time) time.Time {
	var first time.Time
	for _, at := range next {
		if first.IsZero() || at.Before(first) {
			first = at
		}
	}
	return first
}

// Fire generates one digest and delivers it. A generation failure still
// delivers a failure message. Fire returns the generation error, or the
// delivery error when generation succeeded.
func (s *DigestScheduler) Fire(ctx context.Context, kind types.DigestKind) error {
	if !kind.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, fmt.Sprintf("unknown digest kind %q", kind), nil)
	}

	if s.locker != nil {
		lockID := fmt.Sprintf("%s:%s", kind, s.clock.Now().In(s.location).Format("2006-01-02"))
		acquired, err := s.locker.Acquire(ctx, lockID, s.workerID, DigestLockTTL)
		if err != nil {
			// A lock failure never blocks the send.
			s.logger.WarnContext(ctx, "digest lock unavailable, sending anyway", "digest", kind, "error", err)
		} else if !acquired {
			s.logger.InfoContext(ctx, "digest already sent for this slot", "digest", kind, "lock_id", lockID)
			return ErrAlreadyDelivered
		}
	}

	runID := s.startRun(ctx, kind)

	text, genErr := s.Generate(ctx, kind)
	s.metrics.DigestGenerated(ctx, kind, genErr == nil)
	sendErr := s.sink.Deliver(ctx, kind, text)

	s.finishRun(ctx, runID, errors.Join(genErr, sendErr))

	if genErr != nil {
		return genErr
	}
	return sendErr
}

// Generate renders the payload for kind. On error the returned text is the
// user-visible failure message.
func (s *DigestScheduler) Generate(ctx context.Context, kind types.DigestKind) (string, error) {
	switch kind {
	case types.DigestDaily:
		fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
		if err := s.schedule.Refresh(fctx); err != nil {
			return FailureMessage(kind), err
		}
		return s.schedule.RenderDigest(types.DayToday), nil

	case types.DigestWeekly, types.DigestMonthly:
		rollup, err := s.reporter.Digest(ctx, kind)
		if errors.Is(err, report.ErrDigestEmpty) {
			window := report.WeeklyWindowDays
			if kind == types.DigestMonthly {
				window = report.MonthlyWindowDays
			}
			return report.RenderNoData(kind, window), nil
		}
		if err != nil {
			return FailureMessage(kind), err
		}
		return report.Render(rollup), nil
	}
	return FailureMessage(kind), types.NewAppError(types.ErrCodeValidationInvalidInput, fmt.Sprintf("unknown digest kind %q", kind), nil)
}

// FailureMessage is sent in place of a digest that could not be produced.
func FailureMessage(kind types.DigestKind) string {
	return fmt.Sprintf("⚠️ Could not generate the %s digest. It will be retried at the next scheduled time.", kind)
}

func (s *DigestScheduler) startRun(ctx context.Context, kind types.DigestKind) int64 {
	if s.runs == nil {
		return 0
	}
	id, err := s.runs.Start(ctx, kind)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record digest run", "digest", kind, "error", err)
		return 0
	}
	return id
}

func (s *DigestScheduler) finishRun(ctx context.Context, id int64, runErr error) {
	if s.runs == nil || id == 0 {
		return
	}
	status := "success"
	if runErr != nil {
		status = "failed"
	}
	if err := s.runs.Finish(ctx, id, status, runErr); err != nil {
		s.logger.WarnContext(ctx, "failed to finish digest run", "run_id", id, "error", err)
	}
}
