package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"powerwatch/internal/types"
)

const defaultQueryTimeout = 5 * time.Second

// EventStore persists power events, the current-state row and the per-day
// statistics. Every operation is a single statement, so concurrent readers
// never observe a partially applied append.
type EventStore struct {
	db      DBTX
	clock   types.Clock
	loc     *time.Location
	timeout time.Duration
}

// EventStoreConfig holds the dependencies for NewEventStore.
type EventStoreConfig struct {
	Clock types.Clock
	// Location decides which calendar day an event is attributed to.
	Location *time.Location
	Timeout  time.Duration
}

// NewEventStore creates an EventStore backed by db.
func NewEventStore(db DBTX, cfg EventStoreConfig) *EventStore {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultQueryTimeout
	}
	return &EventStore{db: db, clock: cfg.Clock, loc: cfg.Location, timeout: cfg.Timeout}
}

// appendEventSQL inserts the event and folds it into the day's statistics row
// in one statement.
//
// Power lost:     total_outages += 1, planned or emergency += 1.
// Power restored: total duration += outage length, longest = max(longest, outage length).
const appendEventSQL = `
WITH inserted AS (
    INSERT INTO power_events (
        occurred_at, is_powered, previous_state_duration_seconds,
        is_planned, expected_end_time, schedule_snapshot
    )
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
), stats AS (
    INSERT INTO power_statistics (
        stat_date, total_outages, planned_outages, emergency_outages,
        total_outage_duration_seconds, longest_outage_seconds
    )
    VALUES ($7::date, $8, $9, $10, $11, $11)
    ON CONFLICT (stat_date) DO UPDATE SET
        total_outages = power_statistics.total_outages + EXCLUDED.total_outages,
        planned_outages = power_statistics.planned_outages + EXCLUDED.planned_outages,
        emergency_outages = power_statistics.emergency_outages + EXCLUDED.emergency_outages,
        total_outage_duration_seconds = power_statistics.total_outage_duration_seconds + EXCLUDED.total_outage_duration_seconds,
        longest_outage_seconds = GREATEST(power_statistics.longest_outage_seconds, EXCLUDED.longest_outage_seconds)
)
SELECT id FROM inserted`

// AppendEvent stores event and returns its id. Restoration events are
// always stored unplanned.
func (s *EventStore) AppendEvent(ctx context.Context, event types.PowerEvent) (int64, error) {
	if event.PreviousStateDurationSeconds < 0 {
		return 0, types.NewAppError(types.ErrCodeValidationInvalidInput, "event duration cannot be negative", nil)
	}
	if event.IsPowered {
		event.IsPlanned = false
		event.ExpectedEndTime = nil
	}

	var outages, planned, emergency int
	var outageSeconds int64
	if event.IsPowered {
		outageSeconds = event.PreviousStateDurationSeconds
	} else {
		outages = 1
		if event.IsPlanned {
			planned = 1
		} else {
			emergency = 1
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, appendEventSQL,
		event.OccurredAt,
		event.IsPowered,
		event.PreviousStateDurationSeconds,
		event.IsPlanned,
		event.ExpectedEndTime,
		event.ScheduleSnapshot,
		s.dateOf(event.OccurredAt),
		outages,
		planned,
		emergency,
		outageSeconds,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeStoreWrite, "failed to append power event", err)
	}
	return id, nil
}

// UpsertCurrentState replaces the single current-state row.
func (s *EventStore) UpsertCurrentState(ctx context.Context, isPowered bool, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`INSERT INTO current_state (id, is_powered, since, updated_at)
		 VALUES (1, $1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE
		   SET is_powered = EXCLUDED.is_powered,
		       since = EXCLUDED.since,
		       updated_at = NOW()`,
		isPowered,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeStoreWrite, "failed to upsert current state", err)
	}
	return nil
}

// ReadCurrentState returns the persisted state, or nil if none was ever written.
func (s *EventStore) ReadCurrentState(ctx context.Context) (*types.PowerState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var st types.PowerState
	err := s.db.QueryRow(ctx,
		`SELECT is_powered, since FROM current_state WHERE id = 1`,
	).Scan(&st.IsPowered, &st.Since)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to read current state", err)
	}
	return &st, nil
}

// ReadRecentEvents returns up to limit events, most recent first.
func (s *EventStore) ReadRecentEvents(ctx context.Context, limit int) ([]types.PowerEvent, error) {
	if limit < 1 {
		return nil, types.NewAppError(types.ErrCodeValidationLimit, "limit must be positive", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id, occurred_at, is_powered, previous_state_duration_seconds,
		        is_planned, expected_end_time, schedule_snapshot
		 FROM power_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to query recent events", err)
	}
	defer rows.Close()

	events := make([]types.PowerEvent, 0, limit)
	for rows.Next() {
		var e types.PowerEvent
		if err := rows.Scan(
			&e.ID,
			&e.OccurredAt,
			&e.IsPowered,
			&e.PreviousStateDurationSeconds,
			&e.IsPlanned,
			&e.ExpectedEndTime,
			&e.ScheduleSnapshot,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to scan power event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to iterate power events", err)
	}
	return events, nil
}

const statisticColumns = `stat_date, total_outages, planned_outages, emergency_outages,
		        total_outage_duration_seconds, longest_outage_seconds`

// ReadDailyStatistics returns the rows for [today - sinceDays, today], most
// recent first. Days without a row are absent.
func (s *EventStore) ReadDailyStatistics(ctx context.Context, sinceDays int) ([]types.DailyStatistic, error) {
	if sinceDays < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidInput, "sinceDays cannot be negative", nil)
	}
	today := s.dateOf(s.clock.Now())
	from := today.AddDate(0, 0, -sinceDays)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT `+statisticColumns+`
		 FROM power_statistics
		 WHERE stat_date >= $1::date AND stat_date <= $2::date
		 ORDER BY stat_date DESC`,
		from,
		today,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to query daily statistics", err)
	}
	defer rows.Close()

	var stats []types.DailyStatistic
	for rows.Next() {
		st, err := scanStatistic(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to scan daily statistic", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to iterate daily statistics", err)
	}
	return stats, nil
}

// ReadTodayStatistic returns today's row, or nil when nothing was recorded
// today. Callers treat nil like an all-zero row.
func (s *EventStore) ReadTodayStatistic(ctx context.Context) (*types.DailyStatistic, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRow(ctx,
		`SELECT `+statisticColumns+`
		 FROM power_statistics
		 WHERE stat_date = $1::date`,
		s.dateOf(s.clock.Now()),
	)
	st, err := scanStatistic(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeStoreRead, "failed to read today's statistic", err)
	}
	return &st, nil
}

func scanStatistic(row pgx.Row) (types.DailyStatistic, error) {
	var st types.DailyStatistic
	err := row.Scan(
		&st.Date,
		&st.TotalOutages,
		&st.PlannedOutages,
		&st.EmergencyOutages,
		&st.TotalOutageDurationSeconds,
		&st.LongestOutageSeconds,
	)
	return st, err
}

// dateOf returns t's calendar date in the store's location as UTC midnight,
// which is how DATE values round-trip through pgx.
func (s *EventStore) dateOf(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
