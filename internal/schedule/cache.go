// Package schedule holds the most recently fetched outage schedule and
// answers planned-outage queries against it.
package schedule

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"powerwatch/internal/metrics"
	"powerwatch/internal/types"
)

// Cache stores the last successfully fetched ScheduleDocument. Readers always
// see a complete document: Refresh swaps the pointer only after a full parse.
type Cache struct {
	fetcher types.ScheduleFetcher
	group   string
	loc     *time.Location
	clock   types.Clock
	metrics metrics.Recorder
	logger  *slog.Logger

	doc atomic.Pointer[types.ScheduleDocument]
}

// CacheConfig holds the dependencies for NewCache.
type CacheConfig struct {
	Fetcher  types.ScheduleFetcher
	Group    string
	Location *time.Location
	Clock    types.Clock
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// NewCache creates an empty Cache. Queries fail closed until the first
// successful Refresh.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		fetcher: cfg.Fetcher,
		group:   cfg.Group,
		loc:     cfg.Location,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Refresh fetches the schedule for the configured group. On failure the
// previous document is kept and a fetch error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	doc, err := c.fetcher.Fetch(ctx, c.group)
	if err != nil {
		c.metrics.ScheduleRefreshed(ctx, false)
		if types.IsFetchError(err) {
			return err
		}
		return types.NewAppError(types.ErrCodeFetchUnavailable, "failed to fetch outage schedule", err)
	}
	if doc == nil {
		c.metrics.ScheduleRefreshed(ctx, false)
		return types.NewAppError(types.ErrCodeFetchMalformed, "schedule source returned no document", nil)
	}

	c.doc.Store(doc)
	c.metrics.ScheduleRefreshed(ctx, true)
	return nil
}

// Document returns the cached document, or nil if none was ever fetched.
func (c *Cache) Document() *types.ScheduleDocument {
	return c.doc.Load()
}

// IsOutageAt reports whether t falls inside a Definite slot of the day
// matching t's date. The first matching slot in document order wins. The
// returned end time is nil when no slot matches.
func (c *Cache) IsOutageAt(t time.Time) (bool, *string) {
	day := c.dayFor(c.doc.Load(), t)
	if day == nil {
		return false, nil
	}

	minute := types.MinuteOfDay(t.In(c.loc))
	for _, slot := range day.DefiniteSlots() {
		if slot.Contains(minute) {
			end := types.FormatMinuteOfDay(slot.End)
			return true, &end
		}
	}
	return false, nil
}

// dayFor picks the sub-document whose date equals t's local date. Documents
// without dates fall back to the today entry.
func (c *Cache) dayFor(doc *types.ScheduleDocument, t time.Time) *types.DaySchedule {
	if doc == nil {
		return nil
	}
	dated := false
	for _, day := range []*types.DaySchedule{doc.Today, doc.Tomorrow} {
		if day == nil || day.Date.IsZero() {
			continue
		}
		dated = true
		if types.SameDate(day.Date, t, c.loc) {
			return day
		}
	}
	if !dated {
		return doc.Today
	}
	return nil
}

// RunRefresher refreshes the cache every interval until ctx is done.
func (c *Cache) RunRefresher(ctx context.Context, interval, timeout time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, timeout)
			if err := c.Refresh(refreshCtx); err != nil {
				c.logger.WarnContext(ctx, "schedule refresh failed", "group", c.group, "error", err)
			}
			cancel()
		}
	}
}
