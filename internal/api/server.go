// Package api serves the read-only query API: current status, schedule,
// statistics and history, plus health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"powerwatch/internal/report"
	"powerwatch/internal/types"
)

// StatusSource is the tracker's in-memory view of the power state.
type StatusSource interface {
	StatusSnapshot() (types.StatusSnapshot, bool)
}

// ScheduleView is the schedule cache as seen by query handlers.
type ScheduleView interface {
	Refresh(ctx context.Context) error
	RenderDigest(day types.Day) string
	RenderAll() string
	IsOutageAt(t time.Time) (bool, *string)
	Document() *types.ScheduleDocument
}

// EventReader is the read side of the event store.
type EventReader interface {
	ReadCurrentState(ctx context.Context) (*types.PowerState, error)
	ReadRecentEvents(ctx context.Context, limit int) ([]types.PowerEvent, error)
	ReadDailyStatistics(ctx context.Context, sinceDays int) ([]types.DailyStatistic, error)
	ReadTodayStatistic(ctx context.Context) (*types.DailyStatistic, error)
}

// DigestReporter produces weekly and monthly rollups.
type DigestReporter interface {
	Digest(ctx context.Context, kind types.DigestKind) (*report.Rollup, error)
}

// Deps holds the collaborators of the query API.
type Deps struct {
	Status   StatusSource
	Schedule ScheduleView
	Events   EventReader
	Reporter DigestReporter
	Gatherer prometheus.Gatherer // nil disables /metrics
	Clock    types.Clock
	Location *time.Location
	Logger   *slog.Logger

	HealthProbes      []HealthProbe
	FetchTimeout      time.Duration
	RecentEventsLimit int
	StatsWindowDays   int
}

// Server wires handlers onto a chi router.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *chi.Mux
}

// NewServer validates deps, applies defaults and mounts every route.
func NewServer(deps Deps) (*Server, error) {
	if deps.Status == nil {
		return nil, fmt.Errorf("status source must not be nil")
	}
	if deps.Schedule == nil {
		return nil, fmt.Errorf("schedule view must not be nil")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event reader must not be nil")
	}
	if deps.Reporter == nil {
		return nil, fmt.Errorf("reporter must not be nil")
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 10 * time.Second
	}
	if deps.RecentEventsLimit <= 0 {
		deps.RecentEventsLimit = 10
	}
	if deps.StatsWindowDays <= 0 {
		deps.StatsWindowDays = 7
	}

	s := &Server{deps: deps, logger: deps.Logger, router: chi.NewRouter()}
	s.mountRoutes()
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("query api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("query api shutting down")
	return srv.Shutdown(shutdownCtx)
}
