package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"powerwatch/internal/report"
	"powerwatch/internal/types"
)

// statusResponse answers "is there power right now".
type statusResponse struct {
	types.StatusSnapshot
	// Source is "tracker" for a live reading or "store" for the last
	// persisted state before the first poll.
	Source      string  `json:"source"`
	IsPlanned   *bool   `json:"is_planned,omitempty"`
	ExpectedEnd *string `json:"expected_end,omitempty"`
	Text        string  `json:"text"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Clock.Now()

	snap, ok := s.deps.Status.StatusSnapshot()
	source := "tracker"
	if !ok {
		state, err := s.deps.Events.ReadCurrentState(r.Context())
		if err != nil {
			Error(w, r, err)
			return
		}
		if state == nil {
			Error(w, r, types.NewAppError(types.ErrCodeNotFoundState, "power state is not known yet", nil))
			return
		}
		secs := int64(0)
		if d := now.Sub(state.Since); d > 0 {
			secs = int64(d / time.Second)
		}
		snap = types.StatusSnapshot{
			IsPowered:         state.IsPowered,
			Since:             state.Since,
			DurationSeconds:   secs,
			FormattedDuration: types.FormatDuration(secs),
		}
		source = "store"
	}

	resp := statusResponse{StatusSnapshot: snap, Source: source}
	if snap.IsPowered {
		resp.Text = "🟢 Power is on for " + snap.FormattedDuration
	} else {
		planned, end := s.deps.Schedule.IsOutageAt(now)
		resp.IsPlanned = &planned
		resp.ExpectedEnd = end
		resp.Text = "🔴 Power is off for " + snap.FormattedDuration
		if planned && end != nil {
			resp.Text += "\n📋 Planned outage, expected back at " + *end
		}
	}
	OK(w, r, resp)
}

type scheduleResponse struct {
	Day       string                  `json:"day"`
	Text      string                  `json:"text"`
	Document  *types.ScheduleDocument `json:"document,omitempty"`
	FetchedAt *time.Time              `json:"fetched_at,omitempty"`
}

// handleSchedule refreshes the cache first. A failed refresh is an error,
// never the previous document presented as current.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")
	if day == "" {
		day = string(types.DayToday)
	}
	if day != string(types.DayToday) && day != string(types.DayTomorrow) && day != "all" {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDay, "day must be today, tomorrow or all", nil).
			WithDetails(map[string]any{"day": day}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.FetchTimeout)
	defer cancel()
	if err := s.deps.Schedule.Refresh(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "schedule refresh failed", "error", err)
		Error(w, r, types.NewAppError(types.ErrCodeFetchUnavailable,
			"Could not fetch the outage schedule right now. Please try again later.", err))
		return
	}

	var text string
	if day == "all" {
		text = s.deps.Schedule.RenderAll()
	} else {
		text = s.deps.Schedule.RenderDigest(types.Day(day))
	}
	resp := scheduleResponse{Day: day, Text: text, Document: s.deps.Schedule.Document()}
	if resp.Document != nil {
		resp.FetchedAt = &resp.Document.FetchedAt
	}
	OK(w, r, resp)
}

type statisticResponse struct {
	Statistic types.DailyStatistic `json:"statistic"`
	Text      string               `json:"text"`
}

func (s *Server) handleStatsToday(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Events.ReadTodayStatistic(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	resp := statisticResponse{Text: report.RenderToday(st)}
	if st != nil {
		resp.Statistic = *st
	} else {
		y, m, d := s.deps.Clock.Now().In(s.deps.Location).Date()
		resp.Statistic = types.DailyStatistic{Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
	}
	OK(w, r, resp)
}

type dailyResponse struct {
	Days       int                    `json:"days"`
	Statistics []types.DailyStatistic `json:"statistics"`
}

func (s *Server) handleStatsDaily(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", s.deps.StatsWindowDays, 1, 366)
	if err != nil {
		Error(w, r, err)
		return
	}
	rows, err := s.deps.Events.ReadDailyStatistics(r.Context(), days)
	if err != nil {
		Error(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.DailyStatistic{}
	}
	OK(w, r, dailyResponse{Days: days, Statistics: rows})
}

type digestResponse struct {
	NoData bool           `json:"no_data"`
	Rollup *report.Rollup `json:"rollup,omitempty"`
	Text   string         `json:"text"`
}

func (s *Server) handleStatsDigest(kind types.DigestKind) http.HandlerFunc {
	window := report.WeeklyWindowDays
	if kind == types.DigestMonthly {
		window = report.MonthlyWindowDays
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rollup, err := s.deps.Reporter.Digest(r.Context(), kind)
		if errors.Is(err, report.ErrDigestEmpty) {
			OK(w, r, digestResponse{NoData: true, Text: report.RenderNoData(kind, window)})
			return
		}
		if err != nil {
			Error(w, r, err)
			return
		}
		OK(w, r, digestResponse{Rollup: rollup, Text: report.Render(rollup)})
	}
}

type historyResponse struct {
	Limit  int                `json:"limit"`
	Events []types.PowerEvent `json:"events"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", s.deps.RecentEventsLimit, 1, 100)
	if err != nil {
		Error(w, r, err)
		return
	}
	events, err := s.deps.Events.ReadRecentEvents(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	if events == nil {
		events = []types.PowerEvent{}
	}
	OK(w, r, historyResponse{Limit: limit, Events: events})
}
