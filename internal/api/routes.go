package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"powerwatch/internal/types"
)

// requestTimeout bounds every request. Schedule refreshes carry their own
// shorter timeout.
const requestTimeout = 30 * time.Second

// mountRoutes registers the middleware chain and all routes.
//
// Order:
//  1. Recoverer      - outermost, catches panics from everything below.
//  2. RequestID      - correlation id for logs and the response header.
//  3. RequestLogger  - one access log line per request.
//  4. ContextTimeout - deadline for handlers.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(ContextTimeoutMiddleware(requestTimeout))

	s.router.Get("/health", s.HandleHealth)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router.Route("/v1", s.mountV1)
}

func (s *Server) mountV1(r chi.Router) {
	r.Get("/status", s.handleStatus)
	r.Get("/schedule", s.handleSchedule)
	r.Get("/history", s.handleHistory)
	r.Route("/stats", func(r chi.Router) {
		r.Get("/today", s.handleStatsToday)
		r.Get("/daily", s.handleStatsDaily)
		r.Get("/weekly", s.handleStatsDigest(types.DigestWeekly))
		r.Get("/monthly", s.handleStatsDigest(types.DigestMonthly))
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an incoming X-Request-ID or generates a UUID,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}
