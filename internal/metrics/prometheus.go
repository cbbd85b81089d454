package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"powerwatch/internal/types"
)

const metricPrefix = "powerwatch_"

// Prometheus exposes monitor activity as Prometheus collectors.
type Prometheus struct {
	polls          *prometheus.CounterVec
	pollLatency    prometheus.Histogram
	transitions    *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	digests        *prometheus.CounterVec
	lastTransition prometheus.Gauge
	powered        prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "polls_total",
				Help: "Device polls by result",
			},
			[]string{"result"},
		),
		pollLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Device poll latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Persisted power transitions by state and class",
			},
			[]string{"state", "class"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_refreshes_total",
				Help: "Schedule refreshes by result",
			},
			[]string{"result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notification sends by kind and result",
			},
			[]string{"kind", "result"},
		),
		digests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "digests_total",
				Help: "Digest generations by kind and result",
			},
			[]string{"kind", "result"},
		),
		lastTransition: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_transition_timestamp_seconds",
				Help: "Unix time of the last persisted transition",
			},
		),
		powered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "powered",
				Help: "1 when the last persisted transition restored power",
			},
		),
	}

	reg.MustRegister(
		p.polls,
		p.pollLatency,
		p.transitions,
		p.refreshes,
		p.notifications,
		p.digests,
		p.lastTransition,
		p.powered,
	)
	return p
}

func (p *Prometheus) PollCompleted(_ context.Context, ok bool, latency time.Duration) {
	p.polls.WithLabelValues(result(ok)).Inc()
	p.pollLatency.Observe(latency.Seconds())
}

func (p *Prometheus) TransitionRecorded(_ context.Context, isPowered, isPlanned bool) {
	state, class := transitionLabels(isPowered, isPlanned)
	p.transitions.WithLabelValues(state, class).Inc()
	p.lastTransition.SetToCurrentTime()
	if isPowered {
		p.powered.Set(1)
	} else {
		p.powered.Set(0)
	}
}

func (p *Prometheus) ScheduleRefreshed(_ context.Context, ok bool) {
	p.refreshes.WithLabelValues(result(ok)).Inc()
}

func (p *Prometheus) NotificationSent(_ context.Context, kind string, ok bool) {
	p.notifications.WithLabelValues(kind, result(ok)).Inc()
}

func (p *Prometheus) DigestGenerated(_ context.Context, kind types.DigestKind, ok bool) {
	p.digests.WithLabelValues(string(kind), result(ok)).Inc()
}
