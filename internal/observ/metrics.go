package observ

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors shared by the API, the workers
// and the sweeps. A nil *Metrics is valid and records nothing, so tests and
// one-shot commands can skip registration.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	allocations   *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	abandoned     *prometheus.CounterVec
	indexFailures prometheus.Counter
	sweepDuration *prometheus.HistogramVec
	sweepUpdated  *prometheus.CounterVec
	sweepSkipped  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_http_requests_total",
			Help: "Total count of HTTP requests received.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatlog_http_request_duration_seconds",
			Help:    "Histogram of request durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatlog_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_numbers_allocated_total",
			Help: "Sequence numbers handed out by the counter store.",
		}, []string{"scope"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_tasks_processed_total",
			Help: "Persistence task attempts by outcome.",
		}, []string{"kind", "outcome"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_tasks_abandoned_total",
			Help: "Persistence tasks dropped after exhausting retries; each one is a numbering gap.",
		}, []string{"kind"}),
		indexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlog_index_failures_total",
			Help: "Search index writes that failed after the row was persisted.",
		}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatlog_sweep_duration_seconds",
			Help:    "Duration of reconciliation sweeps.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}, []string{"sweep"}),
		sweepUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_sweep_rows_updated_total",
			Help: "Cached counters overwritten by reconciliation sweeps.",
		}, []string{"sweep"}),
		sweepSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlog_sweep_skipped_total",
			Help: "Sweep runs skipped because another run held the lock.",
		}, []string{"sweep"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.allocations, m.tasks, m.abandoned, m.indexFailures,
		m.sweepDuration, m.sweepUpdated, m.sweepSkipped,
	)
	return m
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.httpInFlight.Inc()
}

func (m *Metrics) RequestFinished(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpInFlight.Dec()
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

func (m *Metrics) NumberAllocated(scope string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(scope).Inc()
}

func (m *Metrics) TaskProcessed(kind, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) TaskAbandoned(kind string) {
	if m == nil {
		return
	}
	m.abandoned.WithLabelValues(kind).Inc()
}

func (m *Metrics) IndexFailed() {
	if m == nil {
		return
	}
	m.indexFailures.Inc()
}

func (m *Metrics) SweepFinished(sweep string, updated int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(elapsed.Seconds())
	m.sweepUpdated.WithLabelValues(sweep).Add(float64(updated))
}

func (m *Metrics) SweepSkipped(sweep string) {
	if m == nil {
		return
	}
	m.sweepSkipped.WithLabelValues(sweep).Inc()
}
