// Package metrics exposes Prometheus collectors for backend calls,
// aggregate fetches and event publishing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "biztrack"

// Fetch outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	fetches     *prometheus.CounterVec
	stale       *prometheus.CounterVec
	lookupCache *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend HTTP requests by resource, method and status.",
		}, []string{"resource", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend HTTP request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"resource", "method"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_fetches_total",
			Help:      "Aggregate fetches by entity and outcome (ok, partial, failed).",
		}, []string{"entity", "outcome"}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_dropped_total",
			Help:      "Fetch results discarded because a newer fetch superseded them.",
		}, []string{"entity"}),
		lookupCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_requests_total",
			Help:      "Lookup table cache hits and misses.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Record change events by entity and outcome.",
		}, []string{"entity", "outcome"}),
	}
}

// ObserveRequest records one backend call. Status 0 means no response.
func (m *Metrics) ObserveRequest(resource, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status != 0 {
		code = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(resource, method, code).Inc()
	m.latency.WithLabelValues(resource, method).Observe(elapsed.Seconds())
}

func (m *Metrics) FetchCompleted(entity, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(entity, outcome).Inc()
}

func (m *Metrics) StaleDropped(entity string) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues(entity).Inc()
}

func (m *Metrics) LookupCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupCache.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(entity string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.events.WithLabelValues(entity, outcome).Inc()
}
