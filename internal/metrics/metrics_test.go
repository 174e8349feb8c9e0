package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("receipts", "GET", 200, 120*time.Millisecond)
	m.ObserveRequest("receipts", "GET", 200, 80*time.Millisecond)
	m.ObserveRequest("receipts", "GET", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("receipts", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("receipts", "GET", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

func TestFetchAndStaleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FetchCompleted("receipts", OutcomeOK)
	m.FetchCompleted("receipts", OutcomePartial)
	m.StaleDropped("jobs")
	m.LookupCache(true)
	m.LookupCache(false)
	m.LookupCache(false)
	m.EventPublished("receipts", nil)
	m.EventPublished("receipts", errors.New("down"))

	expected := `
# HELP biztrack_aggregate_fetches_total Aggregate fetches by entity and outcome (ok, partial, failed).
# TYPE biztrack_aggregate_fetches_total counter
biztrack_aggregate_fetches_total{entity="receipts",outcome="ok"} 1
biztrack_aggregate_fetches_total{entity="receipts",outcome="partial"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "biztrack_aggregate_fetches_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stale.WithLabelValues("jobs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookupCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("receipts", OutcomeFailed)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("clients", "GET", 200, time.Millisecond)
		m.FetchCompleted("receipts", OutcomeFailed)
		m.StaleDropped("receipts")
		m.LookupCache(true)
		m.EventPublished("jobs", nil)
	})
}
