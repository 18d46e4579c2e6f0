// Package metrics exposes Prometheus instrumentation for thread sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dmsync"

// Default fetch latency buckets, 10ms to 30s.
var fetchBuckets = []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15, 30}

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	admitted     *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	skippedTicks prometheus.Counter
	listSize     *prometheus.GaugeVec
}

// New creates a Metrics set registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_admitted_total",
			Help:      "Messages admitted to a canonical list.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_duplicate_total",
			Help:      "Fetched messages dropped because they were already present.",
		}, []string{"source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Fetched messages rejected as malformed.",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetches against the conversation service.",
		}, []string{"source"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of fetches against the conversation service.",
			Buckets:   fetchBuckets,
		}, []string{"source"}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_skipped_total",
			Help:      "Poll ticks skipped because a poll was already in flight.",
		}),
		listSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "canonical_list_size",
			Help:      "Number of messages in a thread's canonical list.",
		}, []string{"thread"}),
	}

	m.registry.MustRegister(
		m.admitted,
		m.duplicates,
		m.rejected,
		m.failures,
		m.fetchLatency,
		m.skippedTicks,
		m.listSize,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveMerge records the outcome of one merge.
func (m *Metrics) ObserveMerge(source string, admitted, duplicates, rejected int) {
	if m == nil {
		return
	}
	m.admitted.WithLabelValues(source).Add(float64(admitted))
	m.duplicates.WithLabelValues(source).Add(float64(duplicates))
	m.rejected.WithLabelValues(source).Add(float64(rejected))
}

// ObserveFetch records a fetch latency and, when err is non-nil, a failure.
func (m *Metrics) ObserveFetch(source string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchLatency.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(source).Inc()
	}
}

// PollSkipped records a tick that found a poll already in flight.
func (m *Metrics) PollSkipped() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

// SetListSize records the current canonical list length for a thread.
func (m *Metrics) SetListSize(threadID string, size int) {
	if m == nil {
		return
	}
	m.listSize.WithLabelValues(threadID).Set(float64(size))
}

// ForgetThread drops per-thread series once a session closes.
func (m *Metrics) ForgetThread(threadID string) {
	if m == nil {
		return
	}
	m.listSize.DeleteLabelValues(threadID)
}
