// Package metrics exposes Prometheus instrumentation for Finch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all service-level collectors. A nil *Metrics is a
// valid no-op receiver so components can run uninstrumented.
type Metrics struct {
	UpstreamRequests   *prometheus.CounterVec
	RetryAttempts      *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	ParseDegradations  *prometheus.CounterVec
	BatchInFlight      prometheus.Gauge
	EnrichmentDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finch",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream query executions",
			},
			[]string{"database", "status"}, // status: success, request_error, transport_error
		),

		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finch",
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Total number of retried upstream attempts",
			},
			[]string{"database"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finch",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of result cache hits",
			},
			[]string{"database"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finch",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of result cache misses",
			},
			[]string{"database"},
		),

		ParseDegradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "finch",
				Subsystem: "normalize",
				Name:      "degraded_total",
				Help:      "Total number of responses degraded to raw text",
			},
			[]string{"database"},
		),

		BatchInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "finch",
				Subsystem: "dispatch",
				Name:      "in_flight",
				Help:      "Number of batch queries currently executing",
			},
		),

		EnrichmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "finch",
				Subsystem: "enrich",
				Name:      "duration_seconds",
				Help:      "End-to-end enrichment run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"organism"},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.UpstreamRequests,
		m.RetryAttempts,
		m.CacheHits,
		m.CacheMisses,
		m.ParseDegradations,
		m.BatchInFlight,
		m.EnrichmentDuration,
	)

	return m
}

// Handler returns the HTTP handler serving the registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpstreamRequest records one completed query execution.
func (m *Metrics) RecordUpstreamRequest(database, status string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(database, status).Inc()
}

// RecordRetry records one retried attempt against a database.
func (m *Metrics) RecordRetry(database string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(database).Inc()
}

// RecordCacheHit records a result served from cache.
func (m *Metrics) RecordCacheHit(database string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(database).Inc()
}

// RecordCacheMiss records a result that required an upstream call.
func (m *Metrics) RecordCacheMiss(database string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(database).Inc()
}

// RecordDegradation records a response that failed structured parsing.
func (m *Metrics) RecordDegradation(database string) {
	if m == nil {
		return
	}
	m.ParseDegradations.WithLabelValues(database).Inc()
}

// BatchStarted marks one batch query as in flight.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchInFlight.Inc()
}

// BatchFinished marks one batch query as done.
func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.BatchInFlight.Dec()
}

// ObserveEnrichment records the duration of an enrichment run.
func (m *Metrics) ObserveEnrichment(organism string, d time.Duration) {
	if m == nil {
		return
	}
	m.EnrichmentDuration.WithLabelValues(organism).Observe(d.Seconds())
}
