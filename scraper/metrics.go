package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors for catalog traffic.
// Other packages register their collectors on Registry so /metrics serves one registry.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
	LookupsTotal    *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isbnfinder_source_requests_total",
			Help: "HTTP requests issued to catalog sources.",
		},
		[]string{"source", "phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "isbnfinder_source_request_duration_seconds",
			Help:    "HTTP request latency per catalog source.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isbnfinder_source_errors_total",
			Help: "Failed catalog requests by source and error type.",
		},
		[]string{"source", "error_type"},
	)
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "isbnfinder_lookups_total",
			Help: "Adapter lookups by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	registry.MustRegister(requests, requestDuration, errorsTotal, lookups)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ErrorsTotal:     errorsTotal,
		LookupsTotal:    lookups,
	}
}

// IncRequest increments the requests counter for a source and phase.
func (m *Metrics) IncRequest(source, phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(source, phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(source).Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(source, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(source, errorType).Inc()
}

// IncLookup counts one adapter call; outcome is found, not_found, or error.
func (m *Metrics) IncLookup(source, outcome string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(source, outcome).Inc()
}
