// Package metrics exposes Prometheus counters for the cache and refresh paths
// and keeps DDSketch latency summaries for the stats endpoint.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/nimbus/internal/weather"
)

// Metrics implements weather.Recorder and refresh.Recorder.
type Metrics struct {
	resolveTotal    *prometheus.CounterVec
	fetchTotal      *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	latency *LatencyTracker
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_resolve_total",
				Help: "Resolve calls by category and where the value came from",
			},
			[]string{"category", "source"},
		),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_provider_fetch_total",
				Help: "Provider fetches by provider and result",
			},
			[]string{"provider", "result"},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_refresh_total",
				Help: "Background refresh runs by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "The total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "The HTTP request latencies in seconds",
			},
			[]string{"method", "endpoint"},
		),
		latency: NewLatencyTracker(0.01),
	}

	reg.MustRegister(m.resolveTotal, m.fetchTotal, m.refreshTotal, m.requestsTotal, m.requestDuration)
	return m
}

// Latency returns the tracker behind the stats endpoint.
func (m *Metrics) Latency() *LatencyTracker {
	return m.latency
}

func (m *Metrics) ObserveResolve(category weather.Category, source string, d time.Duration) {
	m.resolveTotal.WithLabelValues(category.Lower(), source).Inc()
	m.latency.Record("resolve."+category.Lower(), d)
}

func (m *Metrics) ObserveFetch(provider string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetchTotal.WithLabelValues(provider, result).Inc()
	m.latency.Record("fetch."+provider, d)
}

func (m *Metrics) ObserveRefresh(category weather.Category, outcome string, d time.Duration) {
	m.refreshTotal.WithLabelValues(category.Lower(), outcome).Inc()
	m.latency.Record("refresh."+category.Lower(), d)
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
