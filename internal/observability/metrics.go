// Package observability provides structured logging and Prometheus metrics
// for the gateway.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets defines histogram buckets for backend latencies, from 100ms to the 120s call timeout.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds the gateway collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	// DispatchRequests counts backend calls by provider, operation and outcome
	DispatchRequests *prometheus.CounterVec

	// DispatchLatency records backend call duration in seconds
	DispatchLatency *prometheus.HistogramVec

	// StreamFragments counts text fragments delivered from streamed calls
	StreamFragments *prometheus.CounterVec

	// StreamsActive tracks streams currently being consumed
	StreamsActive prometheus.Gauge

	// HTTPRequests counts HTTP requests by method, route pattern and status class
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration records HTTP request duration in seconds
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the gateway collectors along with Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DispatchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_dispatch_requests_total",
				Help: "Backend calls by provider, operation and status",
			},
			[]string{"provider", "operation", "status"},
		),
		DispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_dispatch_latency_seconds",
				Help:    "Backend call latency",
				Buckets: LLMBuckets,
			},
			[]string{"provider", "operation"},
		),
		StreamFragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_stream_fragments_total",
				Help: "Fragments delivered from streamed calls",
			},
			[]string{"provider"},
		),
		StreamsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_streams_active",
				Help: "Streams currently being consumed",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_http_requests_total",
				Help: "HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: LLMBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DispatchRequests,
		m.DispatchLatency,
		m.StreamFragments,
		m.StreamsActive,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDispatch records one finished backend call
func (m *Metrics) ObserveDispatch(provider, operation, status string, duration time.Duration) {
	m.DispatchRequests.WithLabelValues(provider, operation, status).Inc()
	m.DispatchLatency.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RegisterAuditStats exposes dispatch log counters read from statsFn
func (m *Metrics) RegisterAuditStats(statsFn func() (written, failed, dropped int64)) {
	counter := func(name, help string, pick func(w, f, d int64) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(pick(statsFn()))
		})
	}

	m.registry.MustRegister(
		counter("nexus_audit_records_written_total", "Dispatch records persisted",
			func(w, _, _ int64) int64 { return w }),
		counter("nexus_audit_records_failed_total", "Dispatch records that failed to persist",
			func(_, f, _ int64) int64 { return f }),
		counter("nexus_audit_records_dropped_total", "Dispatch records dropped on a full buffer",
			func(_, _, d int64) int64 { return d }),
	)
}

// Middleware records HTTP request metrics labelled with the chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status/100)+"xx").Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
