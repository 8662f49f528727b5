// Package metrics exposes export pipeline counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Export outcomes used as the "outcome" label.
const (
	OutcomeDone      = "done"
	OutcomeFallback  = "fallback"
	OutcomeCancelled = "cancelled"
)

// Metrics holds Prometheus collectors for the upscaler.
type Metrics struct {
	registry       *prometheus.Registry
	exportsTotal   *prometheus.CounterVec
	framesRendered prometheus.Counter
	framesDropped  prometheus.Counter
	exportDuration prometheus.Histogram
	activeExports  prometheus.Gauge
	requestsTotal  prometheus.Counter
	errorsTotal    prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	exportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upscaler_exports_total",
		Help: "Finished exports by outcome",
	}, []string{"outcome"})
	framesRendered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upscaler_frames_rendered_total",
		Help: "Frames painted onto the render target",
	})
	framesDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upscaler_frames_dropped_total",
		Help: "Captured frames dropped because the encoder lagged",
	})
	exportDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "upscaler_export_duration_seconds",
		Help:    "Wall time from export start to delivery",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	activeExports := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "upscaler_active_exports",
		Help: "Exports currently in flight",
	})
	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upscaler_asset_requests_total",
		Help: "Requests served by the local asset router",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upscaler_asset_errors_total",
		Help: "Asset router responses with status >= 400",
	})

	registry.MustRegister(
		exportsTotal,
		framesRendered,
		framesDropped,
		exportDuration,
		activeExports,
		requestsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:       registry,
		exportsTotal:   exportsTotal,
		framesRendered: framesRendered,
		framesDropped:  framesDropped,
		exportDuration: exportDuration,
		activeExports:  activeExports,
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
	}
}

// ExportStarted marks one export as active.
func (m *Metrics) ExportStarted() {
	m.activeExports.Inc()
}

// ExportFinished records the outcome and duration of one export.
func (m *Metrics) ExportFinished(outcome string, elapsed time.Duration) {
	m.activeExports.Dec()
	m.exportsTotal.WithLabelValues(outcome).Inc()
	m.exportDuration.Observe(elapsed.Seconds())
}

// IncFramesRendered counts one painted frame.
func (m *Metrics) IncFramesRendered() {
	m.framesRendered.Inc()
}

// AddFramesDropped counts frames dropped by a capture track.
func (m *Metrics) AddFramesDropped(n int) {
	if n > 0 {
		m.framesDropped.Add(float64(n))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware returns chi-compatible middleware that records request
// and error counts.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			m.requestsTotal.Inc()
			if wrap.status >= 400 {
				m.errorsTotal.Inc()
			}
		})
	}
}
