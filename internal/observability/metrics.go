// Package observability exposes the Prometheus metrics surface.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queueRuns       *prometheus.CounterVec
	queueDuration   *prometheus.HistogramVec
	scanTargets     prometheus.Counter
	scanFailures    prometheus.Counter
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetpoint_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetpoint_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	queueRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetpoint_automation_runs_total",
		Help: "Automation queue runs by final status.",
	}, []string{"status"})
	queueDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meetpoint_automation_run_duration_seconds",
		Help:    "Automation queue run duration by final status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	scanTargets := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meetpoint_expiration_scan_targets_total",
		Help: "Targets examined by the expiration scan.",
	})
	scanFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meetpoint_expiration_scan_failures_total",
		Help: "Expiration scan runs that ended with an error.",
	})
	registry.MustRegister(requests, duration, queueRuns, queueDuration, scanTargets, scanFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		queueRuns:       queueRuns,
		queueDuration:   queueDuration,
		scanTargets:     scanTargets,
		scanFailures:    scanFailures,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveQueueRun records one automation queue run. Satisfies
// automation.MetricsRecorder.
func (m *Metrics) ObserveQueueRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.queueRuns.WithLabelValues(status).Inc()
	m.queueDuration.WithLabelValues(status).Observe(seconds)
}

// AddScanTargets counts targets examined by the expiration scan.
func (m *Metrics) AddScanTargets(n int) {
	if m == nil {
		return
	}
	m.scanTargets.Add(float64(n))
}

// IncScanFailures counts a failed expiration scan run.
func (m *Metrics) IncScanFailures() {
	if m == nil {
		return
	}
	m.scanFailures.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
