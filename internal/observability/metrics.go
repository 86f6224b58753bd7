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
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	quarantineEvents  prometheus.Counter
	recallsInitiated  prometheus.Counter
	allocationsFailed prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmaos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmaos_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	quarantine := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmaos_quarantine_events_total",
		Help: "Stock records quarantined by cold-chain telemetry.",
	})
	recalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmaos_recalls_initiated_total",
		Help: "Recall notices queued.",
	})
	allocFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pharmaos_allocation_failures_total",
		Help: "Order lines that failed allocation.",
	})
	registry.MustRegister(requests, duration, quarantine, recalls, allocFailed)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		quarantineEvents:  quarantine,
		recallsInitiated:  recalls,
		allocationsFailed: allocFailed,
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

// QuarantineEvent counts one newly quarantined record.
func (m *Metrics) QuarantineEvent() {
	if m != nil {
		m.quarantineEvents.Inc()
	}
}

// RecallInitiated counts one queued recall.
func (m *Metrics) RecallInitiated() {
	if m != nil {
		m.recallsInitiated.Inc()
	}
}

// AllocationFailed counts one failed order line.
func (m *Metrics) AllocationFailed() {
	if m != nil {
		m.allocationsFailed.Inc()
	}
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
