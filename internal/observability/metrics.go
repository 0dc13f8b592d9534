package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the backoffice service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	paymentsRecorded  prometheus.Counter
	deliveriesApplied prometheus.Counter
	engineFailures    *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and reconciliation metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lumenluz_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumenluz_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lumenluz_payments_recorded_total",
		Help: "Payments recorded against quotations.",
	})
	deliveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lumenluz_deliveries_applied_total",
		Help: "Delivery updates applied to quotation lines.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lumenluz_reconciliation_failures_total",
		Help: "Rejected engine operations by reason.",
	}, []string{"reason"})
	registry.MustRegister(requests, duration, payments, deliveries, failures)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		paymentsRecorded:  payments,
		deliveriesApplied: deliveries,
		engineFailures:    failures,
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

// Middleware records request counts and durations per chi route pattern.
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

// PaymentRecorded increments the recorded-payments counter.
func (m *Metrics) PaymentRecorded() {
	if m != nil {
		m.paymentsRecorded.Inc()
	}
}

// DeliveryApplied increments the applied-deliveries counter.
func (m *Metrics) DeliveryApplied() {
	if m != nil {
		m.deliveriesApplied.Inc()
	}
}

// EngineFailure counts a rejected operation under the given reason label.
func (m *Metrics) EngineFailure(reason string) {
	if m != nil {
		m.engineFailures.WithLabelValues(reason).Inc()
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
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
