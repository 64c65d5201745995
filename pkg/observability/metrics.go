package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sign-in flow metrics
	FlowTotal               *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderErrorsTotal     *prometheus.CounterVec
	LinksCreatedTotal       *prometheus.CounterVec
	SignupsTotal            prometheus.Counter

	// Session store metrics
	SessionStoreOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginoidc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loginoidc_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		FlowTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginoidc_flow_total",
				Help: "Sign-in flow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loginoidc_provider_request_duration_seconds",
				Help:    "Duration of outbound calls to the identity provider",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginoidc_provider_errors_total",
				Help: "Failed outbound calls to the identity provider",
			},
			[]string{"endpoint", "kind"},
		),
		LinksCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginoidc_account_links_created_total",
				Help: "Account links created, by how they were created",
			},
			[]string{"reason"},
		),
		SignupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "loginoidc_signups_total",
				Help: "Local users created through remote sign-in",
			},
		),

		SessionStoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loginoidc_session_store_operations_total",
				Help: "Session store operations by backend and status",
			},
			[]string{"operation", "backend", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FlowTotal,
		m.ProviderRequestDuration,
		m.ProviderErrorsTotal,
		m.LinksCreatedTotal,
		m.SignupsTotal,
		m.SessionStoreOperationsTotal,
	)

	return m
}

// NewNopMetrics returns metrics registered on a private registry, for tests
// and callers that do not export metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RecordFlow counts one completed flow operation
func (m *Metrics) RecordFlow(operation, outcome string) {
	m.FlowTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveProvider records the latency of an outbound provider call and, when
// kind is non-empty, counts it as a failure of that kind.
func (m *Metrics) ObserveProvider(endpoint string, start time.Time, kind string) {
	m.ProviderRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if kind != "" {
		m.ProviderErrorsTotal.WithLabelValues(endpoint, kind).Inc()
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their gorilla/mux route template so that path
// parameters and query strings never create new series.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
