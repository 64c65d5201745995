// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry tracing and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider", "oidc").Info("callback completed")
//
// Request-scoped logging picks up the request id and signed-in login:
//
//	observability.FromContext(r.Context()).WithError(err).Warn("callback failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordFlow("callback", "signed_in")
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health Checks
//
// Readiness pings PostgreSQL and Redis concurrently. A failing database makes
// the service unhealthy (503); a failing Redis only degrades it.
//
// # Tracing
//
// InitTracing installs an OTLP/gRPC tracer provider; sign-in operations open
// spans through Tracer().
package observability
