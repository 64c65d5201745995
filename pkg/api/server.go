package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/loginoidc/pkg/httputil"
	"github.com/platinummonkey/loginoidc/pkg/observability"
)

// DefaultMaxBodyBytes bounds request bodies; sign-in forms are tiny
const DefaultMaxBodyBytes = 64 << 10

// Config holds the request limits applied to every route
type Config struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// Dependencies are the parts the server is assembled from. Health, Metrics
// and Gatherer are optional.
type Dependencies struct {
	Logger   *observability.Logger
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server represents our HTTP server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a server with health and metrics routes. Application
// routes are added with RegisterRoutes.
func NewServer(deps Dependencies, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 25 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(deps)

	if deps.Metrics != nil {
		// route templates are only known once mux has matched
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteCodedError(w, r, http.StatusNotFound, "NotFound", "not found")
	})

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.NoStoreMiddleware,
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
		httputil.TimeoutMiddleware(cfg.RequestTimeout),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "loginoidc",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// setupRoutes configures the operational routes
func (s *Server) setupRoutes(deps Dependencies) {
	if deps.Health != nil {
		s.router.HandleFunc("/health/live", deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", deps.Health.Readiness).Methods("GET")
	}
	if deps.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Gatherer)).Methods("GET")
	}
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
