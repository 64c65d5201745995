// Package api assembles the HTTP server of the sign-in service.
//
// # Overview
//
// Server owns a gorilla/mux router with the operational routes and wraps it
// in the middleware every request passes through:
//
//	otelhttp -> request id -> logging -> recovery -> no-store -> max body -> timeout -> router
//
// Prometheus HTTP metrics run inside the router so that requests are labelled
// by route template.
//
// # Routes
//
//	GET /health/live   liveness
//	GET /health/ready  readiness (PostgreSQL, Redis when used)
//	GET /metrics       Prometheus exposition
//
// Application routes are attached with RegisterRoutes:
//
//	server := api.NewServer(api.Dependencies{Logger: logger, Health: health}, api.Config{})
//	server.RegisterRoutes(sso.NewHandlers(controller, sessions, baseURL))
//	http.ListenAndServe(":8080", server)
package api
