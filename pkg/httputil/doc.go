// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCodedError(w, r, http.StatusForbidden, "StateMismatch", "Sign-in request expired")
//	httputil.Redirect(w, r, target)
//
// # Request Parsing
//
//	nonce := httputil.FormValue(r, "form_nonce") // POST body only
//	state := httputil.QueryValue(r, "state")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
