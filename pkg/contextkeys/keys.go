// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that packages
// never collide on string keys and every producer/consumer pair is discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoginKey contains the signed-in local login
	// Set by: sso handlers after the session is loaded
	// Used by: Logger
	// Type: string
	LoginKey Key = "login"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogin adds the signed-in login to the context
func WithLogin(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, LoginKey, login)
}

// GetLogin retrieves the signed-in login from context
func GetLogin(ctx context.Context) string {
	if login, ok := ctx.Value(LoginKey).(string); ok {
		return login
	}
	return ""
}
