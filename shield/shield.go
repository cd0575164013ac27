// Package shield provides reusable HTTP security middleware for the
// encart service: security headers derived from the admission policy,
// request body limits, trace IDs, HEAD handling, maintenance mode, and
// the persistent per-(IP, function) rate limiter.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(pol) {
//	    r.Use(mw)
//	}
//	r.With(limiter.Limit(shield.Rule{...})).Get("/api/encarts/serve", h)
package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/encart/policy"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey contextKey = "shield_trace_id"
)

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetTraceID returns the request trace ID, or "" outside a request.
func GetTraceID(ctx context.Context) string {
	s, _ := ctx.Value(TraceIDKey).(string)
	return s
}

// DefaultStack returns the standard middleware stack for the encart
// API: HeadToGet → SecurityHeaders (CSP from policy) → MaxBody →
// TraceID. Rate limiting is applied per-route, not globally, because
// each function carries its own quota.
func DefaultStack(pol *policy.Policy) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(HeadersForPolicy(pol)),
		MaxBody(256 * 1024),
		TraceID,
	}
}
