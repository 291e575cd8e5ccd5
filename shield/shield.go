// Package shield provides the HTTP middleware stack for the affiche API:
// security headers, request body caps, per-request IDs with a structured
// logger, HEAD handling and SQLite-backed per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(1 << 20) {
//	    r.Use(mw)
//	}
//	rl := shield.NewRateLimiter(db, "/healthz")
//	rl.StartReloader(done)
//	r.Use(rl.Middleware)
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context. Returns
// slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultAPIStack returns the standard middleware stack for the JSON API.
// Ordered: HeadToGet → SecurityHeaders → MaxBody → RequestID. Rate
// limiting is separate because it needs a database handle.
func DefaultAPIStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		RequestID,
	}
}
