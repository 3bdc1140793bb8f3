package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/core/logger"
)

// RequestIDHeader is the header carrying the request id.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// RequestIDConfig configures the request ID middleware.
type RequestIDConfig struct {
	// Generator creates new request IDs (default: UUID v4)
	Generator func() string
	// UseExisting keeps a request id sent by the client or a proxy
	UseExisting bool
}

// RequestID creates a request ID middleware with default configuration.
func RequestID() bunrouter.MiddlewareFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig creates a request ID middleware with custom configuration.
// The id is stored in the request context and echoed in the response headers.
func RequestIDWithConfig(cfg RequestIDConfig) bunrouter.MiddlewareFunc {
	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			var requestID string
			if cfg.UseExisting {
				requestID = req.Header.Get(RequestIDHeader)
			}
			if requestID == "" {
				requestID = cfg.Generator()
			}

			w.Header().Set(RequestIDHeader, requestID)
			ctx := context.WithValue(req.Context(), requestIDContextKey{}, requestID)
			return next(w, req.WithContext(ctx))
		}
	}
}

// GetRequestID returns the request id stored in ctx.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok && id != ""
}

// RequestIDExtractor adds the request id to log records.
func RequestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := GetRequestID(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}
