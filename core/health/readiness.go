package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/core/logger"
)

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
func Readiness(log *slog.Logger, fn ...func(context.Context) error) bunrouter.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		ctx := req.Context()
		for _, f := range fn {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "Readiness check failed", logger.Error(err))
				return text(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
			}
		}
		return text(w, http.StatusOK, "READY")
	}
}
