package middleware

import (
	"context"
	"net/http"

	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/pkg/clientip"
)

type clientIPContextKey struct{}

// ClientIP stores the client address of every request in its context.
func ClientIP() bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			ctx := context.WithValue(req.Context(), clientIPContextKey{}, clientip.GetIP(req.Request))
			return next(w, req.WithContext(ctx))
		}
	}
}

// GetClientIP returns the client address stored in ctx.
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok
}
