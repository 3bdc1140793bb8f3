package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/core/health"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/middleware"
)

// Listener selects the routes a router serves.
type Listener int

const (
	// Public serves the client routes.
	Public Listener = 1 << iota
	// Publisher serves the backend routes.
	Publisher
	// Combined serves both, for a single shared address.
	Combined = Public | Publisher
)

// RouterConfig describes one listener's router.
type RouterConfig struct {
	Listener Listener
	Routes   Routes
	// Metrics is served on /metrics of the publisher listener when set.
	Metrics http.Handler
	// Checks back /health/ready of the publisher listener.
	Checks []func(context.Context) error
	Logger *slog.Logger
}

// NewRouter builds the bunrouter for one listener.
func NewRouter(h *Handler, cfg RouterConfig) *bunrouter.Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := bunrouter.New(
		bunrouter.WithNotFoundHandler(NotFound),
		bunrouter.WithMethodNotAllowedHandler(NotFound),
		bunrouter.Use(
			middleware.RequestID(),
			middleware.ClientIP(),
			middleware.LoggingWithConfig(middleware.LoggingConfig{
				Logger:   log,
				LogLevel: slog.LevelDebug,
				Skip: func(req bunrouter.Request) bool {
					return cfg.Routes.Sub != "" && req.URL.Path == cfg.Routes.Sub && req.Method == http.MethodGet
				},
			}),
			middleware.BodyLimit(h.maxPayload),
		),
	)

	routes := cfg.Routes
	if cfg.Listener&Public != 0 {
		if routes.Sub != "" {
			r.GET(routes.Sub, h.Subscribe)
			r.OPTIONS(routes.Sub, h.Preflight)
		}
		if routes.Rest != "" {
			r.POST(routes.Rest, h.Rest)
		}
	}

	if cfg.Listener&Publisher != 0 {
		if routes.Pub != "" {
			r.POST(routes.Pub, h.Publish)
			r.GET(routes.Pub, h.ChannelStats)
		}
		if routes.Stat != "" {
			r.GET(routes.Stat, h.ServerStats)
		}
		if cfg.Metrics != nil {
			r.GET("/metrics", bunrouter.HTTPHandler(cfg.Metrics))
		}
		r.GET("/health/live", health.Liveness)
		r.GET("/health/ready", health.Readiness(log, cfg.Checks...))
	}

	return r
}
