// Package app assembles the push server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/broker"
	"github.com/dmitrymomot/pushserver/core/cluster"
	"github.com/dmitrymomot/pushserver/core/config"
	"github.com/dmitrymomot/pushserver/core/httpapi"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/server"
	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/core/storage"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/integration/database/redis"
	"github.com/dmitrymomot/pushserver/middleware"
	"github.com/dmitrymomot/pushserver/pkg/channel"
)

// App owns the process lifecycle.
type App struct {
	config   Config
	logger   *slog.Logger
	redis    goredis.UniversalClient
	registry *prometheus.Registry
}

// Option configures an App.
type Option func(*App) error

// New loads the configuration from the environment and applies opts.
func New(opts ...Option) (*App, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}

	app := &App{config: cfg}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.logger == nil {
		app.logger = logger.New(
			logger.WithConfig(app.config.Log),
			logger.WithContextExtractor(middleware.RequestIDExtractor),
		)
	}
	if app.registry == nil {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if app.config.Broker.ProcessUniqueID == "" {
		app.config.Broker.ProcessUniqueID = defaultProcessID()
	}

	return app, nil
}

// WithConfig replaces the loaded configuration.
func WithConfig(cfg Config) Option {
	return func(app *App) error {
		app.config = cfg
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(app *App) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		app.logger = logger
		return nil
	}
}

// WithRedis sets the redis client instead of connecting with Config.Redis.
func WithRedis(client goredis.UniversalClient) Option {
	return func(app *App) error {
		if client == nil {
			return errors.New("redis client cannot be nil")
		}
		app.redis = client
		return nil
	}
}

// WithRegistry sets the prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(app *App) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		app.registry = reg
		return nil
	}
}

// Logger returns the process logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Run serves until ctx is canceled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config
	log := a.logger

	client := a.redis
	if client == nil {
		c, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		client = c
		defer client.Close()
	}

	signer, err := channel.NewSigner(cfg.Broker.SecurityKey, cfg.Broker.SecurityAlgo)
	if err != nil {
		return err
	}
	if !signer.Enabled() {
		log.WarnContext(ctx, "channel signing is disabled")
	}

	limits := cfg.Broker.Limits()
	st := stats.New(stats.WithMetrics(stats.NewMetrics(a.registry)))
	store := storage.NewRedisStorage(client, storage.WithConfig(cfg.Storage), storage.WithLogger(log))

	adapterOpts := []adapter.Option{
		adapter.WithLimits(limits),
		adapter.WithStatistics(st),
		adapter.WithProcessUniqueID(cfg.Broker.ProcessUniqueID),
		adapter.WithLogger(log),
	}

	var coord *cluster.Coordinator
	if cfg.ClusterMode() {
		coord = cluster.New(client, cluster.WithConfig(cfg.Cluster), cluster.WithLogger(log))
		adapterOpts = append(adapterOpts,
			adapter.WithSyncer(coord),
			adapter.WithPublishMode(cfg.Cluster.PublishMode),
		)
	}
	reg := adapter.New(adapterOpts...)

	b := broker.New(store, reg,
		broker.WithSigner(signer),
		broker.WithLimits(limits),
		broker.WithStatistics(st),
		broker.WithLogger(log),
	)

	sessionOpts := append(cfg.Session.Options(),
		transport.WithLastMessage(store.GetLastMessage),
		transport.WithLogger(log),
	)
	h := httpapi.NewHandler(b,
		httpapi.WithSigner(signer),
		httpapi.WithMaxPayload(int64(limits.MaxPayload)),
		httpapi.WithSessionOptions(sessionOpts...),
		httpapi.WithLogger(log),
	)

	routerCfg := httpapi.RouterConfig{
		Routes:  cfg.Routes,
		Metrics: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Checks:  []func(context.Context) error{redis.Healthcheck(client)},
		Logger:  log,
	}

	g, ctx := errgroup.WithContext(ctx)

	if coord != nil {
		g.Go(func() error { return coord.Run(ctx, reg) })
	}

	listeners := map[string]httpapi.Listener{}
	listeners[cfg.PublicAddr] |= httpapi.Public
	listeners[cfg.PublisherAddr] |= httpapi.Publisher

	for addr, listener := range listeners {
		srvCfg := cfg.Server
		srvCfg.Addr = addr

		srv, err := server.NewFromConfig(srvCfg, server.WithLogger(log), server.WithName(listenerName(listener)))
		if err != nil {
			return err
		}

		rc := routerCfg
		rc.Listener = listener
		g.Go(srv.Run(ctx, httpapi.NewRouter(h, rc)))
	}

	log.InfoContext(ctx, "push server started",
		slog.String("process_unique_id", cfg.Broker.ProcessUniqueID),
		slog.Bool("cluster_mode", cfg.ClusterMode()),
		slog.Bool("publish_mode", cfg.Cluster.PublishMode),
	)

	return g.Wait()
}

func listenerName(l httpapi.Listener) string {
	switch l {
	case httpapi.Public:
		return "public"
	case httpapi.Publisher:
		return "publisher"
	default:
		return "combined"
	}
}

func defaultProcessID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "pushserver"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
