package app

import (
	"github.com/dmitrymomot/pushserver/core/broker"
	"github.com/dmitrymomot/pushserver/core/cluster"
	"github.com/dmitrymomot/pushserver/core/httpapi"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/server"
	"github.com/dmitrymomot/pushserver/core/storage"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/integration/database/redis"
)

// Config is the whole process configuration.
type Config struct {
	Log     logger.Config
	Redis   redis.Config
	Server  server.Config
	Broker  broker.Config
	Storage storage.Config
	Cluster cluster.Config
	Session transport.Config
	Routes  httpapi.Routes

	// PublicAddr serves clients, PublisherAddr serves backends. Equal
	// addresses share one listener.
	PublicAddr    string `env:"PUBLIC_ADDR" envDefault:":8010"`
	PublisherAddr string `env:"PUBLISHER_ADDR" envDefault:":8895"`
}

// ClusterMode reports whether the process shares state through Redis.
// Publish mode implies cluster mode.
func (c Config) ClusterMode() bool {
	return c.Cluster.Enabled || c.Cluster.PublishMode
}
