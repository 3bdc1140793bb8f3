package transport

import "time"

// Config holds the session timings loaded from the environment.
type Config struct {
	PollTimeout    time.Duration `env:"SESSION_POLL_TIMEOUT" envDefault:"40s"`
	PingInterval   time.Duration `env:"SESSION_PING_INTERVAL" envDefault:"120s"`
	CoalesceWindow time.Duration `env:"SESSION_COALESCE_WINDOW" envDefault:"400ms"`
	RequestTimeout time.Duration `env:"SESSION_REQUEST_TIMEOUT" envDefault:"20s"`
	QueueSize      int           `env:"SESSION_QUEUE_SIZE" envDefault:"64"`
}

// Options converts the config to session options. Zero values keep the
// defaults.
func (c Config) Options() []Option {
	return []Option{
		WithPollTimeout(c.PollTimeout),
		WithPingInterval(c.PingInterval),
		WithCoalesceWindow(c.CoalesceWindow),
		WithRequestTimeout(c.RequestTimeout),
		WithQueueSize(c.QueueSize),
	}
}
