package broker

import "github.com/dmitrymomot/pushserver/core/stats"

// Config holds the request limits and the channel signing settings.
type Config struct {
	MaxPayload            int    `env:"LIMITS_MAX_PAYLOAD" envDefault:"1048576"`
	MaxConnPerChannel     int    `env:"LIMITS_MAX_CONN_PER_CHANNEL" envDefault:"100"`
	MaxMessagesPerRequest int    `env:"LIMITS_MAX_MESSAGES_PER_REQUEST" envDefault:"100"`
	MaxChannelsPerRequest int    `env:"LIMITS_MAX_CHANNELS_PER_REQUEST" envDefault:"100"`
	SecurityKey           string `env:"SECURITY_KEY"`
	SecurityAlgo          string `env:"SECURITY_ALGO" envDefault:"sha1"`
	ProcessUniqueID       string `env:"PROCESS_UNIQUE_ID"`
}

// Limits returns the limits part of the config.
func (c Config) Limits() stats.Limits {
	return stats.Limits{
		MaxPayload:            c.MaxPayload,
		MaxConnPerChannel:     c.MaxConnPerChannel,
		MaxMessagesPerRequest: c.MaxMessagesPerRequest,
		MaxChannelsPerRequest: c.MaxChannelsPerRequest,
	}
}
