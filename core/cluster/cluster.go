package cluster

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const (
	keyStats            = "stats"
	prefixOnline        = "channel:online:"
	prefixOnlinePublic  = "pubchannel:online:"
	defaultTopicPrefix  = "pushserver"
	defaultWriteTimeout = 5 * time.Second
)

// Config holds cluster settings.
type Config struct {
	Enabled     bool          `env:"CLUSTER_MODE" envDefault:"false"`
	PublishMode bool          `env:"CLUSTER_PUBLISH_MODE" envDefault:"false"`
	TopicPrefix string        `env:"CLUSTER_TOPIC_PREFIX" envDefault:"pushserver"`
	OnlineTTL   time.Duration `env:"CLUSTER_ONLINE_TTL" envDefault:"120s"`
	OnlineDelta time.Duration `env:"CLUSTER_ONLINE_DELTA" envDefault:"10s"`
	StatTTL     time.Duration `env:"CLUSTER_STAT_TTL" envDefault:"60s"`
	StatDelta   time.Duration `env:"CLUSTER_STAT_DELTA" envDefault:"10s"`
}

// Registry is the local side of the cluster: peer notifications are
// delivered to it and its snapshot is shared with the peers.
type Registry interface {
	DeliverLocal(receivers []protocol.Receiver, msg protocol.OutgoingMessage) int
	LocalServerStats() stats.ServerStats
}

// Coordinator makes a pool of processes behave as one broker. It implements
// adapter.Syncer on top of Redis pub/sub and TTL keys. Store and bus errors
// are logged and never returned from the write paths.
type Coordinator struct {
	client      redis.UniversalClient
	instanceID  string
	prefix      string
	publishMode bool
	onlineTTL   time.Duration
	statTTL     time.Duration
	statDelta   time.Duration
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger
	ready       chan struct{}
}

var _ adapter.Syncer = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig applies cfg.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.publishMode = cfg.PublishMode
		if cfg.TopicPrefix != "" {
			c.prefix = cfg.TopicPrefix
		}
		if cfg.OnlineTTL > 0 {
			c.onlineTTL = cfg.OnlineTTL + cfg.OnlineDelta
		}
		if cfg.StatTTL > 0 {
			c.statTTL = cfg.StatTTL
		}
		if cfg.StatDelta > 0 {
			c.statDelta = cfg.StatDelta
		}
	}
}

// WithInstanceID overrides the random instance id.
func WithInstanceID(id string) Option {
	return func(c *Coordinator) {
		if id != "" {
			c.instanceID = id
		}
	}
}

// WithClock overrides the time source used to age shared stats.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator with a random 8-character instance id.
func New(client redis.UniversalClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:     client,
		instanceID: uuid.NewString()[:8],
		prefix:     defaultTopicPrefix,
		onlineTTL:  130 * time.Second,
		statTTL:    time.Minute,
		statDelta:  10 * time.Second,
		timeout:    defaultWriteTimeout,
		now:        time.Now,
		logger:     logger.Discard(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("cluster"), logger.Instance(c.instanceID))
	return c
}

// InstanceID returns the id that tags this instance's bus topic.
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Topic returns the bus topic this instance publishes on.
func (c *Coordinator) Topic() string {
	return c.prefix + ":" + c.instanceID
}

// Ready is closed once Run has subscribed to the bus.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// Connected marks every channel of conn online for the presence TTL.
func (c *Coordinator) Connected(ctx context.Context, conn adapter.Connection) {
	channels := conn.Channels()
	if len(channels) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, ch := range channels {
			p.SetEx(ctx, prefixOnline+string(ch.PrivateID), "1", c.onlineTTL)
			if ch.HasPublicID() {
				p.SetEx(ctx, prefixOnlinePublic+string(ch.PublicID), "1", c.onlineTTL)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to set online", logger.Error(err), logger.ClientIP(conn.IP()))
	}
}

// Published forwards msg to the peers.
func (c *Coordinator) Published(ctx context.Context, receivers []protocol.Receiver, msg protocol.OutgoingMessage) {
	payload := protocol.MarshalNotificationBatch(protocol.IPCMessage{
		Receivers:       receivers,
		OutgoingMessage: &msg,
	})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.client.Publish(ctx, c.Topic(), payload).Err(); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish notification", logger.Error(err), logger.MessageID(msg.ID))
	}
}

// ChannelStats answers presence from the shared store.
func (c *Coordinator) ChannelStats(ctx context.Context, ids []protocol.ChannelID) ([]protocol.ChannelStats, error) {
	if len(ids) == 0 {
		return []protocol.ChannelStats{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		if id.IsPrivate {
			keys[i] = prefixOnline + string(id.ID)
		} else {
			keys[i] = prefixOnlinePublic + string(id.ID)
		}
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to read presence", logger.Error(err))
		return nil, errors.Join(ErrPresence, err)
	}

	out := make([]protocol.ChannelStats, len(ids))
	for i, id := range ids {
		_, online := values[i].(string)
		out[i] = protocol.ChannelStats{ID: id.ID, IsPrivate: id.IsPrivate, IsOnline: online}
	}
	return out, nil
}

// ServerStats returns the snapshots of every live process, dropping the
// entries that are older than the stats TTL window.
func (c *Coordinator) ServerStats(ctx context.Context) ([]stats.ServerStats, error) {
	entries, err := c.client.HGetAll(ctx, keyStats).Result()
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to read server stats", logger.Error(err))
		return nil, errors.Join(ErrStats, err)
	}

	window := (c.statTTL + c.statDelta).Milliseconds()
	now := c.now().UnixMilli()

	out := make([]stats.ServerStats, 0, len(entries))
	var stale []string
	for field, value := range entries {
		var s stats.ServerStats
		if err := json.Unmarshal([]byte(value), &s); err != nil || s.Date == 0 || now-s.Date > window {
			stale = append(stale, field)
			continue
		}
		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b stats.ServerStats) int {
		return cmp.Compare(a.ProcessUniqueID, b.ProcessUniqueID)
	})

	if len(stale) > 0 {
		if err := c.client.HDel(ctx, keyStats, stale...).Err(); err != nil {
			c.logger.ErrorContext(ctx, "failed to delete stale server stats", logger.Error(err))
		}
	}

	return out, nil
}

// Run writes this process's stats every stats TTL and, unless in publish
// mode, delivers peer notifications to reg until ctx is done.
func (c *Coordinator) Run(ctx context.Context, reg Registry) error {
	c.writeStats(ctx, reg)

	ticker := time.NewTicker(c.statTTL)
	defer ticker.Stop()

	var messages <-chan *redis.Message
	if !c.publishMode {
		pubsub := c.client.PSubscribe(ctx, c.prefix+":*")
		defer pubsub.Close()

		if _, err := pubsub.Receive(ctx); err != nil {
			c.logger.ErrorContext(ctx, "failed to subscribe", logger.Error(err))
		}
		messages = pubsub.Channel()
	}
	close(c.ready)

	c.logger.InfoContext(ctx, "cluster coordinator started", slog.Bool("publish_mode", c.publishMode))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.writeStats(ctx, reg)
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(reg, m.Channel, []byte(m.Payload))
		}
	}
}

func (c *Coordinator) handle(reg Registry, topic string, payload []byte) {
	if i := strings.LastIndexByte(topic, ':'); i >= 0 && topic[i+1:] == c.instanceID {
		return
	}

	messages, err := protocol.UnmarshalNotificationBatch(payload)
	if err != nil {
		c.logger.Debug("dropping undecodable notification", logger.Error(err))
		return
	}

	for _, m := range messages {
		if m.OutgoingMessage != nil {
			reg.DeliverLocal(m.Receivers, *m.OutgoingMessage)
		}
	}
}

func (c *Coordinator) writeStats(ctx context.Context, reg Registry) {
	snapshot := reg.LocalServerStats()
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode server stats", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.HSet(ctx, keyStats, snapshot.ProcessUniqueID, data).Err(); err != nil {
		c.logger.ErrorContext(ctx, "failed to write server stats", logger.Error(err))
	}
}
