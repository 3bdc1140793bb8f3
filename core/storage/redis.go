package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const (
	keyMessageCounter = "server:messagecounter"
	keyStartDate      = "server:startdate"

	prefixMessage       = "message:"
	prefixChannel       = "channel:messages:"
	prefixPublicChannel = "pubchannel:messages:"
)

// Config holds the log retention settings.
type Config struct {
	MessageTTL time.Duration `env:"STORAGE_MESSAGE_TTL" envDefault:"24h"`
	ChannelTTL time.Duration `env:"STORAGE_CHANNEL_TTL" envDefault:"24h"`
}

// RedisStorage implements Storage on Redis. Keys embed raw id bytes.
type RedisStorage struct {
	client     redis.UniversalClient
	messageTTL time.Duration
	channelTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	epochMu  sync.Mutex
	epoch    uint64
	hasEpoch bool
}

// Option configures RedisStorage.
type Option func(*RedisStorage)

// WithConfig applies retention settings from cfg.
func WithConfig(cfg Config) Option {
	return func(s *RedisStorage) {
		if cfg.MessageTTL > 0 {
			s.messageTTL = cfg.MessageTTL
		}
		if cfg.ChannelTTL > 0 {
			s.channelTTL = cfg.ChannelTTL
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *RedisStorage) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for the epoch and created timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RedisStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStorage creates a RedisStorage with a 24h message and channel TTL by default.
func NewRedisStorage(client redis.UniversalClient, opts ...Option) *RedisStorage {
	s := &RedisStorage{
		client:     client,
		messageTTL: 24 * time.Hour,
		channelTTL: 24 * time.Hour,
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("storage"))
	return s
}

// Set implements Storage.
func (s *RedisStorage) Set(ctx context.Context, in protocol.IncomingMessage) (protocol.OutgoingMessage, error) {
	counter, err := s.client.Incr(ctx, keyMessageCounter).Uint64()
	if err != nil {
		return protocol.OutgoingMessage{}, errors.Join(ErrWrite, err)
	}

	epoch, err := s.startDate(ctx)
	if err != nil {
		return protocol.OutgoingMessage{}, err
	}

	msg := protocol.OutgoingMessage{
		ID:      protocol.NewMessageID(epoch, counter),
		Body:    in.Body,
		Created: uint32(s.now().Unix()),
		Sender:  in.Sender,
	}
	if in.Expiry > 0 {
		msg.Expiry = min(in.Expiry, uint32(s.messageTTL/time.Second))
	}

	if msg.Expiry == 0 || len(in.Receivers) == 0 {
		return msg, nil
	}

	keys := indexKeys(in.Receivers)
	start := time.Now()

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, messageKey(msg.ID), protocol.MarshalOutgoingMessage(msg), time.Duration(msg.Expiry)*time.Second)
		for _, key := range keys {
			p.ZAdd(ctx, key, redis.Z{Score: 0, Member: string(msg.ID)})
		}
		return nil
	})
	if err != nil {
		return msg, errors.Join(ErrWrite, err)
	}

	s.logger.DebugContext(ctx, "message saved",
		logger.MessageID(msg.ID),
		logger.Count("receivers", len(keys)),
		logger.Elapsed(start),
	)

	s.renewChannelTTL(ctx, keys)

	return msg, nil
}

// Get implements Storage.
func (s *RedisStorage) Get(ctx context.Context, receivers []protocol.Receiver, since []byte) ([]protocol.OutgoingMessage, error) {
	if len(receivers) == 0 {
		return nil, nil
	}

	lower := "-"
	if len(since) > 0 {
		lower = "(" + string(since)
	}

	keys := indexKeys(receivers)
	start := time.Now()

	cmds := make([]*redis.StringSliceCmd, len(keys))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.ZRangeByLex(ctx, key, &redis.ZRangeBy{Min: lower, Max: "+"})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Go compares strings bytewise, which is the id order.
	sort.Strings(ids)

	msgKeys := make([]string, len(ids))
	for i, id := range ids {
		msgKeys[i] = prefixMessage + id
	}

	values, err := s.client.MGet(ctx, msgKeys...).Result()
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	messages := make([]protocol.OutgoingMessage, 0, len(values))
	for i, v := range values {
		body, ok := v.(string)
		if !ok {
			continue
		}
		msg, err := protocol.UnmarshalOutgoingMessage([]byte(body))
		if err != nil {
			s.logger.WarnContext(ctx, "skipping undecodable message", logger.MessageID([]byte(ids[i])), logger.Error(err))
			continue
		}
		messages = append(messages, msg)
	}

	s.logger.DebugContext(ctx, "messages fetched",
		logger.Count("receivers", len(keys)),
		logger.Count("messages", len(messages)),
		logger.Elapsed(start),
	)

	return messages, nil
}

// GetLastMessage implements Storage.
func (s *RedisStorage) GetLastMessage(ctx context.Context, receivers []protocol.Receiver) (*protocol.OutgoingMessage, error) {
	if len(receivers) == 0 {
		return nil, nil
	}

	keys := indexKeys(receivers)
	cmds := make([]*redis.StringSliceCmd, len(keys))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.ZRevRange(ctx, key, 0, 0)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	var last []byte
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			if bytes.Compare([]byte(id), last) > 0 {
				last = []byte(id)
			}
		}
	}
	if last == nil {
		return nil, nil
	}

	body, err := s.client.Get(ctx, messageKey(last)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}

	msg, err := protocol.UnmarshalOutgoingMessage(body)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping undecodable message", logger.MessageID(last), logger.Error(err))
		return nil, nil
	}

	return &msg, nil
}

// startDate returns the deployment epoch, agreeing on it with the other
// processes through SETNX on first use.
func (s *RedisStorage) startDate(ctx context.Context) (uint64, error) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()

	if s.hasEpoch {
		return s.epoch, nil
	}

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, keyStartDate, s.now().Unix(), 0)
		get = p.Get(ctx, keyStartDate)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get start date", logger.Error(err))
		return 0, errors.Join(ErrEpoch, err)
	}

	epoch, err := get.Uint64()
	if err != nil {
		return 0, errors.Join(ErrEpoch, fmt.Errorf("parse %s: %w", keyStartDate, err))
	}

	s.epoch = epoch
	s.hasEpoch = true
	return epoch, nil
}

// renewChannelTTL sets the channel TTL on indexes that have none.
// Failures are logged only.
func (s *RedisStorage) renewChannelTTL(ctx context.Context, keys []string) {
	cmds := make([]*redis.DurationCmd, len(keys))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.TTL(ctx, key)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read channel ttl", logger.Error(err))
		return
	}

	var persistent []string
	for i, cmd := range cmds {
		// -1: the key exists without a TTL
		if cmd.Val() == -1 {
			persistent = append(persistent, keys[i])
		}
	}
	if len(persistent) == 0 {
		return
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range persistent {
			p.Expire(ctx, key, s.channelTTL)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to set channel ttl", logger.Error(err))
	}
}

func messageKey(id []byte) string {
	return prefixMessage + string(id)
}

// IndexKey returns the catch-up index key of a receiver.
func IndexKey(r protocol.Receiver) string {
	if r.IsPrivate {
		return prefixChannel + string(r.ID)
	}
	return prefixPublicChannel + string(r.ID)
}

func indexKeys(receivers []protocol.Receiver) []string {
	keys := make([]string, 0, len(receivers))
	seen := make(map[string]struct{}, len(receivers))
	for _, r := range receivers {
		key := IndexKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
