package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/core/storage"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// Registry is the set of live sessions the broker delivers to.
type Registry interface {
	Add(ctx context.Context, conn adapter.Connection) bool
	Broadcast(ctx context.Context, receivers []protocol.Receiver, msg protocol.OutgoingMessage)
	ChannelStats(ctx context.Context, ids []protocol.ChannelID) ([]protocol.ChannelStats, error)
	ServerStats(ctx context.Context) ([]stats.ServerStats, error)
}

type commandHandler func(ctx context.Context, req protocol.Request, s transport.Session, trusted bool)

// Broker dispatches subscriptions, publishes and client requests.
type Broker struct {
	storage  storage.Storage
	registry Registry
	signer   *channel.Signer
	limits   stats.Limits
	stats    *stats.Statistics
	logger   *slog.Logger

	handlers map[protocol.Command]commandHandler
	public   map[protocol.Command]bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithSigner sets the signer used to verify public channel signatures.
// Without one every untrusted publish fails the signature check.
func WithSigner(s *channel.Signer) Option {
	return func(b *Broker) {
		b.signer = s
	}
}

// WithLimits sets the request limits.
func WithLimits(l stats.Limits) Option {
	return func(b *Broker) {
		b.limits = l
	}
}

// WithStatistics sets the counters updated for every request and message.
func WithStatistics(s *stats.Statistics) Option {
	return func(b *Broker) {
		if s != nil {
			b.stats = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Broker on top of store and reg.
func New(store storage.Storage, reg Registry, opts ...Option) *Broker {
	b := &Broker{
		storage:  store,
		registry: reg,
		limits: stats.Limits{
			MaxPayload:            1 << 20,
			MaxConnPerChannel:     100,
			MaxMessagesPerRequest: 100,
			MaxChannelsPerRequest: 100,
		},
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.stats == nil {
		b.stats = stats.New()
	}
	b.logger = b.logger.With(logger.Component("broker"))

	b.handlers = map[protocol.Command]commandHandler{
		protocol.CommandIncomingMessages: b.handleIncomingMessages,
		protocol.CommandChannelStats:     b.handleChannelStats,
		protocol.CommandServerStats:      b.handleServerStats,
	}
	b.public = map[protocol.Command]bool{
		protocol.CommandIncomingMessages: true,
		protocol.CommandChannelStats:     true,
	}

	return b
}

// Subscribe replays the messages stored after the session's last message id
// and registers the session for live delivery.
func (b *Broker) Subscribe(ctx context.Context, s transport.Session) {
	if len(s.Channels()) == 0 {
		b.reject(ctx, s, protocol.CodeInvalidChannel)
		return
	}

	info := s.Info()
	if info.LastMessageID != nil {
		start := time.Now()
		messages, err := b.storage.Get(ctx, info.Receivers(), info.LastMessageID)
		if err != nil {
			b.logger.ErrorContext(ctx, "failed to get last messages", logger.Error(err), logger.ClientIP(s.IP()))
			s.Close(protocol.CodeStorageRead, protocol.CodeStorageRead.Reason())
			return
		}
		b.logger.DebugContext(ctx, "backlog read", logger.Elapsed(start), logger.Count("messages", len(messages)))

		if len(messages) > 0 {
			s.Send(protocol.OutgoingMessages(messages...))
		}
	}

	b.registry.Add(ctx, s)
}

// Publish persists msg and broadcasts it to its receivers. A message without
// receivers is dropped.
func (b *Broker) Publish(ctx context.Context, msg protocol.IncomingMessage) (protocol.OutgoingMessage, error) {
	if len(msg.Receivers) == 0 {
		return protocol.OutgoingMessage{}, nil
	}

	b.stats.IncrementMessage(msg.Type)

	start := time.Now()
	out, err := b.storage.Set(ctx, msg)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to publish message", logger.Error(err))
		return protocol.OutgoingMessage{}, err
	}
	b.logger.DebugContext(ctx, "message stored", logger.Elapsed(start), logger.MessageID(out.ID))

	b.registry.Broadcast(ctx, msg.Receivers, out)
	return out, nil
}

// PublishText publishes a raw body from a trusted backend to the channels of
// the session. The session gets 200 before the message is stored.
func (b *Broker) PublishText(ctx context.Context, s transport.Session, body []byte, expiry uint32) {
	s.Close(protocol.Code(http.StatusOK), "")

	if len(body) == 0 {
		return
	}

	_, _ = b.Publish(ctx, protocol.IncomingMessage{
		Receivers: s.Info().Receivers(),
		Sender:    &protocol.Sender{Type: protocol.SenderBackend},
		Body:      string(body),
		Expiry:    expiry,
	})
}

// ProcessClientRequest handles a binary RequestBatch. Only the first request
// of the batch is processed.
func (b *Broker) ProcessClientRequest(ctx context.Context, data []byte, s transport.Session, trusted bool) {
	if !trusted && s.Info().PublicID() == nil {
		b.reject(ctx, s, protocol.CodePublicChannelNeeded)
		return
	}

	req, err := protocol.FirstRequest(data)
	if err != nil || req.Command == protocol.CommandNone {
		b.reject(ctx, s, protocol.CodeMalformedRequest)
		return
	}

	if !trusted && !b.public[req.Command] {
		b.reject(ctx, s, protocol.CodeCommandNotAllowed)
		return
	}

	handler, ok := b.handlers[req.Command]
	if !ok {
		b.reject(ctx, s, protocol.CodeUnknownCommand)
		return
	}

	b.stats.IncrementRequest(req.Command.String())
	handler(ctx, req, s, trusted)
}

// RequestHandler adapts ProcessClientRequest for WebSocket sessions.
func (b *Broker) RequestHandler(trusted bool) transport.RequestHandler {
	return func(ctx context.Context, data []byte, s transport.Session) {
		b.ProcessClientRequest(ctx, data, s, trusted)
	}
}

func (b *Broker) handleIncomingMessages(ctx context.Context, req protocol.Request, s transport.Session, trusted bool) {
	if code := b.validateMessages(req.IncomingMessages, trusted); code != 0 {
		b.reject(ctx, s, code)
		return
	}

	if s.Kind() == adapter.KindHTTP {
		s.Close(protocol.Code(http.StatusOK), "")
	}

	sender := &protocol.Sender{Type: protocol.SenderBackend}
	if !trusted {
		sender = &protocol.Sender{Type: protocol.SenderClient, ID: s.Info().PublicID()}
	}

	for _, msg := range req.IncomingMessages {
		msg.Sender = sender
		_, _ = b.Publish(ctx, msg)
	}
}

func (b *Broker) handleChannelStats(ctx context.Context, req protocol.Request, s transport.Session, trusted bool) {
	b.ChannelStats(ctx, req.ChannelStats, s, trusted)
}

func (b *Broker) handleServerStats(ctx context.Context, _ protocol.Request, s transport.Session, trusted bool) {
	if trusted {
		b.ServerStats(ctx, s)
	}
}

// ChannelStats validates ids and sends their presence to the session.
// A presence lookup failure is answered with an empty list.
func (b *Broker) ChannelStats(ctx context.Context, ids []protocol.ChannelID, s transport.Session, trusted bool) {
	if code := b.validateChannels(ids, trusted); code != 0 {
		b.reject(ctx, s, code)
		return
	}

	start := time.Now()
	result, err := b.registry.ChannelStats(ctx, ids)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to get channel stats", logger.Error(err))
		result = []protocol.ChannelStats{}
	}
	b.logger.DebugContext(ctx, "channel stats", logger.Elapsed(start), logger.Count("channels", len(result)))

	s.Send(protocol.ChannelStatsResponse(result))
}

// ServerStats sends the JSON array of server snapshots to the session.
func (b *Broker) ServerStats(ctx context.Context, s transport.Session) {
	list, err := b.registry.ServerStats(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to get server stats", logger.Error(err))
	}
	if list == nil {
		list = []stats.ServerStats{}
	}

	data, err := json.Marshal(list)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to encode server stats", logger.Error(err))
		data = []byte("[]")
	}

	s.Send(protocol.ServerStatsResponse(string(data)))
}

// QueryChannelStats answers the presence of the session's private channels.
func (b *Broker) QueryChannelStats(ctx context.Context, s transport.Session) {
	channels := s.Channels()
	ids := make([]protocol.ChannelID, len(channels))
	for i, ch := range channels {
		ids[i] = protocol.ChannelID{ID: ch.PrivateID, IsPrivate: true}
	}

	b.stats.IncrementRequest(protocol.CommandChannelStats.String())
	b.ChannelStats(ctx, ids, s, true)
}

// QueryServerStats answers a server stats request of the publisher listener.
func (b *Broker) QueryServerStats(ctx context.Context, s transport.Session) {
	b.stats.IncrementRequest(protocol.CommandServerStats.String())
	b.ServerStats(ctx, s)
}

func (b *Broker) validateMessages(messages []protocol.IncomingMessage, trusted bool) protocol.Code {
	if len(messages) > b.limits.MaxMessagesPerRequest {
		return protocol.CodeTooManyMessages
	}
	for _, m := range messages {
		if code := b.validateChannels(m.Receivers, trusted); code != 0 {
			return code
		}
	}
	return 0
}

func (b *Broker) validateChannels(receivers []protocol.Receiver, trusted bool) protocol.Code {
	switch {
	case len(receivers) == 0:
		return protocol.CodeNoChannels
	case len(receivers) > b.limits.MaxChannelsPerRequest:
		return protocol.CodeTooManyChannels
	}

	for _, r := range receivers {
		if trusted {
			if !channel.IsValidID(r.ID) {
				return protocol.CodeInvalidChannelID
			}
			continue
		}
		if r.IsPrivate {
			return protocol.CodePrivateNotAllowed
		}
		if !b.signer.IsPublicSignatureValid(r.ID, r.Signature) {
			return protocol.CodeInvalidSignature
		}
	}
	return 0
}

func (b *Broker) reject(ctx context.Context, s transport.Session, code protocol.Code) {
	b.logger.WarnContext(ctx, "request rejected",
		logger.Error(fmt.Errorf("%w: %s", ErrProtocol, protocol.StatusText(code, code.Reason()))),
		logger.CloseCode(int(code)),
		logger.ClientIP(s.IP()),
	)
	s.Close(code, code.Reason())
}
