package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const (
	defaultCoalesceWindow = 400 * time.Millisecond
	defaultPingInterval   = 120 * time.Second
	defaultPollTimeout    = 40 * time.Second
	defaultRequestTimeout = 20 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultCloseGrace     = 5 * time.Second
	defaultQueueSize      = 64
)

// Session is a client connection the broker can serve.
type Session interface {
	adapter.Connection
	Info() RequestInfo
}

// RequestHandler processes a binary request batch received on a session.
type RequestHandler func(ctx context.Context, data []byte, s Session)

// LastMessageFunc looks up the newest stored message of receivers.
type LastMessageFunc func(ctx context.Context, receivers []protocol.Receiver) (*protocol.OutgoingMessage, error)

type options struct {
	window         time.Duration
	pingInterval   time.Duration
	pollTimeout    time.Duration
	requestTimeout time.Duration
	writeWait      time.Duration
	closeGrace     time.Duration
	queueSize      int
	maxPayload     int64
	handler        RequestHandler
	lastMessage    LastMessageFunc
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a session.
type Option func(*options)

// WithCoalesceWindow sets how long a WebSocket session batches responses
// after a frame was sent.
func WithCoalesceWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithPingInterval sets the WebSocket keepalive interval.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}

// WithPollTimeout sets how long a long-poll request waits for a message.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithRequestTimeout sets how long a one-shot request waits for its reply.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithQueueSize sets the number of outbound WebSocket frames that may be pending.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithMaxPayload limits the size of frames read from a WebSocket client.
func WithMaxPayload(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPayload = n
		}
	}
}

// WithRequestHandler sets the handler of binary client frames.
func WithRequestHandler(h RequestHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithLastMessage sets the lookup used for the Last-Message-Id header of
// timed out polls.
func WithLastMessage(fn LastMessageFunc) Option {
	return func(o *options) {
		o.lastMessage = fn
	}
}

// WithClock overrides the time source of the text encoding.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		window:         defaultCoalesceWindow,
		pingInterval:   defaultPingInterval,
		pollTimeout:    defaultPollTimeout,
		requestTimeout: defaultRequestTimeout,
		writeWait:      defaultWriteWait,
		closeGrace:     defaultCloseGrace,
		queueSize:      defaultQueueSize,
		now:            time.Now,
		logger:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// session holds the state shared by all transports.
type session struct {
	info RequestInfo
	kind adapter.Kind
	opts options

	mu     sync.Mutex
	active bool
	hooks  []func()
}

func newSession(kind adapter.Kind, info RequestInfo, opts []Option) session {
	o := newOptions(opts)
	o.logger = o.logger.With(logger.Transport(string(kind)), logger.ClientIP(info.IP))
	return session{info: info, kind: kind, opts: o, active: true}
}

func (s *session) Channels() []channel.Channel { return s.info.Channels }
func (s *session) Info() RequestInfo           { return s.info }
func (s *session) Kind() adapter.Kind          { return s.kind }
func (s *session) IP() string                  { return s.info.IP }

func (s *session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *session) OnClose(fn func()) {
	s.mu.Lock()
	if s.active {
		s.hooks = append(s.hooks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// deactivate marks the session closed and runs the close hooks.
// Only the first call returns true.
func (s *session) deactivate() bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

func (s *session) encode(responses ...protocol.Response) (data []byte, contentType string) {
	if s.info.BinaryMode {
		return protocol.MarshalResponseBatch(responses...), "application/octet-stream"
	}
	return []byte(protocol.EncodeText(s.opts.now(), responses...)), "text/plain"
}
