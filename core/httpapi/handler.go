package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/uptrace/bunrouter"

	"github.com/dmitrymomot/pushserver/core/broker"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/middleware"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/clientip"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const headerMessageExpiry = "Message-Expiry"

// oneShot is a session answered once from the handler goroutine.
type oneShot interface {
	transport.Session
	Wait(ctx context.Context, w http.ResponseWriter)
}

// Handler serves the push server endpoints.
type Handler struct {
	broker      *broker.Broker
	signer      *channel.Signer
	sessionOpts []transport.Option
	maxPayload  int64
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithSigner sets the channel signer. Without one, signatures are not checked.
func WithSigner(s *channel.Signer) Option {
	return func(h *Handler) {
		h.signer = s
	}
}

// WithSessionOptions sets the options every session is created with.
func WithSessionOptions(opts ...transport.Option) Option {
	return func(h *Handler) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// WithMaxPayload limits request bodies and WebSocket frames.
func WithMaxPayload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxPayload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a Handler publishing through b.
func NewHandler(b *broker.Broker, opts ...Option) *Handler {
	h := &Handler{
		broker:     b,
		maxPayload: 1 << 20,
		logger:     logger.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("httpapi"))
	return h
}

// Subscribe opens a WebSocket session on upgrade requests and a long poll
// otherwise.
func (h *Handler) Subscribe(w http.ResponseWriter, req bunrouter.Request) error {
	info := transport.ParseRequest(req.Request, h.signer, false)
	ctx := req.Context()

	if !websocket.IsWebSocketUpgrade(req.Request) {
		s := transport.NewPolling(info, h.sessionOpts...)
		h.broker.Subscribe(ctx, s)
		s.Wait(ctx, w)
		return nil
	}

	if len(info.Channels) == 0 {
		h.logger.WarnContext(ctx, "websocket upgrade rejected", logger.ClientIP(info.IP),
			logger.CloseCode(int(protocol.CodeInvalidChannel)))
		writeText(w, http.StatusBadRequest, protocol.CodeInvalidChannel.Reason())
		return nil
	}

	conn, err := h.upgrader.Upgrade(w, req.Request, nil)
	if err != nil {
		// the upgrader has already answered
		h.logger.DebugContext(ctx, "websocket upgrade failed", logger.Error(err), logger.ClientIP(info.IP))
		return nil
	}

	s := transport.NewWebSocket(conn, info, h.options(
		transport.WithRequestHandler(h.broker.RequestHandler(false)),
		transport.WithMaxPayload(h.maxPayload),
	)...)
	h.broker.Subscribe(ctx, s)
	s.Serve(ctx)
	return nil
}

// Preflight answers CORS preflight requests for the subscribe route.
func (h *Handler) Preflight(w http.ResponseWriter, _ bunrouter.Request) error {
	header := w.Header()
	header.Set("Content-Type", "text/plain")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "If-Modified-Since, If-None-Match")
	w.WriteHeader(http.StatusOK)
	return nil
}

// Rest processes a binary request from an untrusted client.
func (h *Handler) Rest(w http.ResponseWriter, req bunrouter.Request) error {
	info := transport.ParseRequest(req.Request, h.signer, false)
	info.BinaryMode = true

	body, ok := h.readBody(w, req)
	if !ok {
		return nil
	}

	h.serve(w, req, transport.NewHTTPRequest(info, h.sessionOpts...), func(ctx context.Context, s transport.Session) {
		h.broker.ProcessClientRequest(ctx, body, s, false)
	})
	return nil
}

// Publish publishes the body to the CHANNEL_ID channels, or processes a
// binary request with binaryMode=true. Both are trusted.
func (h *Handler) Publish(w http.ResponseWriter, req bunrouter.Request) error {
	info := transport.ParseRequest(req.Request, h.signer, true)

	body, ok := h.readBody(w, req)
	if !ok {
		return nil
	}

	s := transport.NewHTTPRequest(info, h.sessionOpts...)
	if info.BinaryMode {
		h.serve(w, req, s, func(ctx context.Context, s transport.Session) {
			h.broker.ProcessClientRequest(ctx, body, s, true)
		})
		return nil
	}

	expiry := messageExpiry(req.Header.Get(headerMessageExpiry))
	h.serve(w, req, s, func(ctx context.Context, s transport.Session) {
		h.broker.PublishText(ctx, s, body, expiry)
	})
	return nil
}

// ChannelStats answers the presence of the CHANNEL_ID channels.
func (h *Handler) ChannelStats(w http.ResponseWriter, req bunrouter.Request) error {
	info := transport.ParseRequest(req.Request, h.signer, true)
	h.serve(w, req, transport.NewHTTPRequest(info, h.sessionOpts...), h.broker.QueryChannelStats)
	return nil
}

// ServerStats answers the stats of every live process.
func (h *Handler) ServerStats(w http.ResponseWriter, req bunrouter.Request) error {
	info := transport.ParseRequest(req.Request, h.signer, true)
	h.serve(w, req, transport.NewHTTPRequest(info, h.sessionOpts...), h.broker.QueryServerStats)
	return nil
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, _ bunrouter.Request) error {
	writeText(w, http.StatusNotFound, "")
	return nil
}

// serve runs fn detached from the client and writes the session reply.
// Publishing goes on after the client has its answer.
func (h *Handler) serve(w http.ResponseWriter, req bunrouter.Request, s oneShot, fn func(context.Context, transport.Session)) {
	ctx := req.Context()
	go fn(context.WithoutCancel(ctx), s)
	s.Wait(ctx, w)
}

func (h *Handler) readBody(w http.ResponseWriter, req bunrouter.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(req.Body, h.maxPayload+1))
	if err == nil && int64(len(body)) > h.maxPayload {
		err = middleware.ErrBodyTooLarge
	}
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			h.logger.ErrorContext(req.Context(), "max payload size exceeded", logger.ClientIP(clientip.GetIP(req.Request)))
			middleware.WriteTooLarge(w)
			return nil, false
		}
		h.logger.DebugContext(req.Context(), "failed to read request body", logger.Error(err))
		writeText(w, http.StatusBadRequest, "")
		return nil, false
	}
	return body, true
}

func (h *Handler) options(extra ...transport.Option) []transport.Option {
	opts := make([]transport.Option, 0, len(h.sessionOpts)+len(extra))
	opts = append(opts, h.sessionOpts...)
	return append(opts, extra...)
}

func messageExpiry(v string) uint32 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 || n > int64(^uint32(0)) {
		return 0
	}
	return uint32(n)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if body != "" {
		_, _ = io.WriteString(w, body)
	}
}
