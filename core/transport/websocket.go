package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const (
	pingPayload     = "ws ping"
	queueFullReason = "Send queue overflow"
)

type frame struct {
	messageType int
	data        []byte
	closing     bool
}

// WebSocket is a long-lived session over a gorilla websocket connection.
type WebSocket struct {
	session
	conn *websocket.Conn

	queue chan frame
	done  chan struct{}
	stop  sync.Once

	// guarded by session.mu
	pending    []protocol.Response
	windowOpen bool
	alive      bool
	pongHooks  []func()
}

var (
	_ Session              = (*WebSocket)(nil)
	_ adapter.PongNotifier = (*WebSocket)(nil)
)

// NewWebSocket wraps an upgraded connection and starts its writer.
// Serve must be called to read from the client.
func NewWebSocket(conn *websocket.Conn, info RequestInfo, opts ...Option) *WebSocket {
	s := &WebSocket{
		session: newSession(adapter.KindWebSocket, info, opts),
		conn:    conn,
		done:    make(chan struct{}),
		alive:   true,
	}
	s.queue = make(chan frame, s.opts.queueSize)

	if s.opts.maxPayload > 0 {
		conn.SetReadLimit(s.opts.maxPayload)
	}
	conn.SetPongHandler(func(string) error {
		s.pong()
		return nil
	})

	go s.writeLoop()
	return s
}

// OnPong registers fn to run on every pong from the client.
func (s *WebSocket) OnPong(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pongHooks = append(s.pongHooks, fn)
}

// Send dispatches resp right away when no coalescing window is open.
// Otherwise resp is buffered and flushed as one frame when the window ends.
func (s *WebSocket) Send(resp protocol.Response) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.windowOpen {
		s.pending = append(s.pending, resp)
		s.mu.Unlock()
		return
	}
	s.windowOpen = true
	s.mu.Unlock()

	time.AfterFunc(s.opts.window, s.flush)
	s.dispatch(resp)
}

func (s *WebSocket) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.windowOpen = false
	active := s.active
	s.mu.Unlock()

	if active && len(pending) > 0 {
		s.dispatch(pending...)
	}
}

func (s *WebSocket) dispatch(responses ...protocol.Response) {
	data, _ := s.encode(responses...)
	if len(data) == 0 {
		return
	}

	messageType := websocket.TextMessage
	if s.info.BinaryMode {
		messageType = websocket.BinaryMessage
	}

	select {
	case s.queue <- frame{messageType: messageType, data: data}:
	default:
		s.opts.logger.Warn("closing slow websocket", logger.Error(ErrQueueFull))
		s.closeNow(websocket.CloseTryAgainLater, queueFullReason)
	}
}

// Close sends a close frame after the frames already queued.
// Codes below 1000 are sent as 1000.
func (s *WebSocket) Close(code protocol.Code, reason string) {
	if !s.deactivate() {
		return
	}

	status := int(code)
	if status < websocket.CloseNormalClosure {
		status = websocket.CloseNormalClosure
	}
	data := websocket.FormatCloseMessage(status, protocol.StatusText(code, reason))

	select {
	case s.queue <- frame{messageType: websocket.CloseMessage, data: data, closing: true}:
	default:
		s.writeClose(data)
	}
}

// closeNow bypasses the queue.
func (s *WebSocket) closeNow(status int, reason string) {
	if !s.deactivate() {
		return
	}
	s.writeClose(websocket.FormatCloseMessage(status, protocol.StatusText(protocol.Code(status), reason)))
}

func (s *WebSocket) writeClose(data []byte) {
	_ = s.conn.WriteControl(websocket.CloseMessage, data, time.Now().Add(s.opts.writeWait))
	// wait for the client to answer, then give up
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.closeGrace))
	s.shutdown()
}

// terminate drops the connection without a close handshake.
func (s *WebSocket) terminate() {
	s.deactivate()
	s.shutdown()
	_ = s.conn.Close()
}

func (s *WebSocket) shutdown() {
	s.stop.Do(func() { close(s.done) })
}

func (s *WebSocket) pong() {
	s.mu.Lock()
	s.alive = true
	hooks := append([]func(){}, s.pongHooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.opts.logger.Debug("pong")
}

func (s *WebSocket) ping() bool {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		s.opts.logger.Info("terminating websocket", logger.Error(ErrUnresponsive))
		s.terminate()
		return false
	}
	s.alive = false
	s.mu.Unlock()

	if err := s.conn.WriteControl(websocket.PingMessage, []byte(pingPayload), time.Now().Add(s.opts.writeWait)); err != nil {
		s.terminate()
		return false
	}
	return true
}

func (s *WebSocket) writeLoop() {
	ticker := time.NewTicker(s.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case f := <-s.queue:
			if f.closing {
				s.writeClose(f.data)
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.writeWait))
			if err := s.conn.WriteMessage(f.messageType, f.data); err != nil {
				s.opts.logger.Debug("websocket write failed", logger.Error(err))
				s.terminate()
				return
			}
		case <-ticker.C:
			if !s.ping() {
				return
			}
		}
	}
}

// Serve reads client frames until the connection ends. In binary mode every
// frame is handed to the request handler. Serve closes the connection
// before returning.
func (s *WebSocket) Serve(ctx context.Context) {
	defer func() {
		s.deactivate()
		s.shutdown()
		_ = s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.opts.logger.DebugContext(ctx, "websocket read failed", logger.Error(err))
			}
			return
		}
		if s.info.BinaryMode && s.opts.handler != nil {
			s.opts.handler(ctx, data, s)
		}
	}
}
