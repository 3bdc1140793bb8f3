package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// serve starts a server that wraps every upgraded connection in a WebSocket
// session and returns the client side together with the session.
func serve(t *testing.T, binary bool, opts ...transport.Option) (*websocket.Conn, *transport.WebSocket) {
	t.Helper()

	sessions := make(chan *transport.WebSocket, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := transport.NewWebSocket(conn, info(binary), opts...)
		sessions <- s
		s.Serve(r.Context())
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case s := <-sessions:
		return client, s
	case <-time.After(5 * time.Second):
		t.Fatal("no session")
		return nil, nil
	}
}

func readBatch(t *testing.T, c *websocket.Conn) []protocol.Response {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)

	responses, err := protocol.UnmarshalResponseBatch(data)
	require.NoError(t, err)
	return responses
}

func message(body string) protocol.Response {
	return protocol.OutgoingMessages(protocol.OutgoingMessage{ID: protocol.NewMessageID(1, 1), Body: body})
}

func TestWebSocket_Coalescing(t *testing.T) {
	t.Parallel()

	client, s := serve(t, true, transport.WithCoalesceWindow(100*time.Millisecond))

	s.Send(message("one"))
	s.Send(message("two"))
	s.Send(message("three"))

	first := readBatch(t, client)
	require.Len(t, first, 1)
	assert.Equal(t, "one", first[0].OutgoingMessages[0].Body)

	second := readBatch(t, client)
	require.Len(t, second, 2)
	assert.Equal(t, "two", second[0].OutgoingMessages[0].Body)
	assert.Equal(t, "three", second[1].OutgoingMessages[0].Body)
}

func TestWebSocket_TextMode(t *testing.T) {
	t.Parallel()

	client, s := serve(t, false)
	s.Send(message(`{"a":1}`))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	assert.True(t, strings.HasPrefix(string(data), "#!NGINXNMS!#"))
	assert.Contains(t, string(data), `"text":{"a":1}`)
}

func TestWebSocket_Close(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     protocol.Code
		reason   string
		wantCode int
		wantText string
	}{
		{name: "eviction", code: protocol.CodeTooManyConnections, reason: "Too many connections", wantCode: 4029, wantText: "4029: Too many connections"},
		{name: "http status becomes normal closure", code: protocol.Code(http.StatusOK), wantCode: websocket.CloseNormalClosure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, s := serve(t, true)

			closed := make(chan struct{})
			s.OnClose(func() { close(closed) })

			s.Send(message("before close"))
			s.Close(tt.code, tt.reason)
			s.Send(message("after close"))
			assert.False(t, s.IsActive())
			<-closed

			batch := readBatch(t, client)
			assert.Equal(t, "before close", batch[0].OutgoingMessages[0].Body)

			_, _, err := client.ReadMessage()
			var ce *websocket.CloseError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantCode, ce.Code)
			assert.Equal(t, tt.wantText, ce.Text)
		})
	}
}

func TestWebSocket_Ping(t *testing.T) {
	t.Parallel()

	t.Run("pong keeps the session alive", func(t *testing.T) {
		t.Parallel()

		client, s := serve(t, true, transport.WithPingInterval(30*time.Millisecond))

		var pongs atomic.Int32
		s.OnPong(func() { pongs.Add(1) })

		// the default client ping handler answers while reading
		go func() {
			for {
				if _, _, err := client.ReadMessage(); err != nil {
					return
				}
			}
		}()

		require.Eventually(t, func() bool { return pongs.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
		assert.True(t, s.IsActive())
	})

	t.Run("unresponsive client is terminated", func(t *testing.T) {
		t.Parallel()

		_, s := serve(t, true, transport.WithPingInterval(30*time.Millisecond))

		require.Eventually(t, func() bool { return !s.IsActive() }, 5*time.Second, 10*time.Millisecond)
	})
}

func TestWebSocket_RequestHandler(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	handler := func(_ context.Context, data []byte, s transport.Session) {
		assert.Equal(t, "192.0.2.1", s.IP())
		received <- data
	}

	client, _ := serve(t, true, transport.WithRequestHandler(handler))

	payload := protocol.MarshalRequestBatch(protocol.Request{Command: protocol.CommandServerStats})
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, payload))

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("request not handled")
	}
}

func TestWebSocket_ClientDisconnect(t *testing.T) {
	t.Parallel()

	client, s := serve(t, true)

	closed := make(chan struct{})
	s.OnClose(func() { close(closed) })

	require.NoError(t, client.Close())

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}
	assert.False(t, s.IsActive())
}
