package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func info(binary bool) transport.RequestInfo {
	return transport.RequestInfo{
		Channels:   []channel.Channel{{PrivateID: id(1)}},
		BinaryMode: binary,
		IP:         "192.0.2.1",
	}
}

func TestPolling_Send(t *testing.T) {
	t.Parallel()

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		p := transport.NewPolling(info(false), transport.WithClock(func() time.Time { return fixedNow }))
		assert.Equal(t, adapter.KindPolling, p.Kind())

		closed := 0
		p.OnClose(func() { closed++ })

		msg := protocol.OutgoingMessage{ID: protocol.NewMessageID(1, 7), Body: `"hello"`}
		p.Send(protocol.OutgoingMessages(msg))
		p.Send(protocol.OutgoingMessages(protocol.OutgoingMessage{Body: "late"}))
		assert.False(t, p.IsActive())
		assert.Equal(t, 1, closed)

		w := httptest.NewRecorder()
		p.Wait(context.Background(), w)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, protocol.EncodeText(fixedNow, protocol.OutgoingMessages(msg)), w.Body.String())
	})

	t.Run("binary", func(t *testing.T) {
		t.Parallel()

		p := transport.NewPolling(info(true))
		msg := protocol.OutgoingMessage{ID: protocol.NewMessageID(1, 8), Body: "bin"}
		p.Send(protocol.OutgoingMessages(msg))

		w := httptest.NewRecorder()
		p.Wait(context.Background(), w)

		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
		got, err := protocol.UnmarshalResponseBatch(w.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Len(t, got[0].OutgoingMessages, 1)
		assert.Equal(t, "bin", got[0].OutgoingMessages[0].Body)
	})
}

func TestPolling_Close(t *testing.T) {
	t.Parallel()

	p := transport.NewPolling(info(false))
	p.Close(protocol.CodeInvalidChannel, protocol.CodeInvalidChannel.Reason())
	p.Close(protocol.CodeOK, "")

	w := httptest.NewRecorder()
	p.Wait(context.Background(), w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "4010: Wrong Channel Id.", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "Last-Message-Id", w.Header().Get("Access-Control-Expose-Headers"))
}

func TestPolling_Timeout(t *testing.T) {
	t.Parallel()

	stored := protocol.NewMessageID(1700000000, 99)
	mid := protocol.NewMessageID(1700000000, 5)

	tests := []struct {
		name   string
		lookup transport.LastMessageFunc
		mid    []byte
		want   string
	}{
		{
			name: "latest stored id",
			lookup: func(context.Context, []protocol.Receiver) (*protocol.OutgoingMessage, error) {
				return &protocol.OutgoingMessage{ID: stored}, nil
			},
			mid:  mid,
			want: protocol.FormatMessageID(stored),
		},
		{
			name: "falls back to mid when nothing is stored",
			lookup: func(context.Context, []protocol.Receiver) (*protocol.OutgoingMessage, error) {
				return nil, nil
			},
			mid:  mid,
			want: protocol.FormatMessageID(mid),
		},
		{
			name: "falls back to mid on store errors",
			lookup: func(context.Context, []protocol.Receiver) (*protocol.OutgoingMessage, error) {
				return nil, errors.New("down")
			},
			mid:  mid,
			want: protocol.FormatMessageID(mid),
		},
		{
			name: "empty without any id",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := info(false)
			in.LastMessageID = tt.mid
			p := transport.NewPolling(in,
				transport.WithPollTimeout(20*time.Millisecond),
				transport.WithLastMessage(tt.lookup),
			)

			w := httptest.NewRecorder()
			p.Wait(context.Background(), w)

			assert.Equal(t, http.StatusNotModified, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Equal(t, tt.want, w.Header().Get("Last-Message-Id"))
			assert.Equal(t, "Thu, 01 Jan 1973 11:11:01 GMT", w.Header().Get("Expires"))
			assert.False(t, p.IsActive())

			p.Send(protocol.OutgoingMessages(protocol.OutgoingMessage{Body: "late"}))
		})
	}
}

func TestPolling_ClientGone(t *testing.T) {
	t.Parallel()

	p := transport.NewPolling(info(false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	p.Wait(ctx, w)
	assert.False(t, p.IsActive())

	hooked := false
	p.OnClose(func() { hooked = true })
	assert.True(t, hooked)
}
