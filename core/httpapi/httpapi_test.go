package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushserver/core/adapter"
	"github.com/dmitrymomot/pushserver/core/broker"
	"github.com/dmitrymomot/pushserver/core/httpapi"
	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/core/storage"
	"github.com/dmitrymomot/pushserver/core/transport"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

type env struct {
	srv     *httptest.Server
	adapter *adapter.Adapter
	signer  *channel.Signer
	routes  httpapi.Routes
}

func newEnv(t *testing.T, listener httpapi.Listener, maxPayload int64) *env {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	signer, err := channel.NewSigner("secret", "sha1")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	st := stats.New(stats.WithMetrics(stats.NewMetrics(reg)))
	store := storage.NewRedisStorage(client)
	adp := adapter.New(adapter.WithStatistics(st), adapter.WithProcessUniqueID("test-process"))
	b := broker.New(store, adp, broker.WithSigner(signer), broker.WithStatistics(st))

	h := httpapi.NewHandler(b,
		httpapi.WithSigner(signer),
		httpapi.WithMaxPayload(maxPayload),
		httpapi.WithSessionOptions(
			transport.WithPollTimeout(300*time.Millisecond),
			transport.WithCoalesceWindow(10*time.Millisecond),
			transport.WithLastMessage(store.GetLastMessage),
		),
	)

	routes := httpapi.DefaultRoutes()
	srv := httptest.NewServer(httpapi.NewRouter(h, httpapi.RouterConfig{
		Listener: listener,
		Routes:   routes,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Checks: []func(context.Context) error{
			func(ctx context.Context) error { return client.Ping(ctx).Err() },
		},
	}))
	t.Cleanup(srv.Close)

	return &env{srv: srv, adapter: adp, signer: signer, routes: routes}
}

func (e *env) url(path string, query url.Values) string {
	u := e.srv.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (e *env) waitSubscribed(t *testing.T, privateID []byte, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.adapter.MemberCount(privateID) == n
	}, 5*time.Second, 5*time.Millisecond)
}

func (e *env) publish(t *testing.T, ch channel.Channel, body string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.url(e.routes.Pub, url.Values{transport.ParamChannelID: {ch.HexPrivateID()}}), strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Message-Expiry", "60")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type result struct {
	resp *http.Response
	body string
	err  error
}

func get(u string) <-chan result {
	out := make(chan result, 1)
	go func() {
		resp, err := http.Get(u)
		if err != nil {
			out <- result{err: err}
			return
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		out <- result{resp: resp, body: string(data), err: err}
	}()
	return out
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no response")
		return result{}
	}
}

func id(b byte) []byte {
	return bytes.Repeat([]byte{b}, channel.IDLength)
}

func TestLongPoll(t *testing.T) {
	t.Parallel()

	e := newEnv(t, httpapi.Combined, 1<<20)
	ch := channel.Channel{PrivateID: id(0xa1)}
	sub := e.url(e.routes.Sub, url.Values{transport.ParamChannelID: {e.signer.Format(ch)}})

	t.Run("delivers a published message", func(t *testing.T) {
		poll := get(sub)
		e.waitSubscribed(t, ch.PrivateID, 1)

		e.publish(t, ch, `{"event":"hello"}`)

		r := await(t, poll)
		assert.Equal(t, http.StatusOK, r.resp.StatusCode)
		assert.Equal(t, "*", r.resp.Header.Get("Access-Control-Allow-Origin"))
		assert.True(t, strings.HasPrefix(r.body, "#!NGINXNMS!#"))
		assert.Contains(t, r.body, `"text":{"event":"hello"}`)
		e.waitSubscribed(t, ch.PrivateID, 0)
	})

	t.Run("catches up from mid", func(t *testing.T) {
		e.publish(t, ch, "second")

		// publishing completes after the publisher is answered
		catchUp := e.url(e.routes.Sub, url.Values{
			transport.ParamChannelID: {e.signer.Format(ch)},
			transport.ParamMessageID: {strings.Repeat("0", 32)},
		})
		var body string
		require.Eventually(t, func() bool {
			r := <-get(catchUp)
			if r.err != nil || r.resp.StatusCode != http.StatusOK {
				return false
			}
			body = r.body
			return strings.Contains(body, "second")
		}, 5*time.Second, 20*time.Millisecond)

		assert.Contains(t, body, `"text":{"event":"hello"}`)
		assert.Contains(t, body, `"text":second`)
		assert.Less(t, strings.Index(body, "hello"), strings.Index(body, "second"))
	})

	t.Run("times out with not modified", func(t *testing.T) {
		r := await(t, get(sub))
		assert.Equal(t, http.StatusNotModified, r.resp.StatusCode)
		assert.Len(t, r.resp.Header.Get("Last-Message-Id"), 32)
		assert.Equal(t, "Last-Message-Id", r.resp.Header.Get("Access-Control-Expose-Headers"))
		e.waitSubscribed(t, ch.PrivateID, 0)
	})

	t.Run("rejects a missing channel", func(t *testing.T) {
		r := await(t, get(e.url(e.routes.Sub, nil)))
		assert.Equal(t, http.StatusBadRequest, r.resp.StatusCode)
		assert.Equal(t, "4010: Wrong Channel Id.", r.body)
	})

	t.Run("rejects an unsigned channel", func(t *testing.T) {
		r := await(t, get(e.url(e.routes.Sub, url.Values{transport.ParamChannelID: {ch.HexPrivateID()}})))
		assert.Equal(t, http.StatusBadRequest, r.resp.StatusCode)
	})
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	e := newEnv(t, httpapi.Combined, 1<<20)
	ch := channel.Channel{PrivateID: id(0xb2)}
	wsURL := "ws" + strings.TrimPrefix(e.url(e.routes.Sub, url.Values{
		transport.ParamChannelID:  {e.signer.Format(ch)},
		transport.ParamBinaryMode: {"true"},
	}), "http")

	t.Run("receives binary batches", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		e.waitSubscribed(t, ch.PrivateID, 1)
		e.publish(t, ch, "over websocket")

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		typ, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, typ)

		responses, err := protocol.UnmarshalResponseBatch(data)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		require.Len(t, responses[0].OutgoingMessages, 1)
		assert.Equal(t, "over websocket", responses[0].OutgoingMessages[0].Body)
	})

	t.Run("rejects upgrade without channels", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.url(e.routes.Sub, nil), "http"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unregisters on disconnect", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		e.waitSubscribed(t, ch.PrivateID, 1)

		require.NoError(t, conn.Close())
		e.waitSubscribed(t, ch.PrivateID, 0)
	})
}

func TestRest(t *testing.T) {
	t.Parallel()

	e := newEnv(t, httpapi.Combined, 1<<20)
	sender := channel.Channel{PrivateID: id(0xc3), PublicID: id(0xc4)}
	target := channel.Channel{PrivateID: id(0xd5), PublicID: id(0xd6)}

	post := func(t *testing.T, query url.Values, data []byte) *http.Response {
		t.Helper()
		resp, err := http.Post(e.url(e.routes.Rest, query), "application/octet-stream", bytes.NewReader(data))
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	message := protocol.MarshalRequestBatch(protocol.Request{
		Command: protocol.CommandIncomingMessages,
		IncomingMessages: []protocol.IncomingMessage{{
			Receivers: []protocol.Receiver{{ID: target.PublicID, Signature: e.signer.PublicSignature(target.PublicID)}},
			Body:      "from a client",
		}},
	})

	t.Run("publishes to a signed public channel", func(t *testing.T) {
		poll := get(e.url(e.routes.Sub, url.Values{transport.ParamChannelID: {e.signer.Format(target)}}))
		e.waitSubscribed(t, target.PrivateID, 1)

		resp := post(t, url.Values{transport.ParamChannelID: {e.signer.Format(sender)}}, message)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		r := await(t, poll)
		assert.Contains(t, r.body, "from a client")
	})

	t.Run("requires a public channel", func(t *testing.T) {
		ch := channel.Channel{PrivateID: id(0xc3)}
		resp := post(t, url.Values{transport.ParamChannelID: {e.signer.Format(ch)}}, message)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects private receivers", func(t *testing.T) {
		data := protocol.MarshalRequestBatch(protocol.Request{
			Command: protocol.CommandIncomingMessages,
			IncomingMessages: []protocol.IncomingMessage{{
				Receivers: []protocol.Receiver{{ID: target.PrivateID, IsPrivate: true}},
				Body:      "sneaky",
			}},
		})
		resp := post(t, url.Values{transport.ParamChannelID: {e.signer.Format(sender)}}, data)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPublisher(t *testing.T) {
	t.Parallel()

	e := newEnv(t, httpapi.Combined, 64)
	ch := channel.Channel{PrivateID: id(0xe7)}

	t.Run("payload too large", func(t *testing.T) {
		resp, err := http.Post(e.url(e.routes.Pub, url.Values{transport.ParamChannelID: {ch.HexPrivateID()}}),
			"text/plain", strings.NewReader(strings.Repeat("x", 100)))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("channel stats", func(t *testing.T) {
		poll := get(e.url(e.routes.Sub, url.Values{transport.ParamChannelID: {e.signer.Format(ch)}}))
		e.waitSubscribed(t, ch.PrivateID, 1)

		r := await(t, get(e.url(e.routes.Pub, url.Values{transport.ParamChannelID: {ch.HexPrivateID()}})))
		assert.Equal(t, http.StatusOK, r.resp.StatusCode)
		assert.JSONEq(t, `{"infos":[{"channel":"`+ch.HexPrivateID()+`","subscribers":1}]}`, r.body)

		e.publish(t, ch, "bye")
		await(t, poll)
	})

	t.Run("server stats", func(t *testing.T) {
		r := await(t, get(e.url(e.routes.Stat, nil)))
		assert.Equal(t, http.StatusOK, r.resp.StatusCode)

		var list []stats.ServerStats
		require.NoError(t, json.Unmarshal([]byte(r.body), &list))
		require.Len(t, list, 1)
		assert.Equal(t, "test-process", list[0].ProcessUniqueID)
		assert.Equal(t, int64(1), list[0].Daily.Requests["serverStats"])
	})

	t.Run("metrics", func(t *testing.T) {
		r := await(t, get(e.url("/metrics", nil)))
		assert.Equal(t, http.StatusOK, r.resp.StatusCode)
		assert.Contains(t, r.body, "pushserver_messages_total")
	})

	t.Run("health", func(t *testing.T) {
		r := await(t, get(e.url("/health/live", nil)))
		assert.Equal(t, "ALIVE", r.body)

		r = await(t, get(e.url("/health/ready", nil)))
		assert.Equal(t, "READY", r.body)
	})
}

func TestRouting(t *testing.T) {
	t.Parallel()

	public := newEnv(t, httpapi.Public, 1<<20)

	t.Run("preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, public.url(public.routes.Sub, nil), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST, GET, DELETE, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "If-Modified-Since, If-None-Match", resp.Header.Get("Access-Control-Allow-Headers"))
	})

	t.Run("publisher routes are not public", func(t *testing.T) {
		r := await(t, get(public.url(public.routes.Stat, nil)))
		assert.Equal(t, http.StatusNotFound, r.resp.StatusCode)
		assert.Equal(t, "*", r.resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown route", func(t *testing.T) {
		r := await(t, get(public.url("/nope", nil)))
		assert.Equal(t, http.StatusNotFound, r.resp.StatusCode)
	})
}

func TestReadinessFailure(t *testing.T) {
	t.Parallel()

	h := httpapi.NewHandler(nil)
	srv := httptest.NewServer(httpapi.NewRouter(h, httpapi.RouterConfig{
		Listener: httpapi.Publisher,
		Routes:   httpapi.DefaultRoutes(),
		Checks: []func(context.Context) error{
			func(context.Context) error { return errors.New("redis down") },
		},
	}))
	defer srv.Close()

	r := await(t, get(srv.URL+"/health/ready"))
	assert.Equal(t, http.StatusServiceUnavailable, r.resp.StatusCode)
}
