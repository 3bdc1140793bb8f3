package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushserver/core/server"
)

func hello() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
}

func waitReady(t *testing.T, s *server.Server) {
	t.Helper()
	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	s := server.New("127.0.0.1:0", server.WithName("public"), server.WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.Run(gctx, hello()))

	waitReady(t, s)
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "hello", string(body))

	cancel()
	require.NoError(t, g.Wait())

	_, err = http.Get("http://" + s.Addr() + "/")
	assert.Error(t, err)
}

func TestServer_StartTwice(t *testing.T) {
	t.Parallel()

	s := server.New("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, hello()) }()
	waitReady(t, s)

	assert.ErrorIs(t, s.Start(ctx, hello()), server.ErrServerAlreadyRunning)

	require.NoError(t, s.Stop())
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestServer_AddressInUse(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := server.New(ln.Addr().String())
	err = s.Run(context.Background(), hello())()
	assert.Error(t, err)
}

func TestServer_StopNotRunning(t *testing.T) {
	t.Parallel()

	assert.NoError(t, server.New(":0").Stop())
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()
		_, err := server.NewFromConfig(server.Config{})
		assert.ErrorIs(t, err, server.ErrMissingAddress)
	})

	t.Run("missing certificate", func(t *testing.T) {
		t.Parallel()
		_, err := server.NewFromConfig(server.Config{
			Addr:        ":0",
			TLSCertFile: "/nonexistent/cert.pem",
			TLSKeyFile:  "/nonexistent/key.pem",
		})
		assert.ErrorIs(t, err, server.ErrFailedLoadCert)
	})

	t.Run("plain", func(t *testing.T) {
		t.Parallel()
		s, err := server.NewFromConfig(server.Config{
			Addr:         "127.0.0.1:9999",
			WriteTimeout: time.Minute,
		})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9999", s.Addr())
	})
}
