package stats_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushserver/core/stats"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestStatistics_Daily(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)}
	s := stats.New(stats.WithClock(c.Now))

	s.IncrementMessage("chat")
	s.IncrementMessage("chat")
	s.IncrementMessage("bad type!")
	s.IncrementMessage("")
	s.IncrementRequest("incomingMessages")

	d := s.Daily()
	assert.Equal(t, int64(2), d.Messages["chat"])
	assert.Equal(t, int64(2), d.Messages[stats.UnknownType])
	assert.Equal(t, int64(1), d.Requests["incomingMessages"])

	t.Run("resets at utc midnight", func(t *testing.T) {
		c.Set(time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC))

		d := s.Daily()
		assert.Empty(t, d.Messages)
		assert.Empty(t, d.Requests)
	})
}

func TestStatistics_Connections(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := stats.NewMetrics(reg)
	s := stats.New(stats.WithMetrics(m))

	s.IncrementConnection(true)
	s.IncrementConnection(true)
	s.IncrementConnection(false)
	s.DecrementConnection(true)
	s.RecordEviction()
	s.SetChannels(3)
	s.IncrementMessage("chat")

	assert.Equal(t, int64(1), s.Websockets())
	assert.Equal(t, int64(1), s.Pollings())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections.WithLabelValues("websocket")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections.WithLabelValues("polling")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Channels))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("chat")))
}

func TestStatistics_Snapshot(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := stats.New(stats.WithClock(func() time.Time { return now }))
	s.IncrementConnection(true)

	limits := stats.Limits{MaxPayload: 1024, MaxConnPerChannel: 10}

	snap := s.Snapshot("", 4, limits, true)
	assert.Equal(t, os.Getpid(), snap.PID)
	assert.NotEmpty(t, snap.ProcessUniqueID)
	assert.Equal(t, now.UnixMilli(), snap.Date)
	assert.Equal(t, 4, snap.Channels)
	assert.Equal(t, limits, snap.Limits)
	assert.True(t, snap.ClusterMode)
	assert.Equal(t, int64(1), snap.Websockets)
	require.NotNil(t, snap.Daily.Messages)

	assert.Equal(t, "worker-1", s.Snapshot("worker-1", 0, limits, false).ProcessUniqueID)
}
