package stats

import (
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// UnknownType is the counter key for message types that fail validation.
const UnknownType = "unknown"

var messageTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_*-]{1,32}$`)

// Limits are the configured request limits reported in snapshots.
type Limits struct {
	MaxPayload            int `json:"maxPayload"`
	MaxConnPerChannel     int `json:"maxConnPerChannel"`
	MaxMessagesPerRequest int `json:"maxMessagesPerRequest"`
	MaxChannelsPerRequest int `json:"maxChannelsPerRequest"`
}

// Daily holds the counters of the current UTC day.
type Daily struct {
	Requests map[string]int64 `json:"requests"`
	Messages map[string]int64 `json:"messages"`
}

// ServerStats is a point-in-time snapshot of one process.
type ServerStats struct {
	PID             int    `json:"pid"`
	Date            int64  `json:"date"`
	ProcessUniqueID string `json:"processUniqueId"`
	Channels        int    `json:"channels"`
	Limits          Limits `json:"limits"`
	ClusterMode     bool   `json:"clusterMode"`
	Websockets      int64  `json:"websockets"`
	Pollings        int64  `json:"pollings"`
	Daily           Daily  `json:"daily"`
}

// Statistics tracks live connection counts and daily counters.
// Daily counters reset at UTC midnight. Safe for concurrent use.
type Statistics struct {
	mu         sync.Mutex
	now        func() time.Time
	dayEnd     time.Time
	requests   map[string]int64
	messages   map[string]int64
	websockets int64
	pollings   int64
	metrics    *Metrics
}

// Option configures Statistics.
type Option func(*Statistics)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Statistics) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics mirrors every counter update into prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Statistics) {
		s.metrics = m
	}
}

// New creates Statistics.
func New(opts ...Option) *Statistics {
	s := &Statistics{
		now:      time.Now,
		requests: map[string]int64{},
		messages: map[string]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dayEnd = nextMidnight(s.now())
	return s
}

// IncrementMessage counts a published message by type.
func (s *Statistics) IncrementMessage(messageType string) {
	if !messageTypePattern.MatchString(messageType) {
		messageType = UnknownType
	}

	s.mu.Lock()
	s.resetIfNeeded()
	s.messages[messageType]++
	s.mu.Unlock()

	s.metrics.message(messageType)
}

// IncrementRequest counts a processed request by command name.
func (s *Statistics) IncrementRequest(command string) {
	s.mu.Lock()
	s.resetIfNeeded()
	s.requests[command]++
	s.mu.Unlock()

	s.metrics.request(command)
}

// IncrementConnection counts a registered session.
func (s *Statistics) IncrementConnection(websocket bool) {
	s.addConnection(websocket, 1)
}

// DecrementConnection uncounts a registered session.
func (s *Statistics) DecrementConnection(websocket bool) {
	s.addConnection(websocket, -1)
}

func (s *Statistics) addConnection(websocket bool, delta int64) {
	s.mu.Lock()
	if websocket {
		s.websockets += delta
	} else {
		s.pollings += delta
	}
	s.mu.Unlock()

	s.metrics.connection(websocket, delta)
}

// RecordEviction counts a session closed for exceeding the per-channel cap.
func (s *Statistics) RecordEviction() {
	s.metrics.eviction()
}

// SetChannels reports the number of channels with local subscribers.
func (s *Statistics) SetChannels(n int) {
	s.metrics.channels(n)
}

// Websockets returns the number of registered WebSocket sessions.
func (s *Statistics) Websockets() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.websockets
}

// Pollings returns the number of registered long-poll sessions.
func (s *Statistics) Pollings() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollings
}

// Daily returns a copy of today's counters.
func (s *Statistics) Daily() Daily {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNeeded()

	d := Daily{
		Requests: make(map[string]int64, len(s.requests)),
		Messages: make(map[string]int64, len(s.messages)),
	}
	for k, v := range s.requests {
		d.Requests[k] = v
	}
	for k, v := range s.messages {
		d.Messages[k] = v
	}
	return d
}

// Snapshot builds a ServerStats for this process.
func (s *Statistics) Snapshot(processUniqueID string, channels int, limits Limits, clusterMode bool) ServerStats {
	pid := os.Getpid()
	if processUniqueID == "" {
		processUniqueID = strconv.Itoa(pid)
	}

	daily := s.Daily()

	s.mu.Lock()
	defer s.mu.Unlock()

	return ServerStats{
		PID:             pid,
		Date:            s.now().UnixMilli(),
		ProcessUniqueID: processUniqueID,
		Channels:        channels,
		Limits:          limits,
		ClusterMode:     clusterMode,
		Websockets:      s.websockets,
		Pollings:        s.pollings,
		Daily:           daily,
	}
}

// must be called with s.mu held
func (s *Statistics) resetIfNeeded() {
	now := s.now()
	if now.Before(s.dayEnd) {
		return
	}
	s.dayEnd = nextMidnight(now)
	s.requests = map[string]int64{}
	s.messages = map[string]int64{}
}

func nextMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
