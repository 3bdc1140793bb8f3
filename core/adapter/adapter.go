package adapter

import (
	"container/list"
	"context"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/pushserver/core/logger"
	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

const evictionReason = "Too many connections"

// members is an insertion-ordered set of connections.
type members struct {
	order *list.List
	index map[Connection]*list.Element
}

func newMembers() *members {
	return &members{order: list.New(), index: make(map[Connection]*list.Element)}
}

func (m *members) add(c Connection) {
	if _, ok := m.index[c]; ok {
		return
	}
	m.index[c] = m.order.PushBack(c)
}

func (m *members) remove(c Connection) bool {
	e, ok := m.index[c]
	if !ok {
		return false
	}
	m.order.Remove(e)
	delete(m.index, c)
	return true
}

func (m *members) oldest() Connection {
	if e := m.order.Front(); e != nil {
		return e.Value.(Connection)
	}
	return nil
}

func (m *members) len() int {
	return len(m.index)
}

// Adapter is the connection registry: channel id to the sessions subscribed to it.
type Adapter struct {
	mu          sync.RWMutex
	connections map[string]*members // private channel hex
	pubChannels map[string]string   // public channel hex -> private channel hex

	limits          stats.Limits
	processUniqueID string
	publishMode     bool
	syncer          Syncer
	stats           *stats.Statistics
	logger          *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLimits sets the limits; MaxConnPerChannel drives eviction.
func WithLimits(l stats.Limits) Option {
	return func(a *Adapter) {
		a.limits = l
	}
}

// WithSyncer attaches a cluster collaborator.
func WithSyncer(s Syncer) Option {
	return func(a *Adapter) {
		a.syncer = s
	}
}

// WithPublishMode disables local delivery; messages only go to the Syncer.
// Has no effect without a Syncer.
func WithPublishMode(enabled bool) Option {
	return func(a *Adapter) {
		a.publishMode = enabled
	}
}

// WithStatistics sets the statistics sink.
func WithStatistics(s *stats.Statistics) Option {
	return func(a *Adapter) {
		if s != nil {
			a.stats = s
		}
	}
}

// WithProcessUniqueID sets the id reported in server stats. Defaults to the pid.
func WithProcessUniqueID(id string) Option {
	return func(a *Adapter) {
		a.processUniqueID = id
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Adapter. MaxConnPerChannel defaults to 100.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		connections: make(map[string]*members),
		pubChannels: make(map[string]string),
		limits:      stats.Limits{MaxConnPerChannel: 100},
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.stats == nil {
		a.stats = stats.New()
	}
	a.logger = a.logger.With(logger.Component("adapter"))
	return a
}

// Add registers conn under each of its channels. A channel with a public id
// that already holds MaxConnPerChannel sessions loses its oldest session
// first. Returns false if conn is no longer active.
func (a *Adapter) Add(ctx context.Context, conn Connection) bool {
	if !conn.IsActive() {
		return false
	}

	var evicted []Connection

	a.mu.Lock()
	for _, ch := range conn.Channels() {
		key := ch.HexPrivateID()

		if ch.HasPublicID() {
			if m, ok := a.connections[key]; ok && m.len() >= a.limits.MaxConnPerChannel {
				if first := m.oldest(); first != nil && first != conn {
					if a.deleteLocked(first) {
						evicted = append(evicted, first)
					}
				}
			}
		}

		// eviction may have dropped the channel entry
		m, ok := a.connections[key]
		if !ok {
			m = newMembers()
			a.connections[key] = m
		}
		m.add(conn)

		if ch.HasPublicID() {
			a.pubChannels[ch.HexPublicID()] = key
		}
	}
	channels := len(a.connections)
	a.mu.Unlock()

	a.stats.IncrementConnection(conn.Kind() == KindWebSocket)
	a.stats.SetChannels(channels)

	for _, c := range evicted {
		a.stats.DecrementConnection(c.Kind() == KindWebSocket)
		a.stats.RecordEviction()
		a.logger.WarnContext(ctx, "evicting connection", logger.ClientIP(c.IP()), logger.CloseCode(int(protocol.CodeTooManyConnections)))
		c.Close(protocol.CodeTooManyConnections, evictionReason)
	}

	conn.OnClose(func() { a.Delete(conn) })

	if a.syncer != nil {
		a.syncer.Connected(ctx, conn)
		if p, ok := conn.(PongNotifier); ok {
			p.OnPong(func() {
				if conn.IsActive() {
					a.syncer.Connected(context.Background(), conn)
				}
			})
		}
	}

	return true
}

// Delete removes conn from every channel. Deleting twice is a no-op.
func (a *Adapter) Delete(conn Connection) {
	a.mu.Lock()
	removed := a.deleteLocked(conn)
	channels := len(a.connections)
	a.mu.Unlock()

	if removed {
		a.stats.DecrementConnection(conn.Kind() == KindWebSocket)
		a.stats.SetChannels(channels)
	}
}

// must be called with a.mu held
func (a *Adapter) deleteLocked(conn Connection) bool {
	removed := false
	for _, ch := range conn.Channels() {
		key := ch.HexPrivateID()
		m, ok := a.connections[key]
		if !ok {
			continue
		}
		if m.remove(conn) {
			removed = true
		}
		if m.len() == 0 {
			delete(a.connections, key)
			if ch.HasPublicID() {
				delete(a.pubChannels, ch.HexPublicID())
			}
		}
	}
	return removed
}

// Broadcast delivers msg to local subscribers of receivers and, with a
// Syncer, forwards it to the other processes. Publish mode skips local delivery.
func (a *Adapter) Broadcast(ctx context.Context, receivers []protocol.Receiver, msg protocol.OutgoingMessage) {
	if a.syncer == nil || !a.publishMode {
		a.DeliverLocal(receivers, msg)
	}
	if a.syncer != nil {
		a.syncer.Published(ctx, receivers, msg)
	}
}

// DeliverLocal sends msg to every local session subscribed to one of receivers.
// Public receivers resolve through their private alias; unknown receivers are skipped.
// Each session gets the message once even if it matches several receivers.
func (a *Adapter) DeliverLocal(receivers []protocol.Receiver, msg protocol.OutgoingMessage) int {
	var targets []Connection
	seen := make(map[Connection]struct{})

	a.mu.RLock()
	for _, r := range receivers {
		key := hex.EncodeToString(r.ID)
		if !r.IsPrivate {
			key = a.pubChannels[key]
		}
		m, ok := a.connections[key]
		if key == "" || !ok {
			continue
		}
		for e := m.order.Front(); e != nil; e = e.Next() {
			c := e.Value.(Connection)
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			targets = append(targets, c)
		}
	}
	a.mu.RUnlock()

	resp := protocol.OutgoingMessages(msg)
	for _, c := range targets {
		c.Send(resp)
	}
	return len(targets)
}

// ChannelStats reports which channels are online. With a Syncer the answer
// covers every process; otherwise only local sessions count.
func (a *Adapter) ChannelStats(ctx context.Context, ids []protocol.ChannelID) ([]protocol.ChannelStats, error) {
	if a.syncer != nil {
		return a.syncer.ChannelStats(ctx, ids)
	}
	return a.LocalChannelStats(ids), nil
}

// LocalChannelStats reports channels with at least one local session.
func (a *Adapter) LocalChannelStats(ids []protocol.ChannelID) []protocol.ChannelStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]protocol.ChannelStats, 0, len(ids))
	for _, id := range ids {
		key := hex.EncodeToString(id.ID)
		if !id.IsPrivate {
			key = a.pubChannels[key]
		}
		_, online := a.connections[key]
		out = append(out, protocol.ChannelStats{
			ID:        id.ID,
			IsPrivate: id.IsPrivate,
			IsOnline:  key != "" && online,
		})
	}
	return out
}

// ServerStats returns server snapshots: every live process with a Syncer,
// this process alone otherwise.
func (a *Adapter) ServerStats(ctx context.Context) ([]stats.ServerStats, error) {
	if a.syncer != nil {
		return a.syncer.ServerStats(ctx)
	}
	return []stats.ServerStats{a.LocalServerStats()}, nil
}

// LocalServerStats returns the snapshot of this process.
func (a *Adapter) LocalServerStats() stats.ServerStats {
	return a.stats.Snapshot(a.processUniqueID, a.ChannelCount(), a.limits, a.syncer != nil)
}

// ChannelCount returns the number of channels with local sessions.
func (a *Adapter) ChannelCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.connections)
}

// MemberCount returns the number of local sessions on a private channel.
func (a *Adapter) MemberCount(privateID []byte) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if m, ok := a.connections[hex.EncodeToString(privateID)]; ok {
		return m.len()
	}
	return 0
}

// Statistics returns the statistics sink.
func (a *Adapter) Statistics() *stats.Statistics {
	return a.stats
}

// Limits returns the configured limits.
func (a *Adapter) Limits() stats.Limits {
	return a.limits
}
