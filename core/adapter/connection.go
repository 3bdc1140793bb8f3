package adapter

import (
	"context"

	"github.com/dmitrymomot/pushserver/core/stats"
	"github.com/dmitrymomot/pushserver/pkg/channel"
	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// Kind names a session transport.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindPolling   Kind = "polling"
	KindHTTP      Kind = "http"
)

// Connection is a client session as seen by the registry.
// Implementations must be comparable (pointer types) and Send must not block.
type Connection interface {
	Channels() []channel.Channel
	IsActive() bool
	Send(resp protocol.Response)
	Close(code protocol.Code, reason string)
	// OnClose registers fn to run once the session closes.
	// fn runs immediately if the session is already closed.
	OnClose(fn func())
	Kind() Kind
	IP() string
}

// PongNotifier is implemented by sessions with a transport-level keepalive.
type PongNotifier interface {
	OnPong(fn func())
}

// Syncer shares registry state with other processes.
// Without a Syncer the Adapter is a local-only registry.
type Syncer interface {
	// Connected records presence for the channels of conn.
	Connected(ctx context.Context, conn Connection)
	// Published forwards a message to the other processes.
	Published(ctx context.Context, receivers []protocol.Receiver, msg protocol.OutgoingMessage)
	// ChannelStats answers presence across all processes.
	ChannelStats(ctx context.Context, ids []protocol.ChannelID) ([]protocol.ChannelStats, error)
	// ServerStats returns the live snapshots of all processes.
	ServerStats(ctx context.Context) ([]stats.ServerStats, error)
}
