package storage

import (
	"context"

	"github.com/dmitrymomot/pushserver/pkg/protocol"
)

// Storage is the catch-up log: message bodies keyed by id plus a per-receiver
// index of message ids ordered by their bytes.
type Storage interface {
	// Set allocates an id for msg and persists it unless it is volatile
	// (expiry 0) or has no receivers. The returned message is ready for delivery.
	Set(ctx context.Context, msg protocol.IncomingMessage) (protocol.OutgoingMessage, error)

	// Get returns the messages of receivers with ids greater than since,
	// ascending by id. Expired and undecodable bodies are skipped.
	Get(ctx context.Context, receivers []protocol.Receiver, since []byte) ([]protocol.OutgoingMessage, error)

	// GetLastMessage returns the newest message across receivers, or nil if there is none.
	GetLastMessage(ctx context.Context, receivers []protocol.Receiver) (*protocol.OutgoingMessage, error)
}
