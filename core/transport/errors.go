package transport

import "errors"

var (
	// ErrQueueFull is logged when a WebSocket session cannot keep up with its outbound frames.
	ErrQueueFull = errors.New("transport: send queue is full")
	// ErrUnresponsive is logged when a WebSocket client misses a ping.
	ErrUnresponsive = errors.New("transport: client did not answer ping")
)
