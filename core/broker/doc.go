// Package broker is the request dispatcher of the push server.
//
// It ties the catch-up log (core/storage), the connection registry
// (core/adapter) and the client sessions (core/transport) together:
//
//   - Subscribe replays the backlog since the client's last message id and
//     registers the session for live delivery.
//   - Publish persists a message and broadcasts it.
//   - ProcessClientRequest decodes a binary request batch, applies the
//     trust policy and dispatches the first request to its command handler.
//
// Untrusted requests (the REST route and WebSocket clients) must come from a
// session with a public channel, may only publish to signed public channels
// and may only use the incomingMessages and channelStats commands. Trusted
// requests (the publisher listener) may address private channels by id and
// read server stats.
//
// Protocol errors close the session with a 4xxx code and are logged with the
// client IP. Storage errors are logged; only a failed backlog read closes the
// session (4011).
package broker
