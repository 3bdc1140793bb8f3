// Package transport implements the client sessions of the push server.
//
// Every session parses its RequestInfo (channels, last seen message id,
// binary mode, client IP) from the HTTP request and implements
// adapter.Connection:
//
//   - WebSocket: a long-lived connection. Responses sent within the
//     coalescing window are merged into one frame, a ping is sent every
//     ping interval and a client that did not answer the previous ping is
//     terminated. Frames are written by a single writer goroutine from a
//     bounded queue; a full queue closes the session with 1013.
//   - Polling: a long-poll request answered with exactly one response. When
//     nothing arrives before the poll timeout the client gets 304 and the
//     Last-Message-Id header.
//   - HTTPRequest: a one-shot request used for publishing and stats.
//
// HTTP sessions never write to the ResponseWriter from Send or Close. The
// reply is handed to Wait, which runs on the handler goroutine.
//
// Sends after a session closed are silently dropped.
package transport
