// Package httpapi maps the push server routes onto the broker.
//
// Public routes (clients):
//
//	GET     sub   long poll, or WebSocket when the request asks for an upgrade
//	OPTIONS sub   CORS preflight
//	POST    rest  binary RequestBatch from an untrusted client
//
// Publisher routes (backends):
//
//	POST pub      text body published to CHANNEL_ID, or a binary RequestBatch
//	              with binaryMode=true
//	GET  pub      channel stats of CHANNEL_ID
//	GET  stat     server stats of every live process
//	GET  /metrics, /health/live, /health/ready
//
// One-shot HTTP requests run the broker on a separate goroutine and write
// the reply from the handler goroutine once the session is answered.
package httpapi
