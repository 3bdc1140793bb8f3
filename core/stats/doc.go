// Package stats keeps per-process broker statistics: live WebSocket and
// long-poll session counts, and request and message counters for the
// current UTC day. Message types outside [a-zA-Z0-9_*-]{1,32} are counted
// as "unknown".
//
// Snapshot renders the structure served by the server-stat endpoint and
// shared between cluster peers. Metrics optionally mirrors the same
// counters into prometheus collectors served on /metrics.
package stats
