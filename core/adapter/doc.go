// Package adapter is the in-memory connection registry of the push server.
//
// The Adapter maps private channel ids to the sessions subscribed to them and
// keeps an alias from every public id to its private id. Broadcast resolves
// receivers through these maps and hands the message to each matching
// session. Sends are collected under the registry lock and performed after
// it is released.
//
// A channel addressed through a public id holds at most MaxConnPerChannel
// sessions; adding one more closes the oldest with code 4029.
//
// Cluster behavior is layered on by composition: a Syncer receives presence
// and published messages and answers channel and server stats for the whole
// pool. The cluster package provides one backed by Redis.
package adapter
