// Package storage is the catch-up log of the push server.
//
// Every persisted message body lives under message:<id> with its own TTL.
// Each receiver has an ordered index (channel:messages:<id> for private
// channels, pubchannel:messages:<id> for public ones) holding message ids as
// sorted-set members with score 0, so lexicographic range queries return them
// in id order. Indexes carry no TTL of their own until a write finds them
// without one; then they get the channel TTL so abandoned channels vanish.
//
// Message ids combine the deployment epoch (agreed once with SETNX on
// server:startdate) with the server:messagecounter counter, which keeps them
// sortable across every process sharing the store.
//
// Writes, epoch agreement and TTL renewal each run as a single MULTI/EXEC.
package storage
