// Package cluster lets several push server processes share one Redis and act
// as a single broker.
//
// Each Coordinator picks a short random instance id and publishes every
// locally broadcast message on the bus topic "<prefix>:<instanceID>". All
// instances subscribe to "<prefix>:*" and deliver notifications to their own
// sessions, discarding their own echo.
//
// Presence is tracked with TTL keys (channel:online:<id>,
// pubchannel:online:<id>) written when a session registers and renewed on
// every WebSocket pong. Each instance also stores its stats snapshot in the
// "stats" hash; readers drop entries older than the stats window.
//
// Bus and store failures degrade presence and fan-out but never stop the
// local instance from serving its own sessions.
package cluster
