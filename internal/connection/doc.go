// Package connection owns the feed socket.
//
// Client wraps a single gorilla/websocket connection: one read goroutine
// delivers frames on a channel, one heartbeat goroutine pings the server and
// reports stale connections. Supervisor drives the session lifecycle:
//
//	Init -> Negotiating -> Connecting -> Connected -> Closing -> Backoff -> Negotiating ...
//
// Authorization failures past the configured ceiling and Stop end in
// Terminated. Every other failure goes through Backoff and retries.
package connection
