// Package ws implements the /ws diagnostic WebSocket session.
//
// Handler.ServeHTTP validates the handshake, builds the request snapshot,
// upgrades the connection and hands it to a session goroutine that is never
// joined. The session sends:
//
//	{"type":"headers", ...snapshot...}      first, always
//	Heartbeat #0                            immediately after
//	Heartbeat #1, #2, ...                   one per heartbeat interval
//
// The Origin header is compared with Host after dropping the scheme. A
// mismatch does not refuse the connection: the first message then carries an
// empty header map and "origin_mismatch":true, so a cross-site page learns
// nothing about the caller's request headers.
//
// A session ends when the client sends a close frame, the transport fails or
// a write times out. It never retries.
package ws
