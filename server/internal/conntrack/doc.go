// Package conntrack counts concurrently open client connections.
//
// A Tracker holds two atomic counters shared by every connection:
//
//	active: connections currently open
//	peak:   high-water mark of active since the last report
//
// Listener wraps a net.Listener so that each accepted connection is acquired
// on Accept and released exactly once on Close, whatever the exit path: a
// normal close, a handler panic (net/http still closes the conn), or a
// hijacked WebSocket connection closed by its session.
//
// Reporter.Run drains the peak every interval, logs it and hands it to an
// optional sink. Two separate spikes within one interval are reported as a
// single peak.
package conntrack
