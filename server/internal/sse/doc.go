// Package sse implements the /sse diagnostic event stream.
//
// The stream opens with one "headers" event carrying the request snapshot,
// then emits "Heartbeat #n" data records: the first immediately, the rest
// one heartbeat interval apart. It ends when the client disconnects or a
// write fails; there is no closing record.
//
// Every record is written under a deadline, so a client that stops reading
// without closing the connection ends the stream once the deadline passes.
package sse
