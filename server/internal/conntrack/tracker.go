package conntrack

import (
	"net"
	"sync"
	"sync/atomic"
)

// Tracker is the shared pair of connection counters.
type Tracker struct {
	active atomic.Int64
	peak   atomic.Int64
}

// New creates a Tracker with both counters at zero.
func New() *Tracker {
	return &Tracker{}
}

// Acquire records a newly opened connection and returns its release func.
// The release func is idempotent.
func (t *Tracker) Acquire() (release func()) {
	n := t.active.Add(1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() { t.active.Add(-1) })
	}
}

// Active returns the number of currently open connections.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// Peak returns the high-water mark since the last drain without resetting it.
func (t *Tracker) Peak() int64 {
	return t.peak.Load()
}

// DrainPeak returns the high-water mark and resets it to zero.
func (t *Tracker) DrainPeak() int64 {
	return t.peak.Swap(0)
}

// Listen wraps l so that every accepted connection is tracked.
func (t *Tracker) Listen(l net.Listener) net.Listener {
	return &Listener{Listener: l, tracker: t}
}

// Listener is a net.Listener whose connections are counted by a Tracker.
type Listener struct {
	net.Listener
	tracker *Tracker
}

// Accept waits for the next connection and acquires it.
func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &trackedConn{Conn: c, release: l.tracker.Acquire()}, nil
}

// trackedConn releases its tracker slot on the first Close.
type trackedConn struct {
	net.Conn
	release func()
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.release()
	return err
}
