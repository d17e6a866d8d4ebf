package conntrack

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Reporter periodically drains a Tracker's peak and publishes it.
type Reporter struct {
	tracker  *Tracker
	interval time.Duration
	clock    clock.Clock
	sink     func(peak, active int64)
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) ReporterOption {
	return func(r *Reporter) {
		r.clock = c
	}
}

// WithSink registers fn to receive every drained peak with the active count
// observed at the same tick.
func WithSink(fn func(peak, active int64)) ReporterOption {
	return func(r *Reporter) {
		r.sink = fn
	}
}

// NewReporter creates a Reporter that drains t every interval.
func NewReporter(t *Tracker, interval time.Duration, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		tracker:  t,
		interval: interval,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reports on every tick until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	t := r.clock.Ticker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	peak := r.tracker.DrainPeak()
	active := r.tracker.Active()
	slog.Info("connections: peak since last report",
		"peak", peak,
		"active", active,
		"interval", r.interval,
	)
	if r.sink != nil {
		r.sink(peak, active)
	}
}
