package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/respond"
	"github.com/sensillum/sensillum/server/internal/serverinfo"
)

// writeTimeout is the default deadline for writing and flushing one record.
const writeTimeout = 10 * time.Second

// Handler serves one event stream per request on the request goroutine.
type Handler struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	heartbeat    time.Duration
	writeTimeout time.Duration
	clock        clock.Clock
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock driving heartbeats.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithWriteTimeout sets the deadline for writing one record.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) { h.writeTimeout = d }
}

// New returns a Handler sending heartbeats every cfg.HeartbeatInterval.
// m may be nil.
func New(cfg *config.Config, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		cfg:          cfg,
		metrics:      m,
		heartbeat:    cfg.HeartbeatInterval,
		writeTimeout: writeTimeout,
		clock:        clock.New(),
	}
	if h.heartbeat <= 0 {
		h.heartbeat = config.DefaultHeartbeatInterval
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap, err := json.Marshal(serverinfo.Build(serverinfo.FromRequest(r), h.cfg))
	if err != nil {
		slog.Error("sse: encode snapshot", "err", err)
		respond.InternalError(w)
		return
	}
	rc := http.NewResponseController(w)
	defer rc.SetWriteDeadline(time.Time{}) //nolint:errcheck

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := slog.With(
		"session_id", uuid.NewString(),
		"remote_addr", r.RemoteAddr,
		"proto", r.Proto,
	)
	ended := h.metrics.SessionStarted(metrics.KindSSE)
	defer ended()

	ticker := h.clock.Ticker(h.heartbeat)
	defer ticker.Stop()

	log.Info("sse: session started")

	if err := h.send(w, rc, "event: headers\ndata: %s\n\n", snap); err != nil {
		log.Warn("sse: send headers failed", "err", err)
		return
	}

	ctx := r.Context()
	for n := 0; ; n++ {
		if err := h.send(w, rc, "data: Heartbeat #%d\n\n", n); err != nil {
			log.Warn("sse: send heartbeat failed", "heartbeat", n, "err", err)
			return
		}
		h.metrics.Heartbeat(metrics.KindSSE)

		select {
		case <-ctx.Done():
			log.Info("sse: session closed by client", "heartbeats", n+1)
			return
		case <-ticker.C:
		}
	}
}

// send writes one record and flushes it to the client before the write
// deadline.
func (h *Handler) send(w io.Writer, rc *http.ResponseController, format string, args ...interface{}) error {
	if err := rc.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		return err
	}
	return rc.Flush()
}
