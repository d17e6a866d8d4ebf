package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/respond"
	"github.com/sensillum/sensillum/server/internal/serverinfo"
)

const (
	// writeTimeout is the deadline for a single frame write.
	writeTimeout = 10 * time.Second

	// readLimit bounds client frames. Their content is ignored.
	readLimit = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is observed in the first message, never enforced.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HeadersMessage is the first message of every session.
type HeadersMessage struct {
	Type string `json:"type"`
	serverinfo.Snapshot
	OriginMismatch bool `json:"origin_mismatch,omitempty"`
}

// Handler upgrades /ws requests and runs one session per connection.
type Handler struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	heartbeat time.Duration
	clock     clock.Clock
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock driving heartbeats.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// New returns a Handler sending heartbeats every cfg.HeartbeatInterval.
// m may be nil.
func New(cfg *config.Config, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		cfg:       cfg,
		metrics:   m,
		heartbeat: cfg.HeartbeatInterval,
		clock:     clock.New(),
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
	if r.Method != http.MethodGet {
		respond.Text(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		respond.Text(w, http.StatusBadRequest, "Expected WebSocket upgrade")
		return
	}

	msg := HeadersMessage{
		Type:     "headers",
		Snapshot: serverinfo.Build(serverinfo.FromRequest(r), h.cfg),
	}
	if !OriginMatches(r.Header.Get("Origin"), r.Host) {
		msg.Snapshot = msg.Snapshot.WithoutHeaders()
		msg.OriginMismatch = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Warn("ws: upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	log := slog.With(
		"session_id", uuid.NewString(),
		"remote_addr", r.RemoteAddr,
		"proto", r.Proto,
	)
	if msg.OriginMismatch {
		log.Warn("ws: origin does not match host",
			"origin", r.Header.Get("Origin"), "host", r.Host)
	}

	go h.run(conn, msg, log)
}

// OriginMatches reports whether origin names the same host as host. An absent
// origin matches; an origin with no host to compare against does not.
func OriginMatches(origin, host string) bool {
	if origin == "" {
		return true
	}
	if host == "" {
		return false
	}
	if scheme, rest, ok := strings.Cut(origin, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "https", "ws", "wss":
			origin = rest
		}
	}
	return strings.EqualFold(origin, host)
}

// --- session ----------------------------------------------------------------

// run drives one session until the client goes away. It owns conn.
func (h *Handler) run(conn *websocket.Conn, first HeadersMessage, log *slog.Logger) {
	ended := h.metrics.SessionStarted(metrics.KindWebSocket)
	defer func() {
		conn.Close()
		ended()
	}()

	ticker := h.clock.Ticker(h.heartbeat)
	defer ticker.Stop()

	closed := make(chan error, 1)
	go readPump(conn, closed)

	log.Info("ws: session started")

	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := conn.WriteJSON(first); err != nil {
		log.Warn("ws: send headers failed", "err", err)
		return
	}

	for n := 0; ; n++ {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
		if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Heartbeat #%d", n))); err != nil {
			log.Warn("ws: send heartbeat failed", "heartbeat", n, "err", err)
			return
		}
		h.metrics.Heartbeat(metrics.KindWebSocket)

		select {
		case err := <-closed:
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Info("ws: session closed by client", "heartbeats", n+1)
			} else {
				log.Warn("ws: session ended", "heartbeats", n+1, "err", err)
			}
			return
		case <-ticker.C:
		}
	}
}

// readPump discards client frames and reports the first read error, which
// includes a close frame from the peer.
func readPump(conn *websocket.Conn, closed chan<- error) {
	conn.SetReadLimit(readLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closed <- err
			return
		}
	}
}
