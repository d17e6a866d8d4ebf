package dispatch

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/respond"
)

// Route patterns.
const (
	RouteIndex        = "/"
	RouteWebSocket    = "/ws"
	RouteSSE          = "/sse"
	RouteEcho         = "/echo"
	RouteEchoSubtree  = "/echo/*"
	RouteHeader       = "/hdr"
	RouteDeleteCookie = "/delete-cookie"
	RouteNode         = "/lb"
	RouteWAF          = "/waf"
	RouteHealth       = "/healthz"
)

// Routes holds the handler for every route. A nil entry answers 404.
type Routes struct {
	Index        http.Handler
	WebSocket    http.Handler
	SSE          http.Handler
	Echo         http.Handler
	Header       http.Handler
	DeleteCookie http.Handler
	Node         http.Handler
	WAF          http.Handler
}

// Dispatcher resolves the health bypass and URL prefix, then routes.
type Dispatcher struct {
	prefix string
	router chi.Router
}

// New builds the dispatcher for cfg.
func New(cfg *config.Config, routes Routes) *Dispatcher {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	handle := func(pattern string, h http.Handler) {
		if h != nil {
			r.Handle(pattern, h)
		}
	}
	handle(RouteIndex, routes.Index)
	handle(RouteWebSocket, routes.WebSocket)
	handle(RouteSSE, routes.SSE)
	handle(RouteEcho, routes.Echo)
	handle(RouteEchoSubtree, routes.Echo)
	handle(RouteHeader, routes.Header)
	handle(RouteDeleteCookie, routes.DeleteCookie)
	handle(RouteNode, routes.Node)
	handle(RouteWAF, routes.WAF)
	r.HandleFunc(RouteHealth, health)

	return &Dispatcher{prefix: cfg.URLPrefix, router: r}
}

// Handler returns d wrapped in access logging and panic recovery.
func Handler(d *Dispatcher, m *metrics.Metrics) http.Handler {
	return Logging(m)(Recovery(d))
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.EscapedPath()
	if raw == RouteHealth {
		markRoute(r, RouteHealth)
		health(w, r)
		return
	}

	if d.prefix != "" {
		rest, ok := StripPrefix(raw, d.prefix)
		if !ok {
			notFound(w, r)
			return
		}
		r2, err := withRawPath(r, rest)
		if err != nil {
			notFound(w, r)
			return
		}
		r = r2
	}

	d.router.ServeHTTP(w, r)
}

// StripPrefix removes prefix from the raw path when it ends on a segment
// boundary. An empty remainder becomes "/".
func StripPrefix(raw, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(raw, prefix)
	if !ok {
		return "", false
	}
	switch {
	case rest == "":
		return "/", true
	case rest[0] == '/':
		return rest, true
	default:
		return "", false
	}
}

// --- helpers ---

// withRawPath returns a shallow copy of r whose URL carries raw as both the
// escaped and decoded path, the way http.StripPrefix rewrites requests.
func withRawPath(r *http.Request, raw string) (*http.Request, error) {
	p, err := url.PathUnescape(raw)
	if err != nil {
		return nil, err
	}
	r2 := new(http.Request)
	*r2 = *r
	r2.URL = new(url.URL)
	*r2.URL = *r.URL
	r2.URL.Path = p
	r2.URL.RawPath = raw
	return r2, nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	respond.Text(w, http.StatusOK, "OK")
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	respond.Text(w, http.StatusNotFound, "Not Found")
}

// markRoute records pattern for the access log when the request bypasses the
// router.
func markRoute(r *http.Request, pattern string) {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		rctx.RoutePatterns = append(rctx.RoutePatterns, pattern)
	}
}
