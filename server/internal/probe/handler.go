package probe

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/sensillum/sensillum/server/internal/config"
	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/query"
	"github.com/sensillum/sensillum/server/internal/respond"
	"github.com/sensillum/sensillum/server/internal/serverinfo"
	"github.com/sensillum/sensillum/server/internal/waf"
)

// MaxResponseHeaderBytes caps the header-size probe.
const MaxResponseHeaderBytes = 2 * 1024 * 1024

const (
	byteProbeHeader   = "X-Charset-Test"
	sizeProbeHeader   = "X-Response-Test"
	wafPayloadHeader  = "X-Waf-Payload"
	multiHeaderCount  = 10
	cookieClearSuffix = "=; Max-Age=0; Path=/; Expires=Thu, 01 Jan 1970 00:00:00 GMT"
)

// Probe outcomes recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeInvalid  = "invalid"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// Handler serves the boundary probes.
type Handler struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	catalogue *waf.Catalogue
}

// New returns a Handler. m may be nil. A nil catalogue selects the embedded one.
func New(cfg *config.Config, m *metrics.Metrics, cat *waf.Catalogue) *Handler {
	if cat == nil {
		cat = waf.Default()
	}
	return &Handler{cfg: cfg, metrics: m, catalogue: cat}
}

// Echo handles /echo and /echo/*.
func (h *Handler) Echo(w http.ResponseWriter, r *http.Request) {
	resp := EchoResponse{
		Snapshot: serverinfo.Build(serverinfo.FromRequest(r), h.cfg),
		Path:     r.URL.EscapedPath(),
		Query:    r.URL.RawQuery,
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Headers", "*")
	hdr.Set("Access-Control-Expose-Headers", "*")
	h.metrics.Probe("echo", outcomeOK)
	respond.JSON(w, http.StatusOK, resp)
}

// Header handles /hdr. A byte parameter selects the byte probe, anything else
// the header-size probe.
func (h *Handler) Header(w http.ResponseWriter, r *http.Request) {
	params := query.Parse(r.URL.RawQuery)
	if _, ok := params["byte"]; ok {
		h.byteProbe(w, params.Get("byte"))
		return
	}
	h.sizeProbe(w, params)
}

// byteProbe places the byte between two markers in a response header so the
// client can see whether an intermediary forwards it unchanged.
func (h *Handler) byteProbe(w http.ResponseWriter, raw string) {
	b, ok := parseHexByte(raw)
	if !ok {
		h.metrics.Probe("byte", outcomeInvalid)
		respond.Error(w, http.StatusBadRequest, "invalid byte parameter")
		return
	}

	resp := ByteProbeResponse{OK: true, Byte: fmt.Sprintf("%02x", b)}
	value := "probe" + string([]byte{b}) + "probe"
	if !httpguts.ValidHeaderFieldValue(value) {
		resp.OK = false
		resp.Reason = fmt.Sprintf("byte 0x%02x is not allowed in a header value", b)
		h.metrics.Probe("byte", outcomeRejected)
		respond.JSON(w, http.StatusOK, resp)
		return
	}

	w.Header().Set(byteProbeHeader, value)
	h.metrics.Probe("byte", outcomeOK)
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) sizeProbe(w http.ResponseWriter, params query.Values) {
	size, err := strconv.Atoi(params.Get("size"))
	if err != nil || size < 0 {
		size = 0
	}
	if size > MaxResponseHeaderBytes {
		size = MaxResponseHeaderBytes
	}

	hdr := w.Header()
	hdr.Set("Access-Control-Expose-Headers", "*")
	if size > 0 {
		if params.Get("mode") == "multi" {
			if per := size / multiHeaderCount; per > 0 {
				value := strings.Repeat("x", per)
				for i := 0; i < multiHeaderCount; i++ {
					hdr.Set(sizeProbeHeader+"-"+strconv.Itoa(i), value)
				}
			}
		} else {
			hdr.Set(sizeProbeHeader, strings.Repeat("x", size))
		}
	}

	h.metrics.Probe("size", outcomeOK)
	respond.JSON(w, http.StatusOK, okResponse{OK: true})
}

// DeleteCookie handles /delete-cookie?name=N.
func (h *Handler) DeleteCookie(w http.ResponseWriter, r *http.Request) {
	name := query.Parse(r.URL.RawQuery).Get("name")
	if name == "" {
		h.metrics.Probe("cookie", outcomeInvalid)
		respond.Error(w, http.StatusBadRequest, "missing name parameter")
		return
	}
	// The name is written as given so clients can clear cookies whose names
	// net/http would refuse to serialize.
	cookie := name + cookieClearSuffix
	if !httpguts.ValidHeaderFieldValue(cookie) {
		h.metrics.Probe("cookie", outcomeInvalid)
		respond.Error(w, http.StatusBadRequest, "invalid name parameter")
		return
	}
	w.Header().Add("Set-Cookie", cookie)
	h.metrics.Probe("cookie", outcomeOK)
	respond.JSON(w, http.StatusOK, okResponse{OK: true})
}

// NodeIdentity handles /lb: which instance answered.
func (h *Handler) NodeIdentity(w http.ResponseWriter, r *http.Request) {
	var resp NodeResponse
	if h.cfg.NodeName != "" {
		resp.NodeIdentity = &serverinfo.NodeIdentity{
			NodeName:     h.cfg.NodeName,
			NodeNameHash: serverinfo.FingerprintOf(h.cfg.NodeName),
		}
	}
	if !h.cfg.PrivacyMode {
		resp.HostIdentity = &HostIdentity{
			Hostname:     h.cfg.Hostname,
			HostnameHash: serverinfo.FingerprintOf(h.cfg.Hostname),
		}
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Cache-Control", "no-store")
	h.metrics.Probe("lb", outcomeOK)
	respond.JSON(w, http.StatusOK, resp)
}

// WAF handles /waf. Without a name it lists the catalogue; with one it sends
// the payload in the body, or in a header when method=header.
func (h *Handler) WAF(w http.ResponseWriter, r *http.Request) {
	params := query.Parse(r.URL.RawQuery)
	name := params.Get("name")
	if name == "" {
		h.metrics.Probe("waf", "list")
		respond.JSON(w, http.StatusOK, h.catalogue.List())
		return
	}

	p, ok := h.catalogue.Lookup(name)
	if !ok {
		h.metrics.Probe("waf", outcomeNotFound)
		respond.Error(w, http.StatusNotFound, "unknown payload")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if params.Get("method") != "header" {
		h.metrics.Probe("waf", outcomeOK)
		respond.Text(w, http.StatusOK, p.Payload)
		return
	}

	if !httpguts.ValidHeaderFieldValue(p.Payload) {
		slog.Error("probe: waf payload cannot be sent as a header", "name", p.Name)
		h.metrics.Probe("waf", outcomeError)
		respond.InternalError(w)
		return
	}
	w.Header().Set(wafPayloadHeader, p.Payload)
	h.metrics.Probe("waf", outcomeOK)
	respond.JSON(w, http.StatusOK, okResponse{OK: true})
}

// --- helpers ---

// parseHexByte accepts exactly two hex digits in either case.
func parseHexByte(s string) (byte, bool) {
	if len(s) != 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
