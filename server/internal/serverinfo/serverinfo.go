package serverinfo

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	sha256 "github.com/minio/sha256-simd"

	"github.com/sensillum/sensillum/server/internal/buildinfo"
	"github.com/sensillum/sensillum/server/internal/config"
)

// maxBinaryData bounds the raw bytes echoed for a non-text header value.
const maxBinaryData = 16

// Snapshot is the diagnostic record for one request or session.
type Snapshot struct {
	ClientAddr string  `json:"client_addr"`
	Protocol   string  `json:"protocol"`
	Version    string  `json:"version"`
	Headers    Headers `json:"headers"`

	// Nil in privacy mode.
	*ServerIdentity
	// Nil when no node name is configured.
	*NodeIdentity
}

// ServerIdentity holds the fields hidden by privacy mode.
type ServerIdentity struct {
	ServerAddr   string      `json:"server_addr"`
	Hostname     string      `json:"hostname"`
	HostnameHash Fingerprint `json:"hostname_hash"`
	BuildTime    string      `json:"build_time"`
	URLPrefix    string      `json:"url_prefix"`
}

// NodeIdentity names the instance that answered.
type NodeIdentity struct {
	NodeName     string      `json:"node_name"`
	NodeNameHash Fingerprint `json:"node_name_hash"`
}

// Fingerprint is an opaque, non-reversible identifier derived from a string.
// Arrays of bytes encode as JSON arrays of numbers.
type Fingerprint [16]byte

// FingerprintOf returns the first 16 bytes of SHA-256(s).
func FingerprintOf(s string) Fingerprint {
	sum := sha256.Sum256([]byte(s))
	var fp Fingerprint
	copy(fp[:], sum[:len(fp)])
	return fp
}

// Headers maps a lower-cased header name to its echoed value.
type Headers map[string]HeaderValue

// HeaderValue is one echoed header: verbatim text, a redaction marker or a
// binary marker.
type HeaderValue struct {
	Text     string
	Redacted bool
	Binary   bool
	// Data holds the raw bytes of a short binary value.
	Data []byte
}

// MarshalJSON renders the value as a string or as a marker object.
func (v HeaderValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Redacted:
		return json.Marshal(struct {
			Redacted bool `json:"redacted"`
		}{true})
	case v.Binary:
		marker := struct {
			Binary bool  `json:"binary"`
			Data   []int `json:"data,omitempty"`
		}{Binary: true}
		if v.Data != nil {
			marker.Data = make([]int, len(v.Data))
			for i, b := range v.Data {
				marker.Data[i] = int(b)
			}
		}
		return json.Marshal(marker)
	default:
		return json.Marshal(v.Text)
	}
}

// Input is the request data a snapshot is derived from.
type Input struct {
	Header     http.Header
	Host       string
	ClientAddr string
	ServerAddr string
	Protocol   string
}

// FromRequest captures the snapshot input of r. The server address comes from
// the connection's local address when net/http recorded it.
func FromRequest(r *http.Request) Input {
	in := Input{
		Header:     r.Header,
		Host:       r.Host,
		ClientAddr: r.RemoteAddr,
		Protocol:   r.Proto,
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		in.ServerAddr = addr.String()
	}
	return in
}

// Build derives the snapshot for in under cfg.
func Build(in Input, cfg *config.Config) Snapshot {
	snap := Snapshot{
		ClientAddr: in.ClientAddr,
		Protocol:   in.Protocol,
		Version:    buildinfo.Version,
		Headers:    buildHeaders(in, cfg.RedactPrefixes),
	}

	if !cfg.PrivacyMode {
		snap.ServerIdentity = &ServerIdentity{
			ServerAddr:   in.ServerAddr,
			Hostname:     cfg.Hostname,
			HostnameHash: FingerprintOf(cfg.Hostname),
			BuildTime:    buildinfo.Time(),
			URLPrefix:    cfg.URLPrefix,
		}
	}

	if cfg.NodeName != "" {
		snap.NodeIdentity = &NodeIdentity{
			NodeName:     cfg.NodeName,
			NodeNameHash: FingerprintOf(cfg.NodeName),
		}
	}

	return snap
}

// WithoutHeaders returns a copy of s with an empty header map.
func (s Snapshot) WithoutHeaders() Snapshot {
	s.Headers = Headers{}
	return s
}

// IsRedacted reports whether the header name matches a redaction prefix.
// prefixes must already be lower-cased.
func IsRedacted(name string, prefixes []string) bool {
	name = strings.ToLower(name)
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// IsText reports whether v consists only of HTAB and visible ASCII.
func IsText(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\t' && (c < 0x20 || c > 0x7e) {
			return false
		}
	}
	return true
}

func buildHeaders(in Input, prefixes []string) Headers {
	out := make(Headers, len(in.Header)+1)

	// net/http moves Host out of the header map.
	if in.Host != "" && in.Header.Get("Host") == "" {
		out["host"] = headerValue("host", in.Host, prefixes)
	}

	for name, values := range in.Header {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		// Repeated fields collapse to the last value.
		out[lower] = headerValue(lower, values[len(values)-1], prefixes)
	}
	return out
}

func headerValue(name, value string, prefixes []string) HeaderValue {
	if IsRedacted(name, prefixes) {
		return HeaderValue{Redacted: true}
	}
	if IsText(value) {
		return HeaderValue{Text: value}
	}
	hv := HeaderValue{Binary: true}
	if len(value) <= maxBinaryData {
		hv.Data = []byte(value)
	}
	return hv
}
