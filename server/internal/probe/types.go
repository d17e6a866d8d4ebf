package probe

import "github.com/sensillum/sensillum/server/internal/serverinfo"

// EchoResponse is the payload for /echo and /echo/*.
type EchoResponse struct {
	serverinfo.Snapshot
	// Path is the request path after prefix stripping, still percent-encoded.
	Path string `json:"path"`
	// Query is the raw query string without the leading "?".
	Query string `json:"query"`
}

// ByteProbeResponse is the payload for /hdr?byte=HH.
type ByteProbeResponse struct {
	OK     bool   `json:"ok"`
	Byte   string `json:"byte"`
	Reason string `json:"reason,omitempty"`
}

// okResponse is the body of probes that only report success.
type okResponse struct {
	OK bool `json:"ok"`
}

// HostIdentity is the hostname part of /lb, omitted in privacy mode.
type HostIdentity struct {
	Hostname     string                 `json:"hostname"`
	HostnameHash serverinfo.Fingerprint `json:"hostname_hash"`
}

// NodeResponse is the payload for /lb.
type NodeResponse struct {
	*serverinfo.NodeIdentity
	*HostIdentity
}
