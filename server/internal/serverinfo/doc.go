// Package serverinfo builds the snapshot that describes one observed request.
//
// Build(input, cfg) is pure: the same request data and configuration always
// produce the same Snapshot. The snapshot carries:
//
//	client_addr, protocol, version, headers      always
//	server_addr, hostname, hostname_hash,
//	build_time, url_prefix                        only when privacy mode is off
//	node_name, node_name_hash                     whenever a node name is set
//
// Header values are echoed verbatim, replaced by {"redacted":true} when the
// lower-cased name starts with a configured redaction prefix, or replaced by
// {"binary":true} (plus "data" for values of at most 16 bytes) when they are
// not printable ASCII. Redaction depends only on configuration.
//
// Fingerprints are the first 16 bytes of SHA-256 over the UTF-8 string and are
// encoded as a JSON array of integers for client-side insignia rendering.
package serverinfo
