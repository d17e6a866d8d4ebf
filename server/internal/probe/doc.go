// Package probe implements the stateless boundary probes of sensillum.
//
// Each probe lets a client infer what an intermediary did by comparing the
// response it receives with the one the server deliberately built:
//
//	/echo, /echo/*          snapshot + the path and raw query as received
//	/hdr?byte=HH            X-Charset-Test: probe<byte>probe, or {"ok":false,...}
//	/hdr?size=N&mode=M      one N-byte header (single) or ten N/10-byte headers (multi)
//	/delete-cookie?name=N   Set-Cookie expiring N at path "/"
//	/lb                     node_name / hostname identity for load balancer detection
//	/waf?name=E[&method=header]
//	                        WAF catalogue payload E in the body or X-Waf-Payload
//
// Probes never fail a request for a bad byte value: the failure is reported in
// the JSON body. Missing required parameters produce 400 with a JSON error.
// Query strings are decoded with package query.
package probe
