// Package metrics exposes sensillum's Prometheus metrics.
//
// All metrics live in a private registry served by Handler on the optional
// metrics listener, never on the diagnostic port, so probes observe exactly
// the routes they expect.
//
//	sensillum_connections_active         gauge, read from the conntrack.Tracker
//	sensillum_connections_peak           gauge, last drained peak
//	sensillum_requests_total{route,code} counter
//	sensillum_sessions_active{kind}      gauge, kind = ws | sse
//	sensillum_heartbeats_total{kind}     counter
//	sensillum_probes_total{probe,outcome} counter
//
// A nil *Metrics is valid and records nothing.
package metrics
