// Package config builds the sensillum server configuration.
//
// Sources, lowest precedence first:
//   - built-in defaults
//   - an optional YAML file (--config / SENSILLUM_CONFIG)
//   - SENSILLUM_* environment variables
//   - command-line flags that were set explicitly
//
// Config fields:
//   - Port: diagnostic listener port (default 3030)
//   - NodeName: instance identity reported to clients
//   - URLPrefix: reverse-proxy mount point, normalized without trailing "/"
//   - RedactPrefixes: lower-cased header-name prefixes never echoed back
//   - PrivacyMode: hides server-identifying snapshot fields
//   - HeartbeatInterval: WebSocket/SSE heartbeat spacing (default 5s)
//   - PeakReportInterval: peak connection reporting period (default 60s)
//   - MetricsPort: separate Prometheus listener, 0 disables
//   - WAFPayloadsPath: external payload catalogue, reloaded on change
//
// Load(path, flags, lookupEnv) applies every source, then normalizes and
// validates. The returned Config must not be modified afterwards.
package config
