package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultPort               = 3030
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultPeakReportInterval = 60 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "SENSILLUM_"

// Flag names. Each flag has an environment counterpart: EnvPrefix followed by
// the upper-cased name with dashes turned into underscores.
const (
	FlagPort         = "port"
	FlagNode         = "node"
	FlagPrefix       = "prefix"
	FlagRedact       = "redact"
	FlagPrivacy      = "privacy"
	FlagHeartbeat    = "heartbeat"
	FlagPeakInterval = "peak-interval"
	FlagMetricsPort  = "metrics-port"
	FlagWAFPayloads  = "waf-payloads"
	FlagLogLevel     = "log-level"
	FlagLogFormat    = "log-format"
)

// Config is the process-wide server configuration. It is built once at
// startup and shared read-only by every connection.
type Config struct {
	// Port is the TCP port the diagnostic server listens on (default 3030).
	Port int `yaml:"port"`

	// NodeName identifies this instance behind a load balancer. Empty means unset.
	NodeName string `yaml:"node_name"`

	// Hostname is resolved from the OS at load time; it is not configurable.
	Hostname string `yaml:"-"`

	// URLPrefix is the path prefix a reverse proxy mounts the server under,
	// e.g. "/api". Empty, or starts with "/" and has no trailing "/".
	URLPrefix string `yaml:"url_prefix"`

	// RedactPrefixes lists lower-cased header-name prefixes whose values are
	// never echoed back to clients.
	RedactPrefixes []string `yaml:"redact_prefixes"`

	// PrivacyMode hides server_addr, hostname, build_time and url_prefix from
	// every snapshot.
	PrivacyMode bool `yaml:"privacy_mode"`

	// HeartbeatInterval is the spacing of WebSocket and SSE heartbeats (default 5s).
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// PeakReportInterval is how often peak connection counts are drained and
	// reported (default 60s).
	PeakReportInterval time.Duration `yaml:"peak_report_interval"`

	// MetricsPort serves Prometheus metrics on a separate listener. 0 disables it.
	MetricsPort int `yaml:"metrics_port"`

	// WAFPayloadsPath points at a YAML payload catalogue that replaces the
	// embedded one and is reloaded on change.
	WAFPayloadsPath string `yaml:"waf_payloads"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// Addr returns the listen address of the diagnostic server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MetricsAddr returns the listen address of the metrics server, or "" when disabled.
func (c *Config) MetricsAddr() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}

// Handler builds the slog handler described by the log settings.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// RegisterFlags declares every configuration flag on fs. Values are only
// applied by Load when the flag was set explicitly, so flag defaults never
// mask the config file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.IntP(FlagPort, "p", DefaultPort, "port to listen on")
	fs.StringP(FlagNode, "n", "", "node name for load balancer identification")
	fs.StringP(FlagPrefix, "x", "", "URL prefix when mounted behind a reverse proxy (e.g. /api)")
	fs.StringSliceP(FlagRedact, "r", nil, "header-name prefixes whose values are redacted (repeatable, comma separated)")
	fs.Bool(FlagPrivacy, false, "hide server_addr, hostname, build_time and url_prefix from clients")
	fs.Duration(FlagHeartbeat, DefaultHeartbeatInterval, "WebSocket and SSE heartbeat interval")
	fs.Duration(FlagPeakInterval, DefaultPeakReportInterval, "peak connection reporting interval")
	fs.Int(FlagMetricsPort, 0, "serve Prometheus metrics on this port (0 disables)")
	fs.String(FlagWAFPayloads, "", "YAML file replacing the embedded WAF payload catalogue")
	fs.String(FlagLogLevel, DefaultLogLevel, "log level: debug|info|warn|error")
	fs.String(FlagLogFormat, DefaultLogFormat, "log format: json|text")
}

// hostname is swapped out by tests.
var hostname = os.Hostname

// Load builds the configuration. Sources are applied in increasing order of
// precedence: defaults, the YAML file at path (skipped when path is empty),
// environment variables read through lookupEnv, and explicitly set flags in fs
// (fs may be nil). The result is normalized and validated.
func Load(path string, fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if lookupEnv != nil {
		if err := applyEnv(cfg, lookupEnv); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if fs != nil {
		if err := applyFlags(cfg, fs); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := normalize(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if h, err := hostname(); err == nil && h != "" {
		cfg.Hostname = h
	} else {
		cfg.Hostname = "unknown"
	}

	return cfg, nil
}

// EnvName returns the environment variable that mirrors flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// NormalizePrefix trims trailing slashes from p and checks that a non-empty
// result starts with "/".
func NormalizePrefix(p string) (string, error) {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("url prefix %q must start with /", p)
	}
	return p, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Port:               DefaultPort,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		PeakReportInterval: DefaultPeakReportInterval,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	get := func(flag string) (string, string, bool) {
		name := EnvName(flag)
		v, ok := lookupEnv(name)
		return name, v, ok && v != ""
	}

	if name, v, ok := get(FlagPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		cfg.Port = n
	}
	if _, v, ok := get(FlagNode); ok {
		cfg.NodeName = v
	}
	if _, v, ok := get(FlagPrefix); ok {
		cfg.URLPrefix = v
	}
	if _, v, ok := get(FlagRedact); ok {
		cfg.RedactPrefixes = strings.Split(v, ",")
	}
	if name, v, ok := get(FlagPrivacy); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		cfg.PrivacyMode = b
	}
	if name, v, ok := get(FlagHeartbeat); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		cfg.HeartbeatInterval = d
	}
	if name, v, ok := get(FlagPeakInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		cfg.PeakReportInterval = d
	}
	if name, v, ok := get(FlagMetricsPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		cfg.MetricsPort = n
	}
	if _, v, ok := get(FlagWAFPayloads); ok {
		cfg.WAFPayloadsPath = v
	}
	if _, v, ok := get(FlagLogLevel); ok {
		cfg.Log.Level = v
	}
	if _, v, ok := get(FlagLogFormat); ok {
		cfg.Log.Format = v
	}
	return nil
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		if e := apply(); e != nil {
			err = fmt.Errorf("flag --%s: %w", name, e)
		}
	}

	set(FlagPort, func() (e error) { cfg.Port, e = fs.GetInt(FlagPort); return })
	set(FlagNode, func() (e error) { cfg.NodeName, e = fs.GetString(FlagNode); return })
	set(FlagPrefix, func() (e error) { cfg.URLPrefix, e = fs.GetString(FlagPrefix); return })
	set(FlagRedact, func() (e error) { cfg.RedactPrefixes, e = fs.GetStringSlice(FlagRedact); return })
	set(FlagPrivacy, func() (e error) { cfg.PrivacyMode, e = fs.GetBool(FlagPrivacy); return })
	set(FlagHeartbeat, func() (e error) { cfg.HeartbeatInterval, e = fs.GetDuration(FlagHeartbeat); return })
	set(FlagPeakInterval, func() (e error) { cfg.PeakReportInterval, e = fs.GetDuration(FlagPeakInterval); return })
	set(FlagMetricsPort, func() (e error) { cfg.MetricsPort, e = fs.GetInt(FlagMetricsPort); return })
	set(FlagWAFPayloads, func() (e error) { cfg.WAFPayloadsPath, e = fs.GetString(FlagWAFPayloads); return })
	set(FlagLogLevel, func() (e error) { cfg.Log.Level, e = fs.GetString(FlagLogLevel); return })
	set(FlagLogFormat, func() (e error) { cfg.Log.Format, e = fs.GetString(FlagLogFormat); return })

	return err
}

// normalize canonicalizes the prefix and the redaction list.
func normalize(cfg *Config) error {
	prefix, err := NormalizePrefix(cfg.URLPrefix)
	if err != nil {
		return err
	}
	cfg.URLPrefix = prefix

	seen := make(map[string]struct{}, len(cfg.RedactPrefixes))
	out := make([]string, 0, len(cfg.RedactPrefixes))
	for _, p := range cfg.RedactPrefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	cfg.RedactPrefixes = out

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d is out of range [1, 65535]", cfg.Port)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port %d is out of range [0, 65535]", cfg.MetricsPort)
	}
	if cfg.MetricsPort != 0 && cfg.MetricsPort == cfg.Port {
		return fmt.Errorf("metrics_port must differ from port %d", cfg.Port)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if cfg.PeakReportInterval <= 0 {
		return fmt.Errorf("peak_report_interval must be positive")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}
