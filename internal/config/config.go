package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "alertgroups"
	defaultSessionIdleSec     = 1800
	defaultSessionMax         = 1000
	defaultJanitorIntervalSec = 30
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultMetricsPath        = "/metrics"
	defaultMaxBodyBytes       = 8 << 20
	defaultSnapshotBucket     = "alertgroups"
	defaultPollIntervalSec    = 30
	defaultTimeoutSec         = 10
	defaultRetryMaxAttempts   = 3
	defaultRetryInitialMS     = 200
	defaultRetryMaxMS         = 2000

	// ServiceModeNATS shares snapshots through JetStream KV and enables NATS push ingest.
	ServiceModeNATS = "nats"
	// ServiceModeSingle keeps snapshots in process memory without NATS dependencies.
	ServiceModeSingle = "single"

	// SourceKindAlertmanager marks a source polled over the Alertmanager v2 API.
	SourceKindAlertmanager = "alertmanager"
	// SourceKindPush marks a source that publishes group snapshots to this service.
	SourceKindPush = "push"
)

var (
	sourceArrayPattern = regexp.MustCompile(`(?m)^\s*\[\[\s*source\s*\]\]`)
	sourceNamePattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// Config holds service runtime settings and alert sources.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service ServiceConfig  `toml:"service"`
	Log     LogConfig      `toml:"log"`
	HTTP    HTTPConfig     `toml:"http"`
	NATS    NATSConfig     `toml:"nats"`
	Access  AccessConfig   `toml:"access"`
	Source  []SourceConfig `toml:"source"`
}

// rawConfig mirrors TOML model before runtime normalization.
type rawConfig struct {
	Service ServiceConfig              `toml:"service"`
	Log     LogConfig                  `toml:"log"`
	HTTP    HTTPConfig                 `toml:"http"`
	NATS    NATSConfig                 `toml:"nats"`
	Access  AccessConfig               `toml:"access"`
	Source  map[string]rawSourceConfig `toml:"source"`
}

// rawSourceConfig stores one source body from `[source.<name>]` table.
type rawSourceConfig struct {
	Name              string      `toml:"name"`
	Kind              string      `toml:"kind"`
	URL               string      `toml:"url"`
	ExternalURL       string      `toml:"external_url"`
	PollIntervalSec   int         `toml:"poll_interval_sec"`
	TimeoutSec        int         `toml:"timeout_sec"`
	TenantID          string      `toml:"tenant_id"`
	BearerToken       string      `toml:"bearer_token"`
	BasicAuthUsername string      `toml:"basic_auth_username"`
	BasicAuthPassword string      `toml:"basic_auth_password"`
	Receiver          string      `toml:"receiver"`
	Filter            []string    `toml:"filter"`
	Active            *bool       `toml:"active"`
	Silenced          *bool       `toml:"silenced"`
	Inhibited         *bool       `toml:"inhibited"`
	Retry             RetryConfig `toml:"retry"`
}

// ServiceConfig contains process-level settings.
// Params: name, runtime mode, and session retention limits.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name               string `toml:"name"`
	Mode               string `toml:"mode"`
	SessionIdleSec     int    `toml:"session_idle_sec"`
	SessionMax         int    `toml:"session_max"`
	JanitorIntervalSec int    `toml:"janitor_interval_sec"`
}

// HTTPConfig configures the API listener.
// Params: listen address, health/ready/metrics paths, and request body limit.
// Returns: HTTP server behavior.
type HTTPConfig struct {
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	MetricsPath  string `toml:"metrics_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSConfig configures the shared snapshot bucket and push subscriptions.
// Params: server URLs, KV bucket name, and optional value TTL.
// Returns: NATS backend options used in nats mode.
type NATSConfig struct {
	URL            []string `toml:"url"`
	SnapshotBucket string   `toml:"snapshot_bucket"`
	SnapshotTTLSec int      `toml:"snapshot_ttl_sec"`
}

// SnapshotTTL returns the configured KV value lifetime.
func (c NATSConfig) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSec) * time.Second
}

// AccessConfig lists operator capabilities granted to every viewer.
// Params: optional flags for row actions; unset means allowed.
// Returns: capability switches for rendered rows.
type AccessConfig struct {
	Silence   *bool `toml:"silence"`
	SeeSource *bool `toml:"see_source"`
}

// SilenceAllowed reports whether rows expose the silence action.
func (c AccessConfig) SilenceAllowed() bool {
	return c.Silence == nil || *c.Silence
}

// SeeSourceAllowed reports whether rows expose the see-source action.
func (c AccessConfig) SeeSourceAllowed() bool {
	return c.SeeSource == nil || *c.SeeSource
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// SourceConfig describes one Alertmanager-compatible backend.
// Params: connection, auth, query filters, and retry policy.
// Returns: runtime source definition.
type SourceConfig struct {
	Name              string
	Kind              string
	URL               string
	ExternalURL       string
	PollIntervalSec   int
	TimeoutSec        int
	TenantID          string
	BearerToken       string
	BasicAuthUsername string
	BasicAuthPassword string
	Receiver          string
	Filter            []string
	Active            *bool
	Silenced          *bool
	Inhibited         *bool
	Retry             RetryConfig
}

// PollInterval returns delay between two fetch cycles.
func (s SourceConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// Timeout returns per-request HTTP timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// SilenceBaseURL returns the UI base used for silence links.
// Params: none.
// Returns: external_url when set, url otherwise, without trailing slash.
func (s SourceConfig) SilenceBaseURL() string {
	base := strings.TrimSpace(s.ExternalURL)
	if base == "" {
		base = strings.TrimSpace(s.URL)
	}
	return strings.TrimRight(base, "/")
}

// Polled reports whether the source is fetched by a poller.
func (s SourceConfig) Polled() bool {
	return s.Kind == SourceKindAlertmanager
}

// RetryConfig configures fetch retries inside one poll cycle.
// Params: attempt limit and exponential backoff bounds.
// Returns: retry policy for one source.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	InitialMS   int `toml:"initial_ms"`
	MaxMS       int `toml:"max_ms"`
}

// Initial returns the first backoff delay.
func (r RetryConfig) Initial() time.Duration {
	return time.Duration(r.InitialMS) * time.Millisecond
}

// Max returns the backoff ceiling.
func (r RetryConfig) Max() time.Duration {
	return time.Duration(r.MaxMS) * time.Millisecond
}

// SourceByName finds one configured source.
// Params: source name from API path or CLI flag.
// Returns: source config and existence flag.
func (c Config) SourceByName(name string) (SourceConfig, bool) {
	for _, src := range c.Source {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// ConfigSource selects where configuration is loaded from.
// Params: exactly one of file path or directory path.
// Returns: loader input descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI converts command-line flags into config source descriptor.
// Params: file and directory flag values.
// Returns: validated source descriptor or usage error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from file fragment.
// Returns: normalized config with sources sorted by name.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service: raw.Service,
		Log:     raw.Log,
		HTTP:    raw.HTTP,
		NATS:    raw.NATS,
		Access:  raw.Access,
	}
	if len(raw.Source) == 0 {
		return cfg, nil
	}

	names := make([]string, 0, len(raw.Source))
	for name := range raw.Source {
		names = append(names, name)
	}
	sort.Strings(names)
	cfg.Source = make([]SourceConfig, 0, len(names))
	for _, name := range names {
		body := raw.Source[name]
		if strings.TrimSpace(body.Name) != "" {
			return Config{}, fmt.Errorf("source.%s.name is not supported; use [source.%s] key as source name", name, name)
		}
		cfg.Source = append(cfg.Source, SourceConfig{
			Name:              name,
			Kind:              body.Kind,
			URL:               body.URL,
			ExternalURL:       body.ExternalURL,
			PollIntervalSec:   body.PollIntervalSec,
			TimeoutSec:        body.TimeoutSec,
			TenantID:          body.TenantID,
			BearerToken:       body.BearerToken,
			BasicAuthUsername: body.BasicAuthUsername,
			BasicAuthPassword: body.BasicAuthPassword,
			Receiver:          body.Receiver,
			Filter:            body.Filter,
			Active:            body.Active,
			Silenced:          body.Silenced,
			Inhibited:         body.Inhibited,
			Retry:             body.Retry,
		})
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if sourceArrayPattern.Match(body) {
		return Config{}, fmt.Errorf("decode config file %q: [[source]] arrays are not supported; use [source.<name>] tables", path)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.HTTP != (HTTPConfig{}) {
		dst.HTTP = src.HTTP
	}
	if hasNATSConfig(src.NATS) {
		dst.NATS = src.NATS
	}
	if src.Access.Silence != nil {
		dst.Access.Silence = src.Access.Silence
	}
	if src.Access.SeeSource != nil {
		dst.Access.SeeSource = src.Access.SeeSource
	}
	if len(src.Source) > 0 {
		dst.Source = append(dst.Source, src.Source...)
	}
}

// hasNATSConfig reports whether a fragment sets any NATS field.
func hasNATSConfig(cfg NATSConfig) bool {
	return len(cfg.URL) > 0 || cfg.SnapshotBucket != "" || cfg.SnapshotTTLSec != 0
}

// normalizeNATSURLs trims spaces around each configured NATS URL.
// Params: raw URL list from config.
// Returns: normalized URL list preserving element count for validation.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = strings.TrimSpace(urls[i])
	}
	return out
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`single` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeNATS, ServiceModeSingle:
		return true
	default:
		return false
	}
}

// NormalizeSourceKind canonicalizes source kind and applies default.
// Params: raw kind value from config.
// Returns: normalized kind (`alertmanager` by default).
func NormalizeSourceKind(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return SourceKindAlertmanager
	}
	return normalized
}
