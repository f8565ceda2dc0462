package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"alertgroups/internal/matcher"
)

// applyDefaults fills omitted settings in place.
// Params: merged config before validation.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)
	if cfg.Service.SessionIdleSec == 0 {
		cfg.Service.SessionIdleSec = defaultSessionIdleSec
	}
	if cfg.Service.SessionMax == 0 {
		cfg.Service.SessionMax = defaultSessionMax
	}
	if cfg.Service.JanitorIntervalSec == 0 {
		cfg.Service.JanitorIntervalSec = defaultJanitorIntervalSec
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	if cfg.Service.Mode == ServiceModeNATS {
		cfg.NATS.URL = normalizeNATSURLs(cfg.NATS.URL)
		if strings.TrimSpace(cfg.NATS.SnapshotBucket) == "" {
			cfg.NATS.SnapshotBucket = defaultSnapshotBucket
		}
	}

	for i := range cfg.Source {
		src := &cfg.Source[i]
		src.Kind = NormalizeSourceKind(src.Kind)
		src.URL = strings.TrimSpace(src.URL)
		src.ExternalURL = strings.TrimSpace(src.ExternalURL)
		if src.PollIntervalSec == 0 {
			src.PollIntervalSec = defaultPollIntervalSec
		}
		if src.TimeoutSec == 0 {
			src.TimeoutSec = defaultTimeoutSec
		}
		if src.Retry.MaxAttempts == 0 {
			src.Retry.MaxAttempts = defaultRetryMaxAttempts
		}
		if src.Retry.InitialMS == 0 {
			src.Retry.InitialMS = defaultRetryInitialMS
		}
		if src.Retry.MaxMS == 0 {
			src.Retry.MaxMS = defaultRetryMaxMS
		}
	}
}

// validateConfig checks merged config against runtime constraints.
// Params: config after defaults.
// Returns: first validation error found.
func validateConfig(cfg Config) error {
	if len(cfg.Source) == 0 {
		return errors.New("at least one source is required")
	}
	mode := NormalizeServiceMode(cfg.Service.Mode)
	if !IsSupportedServiceMode(mode) {
		return fmt.Errorf("service.mode has unsupported value %q", cfg.Service.Mode)
	}
	if cfg.Service.SessionIdleSec < 0 {
		return errors.New("service.session_idle_sec must be >=0")
	}
	if cfg.Service.SessionMax < 0 {
		return errors.New("service.session_max must be >=0")
	}
	if cfg.Service.JanitorIntervalSec < 0 {
		return errors.New("service.janitor_interval_sec must be >=0")
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		return errors.New("http.listen is required")
	}
	paths := map[string]string{}
	for _, item := range []struct{ name, value string }{
		{"http.health_path", cfg.HTTP.HealthPath},
		{"http.ready_path", cfg.HTTP.ReadyPath},
		{"http.metrics_path", cfg.HTTP.MetricsPath},
	} {
		if !strings.HasPrefix(item.value, "/") {
			return fmt.Errorf("%s must start with '/'", item.name)
		}
		if strings.HasPrefix(item.value, "/api/") {
			return fmt.Errorf("%s must not be under /api/", item.name)
		}
		if other, exists := paths[item.value]; exists {
			return fmt.Errorf("%s duplicates %s", item.name, other)
		}
		paths[item.value] = item.name
	}

	if mode == ServiceModeNATS {
		if len(cfg.NATS.URL) == 0 {
			return errors.New("nats.url is required when service.mode=nats")
		}
		for i, u := range cfg.NATS.URL {
			if strings.TrimSpace(u) == "" {
				return fmt.Errorf("nats.url[%d] is empty", i)
			}
		}
		if cfg.NATS.SnapshotTTLSec < 0 {
			return errors.New("nats.snapshot_ttl_sec must be >=0")
		}
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	names := make(map[string]struct{}, len(cfg.Source))
	for i, src := range cfg.Source {
		if _, exists := names[src.Name]; exists {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		names[src.Name] = struct{}{}
		if err := validateSource(src); err != nil {
			return fmt.Errorf("source[%d] %q: %w", i, src.Name, err)
		}
	}
	return nil
}

// validateSource validates one source against schema constraints.
// Params: one source after defaults.
// Returns: source-level validation error.
func validateSource(src SourceConfig) error {
	if !sourceNamePattern.MatchString(src.Name) {
		return errors.New("name must match [A-Za-z0-9][A-Za-z0-9_-]*")
	}
	switch src.Kind {
	case SourceKindAlertmanager:
		if src.URL == "" {
			return errors.New("url is required for kind=alertmanager")
		}
	case SourceKindPush:
	default:
		return fmt.Errorf("kind has unsupported value %q", src.Kind)
	}
	if src.URL != "" {
		if err := validateHTTPURL("url", src.URL); err != nil {
			return err
		}
	}
	if src.ExternalURL != "" {
		if err := validateHTTPURL("external_url", src.ExternalURL); err != nil {
			return err
		}
	}

	if !src.Polled() {
		return nil
	}
	if src.PollIntervalSec <= 0 {
		return errors.New("poll_interval_sec must be >0")
	}
	if src.TimeoutSec <= 0 {
		return errors.New("timeout_sec must be >0")
	}
	if src.BearerToken != "" && src.BasicAuthUsername != "" {
		return errors.New("bearer_token and basic_auth_username are mutually exclusive")
	}
	if src.BasicAuthPassword != "" && src.BasicAuthUsername == "" {
		return errors.New("basic_auth_password requires basic_auth_username")
	}
	for i, filter := range src.Filter {
		if strings.TrimSpace(filter) == "" {
			return fmt.Errorf("filter[%d] is empty", i)
		}
		if _, err := matcher.Parse(filter); err != nil {
			return fmt.Errorf("filter[%d] is invalid: %w", i, err)
		}
	}
	if src.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >=1")
	}
	if src.Retry.InitialMS <= 0 {
		return errors.New("retry.initial_ms must be >0")
	}
	if src.Retry.MaxMS < src.Retry.InitialMS {
		return errors.New("retry.max_ms must be >= retry.initial_ms")
	}
	return nil
}

// validateHTTPURL checks that value is an absolute http(s) URL.
// Params: field name and raw URL.
// Returns: parse or scheme error.
func validateHTTPURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include host", field)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
