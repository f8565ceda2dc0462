package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	httpSection = `[http]
listen = "127.0.0.1:18081"`
	pushSource = `[source.edge]
kind = "push"`
)

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		serviceSection(""),
		httpSection,
		`[source.prod]
url = "http://alertmanager.local:9093"
external_url = "https://am.example.com/"
tenant_id = "team-a"
filter = ['severity="critical"', 'env=~"prod|staging"']
active = true
silenced = false`,
		pushSource,
	))

	if cfg.Service.Name != "alertgroups" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if cfg.Service.Mode != ServiceModeSingle {
		t.Fatalf("expected default mode single, got %q", cfg.Service.Mode)
	}
	if len(cfg.Source) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Source))
	}
	if cfg.Source[0].Name != "edge" || cfg.Source[1].Name != "prod" {
		t.Fatalf("expected sources sorted by name, got %q, %q", cfg.Source[0].Name, cfg.Source[1].Name)
	}

	prod, ok := cfg.SourceByName("prod")
	if !ok {
		t.Fatalf("expected prod source")
	}
	if prod.Kind != SourceKindAlertmanager {
		t.Fatalf("expected default kind alertmanager, got %q", prod.Kind)
	}
	if prod.PollInterval() != 30*time.Second {
		t.Fatalf("unexpected poll interval %s", prod.PollInterval())
	}
	if prod.Timeout() != 10*time.Second {
		t.Fatalf("unexpected timeout %s", prod.Timeout())
	}
	if prod.Retry.MaxAttempts != 3 || prod.Retry.Initial() != 200*time.Millisecond || prod.Retry.Max() != 2*time.Second {
		t.Fatalf("unexpected retry defaults %+v", prod.Retry)
	}
	if prod.SilenceBaseURL() != "https://am.example.com" {
		t.Fatalf("unexpected silence base %q", prod.SilenceBaseURL())
	}
	if prod.Active == nil || !*prod.Active || prod.Silenced == nil || *prod.Silenced || prod.Inhibited != nil {
		t.Fatalf("unexpected state toggles active=%v silenced=%v inhibited=%v", prod.Active, prod.Silenced, prod.Inhibited)
	}
	if !prod.Polled() {
		t.Fatalf("expected alertmanager source to be polled")
	}

	edge, _ := cfg.SourceByName("edge")
	if edge.Polled() {
		t.Fatalf("expected push source not to be polled")
	}
	if _, ok := cfg.SourceByName("missing"); ok {
		t.Fatalf("expected unknown source lookup to fail")
	}

	if cfg.HTTP.MetricsPath != "/metrics" || cfg.HTTP.HealthPath != "/healthz" || cfg.HTTP.ReadyPath != "/readyz" {
		t.Fatalf("unexpected http defaults %+v", cfg.HTTP)
	}
	if !cfg.Access.SilenceAllowed() || !cfg.Access.SeeSourceAllowed() {
		t.Fatalf("expected actions allowed by default")
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console sink enabled by default")
	}
}

func TestLoadSnapshotFromDirMergesFragments(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "00-base.toml"), joinSections(
		serviceSection(""),
		httpSection,
		`[access]
silence = false`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "10-prod.toml"), `[source.prod]
url = "http://am:9093"`)
	writeConfigFile(t, filepath.Join(tmpDir, "20-edge.toml"), joinSections(pushSource, `[access]
see_source = false`))
	writeConfigFile(t, filepath.Join(tmpDir, "README.md"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(cfg.Source) != 2 {
		t.Fatalf("expected 2 merged sources, got %d", len(cfg.Source))
	}
	if cfg.HTTP.Listen != "127.0.0.1:18081" {
		t.Fatalf("expected http section from first fragment, got %q", cfg.HTTP.Listen)
	}
	if cfg.Access.SilenceAllowed() {
		t.Fatalf("expected silence disabled by base fragment")
	}
	if cfg.Access.SeeSourceAllowed() {
		t.Fatalf("expected see_source disabled by later fragment")
	}
}

func TestLoadSnapshotFromDirRejectsDuplicateSource(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), `[source.prod]
url = "http://am-a:9093"`)
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), `[source.prod]
url = "http://am-b:9093"`)

	_, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err == nil {
		t.Fatalf("expected duplicate source validation error")
	}
	if !strings.Contains(err.Error(), "duplicate source name") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSnapshotFromEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshot(ConfigSource{Dir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "no .toml files") {
		t.Fatalf("expected empty dir error, got %v", err)
	}
}

func TestLoadSnapshotNATSMode(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		serviceSection(ServiceModeNATS),
		`[nats]
url = [" nats://127.0.0.1:4222 "]
snapshot_ttl_sec = 600`,
		pushSource,
	))
	if cfg.NATS.URL[0] != "nats://127.0.0.1:4222" {
		t.Fatalf("expected trimmed nats url, got %q", cfg.NATS.URL[0])
	}
	if cfg.NATS.SnapshotBucket != "alertgroups" {
		t.Fatalf("expected default bucket, got %q", cfg.NATS.SnapshotBucket)
	}
	if cfg.NATS.SnapshotTTL() != 10*time.Minute {
		t.Fatalf("unexpected ttl %s", cfg.NATS.SnapshotTTL())
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "require at least one source",
			content: serviceSection(""),
			wantErr: "at least one source is required",
		},
		{
			name:    "reject unknown mode",
			content: joinSections(serviceSection("cluster"), pushSource),
			wantErr: "service.mode",
		},
		{
			name:    "require nats url in nats mode",
			content: joinSections(serviceSection(ServiceModeNATS), pushSource),
			wantErr: "nats.url is required",
		},
		{
			name: "reject empty nats url entry",
			content: joinSections(serviceSection(ServiceModeNATS), `[nats]
url = ["nats://a:4222", " "]`, pushSource),
			wantErr: "nats.url[1] is empty",
		},
		{
			name:    "require url for alertmanager source",
			content: `[source.prod]`,
			wantErr: "url is required",
		},
		{
			name: "reject unknown source kind",
			content: `[source.prod]
kind = "kafka"`,
			wantErr: "kind has unsupported value",
		},
		{
			name: "reject non-http url",
			content: `[source.prod]
url = "ftp://am:9093"`,
			wantErr: "url must use http or https",
		},
		{
			name: "reject bad source name",
			content: `[source."prod.eu"]
url = "http://am:9093"`,
			wantErr: "name must match",
		},
		{
			name: "reject invalid filter",
			content: `[source.prod]
url = "http://am:9093"
filter = ['severity~"x"']`,
			wantErr: "filter[0] is invalid",
		},
		{
			name: "reject both auth schemes",
			content: `[source.prod]
url = "http://am:9093"
bearer_token = "t"
basic_auth_username = "u"`,
			wantErr: "mutually exclusive",
		},
		{
			name: "reject retry max below initial",
			content: `[source.prod]
url = "http://am:9093"
[source.prod.retry]
initial_ms = 500
max_ms = 100`,
			wantErr: "retry.max_ms",
		},
		{
			name: "reject negative poll interval",
			content: `[source.prod]
url = "http://am:9093"
poll_interval_sec = -1`,
			wantErr: "poll_interval_sec must be >0",
		},
		{
			name: "reject name key inside table",
			content: `[source.prod]
name = "other"
url = "http://am:9093"`,
			wantErr: "source.prod.name is not supported",
		},
		{
			name: "reject source arrays",
			content: `[[source]]
url = "http://am:9093"`,
			wantErr: "[[source]] arrays are not supported",
		},
		{
			name: "reject duplicate health paths",
			content: joinSections(`[http]
health_path = "/check"
ready_path = "/check"`, pushSource),
			wantErr: "http.ready_path duplicates http.health_path",
		},
		{
			name: "reject metrics path under api",
			content: joinSections(`[http]
metrics_path = "/api/metrics"`, pushSource),
			wantErr: "http.metrics_path must not be under /api/",
		},
		{
			name: "reject file sink without path",
			content: joinSections(`[log.file]
enabled = true`, pushSource),
			wantErr: "log.file.path is required",
		},
		{
			name: "reject unknown console level",
			content: joinSections(`[log.console]
enabled = true
level = "trace"`, pushSource),
			wantErr: "log.console.level",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, tt.content)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPushSourceSkipsPollValidation(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, `[source.edge]
kind = "push"
external_url = "https://am.example.com"
bearer_token = "ignored"
basic_auth_username = "ignored"`)
	edge, _ := cfg.SourceByName("edge")
	if edge.SilenceBaseURL() != "https://am.example.com" {
		t.Fatalf("unexpected silence base %q", edge.SilenceBaseURL())
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error without flags")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error with both flags")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" || src.Dir != "" {
		t.Fatalf("unexpected file source %+v, err=%v", src, err)
	}
	src, err = FromCLI("", "conf.d")
	if err != nil || src.Dir != "conf.d" {
		t.Fatalf("unexpected dir source %+v, err=%v", src, err)
	}
}

func serviceSection(mode string) string {
	if mode == "" {
		return `[service]
name = "alertgroups"`
	}
	return fmt.Sprintf(`[service]
name = "alertgroups"
mode = %q`, mode)
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotErr(t *testing.T, content string) error {
	t.Helper()
	_, err := loadSnapshotFromContent(t, content)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
