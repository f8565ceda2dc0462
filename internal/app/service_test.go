package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"alertgroups/internal/clock"
	"alertgroups/internal/config"
	"alertgroups/internal/state"
)

func writeServiceConfig(t *testing.T, amURL string) config.ConfigSource {
	t.Helper()
	content := fmt.Sprintf(`[service]
name = "alertgroups-test"
janitor_interval_sec = 1

[log.console]
enabled = true
level = "error"
format = "json"

[http]
listen = "127.0.0.1:0"

[source.prod]
url = %q
poll_interval_sec = 60

[source.edge]
kind = "push"
`, amURL)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return config.ConfigSource{File: path}
}

func TestNewServiceWiresSources(t *testing.T) {
	t.Parallel()

	service, err := NewService(writeServiceConfig(t, "http://127.0.0.1:1"), clock.RealClock{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.cleanupInitResources()

	if len(service.pollers) != 1 || service.pollers[0].source != "prod" {
		t.Fatalf("expected one poller for prod, got %d", len(service.pollers))
	}
	if service.Ready() {
		t.Fatalf("service must not be ready before Run")
	}
	if _, ok := service.sessions.Renderer("edge"); !ok {
		t.Fatalf("push source must be viewable")
	}
	if service.natsSub != nil {
		t.Fatalf("single mode must not subscribe to nats")
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[service]\nname = \"x\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := NewService(config.ConfigSource{File: path}, clock.RealClock{}); err == nil {
		t.Fatalf("expected config without sources to fail")
	}
}

func TestServiceRunPollsAndStops(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(groupsPayload))
	}))
	defer backend.Close()

	service, err := NewService(writeServiceConfig(t, backend.URL), clock.RealClock{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		snapshot, err := service.store.Get(context.Background(), "prod")
		if err == nil {
			if len(snapshot.Groups) != 1 {
				t.Fatalf("unexpected snapshot %+v", snapshot)
			}
			break
		}
		if !errors.Is(err, state.ErrNotFound) || time.Now().After(deadline) {
			t.Fatalf("snapshot not stored: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !service.Ready() {
		t.Fatalf("service must be ready while running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
	}
	if service.Ready() {
		t.Fatalf("service must not be ready after shutdown")
	}
}
