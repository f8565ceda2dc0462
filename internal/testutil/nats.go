// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartNATS runs a JetStream-enabled nats-server for the lifetime of the test.
// Params: test handle; the test is skipped when no nats-server binary exists.
// Returns: connected client closed on cleanup.
func StartNATS(tb testing.TB) *nats.Conn {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skip nats integration test in short mode")
	}

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	cmd := exec.Command("nats-server", "-js", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("nats-server is required for integration test: %v", err)
	}
	tb.Cleanup(func() { stopProcess(cmd) })

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	nc := waitForNATS(tb, url, 8*time.Second)
	tb.Cleanup(nc.Close)
	return nc
}

// waitForNATS retries until the endpoint accepts a connection.
func waitForNATS(tb testing.TB, url string, timeout time.Duration) *nats.Conn {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(url)
		if err == nil {
			return nc
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("nats did not become ready at %s", url)
	return nil
}

// stopProcess sends SIGTERM and kills the server if it lingers.
func stopProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}
