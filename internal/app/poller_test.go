package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/model"

	"alertgroups/internal/clock"
	"alertgroups/internal/domain"
	"alertgroups/internal/fetch"
	"alertgroups/internal/logging"
	"alertgroups/internal/state"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubFetcher struct {
	groups []domain.RawGroup
	err    error
	calls  int
}

func (f *stubFetcher) Fetch(context.Context) ([]domain.RawGroup, error) {
	f.calls++
	return f.groups, f.err
}

type brokenStore struct {
	state.Store
}

func (brokenStore) Put(context.Context, state.Snapshot) error {
	return errors.New("bucket unavailable")
}

func sampleGroups() []domain.RawGroup {
	return []domain.RawGroup{{
		Labels: model.LabelSet{"alertname": "Down"},
		Alerts: []domain.Alert{
			{Fingerprint: "a1", Labels: model.LabelSet{"alertname": "Down", "instance": "web-1"}},
			{Fingerprint: "a2", Labels: model.LabelSet{"alertname": "Down", "instance": "web-2"}},
		},
	}}
}

type pollerFixture struct {
	poller  *Poller
	fetcher *stubFetcher
	store   state.Store
	status  *StatusBoard
	metrics *Metrics
	clock   *clock.Manual
}

func newPollerFixture(store state.Store) pollerFixture {
	clk := clock.NewManual(testNow)
	fetcher := &stubFetcher{groups: sampleGroups()}
	status := NewStatusBoard()
	metrics := NewMetrics(prometheus.NewRegistry())
	return pollerFixture{
		poller:  NewPoller("prod", fetcher, store, status, metrics, clk, time.Minute, logging.Discard()),
		fetcher: fetcher,
		store:   store,
		status:  status,
		metrics: metrics,
		clock:   clk,
	}
}

func TestPollOnceStoresSnapshot(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(state.NewMemoryStore())
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	snapshot, err := f.store.Get(context.Background(), "prod")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snapshot.Revision == "" || !snapshot.FetchedAt.Equal(testNow) || len(snapshot.Groups) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if got := testutil.ToFloat64(f.metrics.FetchesTotal.WithLabelValues("prod", "success")); got != 1 {
		t.Fatalf("expected one successful fetch, got %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.SnapshotAlerts.WithLabelValues("prod")); got != 2 {
		t.Fatalf("expected alert gauge 2, got %v", got)
	}
}

func TestPollOnceFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(state.NewMemoryStore())
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	good, _ := f.store.Get(context.Background(), "prod")

	f.fetcher.err = &fetch.Error{Source: "prod", Kind: fetch.KindTransport, Err: errors.New("connection refused")}
	f.clock.Advance(time.Minute)
	for i := 0; i < 2; i++ {
		if err := f.poller.PollOnce(context.Background()); err == nil {
			t.Fatalf("expected fetch error")
		}
	}

	current, err := f.store.Get(context.Background(), "prod")
	if err != nil || current.Revision != good.Revision {
		t.Fatalf("failed fetch must keep last good snapshot, got %+v err=%v", current, err)
	}
	status := f.status.Get("prod")
	if status.ConsecutiveFailures != 2 || status.LastError == "" || !status.LastErrorAt.Equal(testNow.Add(time.Minute)) {
		t.Fatalf("unexpected status %+v", status)
	}
	if got := testutil.ToFloat64(f.metrics.SourceStaleStatus.WithLabelValues("prod")); got != 1 {
		t.Fatalf("expected stale gauge 1, got %v", got)
	}

	f.fetcher.err = nil
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("recovery poll: %v", err)
	}
	if rendered := f.status.Status("prod"); rendered.ConsecutiveFailures != 0 {
		t.Fatalf("success must reset failures, got %+v", rendered)
	}
}

func TestPollOnceStoreFailure(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(brokenStore{Store: state.NewMemoryStore()})
	err := f.poller.PollOnce(context.Background())
	if err == nil {
		t.Fatalf("expected store error")
	}
	if f.status.Get("prod").ConsecutiveFailures != 1 {
		t.Fatalf("store failure must be recorded")
	}
	if got := testutil.ToFloat64(f.metrics.FetchesTotal.WithLabelValues("prod", "error")); got != 1 {
		t.Fatalf("expected one failed cycle, got %v", got)
	}
}

func TestPollOnceCancelledContextIsNotRecorded(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(state.NewMemoryStore())
	f.fetcher.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.poller.PollOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.status.Get("prod").ConsecutiveFailures != 0 {
		t.Fatalf("shutdown must not count as fetch failure")
	}
}

func TestPollerRunFetchesImmediately(t *testing.T) {
	t.Parallel()

	f := newPollerFixture(state.NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.poller.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := f.store.Get(context.Background(), "prod"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("poller did not fetch on start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop after cancel")
	}
}

func TestPollOnceSharedStoreSkipsFreshSnapshot(t *testing.T) {
	t.Parallel()

	store := state.NewMemoryStore()
	other := state.NewSnapshot("prod", sampleGroups(), testNow)
	if err := store.Put(context.Background(), other); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f := newPollerFixture(store)
	f.poller.SharedStore()
	f.status.RecordFailure("prod", errors.New("earlier outage"), testNow.Add(-time.Minute))

	f.clock.Advance(20 * time.Second)
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if f.fetcher.calls != 0 {
		t.Fatalf("fresh shared snapshot must not be refetched, got %d calls", f.fetcher.calls)
	}
	current, _ := store.Get(context.Background(), "prod")
	if current.Revision != other.Revision {
		t.Fatalf("revision changed to %q", current.Revision)
	}
	if status := f.status.Get("prod"); status.ConsecutiveFailures != 0 || !status.LastSuccessAt.Equal(testNow) {
		t.Fatalf("fresh shared snapshot must count as success, got %+v", status)
	}

	f.clock.Advance(20 * time.Second)
	if err := f.poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll after half interval: %v", err)
	}
	if f.fetcher.calls != 1 {
		t.Fatalf("expected a fetch once the snapshot aged, got %d calls", f.fetcher.calls)
	}
	current, _ = store.Get(context.Background(), "prod")
	if current.Revision == other.Revision {
		t.Fatalf("expected a new revision after refetch")
	}
}
