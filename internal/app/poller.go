package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alertgroups/internal/clock"
	"alertgroups/internal/domain"
	"alertgroups/internal/fetch"
	"alertgroups/internal/permanent"
	"alertgroups/internal/state"
)

// Poller refreshes the snapshot of one polled source.
// Params: one poller per source per process; replicas sharing a NATS store each run one.
// Returns: stale-but-valid snapshot on fetch failures.
type Poller struct {
	source   string
	fetcher  fetch.Fetcher
	store    state.Store
	status   *StatusBoard
	metrics  *Metrics
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	shared   bool
}

// NewPoller creates a poller for one source.
// Params: source name, fetcher (usually retrying), snapshot store, status board, metrics, clock, interval and logger.
// Returns: poller ready to Run.
func NewPoller(source string, fetcher fetch.Fetcher, store state.Store, status *StatusBoard, metrics *Metrics, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		source:   source,
		fetcher:  fetcher,
		store:    store,
		status:   status,
		metrics:  metrics,
		clock:    clk,
		interval: interval,
		logger:   logger.With("source", source),
	}
}

// SharedStore makes the poller skip cycles while another replica's snapshot is fresh.
// Params: none; call before Run when the store is shared between replicas.
// Returns: the same poller.
func (p *Poller) SharedStore() *Poller {
	p.shared = true
	return p
}

// Run polls immediately and then on every interval until ctx ends.
// Params: runtime context.
// Returns: when ctx is done.
func (p *Poller) Run(ctx context.Context) {
	_ = p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.PollOnce(ctx)
		}
	}
}

// PollOnce runs one fetch cycle.
// Params: cycle context.
// Returns: fetch or store error; the previous snapshot stays in place on error.
func (p *Poller) PollOnce(ctx context.Context) error {
	if p.shared && p.freshElsewhere(ctx) {
		return nil
	}
	started := time.Now()
	groups, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(err, started)
	}

	snapshot := state.NewSnapshot(p.source, groups, p.clock.Now())
	if err := p.store.Put(ctx, snapshot); err != nil {
		return p.fail(fmt.Errorf("store snapshot: %w", err), started)
	}
	p.status.RecordSuccess(p.source, snapshot.FetchedAt)
	alerts := domain.AlertCount(groups)
	p.metrics.observeFetch(p.source, time.Since(started), nil, alerts)
	p.logger.Debug("snapshot refreshed", "revision", snapshot.Revision, "groups", len(groups), "alerts", alerts)
	return nil
}

// freshElsewhere reports whether the stored snapshot is younger than half an interval.
// A fresh snapshot counts as a success so this replica's status follows the shared view.
func (p *Poller) freshElsewhere(ctx context.Context) bool {
	snapshot, err := p.store.Get(ctx, p.source)
	if err != nil {
		return false
	}
	if p.clock.Now().Sub(snapshot.FetchedAt) >= p.interval/2 {
		return false
	}
	p.status.RecordSuccess(p.source, snapshot.FetchedAt)
	p.logger.Debug("snapshot fresh, skipping fetch", "revision", snapshot.Revision)
	return true
}

func (p *Poller) fail(err error, started time.Time) error {
	failures := p.status.RecordFailure(p.source, err, p.clock.Now())
	p.metrics.observeFetch(p.source, time.Since(started), err, 0)

	var fetchErr *fetch.Error
	kind := ""
	if errors.As(err, &fetchErr) {
		kind = string(fetchErr.Kind)
	}
	if permanent.Is(err) {
		p.logger.Warn("fetch rejected", "kind", kind, "failures", failures, "error", err.Error())
	} else {
		p.logger.Error("fetch failed", "kind", kind, "failures", failures, "error", err.Error())
	}
	return err
}
