package app

import (
	"context"
	"log/slog"

	"alertgroups/internal/clock"
	"alertgroups/internal/domain"
	"alertgroups/internal/state"
)

// snapshotSink stores pushed groups as fresh snapshots.
type snapshotSink struct {
	store   state.Store
	status  *StatusBoard
	metrics *Metrics
	clock   clock.Clock
	logger  *slog.Logger
}

// Push replaces the snapshot of a push source.
// Params: request context, source name, and decoded groups.
// Returns: store error.
func (s *snapshotSink) Push(ctx context.Context, source string, groups []domain.RawGroup) error {
	snapshot := state.NewSnapshot(source, groups, s.clock.Now())
	alerts := domain.AlertCount(groups)
	if err := s.store.Put(ctx, snapshot); err != nil {
		s.metrics.observePush(source, err, alerts)
		return err
	}
	s.status.RecordSuccess(source, snapshot.FetchedAt)
	s.metrics.observePush(source, nil, alerts)
	s.logger.Debug("snapshot pushed", "source", source, "revision", snapshot.Revision, "groups", len(groups), "alerts", alerts)
	return nil
}
