// Package state keeps the last good alert group snapshot of every source.
package state

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"alertgroups/internal/domain"
)

// ErrNotFound indicates that a source has no snapshot yet.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one complete fetch result of a source.
// Params: source name, unique revision, fetch time, and raw groups.
// Returns: immutable value replaced as a whole on every successful fetch.
type Snapshot struct {
	Source    string            `json:"source"`
	Revision  string            `json:"revision"`
	FetchedAt time.Time         `json:"fetched_at"`
	Groups    []domain.RawGroup `json:"groups"`
}

// NewSnapshot stamps groups with a fresh ULID revision.
// Params: source name, fetched groups, and fetch time.
// Returns: snapshot whose revision sorts after earlier ones from this process.
func NewSnapshot(source string, groups []domain.RawGroup, fetchedAt time.Time) Snapshot {
	if groups == nil {
		groups = []domain.RawGroup{}
	}
	return Snapshot{
		Source:    source,
		Revision:  ulid.MustNew(ulid.Timestamp(fetchedAt), ulid.DefaultEntropy()).String(),
		FetchedAt: fetchedAt.UTC(),
		Groups:    groups,
	}
}

// Validate checks the fields every store relies on.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Source) == "" {
		return errors.New("snapshot source is required")
	}
	if strings.TrimSpace(s.Revision) == "" {
		return errors.New("snapshot revision is required")
	}
	return nil
}

// Store keeps one snapshot per source.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	Get(ctx context.Context, source string) (Snapshot, error)
	Close() error
}
