package app

import (
	"sync"
	"time"

	"alertgroups/internal/view"
)

// SourceStatus is the fetch outcome kept beside a source snapshot.
type SourceStatus struct {
	LastError           string
	LastErrorAt         time.Time
	LastSuccessAt       time.Time
	ConsecutiveFailures int
}

// StatusBoard tracks fetch outcomes per source.
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[string]SourceStatus
}

// NewStatusBoard creates an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]SourceStatus)}
}

// RecordSuccess resets failure state of source.
// Params: source name and success time.
// Returns: none; the last error text is kept for history.
func (b *StatusBoard) RecordSuccess(source string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.statuses[source]
	status.LastSuccessAt = at
	status.ConsecutiveFailures = 0
	b.statuses[source] = status
}

// RecordFailure stores the latest fetch error of source.
// Params: source name, fetch error, and failure time.
// Returns: consecutive failure count after recording.
func (b *StatusBoard) RecordFailure(source string, err error, at time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.statuses[source]
	status.LastError = err.Error()
	status.LastErrorAt = at
	status.ConsecutiveFailures++
	b.statuses[source] = status
	return status.ConsecutiveFailures
}

// Get returns the full status of source.
func (b *StatusBoard) Get(source string) SourceStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statuses[source]
}

// Status returns the render input for source.
func (b *StatusBoard) Status(source string) view.FetchStatus {
	status := b.Get(source)
	return view.FetchStatus{
		LastError:           status.LastError,
		LastErrorAt:         status.LastErrorAt,
		ConsecutiveFailures: status.ConsecutiveFailures,
	}
}
