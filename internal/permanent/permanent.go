// Package permanent classifies failures that retrying cannot fix.
package permanent

import "errors"

// Marker is implemented by errors that know whether they are retryable.
type Marker interface {
	Permanent() bool
}

// marked wraps a cause with a non-retryable marker.
type marked struct {
	err error
}

func (m marked) Error() string { return m.err.Error() }

func (m marked) Unwrap() error { return m.err }

func (marked) Permanent() bool { return true }

// Mark wraps error with permanent marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return marked{err: err}
}

// Is reports whether any error in the chain declares itself permanent.
// Params: candidate error.
// Returns: true when the first Marker in the chain says so.
func Is(err error) bool {
	var m Marker
	if !errors.As(err, &m) {
		return false
	}
	return m.Permanent()
}
