package fetch

import (
	"fmt"
	"net/http"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	// KindTransport covers dial, TLS, timeout, and other request failures.
	KindTransport Kind = "transport"
	// KindUnauthorized is a 401 or 403 answer from the backend.
	KindUnauthorized Kind = "unauthorized"
	// KindStatus is any other non-2xx answer.
	KindStatus Kind = "status"
	// KindDecode means the body was not a valid alert group list.
	KindDecode Kind = "decode"
)

// Error describes one failed fetch from a named source.
// Params: source name, failure kind, HTTP status when known, and cause.
// Returns: typed error consumed by retry and status tracking.
type Error struct {
	Source     string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (http %d): %v", e.Source, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying within the same cycle is pointless.
// Params: none.
// Returns: true for auth failures, 4xx other than 408/429, and undecodable bodies.
func (e *Error) Permanent() bool {
	switch e.Kind {
	case KindUnauthorized, KindDecode:
		return true
	case KindStatus:
		if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
			return false
		}
		return e.StatusCode >= 400 && e.StatusCode < 500
	default:
		return false
	}
}

// statusError builds a typed error from a non-2xx response.
func statusError(source string, code int, body string) *Error {
	kind := KindStatus
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		kind = KindUnauthorized
	}
	return &Error{
		Source:     source,
		Kind:       kind,
		StatusCode: code,
		Err:        fmt.Errorf("unexpected response %q", body),
	}
}
