package view

import (
	"errors"
	"strings"
	"sync"
	"time"

	"alertgroups/internal/clock"
	"alertgroups/internal/domain"
	"alertgroups/internal/grouping"
	"alertgroups/internal/matcher"
	"alertgroups/internal/state"
)

// RegroupObserver is told about every recomputation a session performs.
type RegroupObserver func(source string, took time.Duration, groups int)

// Session holds one operator's grouping and matcher choice for a source.
// Params: created by Manager; state changes and renders are serialized.
// Returns: page recomputed only when the snapshot or session state changes.
type Session struct {
	id       string
	renderer Renderer
	clock    clock.Clock
	observe  RegroupObserver

	mu          sync.Mutex
	mode        grouping.Mode
	matcherText string
	filter      matcher.Matchers
	matcherErr  *MatcherError
	generation  uint64
	lastAccess  time.Time

	cacheValid      bool
	cacheRevision   string
	cacheGeneration uint64
	cacheGroups     []domain.DisplayGroup
	cacheLabelKeys  []string
	recomputes      int
}

func newSession(id string, renderer Renderer, clk clock.Clock, observe RegroupObserver) *Session {
	return &Session{
		id:         id,
		renderer:   renderer,
		clock:      clk,
		observe:    observe,
		lastAccess: clk.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Source returns the source the session views.
func (s *Session) Source() string {
	return s.renderer.Source()
}

// SetGroupBy selects label keys to group by.
// Params: ordered keys; blanks and duplicates are dropped, an empty list restores default grouping.
// Returns: none.
func (s *Session) SetGroupBy(keys []string) {
	mode := grouping.Custom(keys...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if mode.Equal(s.mode) {
		return
	}
	s.mode = mode
	s.generation++
}

// SetMatcher compiles and activates a matcher.
// Params: matcher text; blank text removes the filter.
// Returns: *matcher.ParseError when text is invalid; the previous matcher then stays active.
func (s *Session) SetMatcher(text string) error {
	text = strings.TrimSpace(text)
	parsed, err := matcher.Parse(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if err != nil {
		s.matcherErr = toMatcherError(text, err)
		return err
	}
	s.matcherErr = nil
	canonical := ""
	if len(parsed) > 0 {
		canonical = parsed.String()
	}
	if canonical == s.matcherText {
		return nil
	}
	s.matcherText = canonical
	s.filter = parsed
	s.generation++
	return nil
}

// ClearFilters restores default grouping and removes the matcher.
func (s *Session) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.matcherErr = nil
	if s.mode.IsDefault() && s.matcherText == "" {
		return
	}
	s.mode = grouping.Default()
	s.matcherText = ""
	s.filter = nil
	s.generation++
}

// Render returns the page for the given snapshot.
// Params: latest snapshot of the source and its fetch status.
// Returns: page built from cached groups unless revision or session state changed.
func (s *Session) Render(snapshot state.Snapshot, status FetchStatus) Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if !s.cacheValid || s.cacheRevision != snapshot.Revision || s.cacheGeneration != s.generation {
		s.recompute(snapshot)
	}
	page := s.renderer.page(snapshot, status, s.mode, s.matcherText, s.cacheLabelKeys, s.cacheGroups, s.clock.Now())
	page.SessionID = s.id
	if s.matcherErr != nil {
		matcherErr := *s.matcherErr
		page.MatcherError = &matcherErr
	}
	return page
}

// recompute regroups snapshot for current state; caller holds s.mu.
func (s *Session) recompute(snapshot state.Snapshot) {
	started := time.Now()
	var filter grouping.Filter
	if len(s.filter) > 0 {
		filter = s.filter
	}
	s.cacheGroups = grouping.Regroup(snapshot.Groups, s.mode, filter)
	if !s.cacheValid || s.cacheRevision != snapshot.Revision {
		s.cacheLabelKeys = grouping.LabelKeys(snapshot.Groups)
	}
	s.cacheRevision = snapshot.Revision
	s.cacheGeneration = s.generation
	s.cacheValid = true
	s.recomputes++
	if s.observe != nil {
		s.observe(s.renderer.Source(), time.Since(started), len(s.cacheGroups))
	}
}

// Recomputes returns how many times the session regrouped.
func (s *Session) Recomputes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputes
}

// LastAccess returns the time of the latest session operation.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch() {
	s.lastAccess = s.clock.Now()
}

// toMatcherError converts a parse failure into its page form.
func toMatcherError(input string, err error) *MatcherError {
	out := &MatcherError{Input: input, Message: err.Error()}
	var parseErr *matcher.ParseError
	if errors.As(err, &parseErr) {
		out.Message = parseErr.Reason
		out.Offset = parseErr.Offset
	}
	return out
}
