// Package api exposes regrouped alert pages over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"alertgroups/internal/clock"
	"alertgroups/internal/grouping"
	"alertgroups/internal/matcher"
	"alertgroups/internal/state"
	"alertgroups/internal/view"
)

const maxRequestBytes = 1 << 20

// Snapshots reads the last good snapshot of a source.
type Snapshots interface {
	Get(ctx context.Context, source string) (state.Snapshot, error)
}

// StatusReader reports the fetch status of a source.
type StatusReader interface {
	Status(source string) view.FetchStatus
}

// SourceInfo describes one configured source.
type SourceInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	URL         string `json:"url,omitempty"`
	// PushSubject is set for push sources reachable over NATS.
	PushSubject string `json:"push_subject,omitempty"`
}

// Deps groups API collaborators.
// Params: logger, session manager, snapshot reader, status reader, configured sources, optional push handler, and clock.
// Returns: input for New.
type Deps struct {
	Logger    *slog.Logger
	Sessions  *view.Manager
	Snapshots Snapshots
	Status    StatusReader
	Sources   []SourceInfo
	Ingest    http.Handler
	Clock     clock.Clock
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    *slog.Logger
	sessions  *view.Manager
	snapshots Snapshots
	status    StatusReader
	sources   []SourceInfo
	ingest    http.Handler
	clock     clock.Clock
}

// New creates API handlers.
// Params: collaborators; session manager, snapshot reader, status reader and logger are required.
// Returns: API ready for route registration.
func New(deps Deps) *API {
	if deps.Sessions == nil || deps.Snapshots == nil || deps.Status == nil || deps.Logger == nil {
		panic("api: sessions, snapshots, status and logger are required")
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &API{
		logger:    deps.Logger,
		sessions:  deps.Sessions,
		snapshots: deps.Snapshots,
		status:    deps.Status,
		sources:   deps.Sources,
		ingest:    deps.Ingest,
		clock:     clk,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", a.handleListSources)
		r.Get("/sources/{source}/groups", a.handleRenderGroups)
		if a.ingest != nil {
			r.Method(http.MethodPost, "/sources/{source}/groups", a.ingest)
		}
		r.Post("/sessions", a.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", a.handleGetSession)
			r.Delete("/", a.handleDeleteSession)
			r.Put("/group-by", a.handleSetGroupBy)
			r.Put("/matcher", a.handleSetMatcher)
			r.Delete("/filters", a.handleClearFilters)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

type sourceStatus struct {
	SourceInfo
	Revision            string     `json:"revision,omitempty"`
	FetchedAt           *time.Time `json:"fetched_at,omitempty"`
	AlertCount          int        `json:"alert_count"`
	Stale               bool       `json:"stale"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

func (a *API) handleListSources(w http.ResponseWriter, r *http.Request) {
	out := make([]sourceStatus, 0, len(a.sources))
	for _, info := range a.sources {
		item := sourceStatus{SourceInfo: info}
		snapshot, err := a.snapshots.Get(r.Context(), info.Name)
		switch {
		case err == nil:
			item.Revision = snapshot.Revision
			fetchedAt := snapshot.FetchedAt
			item.FetchedAt = &fetchedAt
			item.AlertCount = countAlerts(snapshot)
		case errors.Is(err, state.ErrNotFound):
		default:
			a.logger.Error("snapshot read failed", "source", info.Name, "error", err.Error())
			writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
			return
		}
		status := a.status.Status(info.Name)
		item.ConsecutiveFailures = status.ConsecutiveFailures
		item.Stale = status.ConsecutiveFailures > 0
		if item.Stale {
			item.LastError = status.LastError
			lastErrorAt := status.LastErrorAt
			item.LastErrorAt = &lastErrorAt
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (a *API) handleRenderGroups(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	renderer, ok := a.sessions.Renderer(source)
	if !ok {
		writeError(w, http.StatusNotFound, view.ErrUnknownSource.Error())
		return
	}

	query := r.URL.Query()
	filter, err := matcher.Parse(query.Get("matcher"))
	if err != nil {
		writeMatcherError(w, err)
		return
	}
	snapshot, ok := a.snapshot(w, r, source)
	if !ok {
		return
	}
	page := renderer.Render(snapshot, a.status.Status(source), modeFromQuery(query["group_by"]), filter, a.clock.Now())
	writeJSON(w, http.StatusOK, page)
}

type createSessionRequest struct {
	Source  string   `json:"source"`
	GroupBy []string `json:"group_by"`
	Matcher string   `json:"matcher"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := a.sessions.Create(req.Source)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	session.SetGroupBy(req.GroupBy)
	_ = session.SetMatcher(req.Matcher)
	a.logger.Debug("session created", "session", session.ID(), "source", session.Source())
	a.writeSession(w, r, session, http.StatusCreated)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := a.lookupSession(w, r)
	if !ok {
		return
	}
	a.writeSession(w, r, session, http.StatusOK)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type groupByRequest struct {
	Keys []string `json:"keys"`
}

func (a *API) handleSetGroupBy(w http.ResponseWriter, r *http.Request) {
	session, ok := a.lookupSession(w, r)
	if !ok {
		return
	}
	var req groupByRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session.SetGroupBy(req.Keys)
	a.writeSession(w, r, session, http.StatusOK)
}

type matcherRequest struct {
	Matcher string `json:"matcher"`
}

func (a *API) handleSetMatcher(w http.ResponseWriter, r *http.Request) {
	session, ok := a.lookupSession(w, r)
	if !ok {
		return
	}
	var req matcherRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	// The page carries matcher_error next to the previous view.
	_ = session.SetMatcher(req.Matcher)
	a.writeSession(w, r, session, http.StatusOK)
}

func (a *API) handleClearFilters(w http.ResponseWriter, r *http.Request) {
	session, ok := a.lookupSession(w, r)
	if !ok {
		return
	}
	session.ClearFilters()
	a.writeSession(w, r, session, http.StatusOK)
}

func (a *API) lookupSession(w http.ResponseWriter, r *http.Request) (*view.Session, bool) {
	session, err := a.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return session, true
}

func (a *API) writeSession(w http.ResponseWriter, r *http.Request, session *view.Session, code int) {
	snapshot, ok := a.snapshot(w, r, session.Source())
	if !ok {
		return
	}
	writeJSON(w, code, session.Render(snapshot, a.status.Status(session.Source())))
}

// snapshot loads the last good snapshot; a source never fetched renders empty.
func (a *API) snapshot(w http.ResponseWriter, r *http.Request, source string) (state.Snapshot, bool) {
	snapshot, err := a.snapshots.Get(r.Context(), source)
	if errors.Is(err, state.ErrNotFound) {
		return state.Snapshot{Source: source}, true
	}
	if err != nil {
		a.logger.Error("snapshot read failed", "source", source, "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return state.Snapshot{}, false
	}
	return snapshot, true
}

func countAlerts(snapshot state.Snapshot) int {
	total := 0
	for _, group := range snapshot.Groups {
		total += len(group.Alerts)
	}
	return total
}

// decodeRequest reads a bounded JSON body into dst.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// modeFromQuery reads group_by values given as repeated or comma-separated keys.
func modeFromQuery(values []string) grouping.Mode {
	var keys []string
	for _, value := range values {
		for _, key := range strings.Split(value, ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return grouping.Custom(keys...)
}

func writeMatcherError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var parseErr *matcher.ParseError
	if errors.As(err, &parseErr) {
		body["error"] = parseErr.Reason
		body["offset"] = parseErr.Offset
	}
	writeJSON(w, http.StatusBadRequest, body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
