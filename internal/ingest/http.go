// Package ingest accepts alert group snapshots pushed by backends.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"alertgroups/internal/domain"
)

// Sink receives decoded group lists for one push source.
type Sink interface {
	Push(ctx context.Context, source string, groups []domain.RawGroup) error
}

// HTTPHandler decodes pushed group lists and forwards them to sink.
// Params: sink, set of push-enabled sources, and body limit.
// Returns: handler for `POST /api/v1/sources/{source}/groups`.
type HTTPHandler struct {
	sink        Sink
	sources     map[string]struct{}
	maxBodySize int64
	logger      *slog.Logger
}

// NewHTTPHandler creates the push HTTP handler.
// Params: sink, names of sources with kind=push, max body bytes, and logger.
// Returns: configured handler.
func NewHTTPHandler(sink Sink, pushSources []string, maxBodySize int64, logger *slog.Logger) *HTTPHandler {
	sources := make(map[string]struct{}, len(pushSources))
	for _, name := range pushSources {
		sources[name] = struct{}{}
	}
	return &HTTPHandler{sink: sink, sources: sources, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP handles one pushed snapshot.
// Params: request carrying the source URL parameter and a JSON group array.
// Returns: 202 on accept, 400 on bad payload, 404 for non-push sources, 413 for oversize, 503 on sink failure.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if _, ok := h.sources[source]; !ok {
		writeError(w, http.StatusNotFound, "unknown push source")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	defer body.Close()
	groups, err := decodeBody(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sink.Push(r.Context(), source, groups); err != nil {
		h.logger.Error("push store failed", "source", source, "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"groups": len(groups), "alerts": domain.AlertCount(groups)})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
