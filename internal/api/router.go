package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"alertgroups/internal/config"
)

// NewRouter builds the service HTTP handler.
// Params: http section, API handlers, readiness check, and metrics handler (nil skips the route).
// Returns: chi router with health checks, metrics, and API routes.
func NewRouter(cfg config.HTTPConfig, api *API, ready func() bool, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(cfg.ReadyPath, func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not-ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, metrics)
	}
	api.RegisterRoutes(r)
	return r
}
