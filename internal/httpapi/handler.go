// Package httpapi is the inbound HTTP adapter: a small JSON API for
// triggering syncs and inspecting run history, served by `adsync
// serve`. It exposes the same operations as the CLI so schedulers and
// dashboards can drive syncs remotely.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adstack/adsync/internal/ads"
	adsync "github.com/adstack/adsync/internal/sync"
)

// Orchestrator is the slice of the sync orchestrator the API needs.
type Orchestrator interface {
	TriggerSync(ctx context.Context, teamID string, target *ads.Platform, syncType ads.SyncType) (adsync.Result, error)
}

// RunLister reads sync run history. The SQLite store implements it.
type RunLister interface {
	ListRecentRuns(ctx context.Context, teamID string, limit int) ([]*ads.SyncRun, error)
}

// Handler holds dependencies and routes.
type Handler struct {
	orch   Orchestrator
	runs   RunLister
	logger *slog.Logger
	router chi.Router
}

// NewHandler creates a handler with all routes registered.
func NewHandler(orch Orchestrator, runs RunLister, logger *slog.Logger) *Handler {
	h := &Handler{orch: orch, runs: runs, logger: logger}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", h.handleTriggerSync)
		r.Get("/runs", h.handleListRuns)
	})

	h.router = r

	return h
}

// Router returns the underlying http.Handler.
func (h *Handler) Router() http.Handler {
	return h.router
}
