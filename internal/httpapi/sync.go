package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/adstack/adsync/internal/ads"
	adsync "github.com/adstack/adsync/internal/sync"
)

// syncRequest is the POST /api/v1/sync body. Platform empty means all
// connected platforms; SyncType empty means incremental.
type syncRequest struct {
	TeamID   string `json:"team_id"`
	Platform string `json:"platform,omitempty"`
	SyncType string `json:"sync_type,omitempty"`
}

// platformOutcome is one platform's entry in the sync response. A
// platform records one run per synced account; the counters aggregate
// across them.
type platformOutcome struct {
	Status    string   `json:"status"` // ok, skipped, or failed
	Error     string   `json:"error,omitempty"`
	RunIDs    []string `json:"run_ids,omitempty"`
	Processed int      `json:"records_processed"`
	Succeeded int      `json:"success_count"`
	Failed    int      `json:"error_count"`
}

// handleTriggerSync runs a sync synchronously and reports per-platform
// outcomes. The response is 200 even when individual platforms failed;
// callers read per-platform status. Request-level problems (bad body,
// no credentials) are 4xx.
func (h *Handler) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if req.TeamID == "" {
		http.Error(w, "team_id is required", http.StatusBadRequest)
		return
	}

	var target *ads.Platform

	if req.Platform != "" {
		p, err := ads.ParsePlatform(req.Platform)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		target = &p
	}

	syncType := ads.SyncIncremental

	switch req.SyncType {
	case "", "incremental":
	case "full":
		syncType = ads.SyncFull
	default:
		http.Error(w, "sync_type must be full or incremental", http.StatusBadRequest)
		return
	}

	results, err := h.orch.TriggerSync(r.Context(), req.TeamID, target, syncType)
	if err != nil {
		if errors.Is(err, adsync.ErrNoCredentials) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error("sync trigger failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	out := make(map[string]platformOutcome, len(results))

	for p, res := range results {
		outcome := platformOutcome{Status: "ok"}

		switch {
		case errors.Is(res.Err, adsync.ErrSyncInProgress):
			outcome.Status = "skipped"
			outcome.Error = res.Err.Error()
		case res.Err != nil:
			outcome.Status = "failed"
			outcome.Error = res.Err.Error()
		}

		for _, run := range res.Runs {
			outcome.RunIDs = append(outcome.RunIDs, run.ID)
			outcome.Processed += run.RecordsProcessed
			outcome.Succeeded += run.SuccessCount
			outcome.Failed += run.ErrorCount
		}

		out[p.String()] = outcome
	}

	writeJSON(w, h.logger, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", slog.Any("error", err))
	}
}
