package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// defaultRunsLimit bounds GET /api/v1/runs when no limit is given.
const defaultRunsLimit = 20

// runResponse is one sync run in the runs listing.
type runResponse struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	SyncType    string `json:"sync_type"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Processed   int    `json:"records_processed"`
	Succeeded   int    `json:"success_count"`
	Failed      int    `json:"error_count"`
}

// handleListRuns returns a team's recent sync runs, newest first.
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	teamID := r.URL.Query().Get("team_id")
	if teamID == "" {
		http.Error(w, "team_id is required", http.StatusBadRequest)
		return
	}

	limit := defaultRunsLimit

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		limit = n
	}

	runs, err := h.runs.ListRecentRuns(r.Context(), teamID, limit)
	if err != nil {
		h.logger.Error("list runs error", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	out := make([]runResponse, 0, len(runs))

	for _, run := range runs {
		resp := runResponse{
			ID:        run.ID,
			Platform:  run.Platform.String(),
			SyncType:  string(run.SyncType),
			Status:    string(run.Status),
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Processed: run.RecordsProcessed,
			Succeeded: run.SuccessCount,
			Failed:    run.ErrorCount,
		}
		if !run.CompletedAt.IsZero() {
			resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
		}

		out = append(out, resp)
	}

	writeJSON(w, h.logger, http.StatusOK, out)
}
