package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adstack/adsync/internal/ads"
)

const (
	sqlInsertRun = `INSERT INTO sync_runs
		(id, team_id, platform, sync_type, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlFinalizeRun = `UPDATE sync_runs SET
		 completed_at = ?, records_processed = ?, success_count = ?,
		 error_count = ?, status = ?
		WHERE id = ?`

	sqlIsRunning = `SELECT COUNT(*) FROM sync_runs
		WHERE team_id = ? AND platform = ? AND status = ?`

	sqlListRecentRuns = `SELECT id, team_id, platform, sync_type, started_at,
		 completed_at, records_processed, success_count, error_count, status
		FROM sync_runs WHERE team_id = ?
		ORDER BY started_at DESC LIMIT ?`
)

// InsertRun records the start of a sync run with status Running.
func (s *Store) InsertRun(ctx context.Context, run *ads.SyncRun) error {
	_, err := s.runStmts.insert.ExecContext(ctx,
		run.ID, run.TeamID, run.Platform.String(), string(run.SyncType),
		run.StartedAt, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("store: insert sync run %s: %w", run.ID, err)
	}

	return nil
}

// FinalizeRun writes the run's terminal state and counters.
func (s *Store) FinalizeRun(ctx context.Context, run *ads.SyncRun) error {
	_, err := s.runStmts.finalize.ExecContext(ctx,
		run.CompletedAt, run.RecordsProcessed, run.SuccessCount,
		run.ErrorCount, string(run.Status), run.ID,
	)
	if err != nil {
		return fmt.Errorf("store: finalize sync run %s: %w", run.ID, err)
	}

	return nil
}

// IsRunning reports whether a Running row exists for (team, platform).
// Informational only: sync exclusivity is enforced by the
// orchestrator's in-process locks, not by this query, so an orphaned
// Running row from a crash never blocks the next run.
func (s *Store) IsRunning(ctx context.Context, teamID string, p ads.Platform) (bool, error) {
	var n int

	err := s.runStmts.isRunning.QueryRowContext(ctx,
		teamID, p.String(), string(ads.RunRunning)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: querying running state: %w", err)
	}

	return n > 0, nil
}

// ListRecentRuns returns a team's most recent sync runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, teamID string, limit int) ([]*ads.SyncRun, error) {
	rows, err := s.runStmts.listRecent.QueryContext(ctx, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sync runs: %w", err)
	}

	defer rows.Close()

	var runs []*ads.SyncRun

	for rows.Next() {
		var (
			run         ads.SyncRun
			platformStr string
			typeStr     string
			statusStr   string
			completedAt sql.NullTime
		)

		if err := rows.Scan(&run.ID, &run.TeamID, &platformStr, &typeStr,
			&run.StartedAt, &completedAt, &run.RecordsProcessed,
			&run.SuccessCount, &run.ErrorCount, &statusStr); err != nil {
			return nil, fmt.Errorf("store: scanning sync run: %w", err)
		}

		run.Platform = ads.Platform(platformStr)
		run.SyncType = ads.SyncType(typeStr)
		run.Status = ads.RunStatus(statusStr)

		if completedAt.Valid {
			run.CompletedAt = completedAt.Time
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating sync runs: %w", err)
	}

	return runs, nil
}
