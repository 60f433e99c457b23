package ads

import "time"

// SyncType selects how much history a sync run pulls.
type SyncType string

const (
	// SyncFull re-fetches all campaigns and a 30-day metrics window.
	SyncFull SyncType = "full"
	// SyncIncremental re-fetches campaigns and a 7-day trailing metrics
	// window. The shorter window tolerates late-arriving attribution;
	// platform-level "modified since" filters are deliberately not used
	// because platforms support them inconsistently.
	SyncIncremental SyncType = "incremental"
)

// MetricsWindow returns how many trailing days of metrics this sync
// type pulls.
func (t SyncType) MetricsWindow() int {
	if t == SyncFull {
		return 30
	}

	return 7
}

// RunStatus is the lifecycle state of a SyncRun row.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun records one orchestrator invocation for a (team, platform)
// pair. Created as Running at sync start and finalized at sync end. An
// orphaned Running row from a crashed process is simply superseded by
// the next run; upserts are idempotent so no resumption logic exists.
type SyncRun struct {
	ID               string
	TeamID           string
	Platform         Platform
	SyncType         SyncType
	StartedAt        time.Time
	CompletedAt      time.Time
	RecordsProcessed int
	SuccessCount     int
	ErrorCount       int
	Status           RunStatus
}

// Duration returns the wall time the run took, or 0 while Running.
func (r *SyncRun) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}

	return r.CompletedAt.Sub(r.StartedAt)
}
