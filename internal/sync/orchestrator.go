// Package sync implements the synchronization orchestrator: it fans
// sync work out across a team's connected platforms, enforces
// at-most-once-concurrent execution per (team, platform), isolates
// per-campaign failures, and records every run's outcome. Campaign and
// metric writes are idempotent upserts, so a crashed or repeated sync
// never corrupts canonical state; the next run simply repairs it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// ErrSyncInProgress is returned for a (team, platform) unit whose lock
// is already held. The caller skips the unit; there is no queuing.
var ErrSyncInProgress = errors.New("sync: already in progress for this team and platform")

// ErrNoCredentials is returned when the requested scope has no active
// credentials to sync.
var ErrNoCredentials = errors.New("sync: no active credentials in scope")

// defaultMetricWorkers bounds concurrent per-campaign metric fetches
// within one sync unit.
const defaultMetricWorkers = 4

// maxRecordedErrors caps the per-run diagnostic error list. The error
// counter in the SyncRun stays accurate regardless.
const maxRecordedErrors = 100

// Store is the slice of persistence the orchestrator needs. The SQLite
// store implements it; tests use an in-memory fake.
type Store interface {
	ListActiveCredentials(ctx context.Context, teamID string) ([]*ads.Credential, error)
	UpsertCampaign(ctx context.Context, c *ads.Campaign) (int64, error)
	UpsertMetric(ctx context.Context, m *ads.CampaignMetric) error
	InsertRun(ctx context.Context, run *ads.SyncRun) error
	FinalizeRun(ctx context.Context, run *ads.SyncRun) error
	TouchSynced(ctx context.Context, credID int64, at time.Time) error
}

// TokenManager hands out currently-valid tokens. The token package
// provides the real implementation.
type TokenManager interface {
	ValidToken(ctx context.Context, cred *ads.Credential) (string, error)
}

// PlatformResult is the outcome of one platform's sync unit. A unit
// covers every account credential the team has on that platform, so
// Runs holds one entry per account; it is empty when the unit was
// skipped before any run started.
type PlatformResult struct {
	Success bool
	Err     error
	Runs    []*ads.SyncRun
}

// Result aggregates per-platform outcomes for one trigger.
type Result map[ads.Platform]PlatformResult

// Config holds the orchestrator's construction inputs.
type Config struct {
	Store          Store
	Tokens         TokenManager
	AdapterFactory AdapterFactory
	MetricWorkers  int
	Logger         *slog.Logger
}

// Orchestrator is the top-level sync entry point.
type Orchestrator struct {
	store         Store
	tokens        TokenManager
	registries    *registryCache
	locks         *keyedLocks
	metricWorkers int
	logger        *slog.Logger

	nowFunc func() time.Time // injectable for testing
	newID   func() string
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := cfg.MetricWorkers
	if workers <= 0 {
		workers = defaultMetricWorkers
	}

	return &Orchestrator{
		store:         cfg.Store,
		tokens:        cfg.Tokens,
		registries:    newRegistryCache(cfg.AdapterFactory, logger),
		locks:         newKeyedLocks(),
		metricWorkers: workers,
		logger:        logger,
		nowFunc:       time.Now,
		newID:         uuid.NewString,
	}
}

// InvalidateTeam drops the team's cached adapters after a credential
// change so the next sync rebuilds them.
func (o *Orchestrator) InvalidateTeam(teamID string) {
	o.registries.invalidate(teamID)
}

// TriggerSync runs a sync for one platform or, when target is nil, for
// every platform the team has an active credential on. Platforms run
// independently in parallel; one platform's failure never blocks or
// rolls back another's. The returned map always has an entry per
// targeted platform.
func (o *Orchestrator) TriggerSync(
	ctx context.Context, teamID string, target *ads.Platform, syncType ads.SyncType,
) (Result, error) {
	creds, err := o.store.ListActiveCredentials(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("sync: listing credentials for team %s: %w", teamID, err)
	}

	if target != nil {
		filtered := creds[:0]

		for _, cred := range creds {
			if cred.Platform == *target {
				filtered = append(filtered, cred)
			}
		}

		creds = filtered
	}

	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	units := groupUnits(creds)

	o.logger.Info("sync triggered",
		slog.String("team", teamID),
		slog.Int("platforms", len(units)),
		slog.String("type", string(syncType)),
	)

	results := make([]PlatformResult, len(units))

	var wg stdsync.WaitGroup

	for i, unit := range units {
		wg.Add(1)

		go func(idx int, u syncUnit) {
			defer wg.Done()
			results[idx] = o.runUnit(ctx, u, syncType)
		}(i, unit)
	}

	wg.Wait()

	out := make(Result, len(units))
	for i, unit := range units {
		out[unit.platform] = results[i]
	}

	return out, nil
}

// syncUnit is the locking granularity: one platform with every active
// account credential the team holds on it. Accounts inside a unit sync
// sequentially under the unit's lock, so two accounts on the same
// platform never contend for it.
type syncUnit struct {
	platform ads.Platform
	creds    []*ads.Credential
}

// groupUnits folds credentials into per-platform units, preserving
// credential order within each unit.
func groupUnits(creds []*ads.Credential) []syncUnit {
	index := make(map[ads.Platform]int, len(creds))
	units := make([]syncUnit, 0, len(creds))

	for _, cred := range creds {
		i, ok := index[cred.Platform]
		if !ok {
			i = len(units)
			index[cred.Platform] = i
			units = append(units, syncUnit{platform: cred.Platform})
		}

		units[i].creds = append(units[i].creds, cred)
	}

	return units
}

// runUnit executes one (team, platform) sync unit with panic recovery,
// so a misbehaving adapter cannot take down sibling platforms. Every
// account credential in the unit contributes its own run to the result.
func (o *Orchestrator) runUnit(
	ctx context.Context, unit syncUnit, syncType ads.SyncType,
) (result PlatformResult) {
	teamID := unit.creds[0].TeamID

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in sync unit",
				slog.String("team", teamID),
				slog.String("platform", unit.platform.String()),
				slog.Any("panic", r),
			)

			result = PlatformResult{Err: fmt.Errorf("sync: panic in %s unit: %v", unit.platform, r)}
		}
	}()

	key := lockKey{teamID: teamID, platform: unit.platform}

	if !o.locks.tryAcquire(key) {
		o.logger.Info("sync already in progress, skipping",
			slog.String("team", teamID),
			slog.String("platform", unit.platform.String()),
		)

		return PlatformResult{Err: ErrSyncInProgress}
	}

	defer o.locks.release(key)

	var (
		runs []*ads.SyncRun
		errs []error
	)

	for _, cred := range unit.creds {
		adapter, err := o.registries.adapterFor(cred)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		run, err := o.syncAccount(ctx, adapter, cred, syncType)
		if run != nil {
			runs = append(runs, run)
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", cred.AccountID, err))
		}
	}

	return PlatformResult{
		Success: len(errs) == 0,
		Err:     errors.Join(errs...),
		Runs:    runs,
	}
}

// syncAccount is the per-account state machine: record the run, obtain
// a valid token, fetch and upsert campaigns, pull the metrics window
// per campaign with failure isolation, finalize the run.
func (o *Orchestrator) syncAccount(
	ctx context.Context, adapter platform.Adapter, cred *ads.Credential, syncType ads.SyncType,
) (*ads.SyncRun, error) {
	run := &ads.SyncRun{
		ID:        o.newID(),
		TeamID:    cred.TeamID,
		Platform:  cred.Platform,
		SyncType:  syncType,
		StartedAt: o.nowFunc(),
		Status:    ads.RunRunning,
	}

	if err := o.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	// Token first: an expired grant fails the account before any
	// platform traffic happens.
	if _, err := o.tokens.ValidToken(ctx, cred); err != nil {
		o.logger.Warn("token unavailable, failing account sync",
			slog.String("credential", cred.Redacted()),
			slog.String("error", err.Error()),
		)

		o.finalize(ctx, run, 0, 0, 1)

		return run, err
	}

	campaigns, err := adapter.FetchCampaigns(ctx)
	if err != nil {
		o.logger.Error("campaign fetch failed",
			slog.String("credential", cred.Redacted()),
			slog.String("error", err.Error()),
		)

		o.finalize(ctx, run, 0, 0, 1)

		return run, err
	}

	succeeded, failed, errs := o.syncCampaigns(ctx, adapter, campaigns, syncType)

	o.finalize(ctx, run, len(campaigns), succeeded, failed)

	if failed > 0 {
		o.logger.Warn("account sync completed with errors",
			slog.String("credential", cred.Redacted()),
			slog.Int("succeeded", succeeded),
			slog.Int("failed", failed),
		)

		return run, errors.Join(errs...)
	}

	if err := o.store.TouchSynced(ctx, cred.ID, o.nowFunc()); err != nil {
		o.logger.Warn("could not update last synced time",
			slog.String("credential", cred.Redacted()),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Info("account sync completed",
		slog.String("credential", cred.Redacted()),
		slog.Int("campaigns", len(campaigns)),
	)

	return run, nil
}

// syncCampaigns upserts each fetched campaign and pulls its trailing
// metrics window with bounded concurrency. One campaign's failure is
// recorded and the rest proceed; rows already written stay committed.
func (o *Orchestrator) syncCampaigns(
	ctx context.Context, adapter platform.Adapter, campaigns []ads.Campaign, syncType ads.SyncType,
) (succeeded, failed int, errs []error) {
	end := o.nowFunc().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -syncType.MetricsWindow())

	var (
		okCount   atomic.Int32
		failCount atomic.Int32
		errMu     stdsync.Mutex
	)

	record := func(err error) {
		failCount.Add(1)
		errMu.Lock()

		if len(errs) < maxRecordedErrors {
			errs = append(errs, err)
		}

		errMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.metricWorkers)

	for i := range campaigns {
		campaign := campaigns[i]

		g.Go(func() error {
			if err := o.syncOneCampaign(gctx, adapter, &campaign, start, end); err != nil {
				record(fmt.Errorf("campaign %s: %w", campaign.PlatformCampaignID, err))
				return nil // isolation: never abort the group
			}

			okCount.Add(1)

			return nil
		})
	}

	// Workers never return errors; Wait only reaps them.
	_ = g.Wait()

	return int(okCount.Load()), int(failCount.Load()), errs
}

// syncOneCampaign upserts the campaign row, fetches its metrics window,
// and upserts each daily metric keyed to the local campaign id.
func (o *Orchestrator) syncOneCampaign(
	ctx context.Context, adapter platform.Adapter, campaign *ads.Campaign, start, end time.Time,
) error {
	localID, err := o.store.UpsertCampaign(ctx, campaign)
	if err != nil {
		return err
	}

	metrics, err := adapter.FetchCampaignMetrics(ctx, campaign.PlatformCampaignID, start, end)
	if err != nil {
		return err
	}

	for i := range metrics {
		metrics[i].CampaignID = localID

		if err := o.store.UpsertMetric(ctx, &metrics[i]); err != nil {
			return err
		}
	}

	return nil
}

// finalize writes the run's terminal state. Failures here are logged,
// not propagated, since the sync outcome itself already happened.
func (o *Orchestrator) finalize(ctx context.Context, run *ads.SyncRun, processed, succeeded, failed int) {
	run.CompletedAt = o.nowFunc()
	run.RecordsProcessed = processed
	run.SuccessCount = succeeded
	run.ErrorCount = failed

	if failed > 0 {
		run.Status = ads.RunFailed
	} else {
		run.Status = ads.RunCompleted
	}

	if err := o.store.FinalizeRun(ctx, run); err != nil {
		o.logger.Error("failed to finalize sync run",
			slog.String("run", run.ID),
			slog.String("error", err.Error()),
		)
	}
}
