package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeStore is an in-memory MutationStore.
type fakeStore struct {
	mu        stdsync.Mutex
	creds     []*ads.Credential
	campaigns map[string]*ads.Campaign // platform campaign id -> row
	metrics   map[int64][]*ads.CampaignMetric
	runs      map[string]*ads.SyncRun
	nextID    int64

	statusMirrors []string
	budgetMirrors []float64
}

func newSyncFakeStore(creds ...*ads.Credential) *fakeStore {
	return &fakeStore{
		creds:     creds,
		campaigns: make(map[string]*ads.Campaign),
		metrics:   make(map[int64][]*ads.CampaignMetric),
		runs:      make(map[string]*ads.SyncRun),
	}
}

func (s *fakeStore) ListActiveCredentials(_ context.Context, teamID string) ([]*ads.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ads.Credential

	for _, c := range s.creds {
		if c.TeamID == teamID && c.IsActive {
			out = append(out, c)
		}
	}

	return out, nil
}

func (s *fakeStore) UpsertCampaign(_ context.Context, c *ads.Campaign) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.campaigns[c.PlatformCampaignID]; ok {
		copied := *c
		copied.ID = existing.ID
		s.campaigns[c.PlatformCampaignID] = &copied

		return existing.ID, nil
	}

	s.nextID++
	copied := *c
	copied.ID = s.nextID
	s.campaigns[c.PlatformCampaignID] = &copied

	return copied.ID, nil
}

func (s *fakeStore) UpsertMetric(_ context.Context, m *ads.CampaignMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *m
	s.metrics[m.CampaignID] = append(s.metrics[m.CampaignID], &copied)

	return nil
}

func (s *fakeStore) InsertRun(_ context.Context, run *ads.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.ID] = &copied

	return nil
}

func (s *fakeStore) FinalizeRun(_ context.Context, run *ads.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.ID] = &copied

	return nil
}

func (s *fakeStore) TouchSynced(_ context.Context, _ int64, _ time.Time) error {
	return nil
}

func (s *fakeStore) SetCampaignStatus(_ context.Context, _ string, _ ads.Platform, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusMirrors = append(s.statusMirrors, fmt.Sprintf("%s:%t", id, active))

	return nil
}

func (s *fakeStore) SetCampaignBudget(_ context.Context, _ string, _ ads.Platform, _ string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budgetMirrors = append(s.budgetMirrors, amount)

	return nil
}

func (s *fakeStore) metricCount(campaignID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.metrics[campaignID])
}

// fakeAdapter implements platform.Adapter with pluggable hooks.
type fakeAdapter struct {
	platform     ads.Platform
	campaigns    []ads.Campaign
	campaignsErr error
	metricsFn    func(platformCampaignID string, start, end time.Time) ([]ads.CampaignMetric, error)
	statusFn     func(platformCampaignID string, active bool) error
	budgetFn     func(platformCampaignID string, amount float64) error

	fetchGate chan struct{} // when set, FetchCampaigns blocks until closed
}

func (f *fakeAdapter) Platform() ads.Platform { return f.platform }

func (f *fakeAdapter) ValidateCredentials(context.Context) error { return nil }

func (f *fakeAdapter) FetchCampaigns(context.Context) ([]ads.Campaign, error) {
	if f.fetchGate != nil {
		<-f.fetchGate
	}

	if f.campaignsErr != nil {
		return nil, f.campaignsErr
	}

	return f.campaigns, nil
}

func (f *fakeAdapter) FetchCampaignMetrics(_ context.Context, id string, start, end time.Time) ([]ads.CampaignMetric, error) {
	if f.metricsFn != nil {
		return f.metricsFn(id, start, end)
	}

	return []ads.CampaignMetric{{Date: end, Impressions: 100, Clicks: 10, Cost: 5}}, nil
}

func (f *fakeAdapter) UpdateCampaignStatus(_ context.Context, id string, active bool) error {
	if f.statusFn != nil {
		return f.statusFn(id, active)
	}

	return nil
}

func (f *fakeAdapter) UpdateCampaignBudget(_ context.Context, id string, amount float64) error {
	if f.budgetFn != nil {
		return f.budgetFn(id, amount)
	}

	return nil
}

// fakeTokens approves every credential unless err is set.
type fakeTokens struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) ValidToken(_ context.Context, _ *ads.Credential) (string, error) {
	f.calls.Add(1)

	if f.err != nil {
		return "", f.err
	}

	return "token", nil
}

func credFor(id int64, p ads.Platform) *ads.Credential {
	return &ads.Credential{
		ID: id, TeamID: "team-1", Platform: p, AccountID: fmt.Sprintf("acct-%d", id),
		Kind: ads.AuthManual, IsActive: true,
		APIKey: &ads.APIKeySecret{Key: "k"},
	}
}

func newTestOrchestrator(store *fakeStore, tokens TokenManager, adapters map[ads.Platform]*fakeAdapter) *Orchestrator {
	return NewOrchestrator(Config{
		Store:  store,
		Tokens: tokens,
		AdapterFactory: func(cred *ads.Credential) (platform.Adapter, error) {
			a, ok := adapters[cred.Platform]
			if !ok {
				return nil, fmt.Errorf("no fake adapter for %s", cred.Platform)
			}

			return a, nil
		},
		MetricWorkers: 4,
		Logger:        testLogger(),
	})
}

func singleRun(t *testing.T, store *fakeStore) *ads.SyncRun {
	t.Helper()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.runs, 1)

	for _, run := range store.runs {
		return run
	}

	return nil
}

func TestTriggerSync_PartialFailureIsolatesCampaigns(t *testing.T) {
	campaigns := make([]ads.Campaign, 10)
	for i := range campaigns {
		campaigns[i] = ads.Campaign{
			TeamID: "team-1", Platform: ads.PlatformCoupang,
			PlatformCampaignID: fmt.Sprintf("c-%d", i),
			Name:               fmt.Sprintf("Campaign %d", i),
			Status:             ads.StatusActive, Budget: 10000, IsActive: true,
		}
	}

	// Metric fetches fail for exactly two campaigns.
	failing := map[string]bool{"c-3": true, "c-7": true}
	adapter := &fakeAdapter{
		platform:  ads.PlatformCoupang,
		campaigns: campaigns,
		metricsFn: func(id string, _, end time.Time) ([]ads.CampaignMetric, error) {
			if failing[id] {
				return nil, platform.NewError(ads.PlatformCoupang, platform.KindServerError, "report 500", nil)
			}

			return []ads.CampaignMetric{{Date: end, Impressions: 10}}, nil
		},
	}

	store := newSyncFakeStore(credFor(1, ads.PlatformCoupang))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformCoupang: adapter})

	results, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)

	res := results[ads.PlatformCoupang]
	require.Len(t, res.Runs, 1)
	assert.False(t, res.Success)
	require.Error(t, res.Err)

	run := singleRun(t, store)
	assert.Equal(t, ads.RunFailed, run.Status)
	assert.Equal(t, 10, run.RecordsProcessed)
	assert.Equal(t, 8, run.SuccessCount)
	assert.Equal(t, 2, run.ErrorCount)

	// The eight healthy campaigns kept their metric rows.
	var withMetrics int

	store.mu.Lock()
	for _, c := range store.campaigns {
		if len(store.metrics[c.ID]) > 0 {
			withMetrics++
		}
	}
	store.mu.Unlock()

	assert.Equal(t, 8, withMetrics)
}

func TestTriggerSync_NoCredentials(t *testing.T) {
	store := newSyncFakeStore()
	orch := newTestOrchestrator(store, &fakeTokens{}, nil)

	_, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncFull)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTriggerSync_ConcurrentSameUnitSkipped(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		platform:  ads.PlatformNaver,
		campaigns: []ads.Campaign{},
		fetchGate: gate,
	}

	store := newSyncFakeStore(credFor(1, ads.PlatformNaver))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformNaver: adapter})

	firstDone := make(chan Result, 1)

	go func() {
		res, _ := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
		firstDone <- res
	}()

	// Wait until the first sync holds the lock (it blocks in
	// FetchCampaigns, which is after acquisition).
	require.Eventually(t, func() bool {
		key := lockKey{teamID: "team-1", platform: ads.PlatformNaver}
		orch.locks.mu.Lock()
		_, held := orch.locks.held[key]
		orch.locks.mu.Unlock()

		return held
	}, time.Second, time.Millisecond)

	second, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)
	assert.ErrorIs(t, second[ads.PlatformNaver].Err, ErrSyncInProgress)
	assert.Empty(t, second[ads.PlatformNaver].Runs, "skipped units never record a run")

	close(gate)

	first := <-firstDone
	assert.True(t, first[ads.PlatformNaver].Success)
}

func TestTriggerSync_MultipleAccountsSamePlatform(t *testing.T) {
	adapter := &fakeAdapter{
		platform: ads.PlatformCoupang,
		campaigns: []ads.Campaign{{
			TeamID: "team-1", Platform: ads.PlatformCoupang, PlatformCampaignID: "cp-1",
			Name: "Deal", Status: ads.StatusActive, Budget: 50000, IsActive: true,
		}},
	}

	store := newSyncFakeStore(credFor(21, ads.PlatformCoupang), credFor(22, ads.PlatformCoupang))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformCoupang: adapter})

	results, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[ads.PlatformCoupang]
	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	require.Len(t, res.Runs, 2, "each account records its own run")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.runs, 2)

	for _, run := range store.runs {
		assert.Equal(t, ads.RunCompleted, run.Status)
	}
}

func TestTriggerSync_AccountFailureDoesNotHideSibling(t *testing.T) {
	good := &fakeAdapter{
		platform: ads.PlatformCoupang,
		campaigns: []ads.Campaign{{
			TeamID: "team-1", Platform: ads.PlatformCoupang, PlatformCampaignID: "cp-1",
			Name: "Deal", Status: ads.StatusActive, Budget: 50000, IsActive: true,
		}},
	}
	bad := &fakeAdapter{
		platform:     ads.PlatformCoupang,
		campaignsErr: platform.NewError(ads.PlatformCoupang, platform.KindServerError, "backend error", nil),
	}

	store := newSyncFakeStore(credFor(23, ads.PlatformCoupang), credFor(24, ads.PlatformCoupang))
	orch := NewOrchestrator(Config{
		Store:  store,
		Tokens: &fakeTokens{},
		AdapterFactory: func(cred *ads.Credential) (platform.Adapter, error) {
			if cred.ID == 23 {
				return bad, nil
			}

			return good, nil
		},
		Logger: testLogger(),
	})

	results, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)

	res := results[ads.PlatformCoupang]
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "acct-23", "the failed account is named in the error")
	require.Len(t, res.Runs, 2, "the failing account never blocks its sibling")

	store.mu.Lock()
	defer store.mu.Unlock()

	statuses := map[ads.RunStatus]int{}
	for _, run := range store.runs {
		statuses[run.Status]++
	}

	assert.Equal(t, 1, statuses[ads.RunFailed])
	assert.Equal(t, 1, statuses[ads.RunCompleted])
	assert.Len(t, store.campaigns, 1, "the healthy account's data is committed")
}

func TestTriggerSync_MetricWindowPerSyncType(t *testing.T) {
	var (
		mu      stdsync.Mutex
		windows []int
	)

	adapter := &fakeAdapter{
		platform: ads.PlatformMeta,
		campaigns: []ads.Campaign{{
			TeamID: "team-1", Platform: ads.PlatformMeta, PlatformCampaignID: "m-1",
			Name: "One", Status: ads.StatusActive, IsActive: true,
		}},
		metricsFn: func(_ string, start, end time.Time) ([]ads.CampaignMetric, error) {
			mu.Lock()
			windows = append(windows, int(math.Round(end.Sub(start).Hours()/24)))
			mu.Unlock()

			return nil, nil
		},
	}

	store := newSyncFakeStore(credFor(2, ads.PlatformMeta))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformMeta: adapter})

	_, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncFull)
	require.NoError(t, err)
	_, err = orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)

	require.Len(t, windows, 2)
	assert.Equal(t, 30, windows[0], "full sync pulls a 30 day window")
	assert.Equal(t, 7, windows[1], "incremental sync pulls a 7 day window")
}

func TestTriggerSync_TokenFailureFailsUnitBeforeFetch(t *testing.T) {
	adapter := &fakeAdapter{
		platform:     ads.PlatformKakao,
		campaignsErr: errors.New("must not be reached"),
	}

	tokenErr := platform.NewError(ads.PlatformKakao, platform.KindAuth, "reconnect required", nil)
	store := newSyncFakeStore(credFor(3, ads.PlatformKakao))
	orch := newTestOrchestrator(store, &fakeTokens{err: tokenErr},
		map[ads.Platform]*fakeAdapter{ads.PlatformKakao: adapter})

	results, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)

	res := results[ads.PlatformKakao]
	require.Error(t, res.Err)
	assert.True(t, platform.IsKind(res.Err, platform.KindAuth))

	run := singleRun(t, store)
	assert.Equal(t, ads.RunFailed, run.Status)
	assert.Equal(t, 0, run.RecordsProcessed)
	assert.Equal(t, 1, run.ErrorCount)
}

func TestTriggerSync_PlatformFailuresAreIndependent(t *testing.T) {
	googleAdapter := &fakeAdapter{
		platform:     ads.PlatformGoogle,
		campaignsErr: platform.NewError(ads.PlatformGoogle, platform.KindServerError, "backend error", nil),
	}
	coupangAdapter := &fakeAdapter{
		platform: ads.PlatformCoupang,
		campaigns: []ads.Campaign{{
			TeamID: "team-1", Platform: ads.PlatformCoupang, PlatformCampaignID: "cp-1",
			Name: "Deal", Status: ads.StatusActive, Budget: 50000, IsActive: true,
		}},
	}

	store := newSyncFakeStore(credFor(4, ads.PlatformGoogle), credFor(5, ads.PlatformCoupang))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{
		ads.PlatformGoogle:  googleAdapter,
		ads.PlatformCoupang: coupangAdapter,
	})

	results, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Error(t, results[ads.PlatformGoogle].Err)
	assert.True(t, results[ads.PlatformCoupang].Success)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.campaigns, 1, "the healthy platform's data is committed")
}

func TestTriggerSync_TargetFiltersToOnePlatform(t *testing.T) {
	naverAdapter := &fakeAdapter{platform: ads.PlatformNaver}
	metaAdapter := &fakeAdapter{
		platform:     ads.PlatformMeta,
		campaignsErr: errors.New("must not be reached"),
	}

	store := newSyncFakeStore(credFor(6, ads.PlatformNaver), credFor(7, ads.PlatformMeta))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{
		ads.PlatformNaver: naverAdapter,
		ads.PlatformMeta:  metaAdapter,
	})

	target := ads.PlatformNaver
	results, err := orch.TriggerSync(context.Background(), "team-1", &target, ads.SyncIncremental)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[ads.PlatformNaver].Success)
}

func TestUpdateCampaignStatus_MirrorsAfterPlatformAccepts(t *testing.T) {
	var platformCalls []string

	adapter := &fakeAdapter{
		platform: ads.PlatformMeta,
		statusFn: func(id string, active bool) error {
			platformCalls = append(platformCalls, fmt.Sprintf("%s:%t", id, active))
			return nil
		},
	}

	store := newSyncFakeStore(credFor(8, ads.PlatformMeta))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformMeta: adapter})

	err := orch.UpdateCampaignStatus(context.Background(), "team-1", ads.PlatformMeta, "m-9", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"m-9:false"}, platformCalls)
	assert.Equal(t, []string{"m-9:false"}, store.statusMirrors)
}

func TestUpdateCampaignStatus_PlatformRejectionSkipsMirror(t *testing.T) {
	adapter := &fakeAdapter{
		platform: ads.PlatformMeta,
		statusFn: func(string, bool) error {
			return platform.NewError(ads.PlatformMeta, platform.KindNotFound, "unknown campaign", nil)
		},
	}

	store := newSyncFakeStore(credFor(9, ads.PlatformMeta))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{ads.PlatformMeta: adapter})

	err := orch.UpdateCampaignStatus(context.Background(), "team-1", ads.PlatformMeta, "missing", true)
	require.Error(t, err)
	assert.True(t, platform.IsKind(err, platform.KindNotFound))
	assert.Empty(t, store.statusMirrors)
}

func TestUpdateCampaignBudget_RejectsNonPositive(t *testing.T) {
	store := newSyncFakeStore(credFor(10, ads.PlatformGoogle))
	orch := newTestOrchestrator(store, &fakeTokens{}, map[ads.Platform]*fakeAdapter{
		ads.PlatformGoogle: {platform: ads.PlatformGoogle},
	})

	err := orch.UpdateCampaignBudget(context.Background(), "team-1", ads.PlatformGoogle, "c-1", 0)
	require.Error(t, err)
	assert.True(t, platform.IsKind(err, platform.KindBadRequest))
	assert.Empty(t, store.budgetMirrors)
}

func TestRegistryCache_AdaptersBuiltOncePerCredential(t *testing.T) {
	var factoryCalls atomic.Int32

	store := newSyncFakeStore(credFor(11, ads.PlatformNaver))
	orch := NewOrchestrator(Config{
		Store:  store,
		Tokens: &fakeTokens{},
		AdapterFactory: func(cred *ads.Credential) (platform.Adapter, error) {
			factoryCalls.Add(1)
			return &fakeAdapter{platform: cred.Platform}, nil
		},
		Logger: testLogger(),
	})

	for i := 0; i < 3; i++ {
		_, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), factoryCalls.Load())

	// Invalidation drops the team registry only; the per-credential
	// adapter cache survives.
	orch.InvalidateTeam("team-1")

	_, err := orch.TriggerSync(context.Background(), "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)
	assert.Equal(t, int32(1), factoryCalls.Load())
}
