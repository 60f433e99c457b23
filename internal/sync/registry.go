package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// AdapterFactory constructs a platform adapter bound to one credential.
// The composition root supplies the real implementation, which knows
// per-platform endpoints and application credentials; tests inject
// fakes.
type AdapterFactory func(cred *ads.Credential) (platform.Adapter, error)

// registryCache builds and caches one platform.Registry per team.
// Adapters are constructed once per credential and reused across
// syncs. The cache is explicit state owned by the orchestrator, not a
// process-wide singleton.
type registryCache struct {
	factory AdapterFactory
	logger  *slog.Logger

	mu       stdsync.Mutex
	byTeam   map[string]*platform.Registry
	byCredID map[int64]platform.Adapter
}

func newRegistryCache(factory AdapterFactory, logger *slog.Logger) *registryCache {
	return &registryCache{
		factory:  factory,
		logger:   logger,
		byTeam:   make(map[string]*platform.Registry),
		byCredID: make(map[int64]platform.Adapter),
	}
}

// registryFor returns the team's adapter registry, building it from the
// given active credentials on first use. A credential set change (new
// connection, reconnect) invalidates the team's entry via invalidate.
func (rc *registryCache) registryFor(
	_ context.Context, teamID string, creds []*ads.Credential,
) (*platform.Registry, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if reg, ok := rc.byTeam[teamID]; ok {
		return reg, nil
	}

	adapters := make([]platform.Adapter, 0, len(creds))

	for _, cred := range creds {
		adapter, err := rc.adapterLocked(cred)
		if err != nil {
			return nil, err
		}

		adapters = append(adapters, adapter)
	}

	reg := platform.NewRegistry(adapters...)
	rc.byTeam[teamID] = reg

	return reg, nil
}

// adapterFor returns the adapter bound to one credential, building and
// caching it on first use.
func (rc *registryCache) adapterFor(cred *ads.Credential) (platform.Adapter, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.adapterLocked(cred)
}

func (rc *registryCache) adapterLocked(cred *ads.Credential) (platform.Adapter, error) {
	if adapter, ok := rc.byCredID[cred.ID]; ok {
		return adapter, nil
	}

	built, err := rc.factory(cred)
	if err != nil {
		return nil, fmt.Errorf("sync: building adapter for %s: %w", cred.Redacted(), err)
	}

	rc.byCredID[cred.ID] = built

	rc.logger.Debug("adapter constructed",
		slog.String("credential", cred.Redacted()),
	)

	return built, nil
}

// invalidate drops a team's cached registry so the next sync rebuilds
// it from current credentials.
func (rc *registryCache) invalidate(teamID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	delete(rc.byTeam, teamID)
}
