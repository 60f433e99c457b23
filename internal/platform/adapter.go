package platform

import (
	"context"
	"time"

	"github.com/adstack/adsync/internal/ads"
)

// Adapter is the uniform contract every platform implementation
// satisfies. Adapters own all platform-specific concerns: native status
// vocabulary mapping, money normalization to base currency units,
// transparent pagination, and report-generation polling. Every error an
// adapter returns is a classified *Error.
type Adapter interface {
	// Platform identifies which platform the adapter talks to.
	Platform() ads.Platform

	// ValidateCredentials performs a cheap authenticated call to verify
	// the connection works.
	ValidateCredentials(ctx context.Context) error

	// FetchCampaigns returns all campaigns for the connected account,
	// fully materialized; the adapter follows pagination internally.
	FetchCampaigns(ctx context.Context) ([]ads.Campaign, error)

	// FetchCampaignMetrics returns daily metrics for one campaign over
	// [start, end] inclusive. Costs are in base currency units.
	FetchCampaignMetrics(ctx context.Context, platformCampaignID string, start, end time.Time) ([]ads.CampaignMetric, error)

	// UpdateCampaignStatus activates or pauses a campaign.
	UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error

	// UpdateCampaignBudget sets a campaign's budget in base currency units.
	UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error
}

// Registry resolves a platform to its adapter. It is built in the
// composition root and passed by reference, never held as a
// package-level singleton.
type Registry struct {
	adapters map[ads.Platform]Adapter
}

// NewRegistry builds a registry from the given adapters. Adapters are
// constructed once and reused for every sync.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[ads.Platform]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}

	return &Registry{adapters: m}
}

// Resolve returns the adapter for p. Unsupported platforms fail with a
// non-retryable configuration error.
func (r *Registry) Resolve(p ads.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, NewError(p, KindConfiguration, "no adapter registered for platform", nil)
	}

	return a, nil
}

// Platforms returns the registered platforms in unspecified order.
func (r *Registry) Platforms() []ads.Platform {
	out := make([]ads.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}

	return out
}
