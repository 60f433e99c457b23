package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// MutationStore extends Store with the local writes that mirror a
// successful platform mutation. The SQLite store implements both.
type MutationStore interface {
	Store
	SetCampaignStatus(ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, active bool) error
	SetCampaignBudget(ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, amount float64) error
}

// UpdateCampaignStatus pauses or activates a campaign on its platform,
// then mirrors the new status into the local row. The platform is the
// source of truth: the local write happens only after the platform
// accepted the change.
func (o *Orchestrator) UpdateCampaignStatus(
	ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, active bool,
) error {
	adapter, err := o.adapterFor(ctx, teamID, p)
	if err != nil {
		return err
	}

	if err := adapter.UpdateCampaignStatus(ctx, platformCampaignID, active); err != nil {
		return err
	}

	store, ok := o.store.(MutationStore)
	if ok {
		if err := store.SetCampaignStatus(ctx, teamID, p, platformCampaignID, active); err != nil {
			o.logger.Warn("platform status updated but local mirror failed",
				slog.String("campaign", platformCampaignID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.Info("campaign status updated",
		slog.String("team", teamID),
		slog.String("platform", p.String()),
		slog.String("campaign", platformCampaignID),
		slog.Bool("active", active),
	)

	return nil
}

// UpdateCampaignBudget sets a campaign's budget on its platform in the
// account currency's base units, then mirrors it locally.
func (o *Orchestrator) UpdateCampaignBudget(
	ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, amount float64,
) error {
	if amount <= 0 {
		return platform.NewError(p, platform.KindBadRequest,
			fmt.Sprintf("budget must be positive, got %v", amount), nil)
	}

	adapter, err := o.adapterFor(ctx, teamID, p)
	if err != nil {
		return err
	}

	if err := adapter.UpdateCampaignBudget(ctx, platformCampaignID, amount); err != nil {
		return err
	}

	store, ok := o.store.(MutationStore)
	if ok {
		if err := store.SetCampaignBudget(ctx, teamID, p, platformCampaignID, amount); err != nil {
			o.logger.Warn("platform budget updated but local mirror failed",
				slog.String("campaign", platformCampaignID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.logger.Info("campaign budget updated",
		slog.String("team", teamID),
		slog.String("platform", p.String()),
		slog.String("campaign", platformCampaignID),
		slog.Float64("amount", amount),
	)

	return nil
}

// adapterFor resolves the team's adapter for one platform, building the
// registry from active credentials when not cached.
func (o *Orchestrator) adapterFor(ctx context.Context, teamID string, p ads.Platform) (platform.Adapter, error) {
	creds, err := o.store.ListActiveCredentials(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("sync: listing credentials for team %s: %w", teamID, err)
	}

	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	registry, err := o.registries.registryFor(ctx, teamID, creds)
	if err != nil {
		return nil, err
	}

	return registry.Resolve(p)
}
