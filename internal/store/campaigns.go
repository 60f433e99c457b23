package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adstack/adsync/internal/ads"
)

// metricDateLayout is how metric dates are keyed in SQLite. Day
// granularity only; times are discarded.
const metricDateLayout = "2006-01-02"

const (
	sqlUpsertCampaign = `INSERT INTO campaigns
		(team_id, platform, platform_campaign_id, name, status, budget, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (team_id, platform, platform_campaign_id) DO UPDATE SET
		 name = excluded.name,
		 status = excluded.status,
		 budget = excluded.budget,
		 is_active = excluded.is_active,
		 updated_at = CURRENT_TIMESTAMP`

	sqlGetCampaignID = `SELECT id FROM campaigns
		WHERE team_id = ? AND platform = ? AND platform_campaign_id = ?`

	sqlListCampaigns = `SELECT id, team_id, platform, platform_campaign_id,
		 name, status, budget, is_active
		FROM campaigns WHERE team_id = ? AND platform = ?
		ORDER BY platform_campaign_id`

	sqlUpsertMetric = `INSERT INTO campaign_metrics
		(campaign_id, date, impressions, clicks, cost, conversions, revenue)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, date) DO UPDATE SET
		 impressions = excluded.impressions,
		 clicks = excluded.clicks,
		 cost = excluded.cost,
		 conversions = excluded.conversions,
		 revenue = excluded.revenue`

	sqlListMetrics = `SELECT campaign_id, date, impressions, clicks, cost, conversions, revenue
		FROM campaign_metrics
		WHERE campaign_id = ? AND date >= ? AND date <= ?
		ORDER BY date`

	sqlSetCampaignStatus = `UPDATE campaigns SET
		 status = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE team_id = ? AND platform = ? AND platform_campaign_id = ?`

	sqlSetCampaignBudget = `UPDATE campaigns SET
		 budget = ?, updated_at = CURRENT_TIMESTAMP
		WHERE team_id = ? AND platform = ? AND platform_campaign_id = ?`
)

// UpsertCampaign inserts or updates a campaign on its natural key and
// returns the local row id. Re-applying identical data is a no-op
// update, never a duplicate row.
func (s *Store) UpsertCampaign(ctx context.Context, c *ads.Campaign) (int64, error) {
	_, err := s.campaignStmts.upsert.ExecContext(ctx,
		c.TeamID, c.Platform.String(), c.PlatformCampaignID,
		c.Name, string(c.Status), c.Budget, c.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("store: upsert campaign %s/%s: %w", c.Platform, c.PlatformCampaignID, err)
	}

	// The conflict path does not report LastInsertId reliably, so the
	// id is always read back by natural key.
	var id int64
	if err := s.campaignStmts.getID.QueryRowContext(ctx,
		c.TeamID, c.Platform.String(), c.PlatformCampaignID).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: reading campaign id: %w", err)
	}

	return id, nil
}

// ListCampaigns returns a team's canonical campaigns for one platform.
func (s *Store) ListCampaigns(ctx context.Context, teamID string, p ads.Platform) ([]*ads.Campaign, error) {
	rows, err := s.campaignStmts.listByTeamPlatform.QueryContext(ctx, teamID, p.String())
	if err != nil {
		return nil, fmt.Errorf("store: list campaigns: %w", err)
	}

	defer rows.Close()

	var campaigns []*ads.Campaign

	for rows.Next() {
		var (
			c           ads.Campaign
			platformStr string
			statusStr   string
		)

		if err := rows.Scan(&c.ID, &c.TeamID, &platformStr, &c.PlatformCampaignID,
			&c.Name, &statusStr, &c.Budget, &c.IsActive); err != nil {
			return nil, fmt.Errorf("store: scanning campaign: %w", err)
		}

		c.Platform = ads.Platform(platformStr)
		c.Status = ads.CampaignStatus(statusStr)
		campaigns = append(campaigns, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// UpsertMetric inserts or updates one day of metrics for a campaign.
func (s *Store) UpsertMetric(ctx context.Context, m *ads.CampaignMetric) error {
	_, err := s.campaignStmts.upsertMetric.ExecContext(ctx,
		m.CampaignID, m.Date.Format(metricDateLayout),
		m.Impressions, m.Clicks, m.Cost, m.Conversions, m.Revenue,
	)
	if err != nil {
		return fmt.Errorf("store: upsert metric %d/%s: %w",
			m.CampaignID, m.Date.Format(metricDateLayout), err)
	}

	return nil
}

// ListMetrics returns a campaign's raw daily metrics over [start, end].
// Derived fields (CTR, CPC, CPM, ROAS) are methods on the returned
// values, computed and never read from disk.
func (s *Store) ListMetrics(ctx context.Context, campaignID int64, start, end time.Time) ([]*ads.CampaignMetric, error) {
	rows, err := s.campaignStmts.listMetrics.QueryContext(ctx,
		campaignID, start.Format(metricDateLayout), end.Format(metricDateLayout))
	if err != nil {
		return nil, fmt.Errorf("store: list metrics: %w", err)
	}

	defer rows.Close()

	var metrics []*ads.CampaignMetric

	for rows.Next() {
		var (
			m       ads.CampaignMetric
			dateStr string
		)

		if err := rows.Scan(&m.CampaignID, &dateStr,
			&m.Impressions, &m.Clicks, &m.Cost, &m.Conversions, &m.Revenue); err != nil {
			return nil, fmt.Errorf("store: scanning metric: %w", err)
		}

		date, parseErr := time.Parse(metricDateLayout, dateStr)
		if parseErr != nil {
			return nil, fmt.Errorf("store: corrupt metric date %q: %w", dateStr, parseErr)
		}

		m.Date = date
		metrics = append(metrics, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating metrics: %w", err)
	}

	return metrics, nil
}

// SetCampaignStatus mirrors a platform-accepted status change into the
// local campaign row.
func (s *Store) SetCampaignStatus(
	ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, active bool,
) error {
	status := ads.StatusPaused
	if active {
		status = ads.StatusActive
	}

	res, err := s.db.ExecContext(ctx, sqlSetCampaignStatus,
		string(status), active, teamID, p.String(), platformCampaignID)
	if err != nil {
		return fmt.Errorf("store: set campaign status: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: campaign %s/%s: %w", p, platformCampaignID, ErrNotFound)
	}

	return nil
}

// SetCampaignBudget mirrors a platform-accepted budget change into the
// local campaign row. Amount is in the account currency's base units.
func (s *Store) SetCampaignBudget(
	ctx context.Context, teamID string, p ads.Platform, platformCampaignID string, amount float64,
) error {
	res, err := s.db.ExecContext(ctx, sqlSetCampaignBudget,
		amount, teamID, p.String(), platformCampaignID)
	if err != nil {
		return fmt.Errorf("store: set campaign budget: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: campaign %s/%s: %w", p, platformCampaignID, ErrNotFound)
	}

	return nil
}

// CountMetrics returns how many metric rows exist for a campaign.
// Used by tests and the CLI summary.
func (s *Store) CountMetrics(ctx context.Context, campaignID int64) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM campaign_metrics WHERE campaign_id = ?", campaignID).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: counting metrics: %w", err)
	}

	return n, nil
}
