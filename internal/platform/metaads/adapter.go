// Package metaads implements the Meta Marketing API adapter. It
// authenticates with a non-expiring system user token, follows cursor
// pagination transparently, and normalizes budgets (reported in minor
// currency units) and spend (reported as decimal strings) to base
// currency units.
package metaads

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// DefaultBaseURL is the production Graph API endpoint.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

const (
	minorUnitsPerUnit = 100 // daily_budget arrives in cents
	pageLimit         = 100
	dateLayout        = "2006-01-02"
)

var statusMap = map[string]ads.CampaignStatus{
	"ACTIVE":   ads.StatusActive,
	"PAUSED":   ads.StatusPaused,
	"DELETED":  ads.StatusRemoved,
	"ARCHIVED": ads.StatusRemoved,
}

func mapStatus(native string) ads.CampaignStatus {
	if s, ok := statusMap[native]; ok {
		return s
	}

	return ads.StatusPaused
}

// Adapter talks to the Meta Marketing API for one ad account.
type Adapter struct {
	client    *platform.Client
	teamID    string
	accountID string // without the act_ prefix
	logger    *slog.Logger
}

// Config carries the construction inputs for the adapter.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      platform.TokenFunc // system user token, never refreshed
	TeamID     string
	AccountID  string
	Logger     *slog.Logger
}

// New creates a Meta adapter bound to one credential.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Adapter{
		client:    platform.NewClient(ads.PlatformMeta, cfg.BaseURL, cfg.HTTPClient, cfg.Token, cfg.Logger),
		teamID:    cfg.TeamID,
		accountID: cfg.AccountID,
		logger:    cfg.Logger,
	}
}

func (a *Adapter) Platform() ads.Platform {
	return ads.PlatformMeta
}

// --- wire types ---

type paging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type campaignsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		DailyBudget string `json:"daily_budget"`
	} `json:"data"`
	Paging paging `json:"paging"`
}

type insightsResponse struct {
	Data []struct {
		DateStart   string `json:"date_start"`
		Impressions string `json:"impressions"`
		Clicks      string `json:"clicks"`
		Spend       string `json:"spend"`
		Conversions string `json:"conversions"`
		Revenue     string `json:"purchase_value"`
	} `json:"data"`
	Paging paging `json:"paging"`
}

// ValidateCredentials fetches the ad account's own id.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	var out struct {
		ID string `json:"id"`
	}

	return a.client.GetJSON(ctx, "/act_"+a.accountID+"?fields=id", &out)
}

// FetchCampaigns returns all campaigns, following paging.cursors.after
// until the platform stops returning a next link.
func (a *Adapter) FetchCampaigns(ctx context.Context) ([]ads.Campaign, error) {
	var (
		campaigns []ads.Campaign
		after     string
	)

	for {
		path := "/act_" + a.accountID + "/campaigns?fields=id,name,status,daily_budget&limit=" +
			strconv.Itoa(pageLimit)
		if after != "" {
			path += "&after=" + url.QueryEscape(after)
		}

		var resp campaignsResponse
		if err := a.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, c := range resp.Data {
			status := mapStatus(c.Status)
			campaigns = append(campaigns, ads.Campaign{
				TeamID:             a.teamID,
				Platform:           ads.PlatformMeta,
				PlatformCampaignID: c.ID,
				Name:               c.Name,
				Status:             status,
				Budget:             minorToUnits(c.DailyBudget),
				IsActive:           status == ads.StatusActive,
			})
		}

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			break
		}

		after = resp.Paging.Cursors.After
	}

	a.logger.Debug("fetched campaigns",
		slog.String("platform", "meta"),
		slog.Int("count", len(campaigns)),
	)

	return campaigns, nil
}

// FetchCampaignMetrics returns daily insights for one campaign.
func (a *Adapter) FetchCampaignMetrics(
	ctx context.Context, platformCampaignID string, start, end time.Time,
) ([]ads.CampaignMetric, error) {
	timeRange := fmt.Sprintf(`{"since":"%s","until":"%s"}`,
		start.Format(dateLayout), end.Format(dateLayout))

	var (
		metrics []ads.CampaignMetric
		after   string
	)

	for {
		path := "/" + platformCampaignID +
			"/insights?fields=impressions,clicks,spend,conversions,purchase_value" +
			"&time_increment=1&time_range=" + url.QueryEscape(timeRange) +
			"&limit=" + strconv.Itoa(pageLimit)
		if after != "" {
			path += "&after=" + url.QueryEscape(after)
		}

		var resp insightsResponse
		if err := a.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, row := range resp.Data {
			date, dateErr := time.Parse(dateLayout, row.DateStart)
			if dateErr != nil {
				return nil, platform.NewError(ads.PlatformMeta, platform.KindUnknown,
					"unparseable date_start "+row.DateStart, dateErr)
			}

			metrics = append(metrics, ads.CampaignMetric{
				Date:        date,
				Impressions: parseCount(row.Impressions),
				Clicks:      parseCount(row.Clicks),
				Cost:        parseDecimal(row.Spend),
				Conversions: parseCount(row.Conversions),
				Revenue:     parseDecimal(row.Revenue),
			})
		}

		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" {
			return metrics, nil
		}

		after = resp.Paging.Cursors.After
	}
}

// UpdateCampaignStatus activates or pauses a campaign.
func (a *Adapter) UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error {
	status := "PAUSED"
	if active {
		status = "ACTIVE"
	}

	body := map[string]string{"status": status}

	return a.client.PostJSON(ctx, "/"+platformCampaignID, body, nil)
}

// UpdateCampaignBudget sets the campaign's daily budget. amount is in
// base currency units and converted to minor units on the wire.
func (a *Adapter) UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error {
	body := map[string]string{
		"daily_budget": strconv.FormatInt(int64(amount*minorUnitsPerUnit), 10),
	}

	return a.client.PostJSON(ctx, "/"+platformCampaignID, body, nil)
}

// minorToUnits converts a minor-unit string (cents) to base currency
// units. Empty or unparseable values become 0.
func minorToUnits(s string) float64 {
	if s == "" {
		return 0
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return float64(v) / minorUnitsPerUnit
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

func parseDecimal(s string) float64 {
	if s == "" {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}
