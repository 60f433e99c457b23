// Package coupangads implements the Coupang Ads adapter. Credentials
// are manually entered API keys with no expiry and no refresh; the key
// rides in an Authorization header on every call.
package coupangads

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// DefaultBaseURL is the production Coupang Ads API endpoint.
const DefaultBaseURL = "https://advertising-api.coupang.com/v1"

const (
	pageSize   = 100
	dateLayout = "2006-01-02"
)

var statusMap = map[string]ads.CampaignStatus{
	"ACTIVE":   ads.StatusActive,
	"PAUSED":   ads.StatusPaused,
	"DELETED":  ads.StatusRemoved,
	"FINISHED": ads.StatusRemoved,
}

func mapStatus(native string) ads.CampaignStatus {
	if s, ok := statusMap[native]; ok {
		return s
	}

	return ads.StatusPaused
}

// Adapter talks to the Coupang Ads API for one vendor account.
type Adapter struct {
	client   *platform.Client
	teamID   string
	vendorID string
	logger   *slog.Logger
}

// Config carries the construction inputs for the adapter.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
	TeamID     string
	VendorID   string
	Logger     *slog.Logger
}

// New creates a Coupang adapter bound to one credential. The static
// key is supplied through a TokenFunc closure so the shared client's
// bearer plumbing is reused unchanged.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	token := func(_ context.Context) (string, error) {
		return cfg.APIKey, nil
	}

	return &Adapter{
		client:   platform.NewClient(ads.PlatformCoupang, cfg.BaseURL, cfg.HTTPClient, token, cfg.Logger),
		teamID:   cfg.TeamID,
		vendorID: cfg.VendorID,
		logger:   cfg.Logger,
	}
}

func (a *Adapter) Platform() ads.Platform {
	return ads.PlatformCoupang
}

// --- wire types ---

type campaignsResponse struct {
	Data []struct {
		CampaignID string  `json:"campaignId"`
		Name       string  `json:"name"`
		Status     string  `json:"status"`
		Budget     float64 `json:"budget"` // KRW, already base units
	} `json:"data"`
	NextToken string `json:"nextToken"`
}

type metricsResponse struct {
	Data []struct {
		Date        string  `json:"date"`
		Impressions int64   `json:"impressions"`
		Clicks      int64   `json:"clicks"`
		Spend       float64 `json:"spend"`
		Orders      int64   `json:"orders"`
		Sales       float64 `json:"sales"`
	} `json:"data"`
}

// ValidateCredentials fetches the vendor profile.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	var out struct {
		VendorID string `json:"vendorId"`
	}

	return a.client.GetJSON(ctx, "/vendors/"+a.vendorID, &out)
}

// FetchCampaigns returns all campaigns, following next tokens until
// exhausted.
func (a *Adapter) FetchCampaigns(ctx context.Context) ([]ads.Campaign, error) {
	var (
		campaigns []ads.Campaign
		nextToken string
	)

	for {
		path := "/vendors/" + a.vendorID + "/campaigns?size=" + strconv.Itoa(pageSize)
		if nextToken != "" {
			path += "&nextToken=" + url.QueryEscape(nextToken)
		}

		var resp campaignsResponse
		if err := a.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, c := range resp.Data {
			status := mapStatus(c.Status)
			campaigns = append(campaigns, ads.Campaign{
				TeamID:             a.teamID,
				Platform:           ads.PlatformCoupang,
				PlatformCampaignID: c.CampaignID,
				Name:               c.Name,
				Status:             status,
				Budget:             c.Budget,
				IsActive:           status == ads.StatusActive,
			})
		}

		if resp.NextToken == "" {
			break
		}

		nextToken = resp.NextToken
	}

	a.logger.Debug("fetched campaigns",
		slog.String("platform", "coupang"),
		slog.Int("count", len(campaigns)),
	)

	return campaigns, nil
}

// FetchCampaignMetrics returns daily performance rows for one campaign.
func (a *Adapter) FetchCampaignMetrics(
	ctx context.Context, platformCampaignID string, start, end time.Time,
) ([]ads.CampaignMetric, error) {
	path := "/campaigns/" + url.PathEscape(platformCampaignID) + "/metrics?startDate=" +
		start.Format(dateLayout) + "&endDate=" + end.Format(dateLayout)

	var resp metricsResponse
	if err := a.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	metrics := make([]ads.CampaignMetric, 0, len(resp.Data))

	for _, row := range resp.Data {
		date, dateErr := time.Parse(dateLayout, row.Date)
		if dateErr != nil {
			return nil, platform.NewError(ads.PlatformCoupang, platform.KindUnknown,
				"unparseable metric date "+row.Date, dateErr)
		}

		metrics = append(metrics, ads.CampaignMetric{
			Date:        date,
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Cost:        row.Spend,
			Conversions: row.Orders,
			Revenue:     row.Sales,
		})
	}

	return metrics, nil
}

// UpdateCampaignStatus activates or pauses a campaign.
func (a *Adapter) UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error {
	status := "PAUSED"
	if active {
		status = "ACTIVE"
	}

	body := map[string]string{"status": status}

	return a.client.PutJSON(ctx, "/campaigns/"+url.PathEscape(platformCampaignID)+"/status", body, nil)
}

// UpdateCampaignBudget sets the campaign's budget. KRW has no minor
// units, so the amount passes through unscaled.
func (a *Adapter) UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error {
	body := map[string]float64{"budget": amount}

	return a.client.PutJSON(ctx, "/campaigns/"+url.PathEscape(platformCampaignID)+"/budget", body, nil)
}
