// Package googleads implements the Google Ads adapter. Authentication
// is MCC-delegated: the manager account's refresh token obtains access
// tokens while the login-customer-id header selects the sub-account.
// All money values arrive as micros and are normalized to base currency
// units before leaving this package.
package googleads

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// DefaultBaseURL is the production Google Ads API endpoint.
const DefaultBaseURL = "https://googleads.googleapis.com/v17"

const (
	microsPerUnit = 1_000_000
	pageSize      = 500
	dateLayout    = "2006-01-02"
)

// statusMap translates Google Ads campaign statuses to the canonical
// vocabulary. Unknown statuses map to paused, never dropped.
var statusMap = map[string]ads.CampaignStatus{
	"ENABLED": ads.StatusActive,
	"PAUSED":  ads.StatusPaused,
	"REMOVED": ads.StatusRemoved,
}

func mapStatus(native string) ads.CampaignStatus {
	if s, ok := statusMap[native]; ok {
		return s
	}

	return ads.StatusPaused
}

// Adapter talks to the Google Ads API for one customer account.
type Adapter struct {
	client     *platform.Client
	teamID     string
	customerID string
	logger     *slog.Logger
}

// Config carries the construction inputs for the adapter.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	Token           platform.TokenFunc
	TeamID          string
	CustomerID      string // sub-account being synced
	LoginCustomerID string // MCC manager account
	DeveloperToken  string
	Logger          *slog.Logger
}

// New creates a Google Ads adapter bound to one credential.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := platform.NewClient(ads.PlatformGoogle, cfg.BaseURL, cfg.HTTPClient, cfg.Token, cfg.Logger).
		WithSigner(func(req *http.Request) error {
			req.Header.Set("developer-token", cfg.DeveloperToken)

			if cfg.LoginCustomerID != "" {
				req.Header.Set("login-customer-id", cfg.LoginCustomerID)
			}

			return nil
		})

	return &Adapter{
		client:     client,
		teamID:     cfg.TeamID,
		customerID: cfg.CustomerID,
		logger:     cfg.Logger,
	}
}

func (a *Adapter) Platform() ads.Platform {
	return ads.PlatformGoogle
}

// --- wire types ---

type searchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []searchRow `json:"results"`
	NextPageToken string      `json:"nextPageToken"`
}

type searchRow struct {
	Campaign struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		Status         string `json:"status"`
		ResourceName   string `json:"resourceName"`
		CampaignBudget string `json:"campaignBudget"`
	} `json:"campaign"`
	CampaignBudget struct {
		AmountMicros string `json:"amountMicros"`
		ResourceName string `json:"resourceName"`
	} `json:"campaignBudget"`
	Segments struct {
		Date string `json:"date"`
	} `json:"segments"`
	Metrics struct {
		Impressions      string  `json:"impressions"`
		Clicks           string  `json:"clicks"`
		CostMicros       string  `json:"costMicros"`
		Conversions      float64 `json:"conversions"`
		ConversionsValue float64 `json:"conversionsValue"`
	} `json:"metrics"`
}

// search runs a GAQL query, following page tokens until exhausted.
func (a *Adapter) search(ctx context.Context, query string) ([]searchRow, error) {
	var (
		rows      []searchRow
		pageToken string
	)

	for {
		req := searchRequest{Query: query, PageSize: pageSize, PageToken: pageToken}

		var resp searchResponse
		if err := a.client.PostJSON(ctx, "/customers/"+a.customerID+"/googleAds:search", req, &resp); err != nil {
			return nil, err
		}

		rows = append(rows, resp.Results...)

		if resp.NextPageToken == "" {
			return rows, nil
		}

		pageToken = resp.NextPageToken
	}
}

// ValidateCredentials runs the cheapest possible authenticated query.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	_, err := a.search(ctx, "SELECT customer.id FROM customer LIMIT 1")
	return err
}

// FetchCampaigns returns all campaigns with budgets normalized from
// micros to base currency units.
func (a *Adapter) FetchCampaigns(ctx context.Context) ([]ads.Campaign, error) {
	const query = `SELECT campaign.id, campaign.name, campaign.status,
		campaign_budget.amount_micros FROM campaign`

	rows, err := a.search(ctx, query)
	if err != nil {
		return nil, err
	}

	campaigns := make([]ads.Campaign, 0, len(rows))

	for _, row := range rows {
		status := mapStatus(row.Campaign.Status)
		campaigns = append(campaigns, ads.Campaign{
			TeamID:             a.teamID,
			Platform:           ads.PlatformGoogle,
			PlatformCampaignID: row.Campaign.ID,
			Name:               row.Campaign.Name,
			Status:             status,
			Budget:             microsToUnits(row.CampaignBudget.AmountMicros),
			IsActive:           status == ads.StatusActive,
		})
	}

	a.logger.Debug("fetched campaigns",
		slog.String("platform", "google"),
		slog.Int("count", len(campaigns)),
	)

	return campaigns, nil
}

// FetchCampaignMetrics returns daily metrics for one campaign over
// [start, end]. Costs are normalized from micros.
func (a *Adapter) FetchCampaignMetrics(
	ctx context.Context, platformCampaignID string, start, end time.Time,
) ([]ads.CampaignMetric, error) {
	if !numericID(platformCampaignID) {
		return nil, platform.NewError(ads.PlatformGoogle, platform.KindBadRequest,
			"campaign id must be numeric, got "+platformCampaignID, nil)
	}

	query := fmt.Sprintf(`SELECT segments.date, metrics.impressions, metrics.clicks,
		metrics.cost_micros, metrics.conversions, metrics.conversions_value
		FROM campaign WHERE campaign.id = %s
		AND segments.date BETWEEN '%s' AND '%s'`,
		platformCampaignID, start.Format(dateLayout), end.Format(dateLayout))

	rows, err := a.search(ctx, query)
	if err != nil {
		return nil, err
	}

	metrics := make([]ads.CampaignMetric, 0, len(rows))

	for _, row := range rows {
		date, dateErr := time.Parse(dateLayout, row.Segments.Date)
		if dateErr != nil {
			return nil, platform.NewError(ads.PlatformGoogle, platform.KindUnknown,
				"unparseable segment date "+row.Segments.Date, dateErr)
		}

		metrics = append(metrics, ads.CampaignMetric{
			Date:        date,
			Impressions: parseCount(row.Metrics.Impressions),
			Clicks:      parseCount(row.Metrics.Clicks),
			Cost:        microsToUnits(row.Metrics.CostMicros),
			Conversions: int64(row.Metrics.Conversions),
			Revenue:     row.Metrics.ConversionsValue,
		})
	}

	return metrics, nil
}

type mutateOperation struct {
	UpdateMask string         `json:"updateMask"`
	Update     map[string]any `json:"update"`
}

type mutateRequest struct {
	Operations []mutateOperation `json:"operations"`
}

// UpdateCampaignStatus enables or pauses a campaign.
func (a *Adapter) UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error {
	status := "PAUSED"
	if active {
		status = "ENABLED"
	}

	req := mutateRequest{Operations: []mutateOperation{{
		UpdateMask: "status",
		Update: map[string]any{
			"resourceName": campaignResource(a.customerID, platformCampaignID),
			"status":       status,
		},
	}}}

	return a.client.PostJSON(ctx, "/customers/"+a.customerID+"/campaigns:mutate", req, nil)
}

// UpdateCampaignBudget sets the campaign's budget. amount is in base
// currency units and converted to micros on the wire. The budget
// resource name is looked up first because mutations target the budget
// resource, not the campaign.
func (a *Adapter) UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error {
	if !numericID(platformCampaignID) {
		return platform.NewError(ads.PlatformGoogle, platform.KindBadRequest,
			"campaign id must be numeric, got "+platformCampaignID, nil)
	}

	query := fmt.Sprintf(
		"SELECT campaign.campaign_budget FROM campaign WHERE campaign.id = %s", platformCampaignID)

	rows, err := a.search(ctx, query)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return platform.NewError(ads.PlatformGoogle, platform.KindNotFound,
			"campaign "+platformCampaignID+" has no budget resource", nil)
	}

	req := mutateRequest{Operations: []mutateOperation{{
		UpdateMask: "amount_micros",
		Update: map[string]any{
			"resourceName": rows[0].Campaign.CampaignBudget,
			"amountMicros": fmt.Sprintf("%d", int64(amount*microsPerUnit)),
		},
	}}}

	return a.client.PostJSON(ctx, "/customers/"+a.customerID+"/campaignBudgets:mutate", req, nil)
}

func campaignResource(customerID, campaignID string) string {
	return "customers/" + customerID + "/campaigns/" + campaignID
}

// numericID reports whether id is a plain decimal campaign id. Ids are
// embedded into GAQL text, so anything else is rejected before a query
// is built.
func numericID(id string) bool {
	if id == "" {
		return false
	}

	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// microsToUnits converts a micros string to base currency units.
// Unparseable values become 0 rather than failing the whole row set.
func microsToUnits(micros string) float64 {
	if micros == "" {
		return 0
	}

	var v int64
	if _, err := fmt.Sscan(micros, &v); err != nil {
		return 0
	}

	return float64(v) / microsPerUnit
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}

	var v int64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0
	}

	return v
}
