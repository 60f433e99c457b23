// Package naversearchad implements the Naver SearchAd adapter. The
// platform uses API-key authentication: every request carries a
// timestamped HMAC-SHA256 signature computed from the method and path
// with the account's secret. Keys never expire, so the token lifecycle
// manager is bypassed entirely.
package naversearchad

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// DefaultBaseURL is the production Naver SearchAd API endpoint.
const DefaultBaseURL = "https://api.searchad.naver.com"

const dateLayout = "2006-01-02"

var statusMap = map[string]ads.CampaignStatus{
	"ELIGIBLE": ads.StatusActive,
	"PAUSED":   ads.StatusPaused,
	"DELETED":  ads.StatusRemoved,
}

func mapStatus(native string) ads.CampaignStatus {
	if s, ok := statusMap[native]; ok {
		return s
	}

	return ads.StatusPaused
}

// Adapter talks to the Naver SearchAd API for one customer account.
type Adapter struct {
	client     *platform.Client
	teamID     string
	customerID string
	logger     *slog.Logger
}

// Config carries the construction inputs for the adapter.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
	APISecret  string
	TeamID     string
	CustomerID string
	Logger     *slog.Logger

	// nowFunc supplies signature timestamps. Tests override it.
	nowFunc func() time.Time
}

// New creates a Naver SearchAd adapter bound to one credential. There
// is no bearer token; authentication is entirely in the signer.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.nowFunc == nil {
		cfg.nowFunc = time.Now
	}

	client := platform.NewClient(ads.PlatformNaver, cfg.BaseURL, cfg.HTTPClient, nil, cfg.Logger).
		WithSigner(func(req *http.Request) error {
			ts := strconv.FormatInt(cfg.nowFunc().UnixMilli(), 10)
			req.Header.Set("X-Timestamp", ts)
			req.Header.Set("X-API-KEY", cfg.APIKey)
			req.Header.Set("X-Customer", cfg.CustomerID)
			req.Header.Set("X-Signature", sign(cfg.APISecret, ts, req.Method, req.URL.Path))

			return nil
		})

	return &Adapter{
		client:     client,
		teamID:     cfg.TeamID,
		customerID: cfg.CustomerID,
		logger:     cfg.Logger,
	}
}

// sign computes the request signature: base64(HMAC-SHA256(secret,
// "{timestamp}.{method}.{path}")).
func sign(secret, timestamp, method, path string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + method + "." + path))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Platform() ads.Platform {
	return ads.PlatformNaver
}

// --- wire types ---

type wireCampaign struct {
	CampaignID  string `json:"nccCampaignId"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	DailyBudget int64  `json:"dailyBudget"` // KRW, already base units
}

type wireStat struct {
	Date        string  `json:"dateStart"`
	Impressions int64   `json:"impCnt"`
	Clicks      int64   `json:"clkCnt"`
	Cost        float64 `json:"salesAmt"`
	Conversions int64   `json:"ccnt"`
	Revenue     float64 `json:"convAmt"`
}

// ValidateCredentials lists campaigns with a minimal response; a bad
// key or signature fails with an auth-classified error.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	var out []wireCampaign
	return a.client.GetJSON(ctx, "/ncc/campaigns?recordSize=1", &out)
}

// FetchCampaigns returns all campaigns. The API returns the full list
// in one response; there is no cursor to follow.
func (a *Adapter) FetchCampaigns(ctx context.Context) ([]ads.Campaign, error) {
	var wire []wireCampaign
	if err := a.client.GetJSON(ctx, "/ncc/campaigns", &wire); err != nil {
		return nil, err
	}

	campaigns := make([]ads.Campaign, 0, len(wire))

	for _, c := range wire {
		status := mapStatus(c.Status)
		campaigns = append(campaigns, ads.Campaign{
			TeamID:             a.teamID,
			Platform:           ads.PlatformNaver,
			PlatformCampaignID: c.CampaignID,
			Name:               c.Name,
			Status:             status,
			Budget:             float64(c.DailyBudget),
			IsActive:           status == ads.StatusActive,
		})
	}

	a.logger.Debug("fetched campaigns",
		slog.String("platform", "naver"),
		slog.Int("count", len(campaigns)),
	)

	return campaigns, nil
}

// FetchCampaignMetrics returns daily stats for one campaign.
func (a *Adapter) FetchCampaignMetrics(
	ctx context.Context, platformCampaignID string, start, end time.Time,
) ([]ads.CampaignMetric, error) {
	timeRange := `{"since":"` + start.Format(dateLayout) + `","until":"` + end.Format(dateLayout) + `"}`

	path := "/stats?id=" + url.QueryEscape(platformCampaignID) +
		"&fields=" + url.QueryEscape(`["impCnt","clkCnt","salesAmt","ccnt","convAmt"]`) +
		"&timeRange=" + url.QueryEscape(timeRange) +
		"&timeIncrement=1"

	var resp struct {
		Data []wireStat `json:"data"`
	}
	if err := a.client.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	metrics := make([]ads.CampaignMetric, 0, len(resp.Data))

	for _, row := range resp.Data {
		date, dateErr := time.Parse(dateLayout, row.Date)
		if dateErr != nil {
			return nil, platform.NewError(ads.PlatformNaver, platform.KindUnknown,
				"unparseable stat date "+row.Date, dateErr)
		}

		metrics = append(metrics, ads.CampaignMetric{
			Date:        date,
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Cost:        row.Cost,
			Conversions: row.Conversions,
			Revenue:     row.Revenue,
		})
	}

	return metrics, nil
}

// UpdateCampaignStatus enables or pauses a campaign via userLock.
// Naver models pausing as locking the campaign.
func (a *Adapter) UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error {
	body := map[string]any{"userLock": !active}

	return a.client.PutJSON(ctx, "/ncc/campaigns/"+url.PathEscape(platformCampaignID), body, nil)
}

// UpdateCampaignBudget sets the campaign's daily budget. KRW has no
// minor units, so the amount passes through unscaled.
func (a *Adapter) UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error {
	body := map[string]any{"dailyBudget": int64(amount), "useDailyBudget": true}

	return a.client.PutJSON(ctx, "/ncc/campaigns/"+url.PathEscape(platformCampaignID), body, nil)
}
