// Package kakaomoment implements the Kakao Moment adapter. Campaign
// listing is a plain paged API, but metrics are only available through
// batch report generation: create a report, poll until it completes,
// then download the rows. The triptych is exposed as one synchronous
// call with capped exponential polling.
package kakaomoment

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// DefaultBaseURL is the production Kakao Moment API endpoint.
const DefaultBaseURL = "https://apis.moment.kakao.com/openapi/v4"

// Report polling limits. Sixty attempts with a delay doubling from
// 500ms and capped at 10s gives the platform roughly nine minutes to
// finish a report before the call fails with a classified timeout.
const (
	pollMaxAttempts = 60
	pollBaseDelay   = 500 * time.Millisecond
	pollMaxDelay    = 10 * time.Second
)

const (
	pageSize   = 100
	dateLayout = "2006-01-02"
)

var statusMap = map[string]ads.CampaignStatus{
	"ON":      ads.StatusActive,
	"OFF":     ads.StatusPaused,
	"DELETED": ads.StatusRemoved,
}

func mapStatus(native string) ads.CampaignStatus {
	if s, ok := statusMap[native]; ok {
		return s
	}

	return ads.StatusPaused
}

// Adapter talks to the Kakao Moment API for one ad account.
type Adapter struct {
	client      *platform.Client
	teamID      string
	adAccountID string
	logger      *slog.Logger

	// sleepFunc waits between report polls. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Config carries the construction inputs for the adapter.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	Token       platform.TokenFunc
	TeamID      string
	AdAccountID string
	Logger      *slog.Logger
}

// New creates a Kakao Moment adapter bound to one credential.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := platform.NewClient(ads.PlatformKakao, cfg.BaseURL, cfg.HTTPClient, cfg.Token, cfg.Logger).
		WithSigner(func(req *http.Request) error {
			req.Header.Set("adAccountId", cfg.AdAccountID)
			return nil
		})

	return &Adapter{
		client:      client,
		teamID:      cfg.TeamID,
		adAccountID: cfg.AdAccountID,
		logger:      cfg.Logger,
		sleepFunc:   sleepCtx,
	}
}

func (a *Adapter) Platform() ads.Platform {
	return ads.PlatformKakao
}

// --- wire types ---

type campaignsResponse struct {
	Content []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Config      string `json:"config"` // ON / OFF / DELETED
		DailyBudget int64  `json:"dailyBudget"`
	} `json:"content"`
	Last bool `json:"last"`
}

type reportCreateResponse struct {
	ID int64 `json:"id"`
}

type reportStatusResponse struct {
	Status string `json:"status"` // WAITING / PROCESSING / COMPLETED / FAILED
}

type reportDownloadResponse struct {
	Rows []struct {
		Date        string  `json:"date"`
		Impressions int64   `json:"imp"`
		Clicks      int64   `json:"click"`
		Cost        float64 `json:"cost"` // KRW, already base units
		Conversions int64   `json:"conversion"`
		Revenue     float64 `json:"convValue"`
	} `json:"rows"`
}

// ValidateCredentials fetches the ad account.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	var out struct {
		ID int64 `json:"id"`
	}

	return a.client.GetJSON(ctx, "/adAccounts/"+a.adAccountID, &out)
}

// FetchCampaigns returns all campaigns, following page numbers until
// the platform reports the last page.
func (a *Adapter) FetchCampaigns(ctx context.Context) ([]ads.Campaign, error) {
	var (
		campaigns []ads.Campaign
		page      int
	)

	for {
		path := "/campaigns?page=" + strconv.Itoa(page) + "&size=" + strconv.Itoa(pageSize)

		var resp campaignsResponse
		if err := a.client.GetJSON(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, c := range resp.Content {
			status := mapStatus(c.Config)
			campaigns = append(campaigns, ads.Campaign{
				TeamID:             a.teamID,
				Platform:           ads.PlatformKakao,
				PlatformCampaignID: strconv.FormatInt(c.ID, 10),
				Name:               c.Name,
				Status:             status,
				Budget:             float64(c.DailyBudget),
				IsActive:           status == ads.StatusActive,
			})
		}

		if resp.Last {
			break
		}

		page++
	}

	a.logger.Debug("fetched campaigns",
		slog.String("platform", "kakao"),
		slog.Int("count", len(campaigns)),
	)

	return campaigns, nil
}

// FetchCampaignMetrics creates a daily report for the campaign, polls
// until the platform finishes generating it, and downloads the rows.
// Callers see a single synchronous call.
func (a *Adapter) FetchCampaignMetrics(
	ctx context.Context, platformCampaignID string, start, end time.Time,
) ([]ads.CampaignMetric, error) {
	create := map[string]any{
		"campaignId": platformCampaignID,
		"startDate":  start.Format(dateLayout),
		"endDate":    end.Format(dateLayout),
		"timeUnit":   "DAY",
		"metrics":    []string{"imp", "click", "cost", "conversion", "convValue"},
	}

	var created reportCreateResponse
	if err := a.client.PostJSON(ctx, "/reports", create, &created); err != nil {
		return nil, err
	}

	reportPath := "/reports/" + strconv.FormatInt(created.ID, 10)

	if err := a.awaitReport(ctx, reportPath); err != nil {
		return nil, err
	}

	var download reportDownloadResponse
	if err := a.client.GetJSON(ctx, reportPath+"/download", &download); err != nil {
		return nil, err
	}

	metrics := make([]ads.CampaignMetric, 0, len(download.Rows))

	for _, row := range download.Rows {
		date, dateErr := time.Parse(dateLayout, row.Date)
		if dateErr != nil {
			return nil, platform.NewError(ads.PlatformKakao, platform.KindUnknown,
				"unparseable report date "+row.Date, dateErr)
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

// awaitReport polls the report status with capped exponential delays
// until it completes, fails, or the attempt cap is reached.
func (a *Adapter) awaitReport(ctx context.Context, reportPath string) error {
	delay := pollBaseDelay

	for attempt := 0; attempt < pollMaxAttempts; attempt++ {
		var status reportStatusResponse
		if err := a.client.GetJSON(ctx, reportPath, &status); err != nil {
			return err
		}

		switch status.Status {
		case "COMPLETED":
			return nil
		case "FAILED":
			return platform.NewError(ads.PlatformKakao, platform.KindServerError,
				"report generation failed", nil)
		}

		if err := a.sleepFunc(ctx, delay); err != nil {
			return platform.NewError(ads.PlatformKakao, platform.KindNetwork,
				"report polling canceled", err)
		}

		delay *= 2
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
	}

	return platform.NewError(ads.PlatformKakao, platform.KindServerError,
		"report not ready after "+strconv.Itoa(pollMaxAttempts)+" polls", nil)
}

// UpdateCampaignStatus flips the campaign's on/off config.
func (a *Adapter) UpdateCampaignStatus(ctx context.Context, platformCampaignID string, active bool) error {
	config := "OFF"
	if active {
		config = "ON"
	}

	body := map[string]string{"config": config}

	return a.client.PutJSON(ctx, "/campaigns/"+platformCampaignID+"/onOff", body, nil)
}

// UpdateCampaignBudget sets the campaign's daily budget. KRW has no
// minor units, so the amount passes through unscaled.
func (a *Adapter) UpdateCampaignBudget(ctx context.Context, platformCampaignID string, amount float64) error {
	body := map[string]int64{"dailyBudget": int64(amount)}

	return a.client.PutJSON(ctx, "/campaigns/"+platformCampaignID, body, nil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
