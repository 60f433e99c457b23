package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
	"github.com/adstack/adsync/internal/platform/coupangads"
	"github.com/adstack/adsync/internal/platform/googleads"
	"github.com/adstack/adsync/internal/store"
	"github.com/adstack/adsync/internal/token"
)

// TestTriggerSync_EndToEndAcrossPlatforms drives a real store and token
// manager through a full trigger: a Google OAuth credential about to
// expire and a Coupang key credential, both backed by fake platform
// servers. The Google token must be exchanged exactly once and each
// platform must finish with a completed run.
func TestTriggerSync_EndToEndAcrossPlatforms(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var refreshes atomic.Int32

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "google-refresh", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"google-fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	googleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer google-fresh", r.Header.Get("Authorization"),
			"platform calls carry the refreshed token")

		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if strings.Contains(req.Query, "segments.date") {
			_, _ = w.Write([]byte(`{"results":[
				{"segments":{"date":"2026-08-20"},
				 "metrics":{"impressions":"100","clicks":"10","costMicros":"5000000",
					"conversions":1.0,"conversionsValue":30.5}}
			]}`))

			return
		}

		_, _ = w.Write([]byte(`{"results":[
			{"campaign":{"id":"100","name":"Search","status":"ENABLED"},
			 "campaignBudget":{"amountMicros":"45000000"}}
		]}`))
	}))
	t.Cleanup(googleSrv.Close)

	coupangSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer vendor-key", r.Header.Get("Authorization"))

		if strings.Contains(r.URL.Path, "/metrics") {
			_, _ = w.Write([]byte(`{"data":[
				{"date":"2026-08-20","impressions":2000,"clicks":80,"spend":30000,"orders":4,"sales":120000}
			]}`))

			return
		}

		_, _ = w.Write([]byte(`{"data":[
			{"campaignId":"cp-1","name":"Rocket","status":"ACTIVE","budget":200000}
		]}`))
	}))
	t.Cleanup(coupangSrv.Close)

	require.NoError(t, st.UpsertCredential(ctx, &ads.Credential{
		TeamID: "team-1", Platform: ads.PlatformGoogle, AccountID: "1112223333",
		Kind: ads.AuthOAuth, IsActive: true,
		OAuth: &ads.OAuthToken{
			AccessToken:  "google-stale",
			RefreshToken: "google-refresh",
			ExpiresAt:    time.Now().Add(3 * time.Minute),
		},
	}))
	require.NoError(t, st.UpsertCredential(ctx, &ads.Credential{
		TeamID: "team-1", Platform: ads.PlatformCoupang, AccountID: "A0012345",
		Kind: ads.AuthManual, IsActive: true,
		APIKey: &ads.APIKeySecret{Key: "vendor-key"},
	}))

	tokens := token.NewManager(st, map[ads.Platform]token.RefreshStrategy{
		ads.PlatformGoogle: token.NewOAuthStrategy(ads.PlatformGoogle, token.OAuthEndpoint{
			TokenURL: tokenSrv.URL, ClientID: "client-id", ClientSecret: "client-secret",
		}, tokenSrv.Client(), logger),
	}, logger)

	orch := NewOrchestrator(Config{
		Store:  st,
		Tokens: tokens,
		AdapterFactory: func(cred *ads.Credential) (platform.Adapter, error) {
			switch cred.Platform {
			case ads.PlatformGoogle:
				return googleads.New(googleads.Config{
					BaseURL:        googleSrv.URL,
					HTTPClient:     googleSrv.Client(),
					Token:          tokens.TokenFuncFor(cred.ID),
					TeamID:         cred.TeamID,
					CustomerID:     cred.AccountID,
					DeveloperToken: "dev-token",
					Logger:         logger,
				}), nil
			case ads.PlatformCoupang:
				return coupangads.New(coupangads.Config{
					BaseURL:    coupangSrv.URL,
					HTTPClient: coupangSrv.Client(),
					APIKey:     cred.APIKey.Key,
					TeamID:     cred.TeamID,
					VendorID:   cred.AccountID,
					Logger:     logger,
				}), nil
			default:
				return nil, platform.NewError(cred.Platform, platform.KindConfiguration,
					"no adapter for platform", nil)
			}
		},
		Logger: logger,
	})

	results, err := orch.TriggerSync(ctx, "team-1", nil, ads.SyncIncremental)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[ads.PlatformGoogle].Success)
	assert.NoError(t, results[ads.PlatformGoogle].Err)
	assert.True(t, results[ads.PlatformCoupang].Success)
	assert.NoError(t, results[ads.PlatformCoupang].Err)

	assert.Equal(t, int32(1), refreshes.Load(), "one token exchange covers the whole sync")

	runs, err := st.ListRecentRuns(ctx, "team-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byPlatform := map[ads.Platform]*ads.SyncRun{}
	for _, run := range runs {
		byPlatform[run.Platform] = run
	}

	require.Contains(t, byPlatform, ads.PlatformGoogle)
	require.Contains(t, byPlatform, ads.PlatformCoupang)
	assert.Equal(t, ads.RunCompleted, byPlatform[ads.PlatformGoogle].Status)
	assert.Equal(t, ads.RunCompleted, byPlatform[ads.PlatformCoupang].Status)

	googleCampaigns, err := st.ListCampaigns(ctx, "team-1", ads.PlatformGoogle)
	require.NoError(t, err)
	require.Len(t, googleCampaigns, 1)
	assert.InDelta(t, 45.0, googleCampaigns[0].Budget, 1e-9)

	metricCount, err := st.CountMetrics(ctx, googleCampaigns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, metricCount)

	// The refreshed token set was persisted for the next trigger.
	refreshed, err := st.GetCredentialByKey(ctx, "team-1", ads.PlatformGoogle, "1112223333")
	require.NoError(t, err)
	require.NotNil(t, refreshed.OAuth)
	assert.Equal(t, "google-fresh", refreshed.OAuth.AccessToken)
}
