package kakaomoment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *[]time.Duration) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := New(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Token: func(context.Context) (string, error) {
			return "kakao-token", nil
		},
		TeamID:      "team-1",
		AdAccountID: "77",
		Logger:      testLogger(),
	})

	var sleeps []time.Duration

	adapter.sleepFunc = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	return adapter, &sleeps
}

func TestFetchCampaigns_PagesUntilLast(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "77", r.Header.Get("adAccountId"))

		switch r.URL.Query().Get("page") {
		case "0":
			_, _ = w.Write([]byte(`{"content":[
				{"id":501,"name":"Brand","config":"ON","dailyBudget":50000}
			],"last":false}`))
		case "1":
			_, _ = w.Write([]byte(`{"content":[
				{"id":502,"name":"Retargeting","config":"OFF","dailyBudget":30000}
			],"last":true}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))

	campaigns, err := adapter.FetchCampaigns(context.Background())

	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	assert.Equal(t, "501", campaigns[0].PlatformCampaignID)
	assert.Equal(t, ads.StatusActive, campaigns[0].Status)
	// KRW has no minor units: the daily budget passes through unscaled.
	assert.InDelta(t, 50000.0, campaigns[0].Budget, 1e-9)

	assert.Equal(t, ads.StatusPaused, campaigns[1].Status)
	assert.False(t, campaigns[1].IsActive)
}

func TestFetchCampaignMetrics_CreatePollDownload(t *testing.T) {
	var polls atomic.Int32

	adapter, sleeps := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/reports":
			_, _ = w.Write([]byte(`{"id":42}`))
		case r.Method == http.MethodGet && r.URL.Path == "/reports/42":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"PROCESSING"}`))
				return
			}

			_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/reports/42/download":
			_, _ = w.Write([]byte(`{"rows":[
				{"date":"2026-08-20","imp":1000,"click":40,"cost":12000,"conversion":2,"convValue":90000}
			]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	metrics, err := adapter.FetchCampaignMetrics(context.Background(), "501",
		time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, int64(1000), metrics[0].Impressions)
	assert.InDelta(t, 12000.0, metrics[0].Cost, 1e-9)
	assert.InDelta(t, 90000.0, metrics[0].Revenue, 1e-9)

	// Two PROCESSING polls waited 500ms then 1s.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 500*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, time.Second, (*sleeps)[1])
}

func TestFetchCampaignMetrics_ReportFailure(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/reports":
			_, _ = w.Write([]byte(`{"id":43}`))
		case r.URL.Path == "/reports/43":
			_, _ = w.Write([]byte(`{"status":"FAILED"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	_, err := adapter.FetchCampaignMetrics(context.Background(), "501",
		time.Now().AddDate(0, 0, -7), time.Now())

	require.Error(t, err)
	assert.True(t, platform.IsKind(err, platform.KindServerError))
}

func TestFetchCampaignMetrics_PollDelayCapped(t *testing.T) {
	var polls atomic.Int32

	adapter, sleeps := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/reports":
			_, _ = w.Write([]byte(`{"id":44}`))
		case r.URL.Path == "/reports/44":
			if polls.Add(1) < 10 {
				_, _ = w.Write([]byte(`{"status":"WAITING"}`))
				return
			}

			_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
		case r.URL.Path == "/reports/44/download":
			_, _ = w.Write([]byte(`{"rows":[]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	_, err := adapter.FetchCampaignMetrics(context.Background(), "501",
		time.Now().AddDate(0, 0, -7), time.Now())

	require.NoError(t, err)
	require.Len(t, *sleeps, 9)

	// 500ms doubling: 0.5s, 1s, 2s, 4s, 8s, then pinned at 10s.
	assert.Equal(t, 8*time.Second, (*sleeps)[4])

	for _, d := range (*sleeps)[5:] {
		assert.Equal(t, pollMaxDelay, d)
	}
}

func TestUpdateCampaignStatus_FlipsOnOff(t *testing.T) {
	var gotPath, gotConfig string

	adapter, _ := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotConfig = body["config"]

		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, adapter.UpdateCampaignStatus(context.Background(), "501", true))
	assert.Equal(t, "/campaigns/501/onOff", gotPath)
	assert.Equal(t, "ON", gotConfig)
}
