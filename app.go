package main

import (
	"fmt"
	"log/slog"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/config"
	"github.com/adstack/adsync/internal/platform"
	"github.com/adstack/adsync/internal/platform/coupangads"
	"github.com/adstack/adsync/internal/platform/googleads"
	"github.com/adstack/adsync/internal/platform/kakaomoment"
	"github.com/adstack/adsync/internal/platform/metaads"
	"github.com/adstack/adsync/internal/platform/naversearchad"
	"github.com/adstack/adsync/internal/store"
	adsync "github.com/adstack/adsync/internal/sync"
	"github.com/adstack/adsync/internal/token"
)

// app is the composition root: the store, token manager, and
// orchestrator wired together once per command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	tokens *token.Manager
	orch   *adsync.Orchestrator
}

// buildApp opens the database and wires all collaborators. The caller
// must Close() when done.
func buildApp() (*app, error) {
	logger := buildLogger()

	st, err := store.Open(resolvedCfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	httpClient := defaultHTTPClient()

	strategies := map[ads.Platform]token.RefreshStrategy{}

	for _, p := range []struct {
		platform ads.Platform
		section  string
	}{
		{ads.PlatformGoogle, "google"},
		{ads.PlatformKakao, "kakao"},
	} {
		pc := resolvedCfg.Platform(p.section)
		strategies[p.platform] = token.NewOAuthStrategy(p.platform, token.OAuthEndpoint{
			TokenURL:     pc.TokenURL,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
		}, httpClient, logger)
	}

	tokens := token.NewManager(st, strategies, logger)

	a := &app{
		cfg:    resolvedCfg,
		logger: logger,
		store:  st,
		tokens: tokens,
	}

	a.orch = adsync.NewOrchestrator(adsync.Config{
		Store:          st,
		Tokens:         tokens,
		AdapterFactory: a.adapterFor,
		MetricWorkers:  resolvedCfg.Sync.MetricWorkers,
		Logger:         logger,
	})

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// adapterFor constructs the platform adapter for one stored credential.
// OAuth-style platforms receive a TokenFunc that re-reads the
// credential and refreshes through the token manager; key-based
// platforms receive their key material directly.
func (a *app) adapterFor(cred *ads.Credential) (platform.Adapter, error) {
	httpClient := defaultHTTPClient()

	switch cred.Platform {
	case ads.PlatformGoogle:
		pc := a.cfg.Platform("google")

		loginCustomerID := ""
		if cred.MCC != nil {
			loginCustomerID = cred.MCC.LoginCustomerID
		}

		return googleads.New(googleads.Config{
			BaseURL:         pc.BaseURL,
			HTTPClient:      httpClient,
			Token:           a.tokens.TokenFuncFor(cred.ID),
			TeamID:          cred.TeamID,
			CustomerID:      cred.AccountID,
			LoginCustomerID: loginCustomerID,
			DeveloperToken:  pc.DeveloperToken,
			Logger:          a.logger,
		}), nil

	case ads.PlatformMeta:
		pc := a.cfg.Platform("meta")

		return metaads.New(metaads.Config{
			BaseURL:    pc.BaseURL,
			HTTPClient: httpClient,
			Token:      a.tokens.TokenFuncFor(cred.ID),
			TeamID:     cred.TeamID,
			AccountID:  cred.AccountID,
			Logger:     a.logger,
		}), nil

	case ads.PlatformKakao:
		pc := a.cfg.Platform("kakao")

		return kakaomoment.New(kakaomoment.Config{
			BaseURL:     pc.BaseURL,
			HTTPClient:  httpClient,
			Token:       a.tokens.TokenFuncFor(cred.ID),
			TeamID:      cred.TeamID,
			AdAccountID: cred.AccountID,
			Logger:      a.logger,
		}), nil

	case ads.PlatformNaver:
		if cred.APIKey == nil {
			return nil, platform.NewError(cred.Platform, platform.KindConfiguration,
				"credential has no API key material", nil)
		}

		pc := a.cfg.Platform("naver")

		return naversearchad.New(naversearchad.Config{
			BaseURL:    pc.BaseURL,
			HTTPClient: httpClient,
			APIKey:     cred.APIKey.Key,
			APISecret:  cred.APIKey.Secret,
			TeamID:     cred.TeamID,
			CustomerID: cred.AccountID,
			Logger:     a.logger,
		}), nil

	case ads.PlatformCoupang:
		if cred.APIKey == nil {
			return nil, platform.NewError(cred.Platform, platform.KindConfiguration,
				"credential has no API key material", nil)
		}

		pc := a.cfg.Platform("coupang")

		return coupangads.New(coupangads.Config{
			BaseURL:    pc.BaseURL,
			HTTPClient: httpClient,
			APIKey:     cred.APIKey.Key,
			TeamID:     cred.TeamID,
			VendorID:   cred.AccountID,
			Logger:     a.logger,
		}), nil
	}

	return nil, platform.NewError(cred.Platform, platform.KindConfiguration,
		"unsupported platform", nil)
}
