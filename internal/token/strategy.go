package token

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// OAuthEndpoint describes one platform's token endpoint and client
// registration. Values come from configuration; tests point TokenURL at
// an httptest server.
type OAuthEndpoint struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// OAuthStrategy refreshes OAuth and MCC-delegated credentials with a
// grant_type=refresh_token exchange against the platform's token
// endpoint, via the oauth2 package.
type OAuthStrategy struct {
	platform ads.Platform
	endpoint OAuthEndpoint
	http     *http.Client
	logger   *slog.Logger
}

// NewOAuthStrategy creates a refresh strategy for one platform.
func NewOAuthStrategy(p ads.Platform, endpoint OAuthEndpoint, httpClient *http.Client, logger *slog.Logger) *OAuthStrategy {
	if logger == nil {
		logger = slog.Default()
	}

	return &OAuthStrategy{platform: p, endpoint: endpoint, http: httpClient, logger: logger}
}

// Refresh exchanges the credential's refresh token for a new access
// token. A rotated refresh token, when the platform issues one, is
// carried back for persistence; otherwise the stored one is kept.
func (s *OAuthStrategy) Refresh(ctx context.Context, cred *ads.Credential) (*ads.OAuthToken, error) {
	refreshToken, scope := s.refreshMaterial(cred)
	if refreshToken == "" {
		return nil, platform.NewError(s.platform, platform.KindConfiguration,
			"credential has no refresh token", nil)
	}

	cfg := &oauth2.Config{
		ClientID:     s.endpoint.ClientID,
		ClientSecret: s.endpoint.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: s.endpoint.TokenURL},
	}

	if s.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)
	}

	// Seed the source with an already-expired token so it performs the
	// refresh exchange immediately.
	seed := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	tok, err := cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, s.classifyRefreshError(err)
	}

	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	return &ads.OAuthToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    tok.Expiry,
		Scope:        scope,
	}, nil
}

// refreshMaterial pulls the refresh token (and scope, when present)
// from whichever payload the credential carries.
func (s *OAuthStrategy) refreshMaterial(cred *ads.Credential) (refreshToken, scope string) {
	switch cred.Kind {
	case ads.AuthOAuth:
		if cred.OAuth != nil {
			return cred.OAuth.RefreshToken, cred.OAuth.Scope
		}
	case ads.AuthMCCDelegated:
		if cred.MCC != nil {
			return cred.MCC.RefreshToken, ""
		}
	}

	return "", ""
}

// classifyRefreshError maps oauth2 failures onto the taxonomy. An
// invalid_grant (or any 4xx from the token endpoint) means the grant is
// dead and the user must reconnect; everything else is transient.
func (s *OAuthStrategy) classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return platform.NewError(s.platform, platform.KindServerError,
				"token endpoint unavailable", err)
		}

		// invalid_grant, invalid_client, and friends.
		return platform.NewError(s.platform, platform.KindAuth,
			"refresh token rejected: "+retrieveErr.ErrorCode, err)
	}

	return platform.NewError(s.platform, platform.KindNetwork,
		"token endpoint unreachable", err)
}
