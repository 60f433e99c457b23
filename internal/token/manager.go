// Package token implements the credential token lifecycle: deciding
// when a stored access token must be refreshed, performing the refresh
// through a per-platform strategy, persisting rotated tokens, and
// deactivating credentials whose grants have been revoked. Concurrent
// requests for the same credential collapse into a single refresh via
// singleflight.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/adstack/adsync/internal/ads"
	"github.com/adstack/adsync/internal/platform"
)

// RefreshSkew is how close to expiry a token may get before it is
// refreshed. One buffer for every platform, the single source of truth
// for "about to expire".
const RefreshSkew = 5 * time.Minute

// CredentialStore is the slice of the credential store the manager
// needs. Defined here at the consumer; the SQLite store implements it.
type CredentialStore interface {
	GetCredential(ctx context.Context, id int64) (*ads.Credential, error)
	SaveOAuthToken(ctx context.Context, id int64, tok ads.OAuthToken) error
	DeactivateCredential(ctx context.Context, id int64, errorMessage string) error
}

// RefreshStrategy performs one platform's refresh-token exchange.
// Implementations return the new token set; rotated refresh tokens (if
// the platform issues them) are included for persistence.
type RefreshStrategy interface {
	Refresh(ctx context.Context, cred *ads.Credential) (*ads.OAuthToken, error)
}

// Manager hands out currently-valid access tokens for stored
// credentials.
type Manager struct {
	store      CredentialStore
	strategies map[ads.Platform]RefreshStrategy
	logger     *slog.Logger

	group   singleflight.Group
	nowFunc func() time.Time // injectable for testing
}

// NewManager creates a Manager with the given per-platform refresh
// strategies. Platforms whose credentials never expire need no entry.
func NewManager(store CredentialStore, strategies map[ads.Platform]RefreshStrategy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:      store,
		strategies: strategies,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// ValidToken returns an access token that is valid for at least
// RefreshSkew, refreshing it first when necessary. Concurrent calls for
// the same credential share one refresh: exactly one HTTP exchange
// happens and every caller receives its outcome.
func (m *Manager) ValidToken(ctx context.Context, cred *ads.Credential) (string, error) {
	switch cred.Kind {
	case ads.AuthSystemUser:
		// System user tokens never expire.
		return cred.SystemUser.AccessToken, nil
	case ads.AuthAPIKey, ads.AuthManual:
		// Key-based platforms sign each request with stored key material;
		// there is no bearer token and nothing to refresh.
		return "", nil
	}

	if token, expiresAt := storedToken(cred); token != "" && !m.expiringSoon(expiresAt) {
		return token, nil
	}

	tok, err := m.refreshShared(ctx, cred)
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// storedToken returns the persisted access token and expiry for the
// refreshable kinds. MCC credentials keep the last exchanged token next
// to the manager refresh token, so an unexpired one is reused instead
// of hitting the token endpoint on every call.
func storedToken(cred *ads.Credential) (string, time.Time) {
	switch cred.Kind {
	case ads.AuthOAuth:
		if cred.OAuth != nil {
			return cred.OAuth.AccessToken, cred.OAuth.ExpiresAt
		}
	case ads.AuthMCCDelegated:
		if cred.MCC != nil {
			return cred.MCC.AccessToken, cred.MCC.ExpiresAt
		}
	}

	return "", time.Time{}
}

// TokenFuncFor adapts the manager into the platform.TokenFunc the
// shared HTTP client consumes. The credential is re-read on every call
// so rotated tokens and deactivations take effect immediately.
func (m *Manager) TokenFuncFor(credID int64) platform.TokenFunc {
	return func(ctx context.Context) (string, error) {
		cred, err := m.store.GetCredential(ctx, credID)
		if err != nil {
			return "", err
		}

		if !cred.IsActive {
			return "", platform.NewError(cred.Platform, platform.KindAuth,
				"credential is deactivated: "+cred.ErrorMessage, nil)
		}

		return m.ValidToken(ctx, cred)
	}
}

// expiringSoon reports whether the expiry is within RefreshSkew of now.
func (m *Manager) expiringSoon(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return true
	}

	return m.nowFunc().Add(RefreshSkew).After(expiresAt)
}

// refreshShared performs the refresh behind a singleflight keyed by
// credential id.
func (m *Manager) refreshShared(ctx context.Context, cred *ads.Credential) (*ads.OAuthToken, error) {
	key := fmt.Sprintf("cred-%d", cred.ID)

	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.refresh(ctx, cred)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		m.logger.Debug("token refresh shared across callers",
			slog.String("credential", cred.Redacted()),
		)
	}

	tok, ok := v.(*ads.OAuthToken)
	if !ok {
		return nil, platform.NewError(cred.Platform, platform.KindUnknown,
			"unexpected refresh result type", nil)
	}

	return tok, nil
}

// refresh runs the platform strategy, persists the new token set, and
// deactivates the credential on a terminal auth failure.
func (m *Manager) refresh(ctx context.Context, cred *ads.Credential) (*ads.OAuthToken, error) {
	strategy, ok := m.strategies[cred.Platform]
	if !ok {
		return nil, platform.NewError(cred.Platform, platform.KindConfiguration,
			"no refresh strategy registered", nil)
	}

	m.logger.Info("refreshing access token",
		slog.String("credential", cred.Redacted()),
	)

	tok, err := strategy.Refresh(ctx, cred)
	if err != nil {
		if platform.IsKind(err, platform.KindAuth) {
			// The grant is gone; only the user reconnecting can fix it.
			msg := "token refresh rejected, reconnect required"

			if deactErr := m.store.DeactivateCredential(ctx, cred.ID, msg); deactErr != nil {
				m.logger.Error("failed to deactivate credential",
					slog.String("credential", cred.Redacted()),
					slog.String("error", deactErr.Error()),
				)
			}

			m.logger.Warn("credential deactivated after refresh failure",
				slog.String("credential", cred.Redacted()),
			)
		}

		return nil, err
	}

	if saveErr := m.store.SaveOAuthToken(ctx, cred.ID, *tok); saveErr != nil {
		return nil, fmt.Errorf("token: persisting refreshed token: %w", saveErr)
	}

	m.logger.Info("access token refreshed",
		slog.String("credential", cred.Redacted()),
		slog.Time("expires_at", tok.ExpiresAt),
	)

	return tok, nil
}

// IsReconnectRequired reports whether err means the user must
// re-authenticate the platform connection.
func IsReconnectRequired(err error) bool {
	return platform.IsKind(err, platform.KindAuth)
}
