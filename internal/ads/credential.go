package ads

import (
	"fmt"
	"time"
)

// AuthKind describes how a credential authenticates against its platform.
type AuthKind string

const (
	// AuthOAuth is a standard OAuth2 refresh-token credential whose
	// access token expires and must be refreshed.
	AuthOAuth AuthKind = "oauth"
	// AuthAPIKey is a key+secret pair entered by the user. No expiry.
	AuthAPIKey AuthKind = "api_key"
	// AuthSystemUser is a platform-issued non-expiring server-to-server
	// token scoped to a business.
	AuthSystemUser AuthKind = "system_user"
	// AuthMCCDelegated is a manager-account refresh token that reaches
	// sub-accounts through a login customer id.
	AuthMCCDelegated AuthKind = "mcc_delegated"
	// AuthManual is a manually-entered key with no secret, used by
	// platforms that only hand out static tokens.
	AuthManual AuthKind = "manual"
)

// OAuthToken is the payload for AuthOAuth credentials.
type OAuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// APIKeySecret is the payload for AuthAPIKey credentials.
type APIKeySecret struct {
	Key    string
	Secret string
}

// SystemUserToken is the payload for AuthSystemUser credentials.
// It never expires.
type SystemUserToken struct {
	AccessToken string
	BusinessID  string
}

// MCCDelegatedToken is the payload for AuthMCCDelegated credentials.
// The refresh token belongs to the manager account; LoginCustomerID
// selects the sub-account on each API call. The last exchanged access
// token is stored alongside so calls within its lifetime skip the
// token endpoint.
type MCCDelegatedToken struct {
	RefreshToken    string
	LoginCustomerID string
	AccessToken     string
	ExpiresAt       time.Time
}

// Credential is a team's stored connection to one platform account.
// Exactly one payload field is set, matching Kind. Unique per
// (TeamID, Platform, AccountID).
type Credential struct {
	ID        int64
	TeamID    string
	Platform  Platform
	AccountID string
	Kind      AuthKind

	OAuth      *OAuthToken
	APIKey     *APIKeySecret
	SystemUser *SystemUserToken
	MCC        *MCCDelegatedToken

	IsActive     bool
	LastSyncedAt time.Time
	ErrorMessage string
}

// NeedsRefresh reports whether the credential's access token can expire
// at all. System-user, API-key, and manual credentials never refresh.
func (c *Credential) NeedsRefresh() bool {
	switch c.Kind {
	case AuthOAuth, AuthMCCDelegated:
		return true
	default:
		return false
	}
}

// Redacted returns a loggable identity for the credential. It never
// includes token or key material.
func (c *Credential) Redacted() string {
	return fmt.Sprintf("%s/%s/%s (%s)", c.TeamID, c.Platform, c.AccountID, c.Kind)
}
