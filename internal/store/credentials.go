package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adstack/adsync/internal/ads"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

const sqlCredentialColumns = `id, team_id, platform, account_id, kind,
	access_token, refresh_token, expires_at, scope,
	api_key, api_secret, business_id, login_customer_id,
	is_active, last_synced_at, error_message`

const (
	sqlGetCredential = `SELECT ` + sqlCredentialColumns + ` FROM credentials WHERE id = ?`

	sqlGetCredentialByKey = `SELECT ` + sqlCredentialColumns +
		` FROM credentials WHERE team_id = ? AND platform = ? AND account_id = ?`

	sqlListActiveCredentials = `SELECT ` + sqlCredentialColumns +
		` FROM credentials WHERE team_id = ? AND is_active = 1 ORDER BY platform, account_id`

	sqlUpsertCredential = `INSERT INTO credentials
		(team_id, platform, account_id, kind,
		 access_token, refresh_token, expires_at, scope,
		 api_key, api_secret, business_id, login_customer_id,
		 is_active, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, '', CURRENT_TIMESTAMP)
		ON CONFLICT (team_id, platform, account_id) DO UPDATE SET
		 kind = excluded.kind,
		 access_token = excluded.access_token,
		 refresh_token = excluded.refresh_token,
		 expires_at = excluded.expires_at,
		 scope = excluded.scope,
		 api_key = excluded.api_key,
		 api_secret = excluded.api_secret,
		 business_id = excluded.business_id,
		 login_customer_id = excluded.login_customer_id,
		 is_active = 1,
		 error_message = '',
		 updated_at = CURRENT_TIMESTAMP`

	sqlSaveOAuthToken = `UPDATE credentials SET
		 access_token = ?, refresh_token = ?, expires_at = ?, scope = ?,
		 updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	sqlDeactivateCredential = `UPDATE credentials SET
		 is_active = 0, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	sqlTouchSynced = `UPDATE credentials SET
		 last_synced_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
)

// UpsertCredential inserts or replaces a credential on its natural key
// (team, platform, account). Re-connecting a platform reactivates the
// credential and clears any stored error.
func (s *Store) UpsertCredential(ctx context.Context, cred *ads.Credential) error {
	row := flattenCredential(cred)

	_, err := s.credStmts.upsert.ExecContext(ctx,
		cred.TeamID, cred.Platform.String(), cred.AccountID, string(cred.Kind),
		row.accessToken, row.refreshToken, row.expiresAt, row.scope,
		row.apiKey, row.apiSecret, row.businessID, row.loginCustomerID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert credential %s: %w", cred.Redacted(), err)
	}

	return nil
}

// GetCredential loads a credential by row id.
func (s *Store) GetCredential(ctx context.Context, id int64) (*ads.Credential, error) {
	return scanCredential(s.credStmts.get.QueryRowContext(ctx, id))
}

// GetCredentialByKey loads a credential by its natural key.
func (s *Store) GetCredentialByKey(ctx context.Context, teamID string, p ads.Platform, accountID string) (*ads.Credential, error) {
	return scanCredential(s.credStmts.getByKey.QueryRowContext(ctx, teamID, p.String(), accountID))
}

// ListActiveCredentials returns a team's active credentials ordered by
// platform.
func (s *Store) ListActiveCredentials(ctx context.Context, teamID string) ([]*ads.Credential, error) {
	rows, err := s.credStmts.listActive.QueryContext(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}

	defer rows.Close()

	var creds []*ads.Credential

	for rows.Next() {
		cred, scanErr := scanCredentialRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating credentials: %w", err)
	}

	return creds, nil
}

// SaveOAuthToken persists a refreshed token set for a credential.
func (s *Store) SaveOAuthToken(ctx context.Context, id int64, tok ads.OAuthToken) error {
	_, err := s.credStmts.saveToken.ExecContext(ctx,
		tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.Scope, id)
	if err != nil {
		return fmt.Errorf("store: save token for credential %d: %w", id, err)
	}

	return nil
}

// DeactivateCredential marks a credential inactive with a user-facing
// error message. The message must never contain secret material.
func (s *Store) DeactivateCredential(ctx context.Context, id int64, errorMessage string) error {
	_, err := s.credStmts.deactivate.ExecContext(ctx, errorMessage, id)
	if err != nil {
		return fmt.Errorf("store: deactivate credential %d: %w", id, err)
	}

	return nil
}

// TouchSynced records the time of the credential's last successful sync.
func (s *Store) TouchSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := s.credStmts.touchSynced.ExecContext(ctx, at, id)
	if err != nil {
		return fmt.Errorf("store: touch credential %d: %w", id, err)
	}

	return nil
}

// flatCredential is the column-level shape of a credential row. Exactly
// the payload columns for the credential's kind are populated.
type flatCredential struct {
	accessToken, refreshToken, scope string
	apiKey, apiSecret                string
	businessID, loginCustomerID      string
	expiresAt                        sql.NullTime
}

func flattenCredential(cred *ads.Credential) flatCredential {
	var row flatCredential

	switch cred.Kind {
	case ads.AuthOAuth:
		if cred.OAuth != nil {
			row.accessToken = cred.OAuth.AccessToken
			row.refreshToken = cred.OAuth.RefreshToken
			row.scope = cred.OAuth.Scope

			if !cred.OAuth.ExpiresAt.IsZero() {
				row.expiresAt = sql.NullTime{Time: cred.OAuth.ExpiresAt, Valid: true}
			}
		}
	case ads.AuthAPIKey, ads.AuthManual:
		if cred.APIKey != nil {
			row.apiKey = cred.APIKey.Key
			row.apiSecret = cred.APIKey.Secret
		}
	case ads.AuthSystemUser:
		if cred.SystemUser != nil {
			row.accessToken = cred.SystemUser.AccessToken
			row.businessID = cred.SystemUser.BusinessID
		}
	case ads.AuthMCCDelegated:
		if cred.MCC != nil {
			row.accessToken = cred.MCC.AccessToken
			row.refreshToken = cred.MCC.RefreshToken
			row.loginCustomerID = cred.MCC.LoginCustomerID

			if !cred.MCC.ExpiresAt.IsZero() {
				row.expiresAt = sql.NullTime{Time: cred.MCC.ExpiresAt, Valid: true}
			}
		}
	}

	return row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row *sql.Row) (*ads.Credential, error) {
	cred, err := scanCredentialRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return cred, err
}

func scanCredentialRow(row rowScanner) (*ads.Credential, error) {
	var (
		cred         ads.Credential
		platformStr  string
		kindStr      string
		flat         flatCredential
		lastSyncedAt sql.NullTime
	)

	err := row.Scan(
		&cred.ID, &cred.TeamID, &platformStr, &cred.AccountID, &kindStr,
		&flat.accessToken, &flat.refreshToken, &flat.expiresAt, &flat.scope,
		&flat.apiKey, &flat.apiSecret, &flat.businessID, &flat.loginCustomerID,
		&cred.IsActive, &lastSyncedAt, &cred.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("store: scanning credential: %w", err)
	}

	cred.Platform = ads.Platform(platformStr)
	cred.Kind = ads.AuthKind(kindStr)

	if lastSyncedAt.Valid {
		cred.LastSyncedAt = lastSyncedAt.Time
	}

	switch cred.Kind {
	case ads.AuthOAuth:
		cred.OAuth = &ads.OAuthToken{
			AccessToken:  flat.accessToken,
			RefreshToken: flat.refreshToken,
			Scope:        flat.scope,
		}
		if flat.expiresAt.Valid {
			cred.OAuth.ExpiresAt = flat.expiresAt.Time
		}
	case ads.AuthAPIKey, ads.AuthManual:
		cred.APIKey = &ads.APIKeySecret{Key: flat.apiKey, Secret: flat.apiSecret}
	case ads.AuthSystemUser:
		cred.SystemUser = &ads.SystemUserToken{
			AccessToken: flat.accessToken,
			BusinessID:  flat.businessID,
		}
	case ads.AuthMCCDelegated:
		cred.MCC = &ads.MCCDelegatedToken{
			RefreshToken:    flat.refreshToken,
			LoginCustomerID: flat.loginCustomerID,
			AccessToken:     flat.accessToken,
		}
		if flat.expiresAt.Valid {
			cred.MCC.ExpiresAt = flat.expiresAt.Time
		}
	}

	return &cred, nil
}
