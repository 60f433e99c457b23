package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adstack/adsync/internal/ads"
)

// newConnectionsCmd builds `adsync connections` with its list, add,
// and disable subcommands. A connection is a stored platform
// credential for one team.
func newConnectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage platform connections",
	}

	cmd.AddCommand(newConnectionsListCmd())
	cmd.AddCommand(newConnectionsAddCmd())
	cmd.AddCommand(newConnectionsDisableCmd())

	return cmd
}

func newConnectionsListCmd() *cobra.Command {
	var flagTeam string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a team's active connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			creds, err := a.store.ListActiveCredentials(cmd.Context(), flagTeam)
			if err != nil {
				return err
			}

			if len(creds) == 0 {
				cmd.Println("no active connections")
				return nil
			}

			for _, cred := range creds {
				lastSynced := "never"
				if !cred.LastSyncedAt.IsZero() {
					lastSynced = cred.LastSyncedAt.Format(time.RFC3339)
				}

				cmd.Printf("%-8s %-20s %-14s last synced: %s\n",
					cred.Platform, cred.AccountID, cred.Kind, lastSynced)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flagTeam, "team", "", "team whose connections to list")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}

func newConnectionsAddCmd() *cobra.Command {
	var (
		flagTeam       string
		flagPlatform   string
		flagAccount    string
		flagKind       string
		flagToken      string
		flagRefresh    string
		flagExpiresIn  time.Duration
		flagScope      string
		flagKey        string
		flagSecret     string
		flagBusiness   string
		flagLoginCust  string
		flagSkipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a platform connection",
		Long: `Adds a platform connection for a team. Re-adding an existing
(team, platform, account) connection replaces its credential and
reactivates it, which is how a revoked connection is repaired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := ads.ParsePlatform(flagPlatform)
			if err != nil {
				return err
			}

			cred := &ads.Credential{
				TeamID:    flagTeam,
				Platform:  p,
				AccountID: flagAccount,
				Kind:      ads.AuthKind(flagKind),
				IsActive:  true,
			}

			switch cred.Kind {
			case ads.AuthOAuth:
				if flagToken == "" || flagRefresh == "" {
					return fmt.Errorf("oauth connections require --access-token and --refresh-token")
				}

				cred.OAuth = &ads.OAuthToken{
					AccessToken:  flagToken,
					RefreshToken: flagRefresh,
					Scope:        flagScope,
				}
				if flagExpiresIn > 0 {
					cred.OAuth.ExpiresAt = time.Now().Add(flagExpiresIn)
				}
			case ads.AuthAPIKey:
				if flagKey == "" || flagSecret == "" {
					return fmt.Errorf("api_key connections require --api-key and --api-secret")
				}

				cred.APIKey = &ads.APIKeySecret{Key: flagKey, Secret: flagSecret}
			case ads.AuthManual:
				if flagKey == "" {
					return fmt.Errorf("manual connections require --api-key")
				}

				cred.APIKey = &ads.APIKeySecret{Key: flagKey}
			case ads.AuthSystemUser:
				if flagToken == "" {
					return fmt.Errorf("system_user connections require --access-token")
				}

				cred.SystemUser = &ads.SystemUserToken{
					AccessToken: flagToken,
					BusinessID:  flagBusiness,
				}
			case ads.AuthMCCDelegated:
				if flagRefresh == "" || flagLoginCust == "" {
					return fmt.Errorf("mcc_delegated connections require --refresh-token and --login-customer-id")
				}

				cred.MCC = &ads.MCCDelegatedToken{
					RefreshToken:    flagRefresh,
					LoginCustomerID: flagLoginCust,
				}
			default:
				return fmt.Errorf("invalid auth kind %q", flagKind)
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.UpsertCredential(cmd.Context(), cred); err != nil {
				return err
			}

			a.orch.InvalidateTeam(flagTeam)
			cmd.Printf("connection saved: %s\n", cred.Redacted())

			if flagSkipVerify {
				return nil
			}

			// Re-read to pick up the row id the token manager keys on.
			stored, err := a.store.GetCredentialByKey(cmd.Context(), flagTeam, p, flagAccount)
			if err != nil {
				return err
			}

			adapter, err := a.adapterFor(stored)
			if err != nil {
				return err
			}

			if err := adapter.ValidateCredentials(cmd.Context()); err != nil {
				return fmt.Errorf("connection saved but verification failed: %w", err)
			}

			cmd.Println("connection verified")

			return nil
		},
	}

	cmd.Flags().StringVar(&flagTeam, "team", "", "owning team")
	cmd.Flags().StringVar(&flagPlatform, "platform", "", "platform (google, meta, kakao, naver, coupang)")
	cmd.Flags().StringVar(&flagAccount, "account", "", "platform account id")
	cmd.Flags().StringVar(&flagKind, "kind", "", "auth kind (oauth, api_key, system_user, mcc_delegated, manual)")
	cmd.Flags().StringVar(&flagToken, "access-token", "", "access token (oauth, system_user)")
	cmd.Flags().StringVar(&flagRefresh, "refresh-token", "", "refresh token (oauth, mcc_delegated)")
	cmd.Flags().DurationVar(&flagExpiresIn, "expires-in", 0, "access token lifetime (oauth)")
	cmd.Flags().StringVar(&flagScope, "scope", "", "granted OAuth scope")
	cmd.Flags().StringVar(&flagKey, "api-key", "", "API key (api_key, manual)")
	cmd.Flags().StringVar(&flagSecret, "api-secret", "", "API secret (api_key)")
	cmd.Flags().StringVar(&flagBusiness, "business-id", "", "business id (system_user)")
	cmd.Flags().StringVar(&flagLoginCust, "login-customer-id", "", "manager account id (mcc_delegated)")
	cmd.Flags().BoolVar(&flagSkipVerify, "skip-verify", false, "skip the post-save credential verification call")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func newConnectionsDisableCmd() *cobra.Command {
	var (
		flagTeam     string
		flagPlatform string
		flagAccount  string
	)

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a platform connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := ads.ParsePlatform(flagPlatform)
			if err != nil {
				return err
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.store.GetCredentialByKey(cmd.Context(), flagTeam, p, flagAccount)
			if err != nil {
				return err
			}

			if err := a.store.DeactivateCredential(cmd.Context(), cred.ID, "disabled by operator"); err != nil {
				return err
			}

			a.orch.InvalidateTeam(flagTeam)
			cmd.Printf("connection disabled: %s\n", cred.Redacted())

			return nil
		},
	}

	cmd.Flags().StringVar(&flagTeam, "team", "", "owning team")
	cmd.Flags().StringVar(&flagPlatform, "platform", "", "platform")
	cmd.Flags().StringVar(&flagAccount, "account", "", "platform account id")
	_ = cmd.MarkFlagRequired("team")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
