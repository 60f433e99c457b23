package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adstack/adsync/internal/ads"
	adsync "github.com/adstack/adsync/internal/sync"
)

// newSyncCmd builds the `adsync sync` command. With no platform
// argument every connected platform syncs; with one argument only that
// platform does.
func newSyncCmd() *cobra.Command {
	var (
		flagTeam string
		flagType string
	)

	cmd := &cobra.Command{
		Use:   "sync [platform]",
		Short: "Synchronize campaigns and metrics from connected platforms",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			syncType, err := parseSyncType(flagType)
			if err != nil {
				return err
			}

			var target *ads.Platform

			if len(args) == 1 {
				p, err := ads.ParsePlatform(args[0])
				if err != nil {
					return err
				}

				target = &p
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.orch.TriggerSync(cmd.Context(), flagTeam, target, syncType)
			if err != nil {
				return err
			}

			return printSyncResults(cmd, results)
		},
	}

	cmd.Flags().StringVar(&flagTeam, "team", "", "team whose connections to sync")
	cmd.Flags().StringVar(&flagType, "type", "incremental", "sync type (full or incremental)")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}

func parseSyncType(s string) (ads.SyncType, error) {
	switch s {
	case "full":
		return ads.SyncFull, nil
	case "incremental":
		return ads.SyncIncremental, nil
	default:
		return "", fmt.Errorf("invalid sync type %q, expected full or incremental", s)
	}
}

// printSyncResults writes a per-platform outcome line and returns an
// error when any platform's sync failed, so the process exits nonzero.
func printSyncResults(cmd *cobra.Command, results adsync.Result) error {
	var failed int

	for p, res := range results {
		switch {
		case res.Success:
			var processed int
			for _, run := range res.Runs {
				processed += run.RecordsProcessed
			}

			cmd.Printf("%s: ok (%d campaigns across %d account(s))\n",
				p, processed, len(res.Runs))
		case errors.Is(res.Err, adsync.ErrSyncInProgress):
			cmd.Printf("%s: skipped, sync already running\n", p)
		default:
			failed++
			cmd.Printf("%s: failed: %v\n", p, res.Err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d platform(s) failed to sync", failed)
	}

	return nil
}
