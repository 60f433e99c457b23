package main

import (
	"time"

	"github.com/spf13/cobra"
)

// newRunsCmd builds `adsync runs`, which lists a team's recent sync
// runs newest first.
func newRunsCmd() *cobra.Command {
	var (
		flagTeam  string
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRecentRuns(cmd.Context(), flagTeam, flagLimit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				cmd.Println("no sync runs recorded")
				return nil
			}

			for _, run := range runs {
				cmd.Printf("%s  %-8s %-12s %-10s processed=%d ok=%d err=%d %s\n",
					run.StartedAt.Format(time.RFC3339), run.Platform, run.SyncType,
					run.Status, run.RecordsProcessed, run.SuccessCount, run.ErrorCount,
					run.Duration().Round(time.Millisecond),
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flagTeam, "team", "", "team whose runs to list")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum runs to list")
	_ = cmd.MarkFlagRequired("team")

	return cmd
}
