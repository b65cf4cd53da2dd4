package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRatioCommand(ctx *commandContext) *cobra.Command {
	ratioCmd := &cobra.Command{
		Use:   "ratio",
		Short: "Ratio trail inspection",
	}
	ratioCmd.AddCommand(newRatioHistoryCommand(ctx))
	return ratioCmd
}

func newRatioHistoryCommand(ctx *commandContext) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ratio snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
			snapshots, err := store.RatioSnapshotsSince(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots in the last %dh\n", hours)
				return nil
			}

			rows := make([][]string, 0, len(snapshots))
			for _, snapshot := range snapshots {
				emergency := ""
				if snapshot.EmergencyActive {
					emergency = "EMERGENCY"
				}
				rows = append(rows, []string{
					snapshot.TakenAt.UTC().Format("2006-01-02 15:04"),
					fmt.Sprintf("%.3f", snapshot.Ratio),
					fmt.Sprintf("%.0f%%", snapshot.SeedingAllocation*100),
					fmt.Sprintf("%d", snapshot.BonusPoints),
					emergency,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Taken", "Ratio", "Seeding", "Points", "State"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "History window in hours")
	return cmd
}
