package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"seedkeeper/internal/download"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the acquisition queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List acquisitions, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			var statuses []download.Status
			if statusFlag != "" {
				status, ok := download.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				statuses = append(statuses, status)
			}

			items, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No acquisitions found")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					item.Title,
					string(item.ReleaseType),
					fmt.Sprintf("%.1f", item.QualityScore),
					string(item.Status),
					string(item.IntegrityStatus),
					strconv.Itoa(item.RetryCount),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Type", "Score", "Status", "Integrity", "Retries"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by lifecycle status")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id> [<id>...]",
		Short: "Requeue failed acquisitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			retried := 0
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q", arg)
				}
				moved, err := store.TransitionStatus(cmd.Context(), id, download.StatusFailed, download.StatusQueued)
				if err != nil {
					return fmt.Errorf("retry %d: %w", id, err)
				}
				if !moved {
					fmt.Fprintf(cmd.OutOrStdout(), "Acquisition %d is not in a failed state; skipped\n", id)
					continue
				}
				retried++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d acquisition(s)\n", retried)
			return nil
		},
	}
}
