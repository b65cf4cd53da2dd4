package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var task string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List structured audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}

			records, err := store.ListAudit(cmd.Context(), task, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit records found")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
					record.Task,
					record.Details,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Created", "Task", "Details"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Filter by task name (emergency_toggle, vip_plan, integrity_check)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	return cmd
}
