package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"seedkeeper/internal/ratio"
)

// estimateRounding keeps duration output readable.
const estimateRounding = time.Minute

func newVIPCommand(ctx *commandContext) *cobra.Command {
	var roiDays int

	cmd := &cobra.Command{
		Use:   "vip",
		Short: "Show membership state and point spending efficiency",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			state, err := store.VIPState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatusLine("Status", statusInfo, orDash(state.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Points", statusInfo, fmt.Sprintf("%d", state.Points), colorize))
			fmt.Fprintln(out, renderStatusLine("Expires", statusInfo, formatTimePtr(state.ExpiresAt), colorize))
			fmt.Fprintln(out, renderStatusLine("Renewal cost", statusInfo, fmt.Sprintf("%d", cfg.VIP.RenewalCost), colorize))
			fmt.Fprintln(out, renderStatusLine("Last decision", statusInfo, orDash(state.LastDecision), colorize))
			fmt.Fprintln(out, renderStatusLine("Last run", statusInfo, formatTimePtr(state.LastRunAt), colorize))

			monitor := ratio.NewMonitor(store, nil, nil, nil, cfg.Ratio, nil)
			roi, ok, err := monitor.PointROI(cmd.Context(), time.Duration(roiDays)*24*time.Hour)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, renderStatusLine("Point ROI", statusInfo, fmt.Sprintf("no renewal spend in the last %dd", roiDays), colorize))
				return nil
			}
			kind := statusOK
			if roi < 1 {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Point ROI", kind, fmt.Sprintf("%.2f points earned per point spent (%dd window)", roi, roiDays), colorize))
			return nil
		},
	}

	cmd.Flags().IntVar(&roiDays, "roi-days", 30, "Window for the point ROI calculation in days")
	return cmd
}
