package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seedkeeper/internal/ratio"
)

func newEmergencyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "emergency",
		Short: "Show the ratio emergency state and recovery outlook",
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

			state, err := store.EmergencyState(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderEmergency(state, colorize))
			fmt.Fprintln(out, renderStatusLine("Floor", statusInfo, fmt.Sprintf("%.2f", cfg.Ratio.Floor), colorize))
			fmt.Fprintln(out, renderStatusLine("Recovery", statusInfo, fmt.Sprintf("%.2f", cfg.Ratio.Recovery), colorize))

			if !state.Active {
				return nil
			}

			// The estimate only needs the snapshot trail, so a store-only
			// monitor is enough here.
			monitor := ratio.NewMonitor(store, nil, nil, nil, cfg.Ratio, nil)
			estimate, ok, err := monitor.RecoveryTimeEstimate(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, renderStatusLine("Recovery ETA", statusWarn, "not enough upward trend to estimate", colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("Recovery ETA", statusInfo, estimate.Round(estimateRounding).String(), colorize))
			return nil
		},
	}
}
