package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"seedkeeper/internal/download"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, emergency, and membership state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			health, err := store.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue health: %w", err)
			}
			emergency, err := store.EmergencyState(cmd.Context())
			if err != nil {
				return fmt.Errorf("emergency state: %w", err)
			}
			vipState, err := store.VIPState(cmd.Context())
			if err != nil {
				return fmt.Errorf("vip state: %w", err)
			}

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", health.Total), colorize))
			fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d", health.Queued), colorize))
			fmt.Fprintln(out, renderStatusLine("Downloading", statusInfo, fmt.Sprintf("%d", health.Downloading), colorize))
			fmt.Fprintln(out, renderStatusLine("Settled", statusOK, fmt.Sprintf("%d", health.Settled), colorize))
			if health.Blocked > 0 {
				fmt.Fprintln(out, renderStatusLine("Blocked", statusWarn, fmt.Sprintf("%d", health.Blocked), colorize))
			}
			if health.Corrupt > 0 {
				fmt.Fprintln(out, renderStatusLine("Corrupt", statusWarn, fmt.Sprintf("%d", health.Corrupt), colorize))
			}
			if health.Failed > 0 {
				fmt.Fprintln(out, renderStatusLine("Failed", statusError, fmt.Sprintf("%d", health.Failed), colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Ratio emergency", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderEmergency(emergency, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("VIP", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Status", statusInfo, orDash(vipState.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Points", statusInfo, fmt.Sprintf("%d", vipState.Points), colorize))
			fmt.Fprintln(out, renderStatusLine("Expires", statusInfo, formatTimePtr(vipState.ExpiresAt), colorize))
			fmt.Fprintln(out, renderStatusLine("Last decision", statusInfo, orDash(vipState.LastDecision), colorize))
			fmt.Fprintln(out, renderStatusLine("Last run", statusInfo, formatTimePtr(vipState.LastRunAt), colorize))
			return nil
		},
	}
}

func renderEmergency(state download.EmergencyState, colorize bool) string {
	if state.Active {
		detail := fmt.Sprintf("active since %s, last ratio %.3f", formatTimePtr(state.TriggeredAt), state.LastRatio)
		return renderStatusLine("Emergency", statusError, detail, colorize)
	}
	detail := "inactive"
	if state.LastRatio > 0 {
		detail = fmt.Sprintf("inactive, last ratio %.3f", state.LastRatio)
	}
	return renderStatusLine("Emergency", statusOK, detail, colorize)
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusKindLabel(kind), message)
	}
	base := fmt.Sprintf("  %-16s %s", label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
