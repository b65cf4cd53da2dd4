package main

import (
	"context"
	"fmt"
	"log/slog"

	"seedkeeper/internal/config"
	"seedkeeper/internal/daemon"
	"seedkeeper/internal/download"
	"seedkeeper/internal/integrity"
	"seedkeeper/internal/lifecycle"
	"seedkeeper/internal/notifications"
	"seedkeeper/internal/quality"
	"seedkeeper/internal/ratio"
	"seedkeeper/internal/tracker"
	"seedkeeper/internal/transfer"
	"seedkeeper/internal/vip"
	"seedkeeper/internal/workflow"
)

// admissionGate forwards admission checks to the ratio monitor. The
// indirection breaks the construction cycle: the lifecycle monitor needs the
// gate, and the ratio monitor needs the lifecycle monitor as its allocation
// controller.
type admissionGate struct {
	monitor *ratio.Monitor
}

func (g *admissionGate) BlockPaidDownload(ctx context.Context, item *download.Acquisition) bool {
	if g.monitor == nil {
		return false
	}
	return g.monitor.BlockPaidDownload(ctx, item)
}

func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := download.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	trackerClient, err := tracker.NewHTTPClient(cfg.Tracker)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("tracker client: %w", err)
	}
	// Bad tracker credentials are a configuration error: refuse to start
	// rather than let every loop fail its first iteration.
	if err := trackerClient.Authenticate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("tracker authentication: %w", err)
	}
	transferClient, err := transfer.NewHTTPClient(cfg.Transfer)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("transfer client: %w", err)
	}

	notifier := notifications.NewService(cfg)
	engine := quality.NewEngine(store, trackerClient, cfg.Quality, logger)
	verifier := integrity.New(logger)

	gate := &admissionGate{}
	lifecycleMonitor := lifecycle.NewMonitor(store, transferClient, verifier, engine, gate, nil, notifier, cfg.Workflow, logger)
	ratioMonitor := ratio.NewMonitor(store, trackerClient, lifecycleMonitor, notifier, cfg.Ratio, logger)
	gate.monitor = ratioMonitor

	planner := vip.NewPlanner(store, trackerClient, engine, ratioMonitor, notifier, cfg.VIP, logger)

	manager := workflow.NewManager(cfg, store, ratioMonitor, lifecycleMonitor, planner, logger)
	manager.ConfigurePromo(trackerClient, engine)

	d, err := daemon.New(cfg, store, manager, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return d, nil
}
