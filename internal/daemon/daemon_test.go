package daemon_test

import (
	"context"
	"testing"

	"seedkeeper/internal/daemon"
	"seedkeeper/internal/lifecycle"
	"seedkeeper/internal/testsupport"
	"seedkeeper/internal/transfer"
	"seedkeeper/internal/workflow"
)

type idleTransferClient struct{}

func (idleTransferClient) Login(ctx context.Context) error { return nil }
func (idleTransferClient) ListItems(ctx context.Context) ([]transfer.Item, error) {
	return nil, nil
}
func (idleTransferClient) Enqueue(ctx context.Context, req transfer.EnqueueRequest) error {
	return nil
}
func (idleTransferClient) Pause(ctx context.Context, handles ...string) error       { return nil }
func (idleTransferClient) Resume(ctx context.Context, handles ...string) error      { return nil }
func (idleTransferClient) ForceResume(ctx context.Context, handles ...string) error { return nil }
func (idleTransferClient) SetSeedSlotLimit(ctx context.Context, limit int) error    { return nil }

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	monitor := lifecycle.NewMonitor(store, idleTransferClient{}, nil, nil, nil, nil, nil, cfg.Workflow, nil)
	manager := workflow.NewManager(cfg, store, nil, monitor, nil, nil)
	d, err := daemon.New(cfg, store, manager, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartStopLifecycle(t *testing.T) {
	d := newDaemon(t)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail while running")
	}

	status := d.Status(context.Background())
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("status = %+v", status)
	}
	if status.LockFilePath == "" || status.StorePath == "" {
		t.Fatalf("status paths missing: %+v", status)
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("daemon should report stopped")
	}
	// Idempotent stop.
	d.Stop()
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestSecondInstanceBlocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	monitor := lifecycle.NewMonitor(store, idleTransferClient{}, nil, nil, nil, nil, nil, cfg.Workflow, nil)

	first, err := daemon.New(cfg, store, workflow.NewManager(cfg, store, nil, monitor, nil, nil), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, err := daemon.New(cfg, store, workflow.NewManager(cfg, store, nil, monitor, nil, nil), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must not acquire the lock")
	}
}
