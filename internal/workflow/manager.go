package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
	"seedkeeper/internal/lifecycle"
	"seedkeeper/internal/logging"
	"seedkeeper/internal/promo"
	"seedkeeper/internal/quality"
	"seedkeeper/internal/ratio"
	"seedkeeper/internal/tracker"
	"seedkeeper/internal/vip"
)

// vipDueCheckInterval is how often the VIP loop wakes to see whether the
// daily run is due.
const vipDueCheckInterval = time.Minute

type loopKind string

const (
	loopRatio     loopKind = "ratio"
	loopLifecycle loopKind = "lifecycle"
	loopVIP       loopKind = "vip"
)

// loopState is one named periodic loop. Each loop runs on its own goroutine
// and is serial with itself: the next tick waits for the previous run to
// finish.
type loopState struct {
	kind     loopKind
	interval time.Duration
	run      func(ctx context.Context) error
	logger   *slog.Logger
}

// Manager owns the daemon's control loops: the ratio check, the lifecycle
// poll, and the daily VIP plan.
type Manager struct {
	cfg       *config.Config
	store     *download.Store
	ratio     *ratio.Monitor
	lifecycle *lifecycle.Monitor
	planner   *vip.Planner
	logger    *slog.Logger

	promoClient tracker.Client
	engine      *quality.Engine

	loops []*loopState

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	strategy promo.Strategy
}

// NewManager constructs the manager and registers its loops.
func NewManager(cfg *config.Config, store *download.Store, ratioMonitor *ratio.Monitor, lifecycleMonitor *lifecycle.Monitor, planner *vip.Planner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		store:     store,
		ratio:     ratioMonitor,
		lifecycle: lifecycleMonitor,
		planner:   planner,
		logger:    logging.WithComponent(logger, "workflow"),
		strategy:  promo.Neutral(cfg.Quality.GlobalFloor),
	}

	if ratioMonitor != nil {
		m.loops = append(m.loops, &loopState{
			kind:     loopRatio,
			interval: time.Duration(cfg.Ratio.CheckInterval) * time.Second,
			run:      m.runRatioCheck,
		})
	}
	if lifecycleMonitor != nil {
		m.loops = append(m.loops, &loopState{
			kind:     loopLifecycle,
			interval: time.Duration(cfg.Workflow.LifecyclePollInterval) * time.Second,
			run:      m.runLifecyclePoll,
		})
	}
	if planner != nil && cfg.VIP.Enabled {
		m.loops = append(m.loops, &loopState{
			kind:     loopVIP,
			interval: vipDueCheckInterval,
			run:      m.runVIPIfDue,
		})
	}
	return m
}

// Start launches the loops. Each loop runs immediately once, then on its
// interval.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.loops) == 0 {
		m.mu.Unlock()
		return errors.New("no workflow loops configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, loop := range m.loops {
		loop.logger = m.logger.With(logging.String("loop", string(loop.kind)))
	}
	m.wg.Add(len(m.loops))
	m.mu.Unlock()

	for _, loop := range m.loops {
		go m.runLoop(runCtx, loop)
	}
	return nil
}

// Stop cancels the loops and waits for in-flight iterations to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the loops are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runLoop(ctx context.Context, loop *loopState) {
	defer m.wg.Done()

	ticker := time.NewTicker(loop.interval)
	defer ticker.Stop()

	for {
		if err := loop.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			loop.logger.Error("loop iteration failed", logging.Error(err))
			// Back off briefly so a persistently failing dependency does
			// not spin the loop on its normal cadence.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) runRatioCheck(ctx context.Context) error {
	reading, err := m.ratio.CheckRatio(ctx)
	if err != nil {
		return err
	}
	if reading.Action != ratio.ActionNone {
		m.logger.Info("emergency state changed",
			logging.String("action", string(reading.Action)),
			logging.Float64("ratio", reading.Ratio))
	}
	if err := m.ratio.PruneSnapshots(ctx); err != nil {
		m.logger.Warn("snapshot prune failed", logging.Error(err))
	}
	return nil
}

func (m *Manager) runLifecyclePoll(ctx context.Context) error {
	_, err := m.lifecycle.Poll(ctx)
	return err
}

// runVIPIfDue runs the daily plan once per day at the configured hour. The
// persisted last-run stamp is the dedupe authority, so a daemon restart in
// the same hour does not produce a second run.
func (m *Manager) runVIPIfDue(ctx context.Context) error {
	now := time.Now().UTC()
	if now.Hour() != m.cfg.VIP.RunHour {
		return nil
	}
	state, err := m.store.VIPState(ctx)
	if err != nil {
		return err
	}
	if state.LastRunAt != nil && sameDay(*state.LastRunAt, now) {
		return nil
	}
	outcome, err := m.planner.RunDaily(ctx, now)
	if err != nil {
		return err
	}
	m.logger.Info("vip daily run complete",
		logging.String(logging.FieldDecision, string(outcome.Decision)),
		logging.Int64("points_spent", outcome.PointsSpent))
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
