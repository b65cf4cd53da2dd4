package ratio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
	"seedkeeper/internal/logging"
	"seedkeeper/internal/notifications"
	"seedkeeper/internal/services"
	"seedkeeper/internal/tracker"
)

// Action is the tagged outcome of one ratio check.
type Action string

const (
	ActionNone        Action = "none"
	ActionActivated   Action = "activated"
	ActionDeactivated Action = "deactivated"
)

// Reading is the result of one check iteration.
type Reading struct {
	Ratio           float64
	EmergencyActive bool
	Action          Action
}

// RatioSource provides the current tracker ratio.
type RatioSource interface {
	FetchRatio(ctx context.Context) (float64, error)
}

// AccountStatsSource is the richer reading a full tracker client offers.
// When the source implements it, each check costs one request and the
// bonus-point balance lands in the snapshot alongside the ratio.
type AccountStatsSource interface {
	FetchAccountStats(ctx context.Context) (tracker.AccountStats, error)
}

// AllocationController is the lifecycle lever the monitor pulls on toggles:
// emergency pushes allocation fully toward seeding, deactivation restores
// the normal mix.
type AllocationController interface {
	SetEmergencyAllocation(ctx context.Context, emergency bool) error
}

// Monitor owns the NORMAL/EMERGENCY state machine. All cross-loop state
// lives in the store; the only in-memory state is the last good reading.
type Monitor struct {
	store     *download.Store
	source    RatioSource
	allocator AllocationController
	notifier  notifications.Service
	cfg       config.Ratio
	logger    *slog.Logger

	mu         sync.Mutex
	lastRatio  float64
	lastPoints int64
	haveRatio  bool
}

// NewMonitor constructs the controller. The allocator and notifier may be
// nil in tests; side effects on them are then skipped.
func NewMonitor(store *download.Store, source RatioSource, allocator AllocationController, notifier notifications.Service, cfg config.Ratio, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		store:     store,
		source:    source,
		allocator: allocator,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "ratio"),
	}
}

// LastRatio returns the most recent good reading, if any.
func (m *Monitor) LastRatio() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRatio, m.haveRatio
}

// CheckRatio runs one controller iteration: fetch, compare against the
// hysteresis band, toggle if needed, snapshot.
//
// A failed fetch keeps the last known reading and never deactivates an
// active emergency; missing data defaults to the restrictive state.
func (m *Monitor) CheckRatio(ctx context.Context) (Reading, error) {
	state, err := m.store.EmergencyState(ctx)
	if err != nil {
		return Reading{}, err
	}

	current, points, err := m.fetchReading(ctx)
	if err != nil {
		m.logger.Warn("ratio fetch failed, retaining last reading",
			logging.Error(err),
			logging.Bool("emergency_active", state.Active))
		last, ok := m.LastRatio()
		if !ok {
			last = state.LastRatio
		}
		return Reading{Ratio: last, EmergencyActive: state.Active, Action: ActionNone}, err
	}

	m.mu.Lock()
	m.lastRatio = current
	m.lastPoints = points
	m.haveRatio = true
	m.mu.Unlock()

	reading := Reading{Ratio: current, EmergencyActive: state.Active, Action: ActionNone}
	switch {
	case !state.Active && current < m.cfg.Floor:
		if err := m.activateEmergency(ctx, current); err != nil {
			return reading, err
		}
		reading.EmergencyActive = true
		reading.Action = ActionActivated
	case state.Active && current >= m.cfg.Recovery:
		if err := m.deactivateEmergency(ctx, current); err != nil {
			return reading, err
		}
		reading.EmergencyActive = false
		reading.Action = ActionDeactivated
	default:
		// Inside the band, or already in the right state: record only.
		if err := m.store.RecordEmergencyRatio(ctx, current); err != nil {
			m.logger.Warn("record ratio failed", logging.Error(err))
		}
		if err := m.snapshot(ctx, current, state.Active); err != nil {
			m.logger.Warn("ratio snapshot failed", logging.Error(err))
		}
	}
	return reading, nil
}

// activateEmergency performs the activation side effects as one logical
// unit. The persisted toggle goes first; every later step logs partial
// failure instead of rolling back, so discrepancies stay visible for
// reconciliation.
func (m *Monitor) activateEmergency(ctx context.Context, current float64) error {
	changed, err := m.store.SetEmergencyActive(ctx, true, current)
	if err != nil {
		return err
	}
	if !changed {
		// Already active: another activation is a no-op.
		return nil
	}
	m.logger.Warn("ratio emergency activated",
		logging.Float64("ratio", current),
		logging.Float64("floor", m.cfg.Floor))

	blocked, err := m.store.BlockPaidAcquisitions(ctx)
	if err != nil {
		m.logger.Error("emergency activated but admission block failed", logging.Error(err))
	} else {
		m.logger.Info("paid acquisitions blocked", logging.Int64("affected", blocked))
	}

	if m.allocator != nil {
		if err := m.allocator.SetEmergencyAllocation(ctx, true); err != nil {
			m.logger.Error("emergency activated but allocation shift failed", logging.Error(err))
		}
	}

	if _, err := m.store.AppendAudit(ctx, "emergency_toggle", map[string]any{
		"action":  "activated",
		"ratio":   current,
		"floor":   m.cfg.Floor,
		"blocked": blocked,
	}); err != nil {
		m.logger.Error("emergency audit write failed", logging.Error(err))
	}

	if err := m.snapshot(ctx, current, true); err != nil {
		m.logger.Warn("ratio snapshot failed", logging.Error(err))
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyEmergencyActivated(ctx, current, m.cfg.Floor); err != nil {
			m.logger.Warn("emergency notification failed", logging.Error(err))
		}
	}
	return nil
}

// deactivateEmergency mirrors activation: clear blocks, restore allocation,
// audit, snapshot, notify.
func (m *Monitor) deactivateEmergency(ctx context.Context, current float64) error {
	changed, err := m.store.SetEmergencyActive(ctx, false, current)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	m.logger.Info("ratio emergency deactivated",
		logging.Float64("ratio", current),
		logging.Float64("recovery", m.cfg.Recovery))

	unblocked, err := m.store.UnblockAcquisitions(ctx)
	if err != nil {
		m.logger.Error("emergency cleared but unblock failed", logging.Error(err))
	} else {
		m.logger.Info("acquisitions unblocked", logging.Int64("affected", unblocked))
	}

	if m.allocator != nil {
		if err := m.allocator.SetEmergencyAllocation(ctx, false); err != nil {
			m.logger.Error("emergency cleared but allocation restore failed", logging.Error(err))
		}
	}

	if _, err := m.store.AppendAudit(ctx, "emergency_toggle", map[string]any{
		"action":    "deactivated",
		"ratio":     current,
		"recovery":  m.cfg.Recovery,
		"unblocked": unblocked,
	}); err != nil {
		m.logger.Error("emergency audit write failed", logging.Error(err))
	}

	if err := m.snapshot(ctx, current, false); err != nil {
		m.logger.Warn("ratio snapshot failed", logging.Error(err))
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyEmergencyDeactivated(ctx, current, m.cfg.Recovery); err != nil {
			m.logger.Warn("recovery notification failed", logging.Error(err))
		}
	}
	return nil
}

// fetchReading prefers a full account-stats read so the bonus-point
// balance rides along for free; a plain ratio source yields zero points.
func (m *Monitor) fetchReading(ctx context.Context) (float64, int64, error) {
	if source, ok := m.source.(AccountStatsSource); ok {
		stats, err := source.FetchAccountStats(ctx)
		if err != nil {
			return 0, 0, err
		}
		return stats.Ratio, stats.BonusPoints, nil
	}
	current, err := m.source.FetchRatio(ctx)
	return current, 0, err
}

func (m *Monitor) snapshot(ctx context.Context, current float64, emergency bool) error {
	allocation := 0.7
	if emergency {
		allocation = 1.0
	}
	m.mu.Lock()
	points := m.lastPoints
	m.mu.Unlock()
	return m.store.AppendRatioSnapshot(ctx, download.RatioSnapshot{
		TakenAt:           time.Now().UTC(),
		Ratio:             current,
		EmergencyActive:   emergency,
		SeedingAllocation: allocation,
		BonusPoints:       points,
	})
}

// BlockPaidDownload is the synchronous admission check consulted before any
// acquisition enters an active-transfer state. Free release types are never
// blocked. On any uncertainty the answer is the conservative one: block.
func (m *Monitor) BlockPaidDownload(ctx context.Context, item *download.Acquisition) bool {
	if item != nil && !item.ReleaseType.CostsRatio() {
		return false
	}
	state, err := m.store.EmergencyState(ctx)
	if err != nil {
		m.logger.Error("admission check failed closed", logging.Error(err))
		return true
	}
	return state.Active
}

// EmergencyActive reports the persisted emergency flag.
func (m *Monitor) EmergencyActive(ctx context.Context) (bool, error) {
	state, err := m.store.EmergencyState(ctx)
	if err != nil {
		return false, services.Wrap(nil, "ratio", "emergency state", "read failed", err)
	}
	return state.Active, nil
}

// PruneSnapshots drops snapshots older than the configured retention.
func (m *Monitor) PruneSnapshots(ctx context.Context) error {
	if m.cfg.SnapshotRetention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.SnapshotRetention)
	pruned, err := m.store.PruneRatioSnapshots(ctx, cutoff)
	if err != nil {
		return err
	}
	if pruned > 0 {
		m.logger.Debug("pruned ratio snapshots", logging.Int64("count", pruned))
	}
	return nil
}
