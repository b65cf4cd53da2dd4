package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
	"seedkeeper/internal/integrity"
	"seedkeeper/internal/logging"
	"seedkeeper/internal/notifications"
	"seedkeeper/internal/tracker"
	"seedkeeper/internal/transfer"
)

// seedingShare is the normal fraction of slots reserved for seeding.
const seedingShare = 0.7

// baseAdmitPerPoll is how many queued acquisitions one poll may start at the
// neutral admission rate. Promotions scale it up or down.
const baseAdmitPerPoll = 4

// MetadataPipeline receives verified acquisitions. The real pipeline lives
// outside this subsystem; the noop default keeps the flow testable.
type MetadataPipeline interface {
	Process(ctx context.Context, item *download.Acquisition) error
}

// NoopPipeline discards verified acquisitions.
type NoopPipeline struct{}

func (NoopPipeline) Process(context.Context, *download.Acquisition) error { return nil }

// AdmissionGate answers whether a ratio-costing acquisition may start
// transferring right now.
type AdmissionGate interface {
	BlockPaidDownload(ctx context.Context, item *download.Acquisition) bool
}

// Verifier validates a completed acquisition.
type Verifier interface {
	Verify(ctx context.Context, item *download.Acquisition) (integrity.Result, error)
}

// AlternateFinder locates and queues a replacement release after an
// integrity failure.
type AlternateFinder interface {
	QueueAlternate(ctx context.Context, failed *download.Acquisition) (*download.Acquisition, *tracker.Release, error)
}

// Monitor owns the poll-diff loop and the completion pipeline.
type Monitor struct {
	store      *download.Store
	client     transfer.Client
	verifier   Verifier
	alternates AlternateFinder
	gate       AdmissionGate
	pipeline   MetadataPipeline
	notifier   notifications.Service
	cfg        config.Workflow
	logger     *slog.Logger

	mu            sync.Mutex
	previous      map[string]transfer.State
	emergency     bool
	lastSeedSlots int
	admissionRate float64
}

// NewMonitor constructs the lifecycle monitor. Gate, pipeline, alternates,
// and notifier may be nil; the matching behaviors are then skipped (a nil
// pipeline defaults to the noop).
func NewMonitor(store *download.Store, client transfer.Client, verifier Verifier, alternates AlternateFinder, gate AdmissionGate, pipeline MetadataPipeline, notifier notifications.Service, cfg config.Workflow, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pipeline == nil {
		pipeline = NoopPipeline{}
	}
	return &Monitor{
		store:         store,
		client:        client,
		verifier:      verifier,
		alternates:    alternates,
		gate:          gate,
		pipeline:      pipeline,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logging.WithComponent(logger, "lifecycle"),
		previous:      make(map[string]transfer.State),
		lastSeedSlots: -1,
		admissionRate: 1.0,
	}
}

// SetAdmissionRate scales how many queued acquisitions each poll may admit.
// The promotional-strategy loop feeds it; non-positive values reset to the
// neutral rate.
func (m *Monitor) SetAdmissionRate(multiplier float64) {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	m.mu.Lock()
	m.admissionRate = multiplier
	m.mu.Unlock()
}

// Poll runs one iteration: observe, diff, complete, recover, rebalance,
// admit. It returns the completion events it acted on.
func (m *Monitor) Poll(ctx context.Context) ([]CompletionEvent, error) {
	items, err := m.client.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	m.mu.Lock()
	events := detectCompletions(m.previous, items, now)
	next := make(map[string]transfer.State, len(items))
	for _, item := range items {
		next[item.Handle] = item.State
	}
	m.previous = next
	m.mu.Unlock()

	for _, event := range events {
		if _, err := m.OnItemCompleted(ctx, event); err != nil {
			m.logger.Error("completion handling failed",
				logging.String(logging.FieldClientHandle, event.Handle),
				logging.Error(err))
		}
	}

	m.recoverStuck(ctx, items)
	m.rebalance(ctx, items)
	m.admitQueued(ctx)
	return events, nil
}

// OnItemCompleted runs the completion pipeline for one event. It is
// idempotent: when the matching acquisition's persisted status shows the
// completion was already handled, nothing happens and false is returned.
func (m *Monitor) OnItemCompleted(ctx context.Context, event CompletionEvent) (bool, error) {
	item, err := m.store.GetByClientHandle(ctx, event.Handle)
	if err != nil {
		return false, err
	}
	if item == nil {
		// Fall back to a title match for transfers enqueued out of band.
		item, err = m.store.FindAcceptedByWork(ctx, event.Name, "")
		if err != nil {
			return false, err
		}
	}
	if item == nil {
		m.logger.Warn("completed transfer has no acquisition",
			logging.String(logging.FieldClientHandle, event.Handle),
			logging.String("name", event.Name))
		return false, nil
	}
	if item.Status.CompletionHandled() {
		m.logger.Debug("completion already handled",
			logging.Int64(logging.FieldAcquisitionID, item.ID),
			logging.String("status", string(item.Status)))
		return false, nil
	}

	// Walk the acquisition to transferred; a restart may have left it
	// still marked queued.
	if item.Status == download.StatusQueued {
		if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusQueued, download.StatusDownloading); err != nil {
			return false, err
		}
		item.Status = download.StatusDownloading
	}
	moved, err := m.store.TransitionStatus(ctx, item.ID, download.StatusDownloading, download.StatusTransferred)
	if err != nil {
		return false, err
	}
	if !moved {
		// Another poll got here first.
		return false, nil
	}
	m.logger.Info("transfer completed",
		logging.Int64(logging.FieldAcquisitionID, item.ID),
		logging.String(logging.FieldClientHandle, event.Handle),
		logging.String("from", string(event.From)),
		logging.String("to", string(event.To)))

	return true, m.verifyAndSettle(ctx, item.ID)
}

// verifyAndSettle advances transferred -> verifying and branches on the
// verification outcome.
func (m *Monitor) verifyAndSettle(ctx context.Context, id int64) error {
	if _, err := m.store.TransitionStatus(ctx, id, download.StatusTransferred, download.StatusVerifying); err != nil {
		return err
	}
	item, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.verifier == nil {
		return m.settle(ctx, item)
	}

	result, err := m.verifier.Verify(ctx, item)
	if err != nil {
		return err
	}
	if _, auditErr := m.store.AppendAudit(ctx, "integrity_check", map[string]any{
		"acquisition_id": item.ID,
		"passed":         result.Passed,
		"errors":         result.Errors,
	}); auditErr != nil {
		m.logger.Error("integrity audit write failed", logging.Error(auditErr))
	}
	if result.Passed {
		item.IntegrityStatus = download.IntegrityPassed
		if err := m.store.Update(ctx, item); err != nil {
			return err
		}
		return m.settle(ctx, item)
	}
	return m.handleCorrupt(ctx, item, result)
}

func (m *Monitor) settle(ctx context.Context, item *download.Acquisition) error {
	if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusVerifying, download.StatusProcessingMetadata); err != nil {
		return err
	}
	if err := m.pipeline.Process(ctx, item); err != nil {
		// The pipeline is external; its failures leave the item parked in
		// processing for the next poll rather than poisoning the loop.
		m.logger.Error("metadata pipeline failed",
			logging.Int64(logging.FieldAcquisitionID, item.ID),
			logging.Error(err))
		return err
	}
	if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusProcessingMetadata, download.StatusSettled); err != nil {
		return err
	}
	m.logger.Info("acquisition settled", logging.Int64(logging.FieldAcquisitionID, item.ID))
	if m.notifier != nil {
		if err := m.notifier.NotifyAcquisitionSettled(ctx, item.Title); err != nil {
			m.logger.Warn("settled notification failed", logging.Error(err))
		}
	}
	return nil
}

// handleCorrupt marks the item corrupt and asks for an alternate release.
// The corrupt payload keeps seeding for ratio credit; cleanup is someone
// else's slower-moving concern.
func (m *Monitor) handleCorrupt(ctx context.Context, item *download.Acquisition, result integrity.Result) error {
	if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusVerifying, download.StatusCorrupt); err != nil {
		return err
	}
	item.Status = download.StatusCorrupt
	item.IntegrityStatus = download.IntegrityFailed
	item.RetryCount++
	if err := m.store.Update(ctx, item); err != nil {
		return err
	}
	m.logger.Warn("verification failed",
		logging.Int64(logging.FieldAcquisitionID, item.ID),
		logging.Int("retry_count", item.RetryCount),
		logging.Any("errors", result.Errors))
	if m.notifier != nil {
		if err := m.notifier.NotifyIntegrityFailure(ctx, item.Title, result.Errors); err != nil {
			m.logger.Warn("integrity notification failed", logging.Error(err))
		}
	}

	if item.RetryCount >= download.MaxRetries {
		if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusCorrupt, download.StatusAbandoned); err != nil {
			return err
		}
		m.logger.Warn("retries exhausted, acquisition abandoned",
			logging.Int64(logging.FieldAcquisitionID, item.ID))
		return nil
	}
	if m.alternates == nil {
		return nil
	}
	replacement, release, err := m.alternates.QueueAlternate(ctx, item)
	if err != nil {
		return err
	}
	if replacement != nil && release != nil && release.SourceURL != "" {
		if err := m.client.Enqueue(ctx, transfer.EnqueueRequest{SourceURL: release.SourceURL, SavePath: item.DownloadDir}); err != nil {
			m.logger.Error("alternate enqueue failed",
				logging.Int64(logging.FieldAcquisitionID, replacement.ID),
				logging.Error(err))
		}
	}
	return nil
}

// recoverStuck force-resumes stalled and errored transfers. Best effort:
// failures are logged, never escalated.
func (m *Monitor) recoverStuck(ctx context.Context, items []transfer.Item) {
	var handles []string
	for _, item := range items {
		if item.State.NeedsIntervention() {
			handles = append(handles, item.Handle)
		}
	}
	if len(handles) == 0 {
		return
	}
	m.logger.Info("force-resuming stuck transfers", logging.Int("count", len(handles)))
	if err := m.client.ForceResume(ctx, handles...); err != nil {
		m.logger.Warn("force resume failed", logging.Error(err))
	}
}

// rebalance nudges the client's seed slot limit toward the target mix:
// roughly 70% seeding normally, everything during an emergency.
func (m *Monitor) rebalance(ctx context.Context, items []transfer.Item) {
	if m.cfg.SeedSlotTotal <= 0 {
		return
	}
	m.mu.Lock()
	emergency := m.emergency
	last := m.lastSeedSlots
	m.mu.Unlock()

	desired := m.cfg.SeedSlotTotal
	if !emergency {
		desired = int(float64(m.cfg.SeedSlotTotal)*seedingShare + 0.5)
	}
	if desired == last {
		return
	}
	if err := m.client.SetSeedSlotLimit(ctx, desired); err != nil {
		m.logger.Warn("seed slot adjustment failed", logging.Error(err))
		return
	}
	m.mu.Lock()
	m.lastSeedSlots = desired
	m.mu.Unlock()
	m.logger.Info("seed slots adjusted",
		logging.Int("slots", desired),
		logging.Bool("emergency", emergency))
}

// AdmissionRate returns the current per-poll admission multiplier.
func (m *Monitor) AdmissionRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admissionRate
}

// admitQueued starts queued acquisitions that pass the admission gate and
// carry a source to enqueue. The per-poll batch is capped by the current
// admission rate; at least one item always qualifies.
func (m *Monitor) admitQueued(ctx context.Context) {
	queued, err := m.store.List(ctx, download.StatusQueued)
	if err != nil {
		m.logger.Error("list queued failed", logging.Error(err))
		return
	}
	m.mu.Lock()
	rate := m.admissionRate
	m.mu.Unlock()
	limit := int(baseAdmitPerPoll*rate + 0.5)
	if limit < 1 {
		limit = 1
	}
	admitted := 0
	for _, item := range queued {
		if admitted >= limit {
			break
		}
		if item.Blocked {
			continue
		}
		if m.gate != nil && m.gate.BlockPaidDownload(ctx, item) {
			continue
		}
		if item.SourceURL == "" {
			continue
		}
		if err := m.client.Enqueue(ctx, transfer.EnqueueRequest{SourceURL: item.SourceURL, SavePath: item.DownloadDir}); err != nil {
			m.logger.Warn("enqueue failed",
				logging.Int64(logging.FieldAcquisitionID, item.ID),
				logging.Error(err))
			continue
		}
		if _, err := m.store.TransitionStatus(ctx, item.ID, download.StatusQueued, download.StatusDownloading); err != nil {
			m.logger.Error("mark downloading failed",
				logging.Int64(logging.FieldAcquisitionID, item.ID),
				logging.Error(err))
			continue
		}
		admitted++
		m.logger.Info("acquisition admitted",
			logging.Int64(logging.FieldAcquisitionID, item.ID),
			logging.String("title", item.Title))
	}
}

// SetEmergencyAllocation is the lever the ratio monitor pulls. Emergency
// pushes allocation fully toward seeding: pause incomplete transfers,
// resume seeds, open every slot to uploads. Deactivation restores the
// normal mix and resumes what was paused.
func (m *Monitor) SetEmergencyAllocation(ctx context.Context, emergency bool) error {
	m.mu.Lock()
	m.emergency = emergency
	m.lastSeedSlots = -1
	m.mu.Unlock()

	items, err := m.client.ListItems(ctx)
	if err != nil {
		return err
	}

	var incomplete, seeding []string
	for _, item := range items {
		switch {
		case item.State.Completed():
			seeding = append(seeding, item.Handle)
		case item.State == transfer.StateDownloading || item.State == transfer.StateQueued || item.State == transfer.StateStalled || item.State == transfer.StatePaused:
			incomplete = append(incomplete, item.Handle)
		}
	}

	if emergency {
		if err := m.client.Pause(ctx, incomplete...); err != nil {
			m.logger.Error("emergency pause failed", logging.Error(err))
		}
		if err := m.client.Resume(ctx, seeding...); err != nil {
			m.logger.Error("emergency seed resume failed", logging.Error(err))
		}
	} else {
		if err := m.client.Resume(ctx, incomplete...); err != nil {
			m.logger.Error("allocation restore resume failed", logging.Error(err))
		}
	}
	m.rebalance(ctx, items)
	return nil
}
