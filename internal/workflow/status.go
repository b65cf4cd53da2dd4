package workflow

import (
	"context"

	"seedkeeper/internal/download"
	"seedkeeper/internal/logging"
)

// StatusSummary aggregates daemon diagnostics for the CLI.
type StatusSummary struct {
	Running   bool
	LastError string
	Queue     download.HealthSummary
	Emergency download.EmergencyState
	VIP       download.VIPState
}

// Status returns the latest control-loop and store state.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	m.mu.RUnlock()

	summary := StatusSummary{Running: running}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	if queue, err := m.store.Health(ctx); err != nil {
		m.logger.Warn("queue health read failed", logging.Error(err))
	} else {
		summary.Queue = queue
	}
	if emergency, err := m.store.EmergencyState(ctx); err != nil {
		m.logger.Warn("emergency state read failed", logging.Error(err))
	} else {
		summary.Emergency = emergency
	}
	if vipState, err := m.store.VIPState(ctx); err != nil {
		m.logger.Warn("vip state read failed", logging.Error(err))
	} else {
		summary.VIP = vipState
	}
	return summary
}
