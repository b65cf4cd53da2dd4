package workflow

import (
	"context"
	"time"

	"seedkeeper/internal/logging"
	"seedkeeper/internal/promo"
	"seedkeeper/internal/quality"
	"seedkeeper/internal/tracker"
)

const loopPromo loopKind = "promo"

// ConfigurePromo registers the promotional-strategy refresh loop, which
// feeds active tracker promotions into the quality engine's floor and the
// lifecycle monitor's admission rate. Must be called before Start.
func (m *Manager) ConfigurePromo(client tracker.Client, engine *quality.Engine) {
	if client == nil || engine == nil {
		return
	}
	m.promoClient = client
	m.engine = engine
	m.strategy = promo.Neutral(m.cfg.Quality.GlobalFloor)
	m.loops = append(m.loops, &loopState{
		kind:     loopPromo,
		interval: time.Duration(m.cfg.Ratio.CheckInterval) * time.Second,
		run:      m.runPromoRefresh,
	})
}

func (m *Manager) runPromoRefresh(ctx context.Context) error {
	events, err := m.promoClient.FetchPromotionalEvents(ctx)
	if err != nil {
		return err
	}
	strategy := promo.Advise(events, m.cfg.Quality.GlobalFloor, time.Now().UTC())
	m.engine.SetQualityFloor(strategy.QualityFloor)
	if m.lifecycle != nil {
		m.lifecycle.SetAdmissionRate(strategy.RateMultiplier)
	}

	m.mu.Lock()
	changed := strategy.RateMultiplier != m.strategy.RateMultiplier || strategy.QualityFloor != m.strategy.QualityFloor
	m.strategy = strategy
	m.mu.Unlock()

	if changed {
		m.logger.Info("promotional strategy updated",
			logging.Float64("rate_multiplier", strategy.RateMultiplier),
			logging.Float64("quality_floor", strategy.QualityFloor),
			logging.Int("active_events", len(strategy.ActiveEvents)))
	}
	return nil
}

// Strategy returns the most recent promotional strategy.
func (m *Manager) Strategy() promo.Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategy
}
