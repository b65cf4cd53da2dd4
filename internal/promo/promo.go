// Package promo turns active tracker promotions into acquisition strategy
// adjustments: how aggressively to admit new downloads and how picky the
// quality gate should be while the promotion lasts.
package promo

import (
	"time"

	"seedkeeper/internal/tracker"
)

// Strategy is the advisory output applied on top of the configured defaults.
// RateMultiplier scales admission throughput; QualityFloor replaces the
// configured minimum acceptance score.
type Strategy struct {
	RateMultiplier float64
	QualityFloor   float64
	ActiveEvents   []tracker.PromotionalEvent
}

// Neutral returns the no-promotion strategy for a given configured floor.
func Neutral(qualityFloor float64) Strategy {
	return Strategy{RateMultiplier: 1.0, QualityFloor: qualityFloor}
}

// Advise composes the strategy adjustments of every event active at the
// given instant. Adjustments apply in a fixed kind order so overlapping
// promotions always compose the same way:
//
//	freeleech:         rate x2.0, floor relaxed down to at most 40
//	bonus_points:      rate x1.5, floor relaxed down to at most 60
//	upload_multiplier: rate x0.8, floor raised to at least 70
func Advise(events []tracker.PromotionalEvent, qualityFloor float64, now time.Time) Strategy {
	strategy := Neutral(qualityFloor)
	for _, kind := range []tracker.EventKind{tracker.EventFreeleech, tracker.EventBonusPoints, tracker.EventUploadMultiplier} {
		for _, event := range events {
			if event.Kind != kind || !event.Active(now) {
				continue
			}
			strategy.ActiveEvents = append(strategy.ActiveEvents, event)
			switch kind {
			case tracker.EventFreeleech:
				strategy.RateMultiplier *= 2.0
				strategy.QualityFloor = min(strategy.QualityFloor, 40)
			case tracker.EventBonusPoints:
				strategy.RateMultiplier *= 1.5
				strategy.QualityFloor = min(strategy.QualityFloor, 60)
			case tracker.EventUploadMultiplier:
				strategy.RateMultiplier *= 0.8
				strategy.QualityFloor = max(strategy.QualityFloor, 70)
			}
		}
	}
	return strategy
}
