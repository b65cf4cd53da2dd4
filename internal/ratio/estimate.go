package ratio

import (
	"context"
	"encoding/json"
	"time"
)

// RecoveryTimeEstimate projects how long the ratio needs to climb from the
// current reading to the recovery threshold, based on the slope of recent
// snapshots. Informational only, never a control input. The second return
// is false when no estimate is possible (no emergency, too few snapshots,
// or a flat/falling trend).
func (m *Monitor) RecoveryTimeEstimate(ctx context.Context) (time.Duration, bool, error) {
	state, err := m.store.EmergencyState(ctx)
	if err != nil {
		return 0, false, err
	}
	if !state.Active {
		return 0, false, nil
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	snapshots, err := m.store.RatioSnapshotsSince(ctx, cutoff)
	if err != nil {
		return 0, false, err
	}
	if len(snapshots) < 2 {
		return 0, false, nil
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	elapsed := last.TakenAt.Sub(first.TakenAt)
	if elapsed <= 0 {
		return 0, false, nil
	}
	slope := (last.Ratio - first.Ratio) / elapsed.Hours()
	if slope <= 0 {
		return 0, false, nil
	}

	gap := m.cfg.Recovery - last.Ratio
	if gap <= 0 {
		return 0, true, nil
	}
	hours := gap / slope
	return time.Duration(hours * float64(time.Hour)), true, nil
}

type vipAuditDetails struct {
	Decision    string `json:"decision"`
	PointsSpent int64  `json:"points_spent"`
}

// PointROI reports points earned per point spent on VIP renewals over the
// window: snapshots supply the bonus-point trajectory, the VIP audit trail
// supplies spending. Advisory only. The second return is false when nothing
// was spent in the window.
func (m *Monitor) PointROI(ctx context.Context, window time.Duration) (float64, bool, error) {
	cutoff := time.Now().UTC().Add(-window)

	snapshots, err := m.store.RatioSnapshotsSince(ctx, cutoff)
	if err != nil {
		return 0, false, err
	}

	var spent int64
	records, err := m.store.ListAudit(ctx, "vip_plan", 200)
	if err != nil {
		return 0, false, err
	}
	for _, record := range records {
		if record.CreatedAt.Before(cutoff) {
			continue
		}
		var details vipAuditDetails
		if err := json.Unmarshal([]byte(record.Details), &details); err != nil {
			continue
		}
		spent += details.PointsSpent
	}
	if spent == 0 {
		return 0, false, nil
	}

	var earned int64
	if len(snapshots) >= 2 {
		first, last := snapshots[0], snapshots[len(snapshots)-1]
		// Spending subtracts from the balance, so add it back to see what
		// the account actually earned.
		earned = last.BonusPoints - first.BonusPoints + spent
	}
	return float64(earned) / float64(spent), true, nil
}
