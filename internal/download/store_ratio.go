package download

import (
	"context"
	"fmt"
	"time"
)

// AppendRatioSnapshot writes one immutable reading to the audit trail.
func (s *Store) AppendRatioSnapshot(ctx context.Context, snapshot RatioSnapshot) error {
	takenAt := snapshot.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ratio_snapshots (taken_at, ratio, emergency_active, seeding_allocation, bonus_points)
         VALUES (?, ?, ?, ?, ?)`,
		takenAt.UTC().Format(time.RFC3339Nano),
		snapshot.Ratio,
		boolToInt(snapshot.EmergencyActive),
		snapshot.SeedingAllocation,
		snapshot.BonusPoints,
	)
	if err != nil {
		return fmt.Errorf("append ratio snapshot: %w", err)
	}
	return nil
}

// RatioSnapshotsSince returns snapshots taken at or after the cutoff,
// oldest first.
func (s *Store) RatioSnapshotsSince(ctx context.Context, cutoff time.Time) ([]RatioSnapshot, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, taken_at, ratio, emergency_active, seeding_allocation, bonus_points
         FROM ratio_snapshots WHERE taken_at >= ? ORDER BY taken_at`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query ratio snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []RatioSnapshot
	for rows.Next() {
		var (
			snapshot RatioSnapshot
			takenRaw string
			active   int
		)
		if err := rows.Scan(&snapshot.ID, &takenRaw, &snapshot.Ratio, &active, &snapshot.SeedingAllocation, &snapshot.BonusPoints); err != nil {
			return nil, err
		}
		snapshot.EmergencyActive = active != 0
		if taken, err := parseTimeString(takenRaw); err == nil {
			snapshot.TakenAt = taken
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// PruneRatioSnapshots removes readings older than the cutoff and returns the
// number deleted.
func (s *Store) PruneRatioSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM ratio_snapshots WHERE taken_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune ratio snapshots: %w", err)
	}
	return res.RowsAffected()
}
