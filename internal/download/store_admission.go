package download

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ratioFreeTypes are the release types exempt from emergency admission
// control.
var ratioFreeTypes = []ReleaseType{ReleaseFreeNoRatio, ReleaseFree}

// BlockPaidAcquisitions marks every queued ratio-costing acquisition blocked
// and flags active ones. Both writes are conditional bulk updates filtered
// by current state, so an acquisition queued concurrently can never slip
// through with a stale admission flag.
func (s *Store) BlockPaidAcquisitions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	freeList, freeArgs := releaseTypeFilter()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE acquisitions
         SET status = ?, blocked = 1, updated_at = ?
         WHERE status = ? AND release_type NOT IN (`+freeList+`)`,
		append([]any{StatusBlocked, now, StatusQueued}, freeArgs...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("block queued acquisitions: %w", err)
	}
	queued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE acquisitions
         SET blocked = 1, updated_at = ?
         WHERE status = ? AND release_type NOT IN (`+freeList+`)`,
		append([]any{now, StatusDownloading}, freeArgs...)...,
	)
	if err != nil {
		return queued, fmt.Errorf("flag active acquisitions: %w", err)
	}
	active, err := res.RowsAffected()
	if err != nil {
		return queued, fmt.Errorf("rows affected: %w", err)
	}
	return queued + active, nil
}

// UnblockAcquisitions clears admission blocks set during an emergency:
// blocked items return to queued and active items lose the flag.
func (s *Store) UnblockAcquisitions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE acquisitions SET status = ?, blocked = 0, updated_at = ? WHERE status = ?`,
		StatusQueued,
		now,
		StatusBlocked,
	)
	if err != nil {
		return 0, fmt.Errorf("unblock queued acquisitions: %w", err)
	}
	restored, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE acquisitions SET blocked = 0, updated_at = ? WHERE blocked = 1`,
		now,
	)
	if err != nil {
		return restored, fmt.Errorf("clear blocked flags: %w", err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return restored, fmt.Errorf("rows affected: %w", err)
	}
	return restored + cleared, nil
}

func releaseTypeFilter() (string, []any) {
	args := make([]any, len(ratioFreeTypes))
	for i, rt := range ratioFreeTypes {
		args[i] = rt
	}
	return makePlaceholders(len(ratioFreeTypes)), args
}

// EmergencyState returns the persisted controller singleton.
func (s *Store) EmergencyState(ctx context.Context) (EmergencyState, error) {
	var (
		active       sql.NullInt64
		triggeredRaw sql.NullString
		lastRatio    float64
		updatedRaw   sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT active, triggered_at, last_ratio, updated_at FROM emergency_state WHERE id = 1`,
	).Scan(&active, &triggeredRaw, &lastRatio, &updatedRaw)
	if err != nil {
		return EmergencyState{}, fmt.Errorf("read emergency state: %w", err)
	}
	state := EmergencyState{
		Active:      active.Valid && active.Int64 != 0,
		TriggeredAt: parseTimePtr(triggeredRaw),
		LastRatio:   lastRatio,
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}

// SetEmergencyActive flips the emergency singleton with a conditional write:
// the update applies only when the current value differs, making activation
// and deactivation idempotent. Returns whether the state actually changed.
func (s *Store) SetEmergencyActive(ctx context.Context, active bool, ratio float64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var triggered any
	if active {
		triggered = now
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE emergency_state
         SET active = ?, triggered_at = CASE WHEN ? THEN ? ELSE triggered_at END,
             last_ratio = ?, updated_at = ?
         WHERE id = 1 AND active = ?`,
		boolToInt(active),
		boolToInt(active),
		triggered,
		ratio,
		now,
		boolToInt(!active),
	)
	if err != nil {
		return false, fmt.Errorf("set emergency state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordEmergencyRatio refreshes last_ratio without changing activation.
func (s *Store) RecordEmergencyRatio(ctx context.Context, ratio float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE emergency_state SET last_ratio = ?, updated_at = ? WHERE id = 1`,
		ratio,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record emergency ratio: %w", err)
	}
	return nil
}
