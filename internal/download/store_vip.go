package download

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// VIPState returns the persisted membership singleton.
func (s *Store) VIPState(ctx context.Context) (VIPState, error) {
	var (
		status       string
		expiresRaw   sql.NullString
		points       int64
		lastDecision sql.NullString
		lastRunRaw   sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT status, expires_at, points, last_decision, last_run_at FROM vip_state WHERE id = 1`,
	).Scan(&status, &expiresRaw, &points, &lastDecision, &lastRunRaw)
	if err != nil {
		return VIPState{}, fmt.Errorf("read vip state: %w", err)
	}
	return VIPState{
		Status:       status,
		ExpiresAt:    parseTimePtr(expiresRaw),
		Points:       points,
		LastDecision: lastDecision.String,
		LastRunAt:    parseTimePtr(lastRunRaw),
	}, nil
}

// SaveVIPState persists the membership singleton.
func (s *Store) SaveVIPState(ctx context.Context, state VIPState) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE vip_state
         SET status = ?, expires_at = ?, points = ?, last_decision = ?, last_run_at = ?
         WHERE id = 1`,
		state.Status,
		nullableTime(state.ExpiresAt),
		state.Points,
		nullableString(state.LastDecision),
		nullableTime(state.LastRunAt),
	)
	if err != nil {
		return fmt.Errorf("save vip state: %w", err)
	}
	return nil
}

// SavePromoRules replaces the cached promotional rules for a category.
func (s *Store) SavePromoRules(ctx context.Context, category, rulesJSON string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO promo_rules (category, rules_json, refreshed_at) VALUES (?, ?, ?)
         ON CONFLICT(category) DO UPDATE SET rules_json = excluded.rules_json, refreshed_at = excluded.refreshed_at`,
		category,
		rulesJSON,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save promo rules: %w", err)
	}
	return nil
}

// PromoRules returns the cached rules JSON for a category, or "" when the
// category has never been scraped.
func (s *Store) PromoRules(ctx context.Context, category string) (string, error) {
	var rulesJSON string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT rules_json FROM promo_rules WHERE category = ?`,
		category,
	).Scan(&rulesJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read promo rules: %w", err)
	}
	return rulesJSON, nil
}
