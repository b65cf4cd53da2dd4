package vip_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"seedkeeper/internal/download"
	"seedkeeper/internal/quality"
	"seedkeeper/internal/testsupport"
	"seedkeeper/internal/tracker"
	"seedkeeper/internal/vip"
)

type fakeTracker struct {
	stats    tracker.AccountStats
	statsErr error
	rules    []tracker.CategoryRule
	releases []tracker.Release
	receipt  tracker.RenewalReceipt
	renewErr error

	renewCalls []int64
}

func (f *fakeTracker) Authenticate(ctx context.Context) error { return nil }

func (f *fakeTracker) FetchRatio(ctx context.Context) (float64, error) {
	return f.stats.Ratio, f.statsErr
}

func (f *fakeTracker) FetchAccountStats(ctx context.Context) (tracker.AccountStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeTracker) FetchCategoryRules(ctx context.Context) ([]tracker.CategoryRule, error) {
	return f.rules, nil
}

func (f *fakeTracker) FetchPromotionalEvents(ctx context.Context) ([]tracker.PromotionalEvent, error) {
	return nil, nil
}

func (f *fakeTracker) SearchReleases(ctx context.Context, title, author string) ([]tracker.Release, error) {
	return f.releases, nil
}

func (f *fakeTracker) SubmitRenewal(ctx context.Context, costPoints int64) (tracker.RenewalReceipt, error) {
	f.renewCalls = append(f.renewCalls, costPoints)
	return f.receipt, f.renewErr
}

type stubEmergency struct {
	active bool
	err    error
}

func (s stubEmergency) EmergencyActive(ctx context.Context) (bool, error) {
	return s.active, s.err
}

func expiryIn(days int) *time.Time {
	t := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	return &t
}

func newPlanner(t *testing.T, client *fakeTracker, emergency vip.EmergencyChecker) (*vip.Planner, *download.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.VIP.RenewalCost = 1000
	store := testsupport.MustOpenStore(t, cfg)
	engine := quality.NewEngine(store, client, cfg.Quality, nil)
	planner := vip.NewPlanner(store, client, engine, emergency, nil, cfg.VIP, nil)
	return planner, store
}

func lastAudit(t *testing.T, store *download.Store) map[string]any {
	t.Helper()
	records, err := store.ListAudit(context.Background(), "vip_plan", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one audit record per run, got %d", len(records))
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(records[0].Details), &details); err != nil {
		t.Fatalf("audit details: %v", err)
	}
	return details
}

func TestEmergencyAlwaysBlocksRenewal(t *testing.T) {
	// Plenty of points and an imminent expiry: the emergency still wins.
	client := &fakeTracker{stats: tracker.AccountStats{BonusPoints: 50000, VIPExpiresAt: expiryIn(2)}}
	planner, store := newPlanner(t, client, stubEmergency{active: true})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.Decision != vip.DecisionBlockedByEmergency {
		t.Fatalf("expected emergency block, got %s", outcome.Decision)
	}
	if len(client.renewCalls) != 0 {
		t.Fatal("no renewal may be submitted during an emergency")
	}
	details := lastAudit(t, store)
	if details["decision"] != string(vip.DecisionBlockedByEmergency) {
		t.Fatalf("audit decision = %v", details["decision"])
	}
	if details["points_spent"].(float64) != 0 {
		t.Fatalf("audit points_spent = %v", details["points_spent"])
	}
}

func TestDistantExpirySkips(t *testing.T) {
	client := &fakeTracker{stats: tracker.AccountStats{BonusPoints: 50000, VIPExpiresAt: expiryIn(60)}}
	planner, _ := newPlanner(t, client, stubEmergency{})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.Decision != vip.DecisionSkipped {
		t.Fatalf("expected skip, got %s", outcome.Decision)
	}
	if len(client.renewCalls) != 0 {
		t.Fatal("skip must not submit a renewal")
	}
}

func TestLowPointsBlock(t *testing.T) {
	client := &fakeTracker{stats: tracker.AccountStats{BonusPoints: 400, VIPExpiresAt: expiryIn(10)}}
	planner, store := newPlanner(t, client, stubEmergency{})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.Decision != vip.DecisionBlockedLowPoints {
		t.Fatalf("expected low-points block, got %s", outcome.Decision)
	}

	state, err := store.VIPState(context.Background())
	if err != nil {
		t.Fatalf("VIPState: %v", err)
	}
	if state.LastDecision != string(vip.DecisionBlockedLowPoints) {
		t.Fatalf("persisted decision = %q", state.LastDecision)
	}
	if state.Points != 400 {
		t.Fatalf("persisted points = %d", state.Points)
	}
}

func TestRenewSpendsPoints(t *testing.T) {
	newExpiry := time.Now().UTC().Add(90 * 24 * time.Hour)
	client := &fakeTracker{
		stats:   tracker.AccountStats{BonusPoints: 6000, VIPExpiresAt: expiryIn(10)},
		receipt: tracker.RenewalReceipt{PointsSpent: 1000, PointsRemaining: 5000, NewExpiry: newExpiry},
	}
	planner, store := newPlanner(t, client, stubEmergency{})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.Decision != vip.DecisionRenew {
		t.Fatalf("expected renew, got %s", outcome.Decision)
	}
	if len(client.renewCalls) != 1 || client.renewCalls[0] != 1000 {
		t.Fatalf("renewal calls = %v", client.renewCalls)
	}

	state, err := store.VIPState(context.Background())
	if err != nil {
		t.Fatalf("VIPState: %v", err)
	}
	if state.Points != 5000 {
		t.Fatalf("points after renewal = %d", state.Points)
	}
	if state.ExpiresAt == nil || !state.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("expiry after renewal = %v", state.ExpiresAt)
	}

	details := lastAudit(t, store)
	if details["points_spent"].(float64) != 1000 {
		t.Fatalf("audit points_spent = %v", details["points_spent"])
	}
}

func TestRenewalFailureStillAudits(t *testing.T) {
	client := &fakeTracker{
		stats:    tracker.AccountStats{BonusPoints: 6000, VIPExpiresAt: expiryIn(10)},
		renewErr: errors.New("tracker said no"),
	}
	planner, store := newPlanner(t, client, stubEmergency{})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected error from failed renewal")
	}
	if outcome.Decision != vip.DecisionRenew {
		t.Fatalf("decision = %s", outcome.Decision)
	}
	details := lastAudit(t, store)
	if details["points_spent"].(float64) != 0 {
		t.Fatalf("failed renewal must not record spend, got %v", details["points_spent"])
	}
}

func TestRenewalFailureStillRunsChores(t *testing.T) {
	client := &fakeTracker{
		stats:    tracker.AccountStats{BonusPoints: 6000, VIPExpiresAt: expiryIn(10)},
		renewErr: errors.New("tracker said no"),
		rules: []tracker.CategoryRule{
			{Category: "freeleech", CostsRatio: false, BonusRate: 2.0, MinSeedTime: time.Hour},
		},
		releases: []tracker.Release{
			{ID: "r1", Title: "The Wanted Book", Author: "A. Writer", Format: "m4b",
				BitrateKbps: 192, Category: "freeleech", SourceURL: "https://tracker.test/dl/r1"},
		},
	}
	planner, store := newPlanner(t, client, stubEmergency{})
	ctx := context.Background()

	if _, err := store.AddWishlistEntry(ctx, "The Wanted Book", "A. Writer", ""); err != nil {
		t.Fatalf("AddWishlistEntry: %v", err)
	}

	outcome, err := planner.RunDaily(ctx, time.Now().UTC())
	if err == nil {
		t.Fatal("expected error from failed renewal")
	}
	// The chores ride along whatever the renewal outcome.
	if outcome.RulesCached != 1 {
		t.Fatalf("rules cached = %d", outcome.RulesCached)
	}
	if outcome.WishlistPromoted != 1 {
		t.Fatalf("wishlist promoted = %d", outcome.WishlistPromoted)
	}
	details := lastAudit(t, store)
	if details["rules_cached"].(float64) != 1 || details["wishlist_promoted"].(float64) != 1 {
		t.Fatalf("audit chores = %v / %v", details["rules_cached"], details["wishlist_promoted"])
	}
}

func TestPromoRulesCached(t *testing.T) {
	client := &fakeTracker{
		stats: tracker.AccountStats{BonusPoints: 100, VIPExpiresAt: expiryIn(60)},
		rules: []tracker.CategoryRule{
			{Category: "freeleech", CostsRatio: false, BonusRate: 2.0, MinSeedTime: 72 * time.Hour},
			{Category: "premium", CostsRatio: true, BonusRate: 0.5, MinSeedTime: 24 * time.Hour},
		},
	}
	planner, store := newPlanner(t, client, stubEmergency{})

	outcome, err := planner.RunDaily(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.RulesCached != 2 {
		t.Fatalf("rules cached = %d", outcome.RulesCached)
	}

	raw, err := store.PromoRules(context.Background(), "freeleech")
	if err != nil {
		t.Fatalf("PromoRules: %v", err)
	}
	var rule struct {
		CostsRatio     bool    `json:"costs_ratio"`
		BonusRate      float64 `json:"bonus_rate"`
		MinSeedMinutes int     `json:"min_seed_minutes"`
	}
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		t.Fatalf("cached rule: %v", err)
	}
	if rule.CostsRatio || rule.BonusRate != 2.0 || rule.MinSeedMinutes != 72*60 {
		t.Fatalf("cached rule = %+v", rule)
	}
}

func TestWishlistPromotedWhenFree(t *testing.T) {
	client := &fakeTracker{
		stats: tracker.AccountStats{BonusPoints: 100, VIPExpiresAt: expiryIn(60)},
		releases: []tracker.Release{
			{ID: "r1", Title: "The Wanted Book", Author: "A. Writer", Format: "m4b",
				BitrateKbps: 192, Category: "freeleech", SourceURL: "https://tracker.test/dl/r1"},
		},
	}
	planner, store := newPlanner(t, client, stubEmergency{})
	ctx := context.Background()

	if _, err := store.AddWishlistEntry(ctx, "The Wanted Book", "A. Writer", ""); err != nil {
		t.Fatalf("AddWishlistEntry: %v", err)
	}

	outcome, err := planner.RunDaily(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.WishlistPromoted != 1 {
		t.Fatalf("wishlist promoted = %d", outcome.WishlistPromoted)
	}
	queued, err := store.List(ctx, download.StatusQueued)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(queued) != 1 || queued[0].Title != "The Wanted Book" {
		t.Fatalf("queued = %+v", queued)
	}
	if queued[0].ReleaseType != download.ReleaseFreeNoRatio {
		t.Fatalf("release type = %s", queued[0].ReleaseType)
	}

	pending, err := store.PendingWishlist(ctx)
	if err != nil {
		t.Fatalf("PendingWishlist: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("entry should no longer be pending, got %d", len(pending))
	}
}

func TestWishlistPaidHeldDuringEmergency(t *testing.T) {
	client := &fakeTracker{
		stats: tracker.AccountStats{BonusPoints: 100, VIPExpiresAt: expiryIn(60)},
		releases: []tracker.Release{
			{ID: "r2", Title: "Expensive Book", Author: "A. Writer", Format: "m4b",
				BitrateKbps: 192, Category: "premium", SourceURL: "https://tracker.test/dl/r2"},
		},
	}
	planner, store := newPlanner(t, client, stubEmergency{active: true})
	ctx := context.Background()

	if _, err := store.AddWishlistEntry(ctx, "Expensive Book", "A. Writer", ""); err != nil {
		t.Fatalf("AddWishlistEntry: %v", err)
	}
	outcome, err := planner.RunDaily(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	if outcome.WishlistPromoted != 0 {
		t.Fatalf("paid wishlist entry must wait out the emergency, promoted %d", outcome.WishlistPromoted)
	}
	pending, _ := store.PendingWishlist(ctx)
	if len(pending) != 1 {
		t.Fatalf("entry should still be pending, got %d", len(pending))
	}
}
