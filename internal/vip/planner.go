package vip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
	"seedkeeper/internal/logging"
	"seedkeeper/internal/notifications"
	"seedkeeper/internal/quality"
	"seedkeeper/internal/tracker"
)

// skipThresholdDays is how far out the expiry must be before the planner
// leaves the membership alone.
const skipThresholdDays = 30

// auditTask is the task name of the planner's audit records; the ratio
// monitor's ROI calculation reads spending back out of them.
const auditTask = "vip_plan"

// Decision is the closed set of daily renewal outcomes.
type Decision string

const (
	DecisionBlockedByEmergency Decision = "BLOCKED_BY_RATIO_EMERGENCY"
	DecisionSkipped            Decision = "SKIPPED"
	DecisionBlockedLowPoints   Decision = "BLOCKED_LOW_POINTS"
	DecisionRenew              Decision = "RENEW"
)

// Outcome is the full result of one daily run.
type Outcome struct {
	Decision         Decision
	Detail           string
	PointsSpent      int64
	RulesCached      int
	WishlistPromoted int
}

// EmergencyChecker is the slice of the ratio monitor the planner consults.
type EmergencyChecker interface {
	EmergencyActive(ctx context.Context) (bool, error)
}

// Planner makes the once-daily renewal decision and runs the always-on
// chores that ride along with it: promo-rule caching and wishlist promotion.
type Planner struct {
	store     *download.Store
	client    tracker.Client
	engine    *quality.Engine
	emergency EmergencyChecker
	notifier  notifications.Service
	cfg       config.VIP
	logger    *slog.Logger
}

// NewPlanner constructs the renewal planner. Engine, emergency checker, and
// notifier may be nil; the matching behaviors are then skipped.
func NewPlanner(store *download.Store, client tracker.Client, engine *quality.Engine, emergency EmergencyChecker, notifier notifications.Service, cfg config.VIP, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{
		store:     store,
		client:    client,
		engine:    engine,
		emergency: emergency,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "vip"),
	}
}

// RunDaily evaluates the renewal decision tree in strict first-match order
// and performs the accompanying chores. Exactly one audit record is written
// per completed run.
func (p *Planner) RunDaily(ctx context.Context, now time.Time) (Outcome, error) {
	stats, err := p.client.FetchAccountStats(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch account stats: %w", err)
	}

	emergencyActive := true
	if p.emergency != nil {
		active, err := p.emergency.EmergencyActive(ctx)
		if err != nil {
			// Fail closed: a spend while the ratio state is unknown is
			// exactly the spend the emergency exists to prevent.
			p.logger.Warn("emergency state unavailable, blocking renewal", logging.Error(err))
		} else {
			emergencyActive = active
		}
	} else {
		emergencyActive = false
	}

	daysToExpiry := 0.0
	if stats.VIPExpiresAt != nil {
		daysToExpiry = stats.VIPExpiresAt.Sub(now).Hours() / 24
	}
	cost := int64(p.cfg.RenewalCost)

	outcome := Outcome{}
	switch {
	case emergencyActive:
		outcome.Decision = DecisionBlockedByEmergency
		outcome.Detail = fmt.Sprintf("ratio emergency active, %d points held", stats.BonusPoints)
	case daysToExpiry > skipThresholdDays:
		outcome.Decision = DecisionSkipped
		outcome.Detail = fmt.Sprintf("%.0f days to expiry, above the %d-day threshold", daysToExpiry, skipThresholdDays)
	case stats.BonusPoints < cost:
		outcome.Decision = DecisionBlockedLowPoints
		outcome.Detail = fmt.Sprintf("%d points available, renewal costs %d", stats.BonusPoints, cost)
	default:
		outcome.Decision = DecisionRenew
	}

	state := download.VIPState{
		Status:       membershipStatus(stats.VIPExpiresAt, now),
		ExpiresAt:    stats.VIPExpiresAt,
		Points:       stats.BonusPoints,
		LastDecision: string(outcome.Decision),
		LastRunAt:    &now,
	}

	// The chores run whatever the renewal outcome: a failed purchase must
	// not cost a day of rule caching or wishlist promotion.
	outcome.RulesCached = p.refreshPromoRules(ctx)
	outcome.WishlistPromoted = p.promoteWishlist(ctx, emergencyActive)

	if outcome.Decision == DecisionRenew {
		receipt, err := p.client.SubmitRenewal(ctx, cost)
		if err != nil {
			// The purchase did not go through; record the attempt and let
			// tomorrow's run try again.
			outcome.Detail = fmt.Sprintf("renewal submission failed: %v", err)
			p.finish(ctx, stats, outcome, daysToExpiry, emergencyActive, state)
			return outcome, fmt.Errorf("submit renewal: %w", err)
		}
		outcome.PointsSpent = receipt.PointsSpent
		outcome.Detail = fmt.Sprintf("spent %d points, new expiry %s", receipt.PointsSpent, receipt.NewExpiry.Format("2006-01-02"))
		state.Status = "active"
		state.ExpiresAt = &receipt.NewExpiry
		state.Points = receipt.PointsRemaining
	}

	p.finish(ctx, stats, outcome, daysToExpiry, emergencyActive, state)
	p.logger.Info("daily plan complete",
		logging.String(logging.FieldDecision, string(outcome.Decision)),
		logging.Int64("points_spent", outcome.PointsSpent),
		logging.Int("rules_cached", outcome.RulesCached),
		logging.Int("wishlist_promoted", outcome.WishlistPromoted))
	return outcome, nil
}

// finish persists the state, writes the single audit record, and notifies.
func (p *Planner) finish(ctx context.Context, stats tracker.AccountStats, outcome Outcome, daysToExpiry float64, emergencyActive bool, state download.VIPState) {
	if err := p.store.SaveVIPState(ctx, state); err != nil {
		p.logger.Error("save vip state failed", logging.Error(err))
	}
	if _, err := p.store.AppendAudit(ctx, auditTask, map[string]any{
		"decision":          string(outcome.Decision),
		"detail":            outcome.Detail,
		"points_spent":      outcome.PointsSpent,
		"points_balance":    stats.BonusPoints,
		"renewal_cost":      p.cfg.RenewalCost,
		"days_to_expiry":    daysToExpiry,
		"emergency_active":  emergencyActive,
		"rules_cached":      outcome.RulesCached,
		"wishlist_promoted": outcome.WishlistPromoted,
	}); err != nil {
		p.logger.Error("vip audit write failed", logging.Error(err))
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyVIPDecision(ctx, string(outcome.Decision), outcome.Detail); err != nil {
			p.logger.Warn("vip notification failed", logging.Error(err))
		}
	}
}

// refreshPromoRules re-scrapes the per-category charging rules and replaces
// the cache. Best effort; a failed scrape keeps yesterday's cache.
func (p *Planner) refreshPromoRules(ctx context.Context) int {
	rules, err := p.client.FetchCategoryRules(ctx)
	if err != nil {
		p.logger.Warn("category rule scrape failed", logging.Error(err))
		return 0
	}
	cached := 0
	for _, rule := range rules {
		payload, err := json.Marshal(map[string]any{
			"costs_ratio":      rule.CostsRatio,
			"bonus_rate":       rule.BonusRate,
			"min_seed_minutes": int(rule.MinSeedTime.Minutes()),
		})
		if err != nil {
			continue
		}
		if err := p.store.SavePromoRules(ctx, rule.Category, string(payload)); err != nil {
			p.logger.Warn("promo rule cache write failed",
				logging.String("category", rule.Category),
				logging.Error(err))
			continue
		}
		cached++
	}
	return cached
}

// promoteWishlist queues pending wishlist entries whose best available
// release has become free, or affordable while admission is open. Returns
// the number of entries promoted.
func (p *Planner) promoteWishlist(ctx context.Context, emergencyActive bool) int {
	if p.engine == nil {
		return 0
	}
	entries, err := p.store.PendingWishlist(ctx)
	if err != nil {
		p.logger.Error("wishlist read failed", logging.Error(err))
		return 0
	}

	promoted := 0
	for _, entry := range entries {
		ok, err := p.promoteEntry(ctx, entry, emergencyActive)
		if err != nil {
			p.logger.Warn("wishlist promotion failed",
				logging.String("title", entry.Title),
				logging.Error(err))
			continue
		}
		if ok {
			promoted++
		}
	}
	return promoted
}

func (p *Planner) promoteEntry(ctx context.Context, entry download.WishlistEntry, emergencyActive bool) (bool, error) {
	releases, err := p.client.SearchReleases(ctx, entry.Title, entry.Author)
	if err != nil {
		return false, fmt.Errorf("search releases: %w", err)
	}
	candidates := make([]quality.Candidate, 0, len(releases))
	for _, release := range releases {
		candidates = append(candidates, quality.Candidate{Release: release})
	}
	p.engine.RankCandidates(candidates)

	for _, candidate := range candidates {
		releaseType := quality.ReleaseTypeForCategory(candidate.Release.Category)
		if !affordable(releaseType, emergencyActive) {
			continue
		}
		decision, err := p.engine.ValidateReleaseSelection(ctx, candidate)
		if err != nil {
			return false, err
		}
		if !decision.Allowed() {
			continue
		}

		var queued *download.Acquisition
		if decision.Replacement() {
			queued, err = p.engine.QueueReplacement(ctx, decision.Existing, candidate)
		} else {
			queued, err = p.engine.Queue(ctx, candidate)
		}
		if err != nil {
			return false, err
		}
		changed, err := p.store.MarkWishlistPromoted(ctx, entry.ID)
		if err != nil {
			return false, err
		}
		if changed {
			p.logger.Info("wishlist entry promoted",
				logging.String("title", entry.Title),
				logging.Int64(logging.FieldAcquisitionID, queued.ID),
				logging.String("release_type", string(releaseType)))
		}
		return changed, nil
	}
	return false, nil
}

// affordable decides whether a release type may be queued right now. Free
// types always qualify; ratio-costing types qualify only while admission is
// open.
func affordable(releaseType download.ReleaseType, emergencyActive bool) bool {
	if !releaseType.CostsRatio() {
		return true
	}
	return !emergencyActive
}

func membershipStatus(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "none"
	}
	if expiresAt.After(now) {
		return "active"
	}
	return "expired"
}
