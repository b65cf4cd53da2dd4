package tracker

import "context"

// Client is the surface the daemon uses to talk to the tracker. Every call
// may fail transiently; callers decide whether a failure is safe to ignore
// or must fail closed.
type Client interface {
	// Authenticate verifies credentials and establishes a session.
	Authenticate(ctx context.Context) error
	// FetchRatio returns the current global share ratio.
	FetchRatio(ctx context.Context) (float64, error)
	// FetchAccountStats returns the full account economy snapshot.
	FetchAccountStats(ctx context.Context) (AccountStats, error)
	// FetchCategoryRules re-scrapes the per-category charging rules.
	FetchCategoryRules(ctx context.Context) ([]CategoryRule, error)
	// FetchPromotionalEvents returns current and announced promotions.
	FetchPromotionalEvents(ctx context.Context) ([]PromotionalEvent, error)
	// SearchReleases finds candidate releases for a work.
	SearchReleases(ctx context.Context, title, author string) ([]Release, error)
	// SubmitRenewal spends bonus points on a premium membership renewal.
	SubmitRenewal(ctx context.Context, costPoints int64) (RenewalReceipt, error)
}
