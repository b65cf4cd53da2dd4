package tracker

import "time"

// AccountStats is the tracker's view of the account economy.
type AccountStats struct {
	Ratio        float64
	Uploaded     int64
	Downloaded   int64
	BonusPoints  int64
	VIPExpiresAt *time.Time
	SeedingCount int
}

// CategoryRule describes how a tracker category charges ratio and awards
// bonus points. Rules change without notice, so callers re-scrape them
// before making spending decisions.
type CategoryRule struct {
	Category    string
	CostsRatio  bool
	BonusRate   float64
	MinSeedTime time.Duration
}

// EventKind is the closed set of promotional event types the advisor
// understands.
type EventKind string

const (
	EventFreeleech        EventKind = "freeleech"
	EventBonusPoints      EventKind = "bonus_points"
	EventUploadMultiplier EventKind = "upload_multiplier"
)

// PromotionalEvent is a time-bounded tracker promotion.
type PromotionalEvent struct {
	Kind     EventKind
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

// Active reports whether the event covers the given instant.
func (e PromotionalEvent) Active(now time.Time) bool {
	return !now.Before(e.StartsAt) && now.Before(e.EndsAt)
}

// Release is one search result from the tracker.
type Release struct {
	ID          string
	Title       string
	Author      string
	Narrator    string
	Format      string
	BitrateKbps int
	Edition     string
	Source      string
	Abridged    bool
	SizeBytes   int64
	Category    string
	SourceURL   string
	Seeders     int
}

// RenewalReceipt confirms a premium renewal purchase.
type RenewalReceipt struct {
	PointsSpent     int64
	PointsRemaining int64
	NewExpiry       time.Time
}
