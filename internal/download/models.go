package download

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an acquisition. Transitions are
// monotonic along the happy path; the only backward moves are the explicit
// unblock, retry, and abandon paths.
type Status string

const (
	StatusQueued             Status = "queued"
	StatusBlocked            Status = "blocked"
	StatusDownloading        Status = "downloading"
	StatusTransferred        Status = "transferred"
	StatusVerifying          Status = "verifying"
	StatusCorrupt            Status = "corrupt"
	StatusProcessingMetadata Status = "processing_metadata"
	StatusSettled            Status = "settled"
	StatusSuperseded         Status = "superseded"
	StatusAbandoned          Status = "abandoned"
	StatusFailed             Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusBlocked,
	StatusDownloading,
	StatusTransferred,
	StatusVerifying,
	StatusCorrupt,
	StatusProcessingMetadata,
	StatusSettled,
	StatusSuperseded,
	StatusAbandoned,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// allowedTransitions encodes the state machine. Unblock (blocked->queued)
// and retry (failed->queued, corrupt->verifying) are the sanctioned
// exceptions to forward-only movement.
var allowedTransitions = map[Status][]Status{
	StatusQueued:             {StatusDownloading, StatusBlocked, StatusAbandoned, StatusFailed},
	StatusBlocked:            {StatusQueued, StatusAbandoned},
	StatusDownloading:        {StatusTransferred, StatusFailed, StatusAbandoned},
	StatusTransferred:        {StatusVerifying},
	StatusVerifying:          {StatusProcessingMetadata, StatusCorrupt},
	StatusCorrupt:            {StatusVerifying, StatusAbandoned},
	StatusProcessingMetadata: {StatusSettled},
	StatusSettled:            {StatusSuperseded},
	StatusFailed:             {StatusQueued, StatusAbandoned},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransitionTo reports whether moving from s to next is a legal step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuperseded, StatusAbandoned:
		return true
	default:
		return false
	}
}

// CompletionHandled reports whether a completion event for this acquisition
// has already been processed. The lifecycle monitor consults this before
// acting so replayed observations after a restart are safe no-ops.
func (s Status) CompletionHandled() bool {
	switch s {
	case StatusTransferred, StatusVerifying, StatusCorrupt, StatusProcessingMetadata, StatusSettled, StatusSuperseded:
		return true
	default:
		return false
	}
}

// ReleaseType classifies how an acquisition is charged against the account.
type ReleaseType string

const (
	ReleaseFreeNoRatio   ReleaseType = "free_no_ratio"
	ReleaseFree          ReleaseType = "free"
	ReleaseBonusEligible ReleaseType = "bonus_eligible"
	ReleaseStandardPaid  ReleaseType = "standard_paid"
	ReleasePremiumPaid   ReleaseType = "premium_paid"
	ReleasePremiumTitle  ReleaseType = "premium_title"
	ReleaseRegional      ReleaseType = "regional"
)

// releasePriority ranks release types for candidate selection; lower is
// preferred.
var releasePriority = map[ReleaseType]int{
	ReleaseFreeNoRatio:   0,
	ReleaseFree:          1,
	ReleaseBonusEligible: 2,
	ReleaseStandardPaid:  3,
	ReleasePremiumPaid:   4,
	ReleasePremiumTitle:  5,
	ReleaseRegional:      6,
}

// Priority returns the selection rank of the release type; unknown types
// rank last.
func (r ReleaseType) Priority() int {
	if rank, ok := releasePriority[r]; ok {
		return rank
	}
	return len(releasePriority)
}

// CostsRatio reports whether downloading this release consumes ratio and is
// therefore subject to emergency admission control.
func (r ReleaseType) CostsRatio() bool {
	switch r {
	case ReleaseFreeNoRatio, ReleaseFree:
		return false
	default:
		return true
	}
}

// IntegrityStatus tracks verification state attached to an acquisition.
type IntegrityStatus string

const (
	IntegrityPending IntegrityStatus = "pending"
	IntegrityPassed  IntegrityStatus = "passed"
	IntegrityFailed  IntegrityStatus = "failed"
)

// Acquisition is a single tracked download, owned exclusively by the control
// core once queued.
type Acquisition struct {
	ID              int64
	UUID            string
	Title           string
	Author          string
	Narrator        string
	ReleaseType     ReleaseType
	QualityScore    float64
	Status          Status
	ClientHandle    string
	SourceURL       string
	DownloadDir     string
	RetryCount      int
	IntegrityStatus IntegrityStatus
	Blocked         bool
	SupersededBy    *int64
	ExpectedFiles   int
	ExpectedBytes   int64
	ExpectedSeconds float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetFailed marks the acquisition failed with the given message.
func (a *Acquisition) SetFailed(message string) {
	a.Status = StatusFailed
	a.ErrorMessage = message
}

// MaxRetries bounds how many replacement attempts an acquisition gets before
// explicit abandonment.
const MaxRetries = 3

// RatioSnapshot is one append-only reading from the ratio monitor.
type RatioSnapshot struct {
	ID                int64
	TakenAt           time.Time
	Ratio             float64
	EmergencyActive   bool
	SeedingAllocation float64
	BonusPoints       int64
}

// EmergencyState is the persisted singleton owned by the ratio monitor.
type EmergencyState struct {
	Active      bool
	TriggeredAt *time.Time
	LastRatio   float64
	UpdatedAt   time.Time
}

// VIPState captures premium membership status and the last renewal decision.
type VIPState struct {
	Status       string
	ExpiresAt    *time.Time
	Points       int64
	LastDecision string
	LastRunAt    *time.Time
}

// AuditRecord is one structured audit row; Details carries the decision
// trace as JSON.
type AuditRecord struct {
	ID        int64
	UUID      string
	Task      string
	Details   string
	CreatedAt time.Time
}

// WishlistEntry is a wanted work awaiting affordability.
type WishlistEntry struct {
	ID         int64
	Title      string
	Author     string
	Narrator   string
	AddedAt    time.Time
	PromotedAt *time.Time
}

// HealthSummary describes aggregated acquisition counts per key lifecycle states.
type HealthSummary struct {
	Total       int
	Queued      int
	Blocked     int
	Downloading int
	Corrupt     int
	Settled     int
	Failed      int
}
