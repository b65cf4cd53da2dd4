package quality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"seedkeeper/internal/config"
	"seedkeeper/internal/download"
	"seedkeeper/internal/logging"
	"seedkeeper/internal/services"
	"seedkeeper/internal/textutil"
	"seedkeeper/internal/tracker"
)

const (
	// replacementDeadband is the multiplicative margin a candidate must clear
	// over the existing score before replacement churn is worth it.
	replacementDeadband = 1.10
	// narratorSameThreshold is the cosine similarity above which two narrator
	// names are treated as the same person.
	narratorSameThreshold = 0.85

	// Neutral ratings used when the tracker offers no narrator or source
	// reputation data for a search result.
	defaultNarratorRating    = 70.0
	defaultSourceReliability = 70.0
)

// Verdict is the closed set of selection outcomes.
type Verdict string

const (
	VerdictAccepted            Verdict = "accepted"
	VerdictAcceptedReplacement Verdict = "accepted_replacement"
	VerdictRejectedBelowFloor  Verdict = "rejected_below_floor"
	VerdictRejectedNotSuperior Verdict = "rejected_not_superior"
)

// Decision is the tagged result of a selection check.
type Decision struct {
	Verdict  Verdict
	Score    float64
	Reason   string
	Existing *download.Acquisition
}

// Allowed reports whether the candidate may be queued.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAccepted || d.Verdict == VerdictAcceptedReplacement
}

// Replacement reports whether queueing must supersede an existing acquisition.
func (d Decision) Replacement() bool {
	return d.Verdict == VerdictAcceptedReplacement
}

// Candidate is a release proposed for acquisition together with the external
// ratings the release record itself does not carry.
type Candidate struct {
	Release           tracker.Release
	NarratorRating    float64
	SourceReliability float64
}

func (c Candidate) narratorRating() float64 {
	if c.NarratorRating <= 0 {
		return defaultNarratorRating
	}
	return c.NarratorRating
}

func (c Candidate) sourceReliability() float64 {
	if c.SourceReliability <= 0 {
		return defaultSourceReliability
	}
	return c.SourceReliability
}

// ReleaseSearcher finds candidate releases for a work.
type ReleaseSearcher interface {
	SearchReleases(ctx context.Context, title, author string) ([]tracker.Release, error)
}

// Engine applies the selection policy against the acquisition store. The
// effective quality floor starts at the configured value and moves with the
// promotional strategy.
type Engine struct {
	store    *download.Store
	searcher ReleaseSearcher
	cfg      config.Quality
	logger   *slog.Logger

	mu    sync.Mutex
	floor float64
}

// NewEngine constructs a rules engine.
func NewEngine(store *download.Store, searcher ReleaseSearcher, cfg config.Quality, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	floor := cfg.GlobalFloor
	if floor < GlobalFloor {
		floor = GlobalFloor
	}
	return &Engine{
		store:    store,
		searcher: searcher,
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "quality"),
		floor:    floor,
	}
}

// SetQualityFloor applies a promotional floor adjustment. The absolute
// global floor still binds underneath it.
func (e *Engine) SetQualityFloor(floor float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.floor = max(floor, GlobalFloor)
}

// QualityFloor returns the effective acceptance floor.
func (e *Engine) QualityFloor() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.floor
}

// ScoreCandidate computes the weighted quality score for a candidate.
func (e *Engine) ScoreCandidate(candidate Candidate) float64 {
	return Assess(candidate.Release, candidate.narratorRating(), candidate.sourceReliability(), e.cfg.BitrateCeilingKbps).Score()
}

// ValidateReleaseSelection decides whether a candidate may be queued for a
// work that may already have an accepted acquisition.
func (e *Engine) ValidateReleaseSelection(ctx context.Context, candidate Candidate) (Decision, error) {
	score := e.ScoreCandidate(candidate)
	floor := e.QualityFloor()
	if score < floor {
		return Decision{
			Verdict: VerdictRejectedBelowFloor,
			Score:   score,
			Reason:  fmt.Sprintf("score %.1f below floor %.1f", score, floor),
		}, nil
	}

	existing, err := e.store.FindAcceptedByWork(ctx, candidate.Release.Title, candidate.Release.Author)
	if err != nil {
		return Decision{}, fmt.Errorf("look up existing acquisition: %w", err)
	}
	if existing == nil {
		return Decision{Verdict: VerdictAccepted, Score: score, Reason: "no existing acquisition"}, nil
	}

	// A clearly different narrator is a distinct recording of the work, not
	// a duplicate.
	if existing.Narrator != "" && candidate.Release.Narrator != "" {
		similarity := textutil.Similarity(existing.Narrator, candidate.Release.Narrator)
		if similarity <= narratorSameThreshold {
			return Decision{
				Verdict:  VerdictAccepted,
				Score:    score,
				Reason:   fmt.Sprintf("distinct narrator (similarity %.2f)", similarity),
				Existing: existing,
			}, nil
		}
	}

	switch {
	case score < existing.QualityScore:
		return Decision{
			Verdict:  VerdictRejectedNotSuperior,
			Score:    score,
			Reason:   fmt.Sprintf("score %.1f below existing %.1f", score, existing.QualityScore),
			Existing: existing,
		}, nil
	case score > existing.QualityScore*replacementDeadband:
		return Decision{
			Verdict:  VerdictAcceptedReplacement,
			Score:    score,
			Reason:   fmt.Sprintf("score %.1f exceeds existing %.1f by more than 10%%", score, existing.QualityScore),
			Existing: existing,
		}, nil
	default:
		return Decision{
			Verdict:  VerdictRejectedNotSuperior,
			Score:    score,
			Reason:   fmt.Sprintf("score %.1f within replacement deadband of existing %.1f", score, existing.QualityScore),
			Existing: existing,
		}, nil
	}
}

// QueueReplacement queues the superior candidate and marks the existing
// acquisition to be superseded by it. The existing item is never deleted
// here; cleanup happens once the replacement settles.
func (e *Engine) QueueReplacement(ctx context.Context, existing *download.Acquisition, candidate Candidate) (*download.Acquisition, error) {
	if existing == nil {
		return nil, services.Wrap(services.ErrValidation, "quality", "queue replacement", "existing acquisition is required", nil)
	}
	if existing.SupersededBy != nil {
		return nil, services.Wrap(services.ErrValidation, "quality", "queue replacement",
			fmt.Sprintf("acquisition %d already superseded by %d", existing.ID, *existing.SupersededBy), nil)
	}

	replacement, err := e.queueCandidate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	existing.SupersededBy = &replacement.ID
	if err := e.store.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("mark superseded: %w", err)
	}
	e.logger.Info("queued replacement",
		logging.Int64(logging.FieldAcquisitionID, replacement.ID),
		logging.Int64("supersedes", existing.ID),
		logging.Float64("score", replacement.QualityScore))
	return replacement, nil
}

// QueueAlternate searches for another release of the same work after an
// integrity failure and queues the best acceptable one. Returns nil without
// error when no candidate clears the floor.
func (e *Engine) QueueAlternate(ctx context.Context, failed *download.Acquisition) (*download.Acquisition, *tracker.Release, error) {
	if e.searcher == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "quality", "queue alternate", "release searcher not configured", nil)
	}
	releases, err := e.searcher.SearchReleases(ctx, failed.Title, failed.Author)
	if err != nil {
		return nil, nil, fmt.Errorf("search alternates: %w", err)
	}

	candidates := make([]Candidate, 0, len(releases))
	for _, release := range releases {
		// The corrupt release itself is not an alternate.
		if release.ID != "" && release.ID == failed.ClientHandle {
			continue
		}
		candidates = append(candidates, Candidate{Release: release})
	}
	e.RankCandidates(candidates)

	floor := e.QualityFloor()
	for _, candidate := range candidates {
		score := e.ScoreCandidate(candidate)
		if score < floor {
			continue
		}
		queued, err := e.queueCandidate(ctx, candidate)
		if err != nil {
			return nil, nil, err
		}
		release := candidate.Release
		e.logger.Info("queued alternate release",
			logging.Int64(logging.FieldAcquisitionID, queued.ID),
			logging.Int64("replaces_corrupt", failed.ID),
			logging.Float64("score", score))
		return queued, &release, nil
	}
	e.logger.Warn("no acceptable alternate found",
		logging.Int64(logging.FieldAcquisitionID, failed.ID),
		logging.Int("candidates", len(candidates)))
	return nil, nil, nil
}

// Queue records an accepted candidate as a new queued acquisition. Callers
// are expected to have run ValidateReleaseSelection first.
func (e *Engine) Queue(ctx context.Context, candidate Candidate) (*download.Acquisition, error) {
	return e.queueCandidate(ctx, candidate)
}

func (e *Engine) queueCandidate(ctx context.Context, candidate Candidate) (*download.Acquisition, error) {
	release := candidate.Release
	// Tracker listings carry inconsistent casing and spacing; canonical
	// names keep duplicate detection working across differently cased
	// listings of the same work.
	queued, err := e.store.NewAcquisition(ctx, download.NewAcquisitionParams{
		Title:         textutil.CanonicalName(release.Title),
		Author:        textutil.CanonicalName(release.Author),
		Narrator:      textutil.CanonicalName(release.Narrator),
		ReleaseType:   ReleaseTypeForCategory(release.Category),
		QualityScore:  e.ScoreCandidate(candidate),
		ExpectedBytes: release.SizeBytes,
		ClientHandle:  release.ID,
		SourceURL:     release.SourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("queue acquisition: %w", err)
	}
	return queued, nil
}

// RankCandidates orders candidates by the release-type priority ladder first
// and weighted score second.
func (e *Engine) RankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		left := ReleaseTypeForCategory(candidates[i].Release.Category).Priority()
		right := ReleaseTypeForCategory(candidates[j].Release.Category).Priority()
		if left != right {
			return left < right
		}
		return e.ScoreCandidate(candidates[i]) > e.ScoreCandidate(candidates[j])
	})
}
