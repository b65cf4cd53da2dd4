package quality

import (
	"strings"

	"seedkeeper/internal/download"
	"seedkeeper/internal/tracker"
)

// GlobalFloor is the absolute minimum score any candidate must reach,
// regardless of how it compares to an existing acquisition.
const GlobalFloor = 40.0

// Assessment holds the five normalized scoring inputs, each on a 0-100
// scale. The weighted total is monotone in every input.
type Assessment struct {
	Format       float64
	Narrator     float64
	Edition      float64
	Source       float64
	Completeness float64
}

// Score collapses the assessment into the weighted 0-100 total.
func (a Assessment) Score() float64 {
	total := 0.25*clamp(a.Format) +
		0.20*clamp(a.Narrator) +
		0.20*clamp(a.Edition) +
		0.20*clamp(a.Source) +
		0.15*clamp(a.Completeness)
	return clamp(total)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Assess builds an assessment for a release. Narrator rating and source
// reliability come from outside the release record; bitrate is normalized
// against the configured ceiling.
func Assess(release tracker.Release, narratorRating, sourceReliability float64, bitrateCeilingKbps int) Assessment {
	return Assessment{
		Format:       formatScore(release.BitrateKbps, bitrateCeilingKbps),
		Narrator:     narratorRating,
		Edition:      editionScore(release.Edition),
		Source:       sourceReliability,
		Completeness: completenessScore(release.Abridged),
	}
}

func formatScore(bitrateKbps, ceilingKbps int) float64 {
	if ceilingKbps <= 0 || bitrateKbps <= 0 {
		return 0
	}
	return clamp(float64(bitrateKbps) / float64(ceilingKbps) * 100)
}

func editionScore(edition string) float64 {
	switch strings.ToLower(strings.TrimSpace(edition)) {
	case "first":
		return 100
	case "special-anniversary", "anniversary":
		return 90
	case "remaster", "remastered":
		return 85
	case "special":
		return 70
	case "abridged":
		return 40
	default:
		return 60
	}
}

func completenessScore(abridged bool) float64 {
	if abridged {
		return 60
	}
	return 100
}

// ReleaseTypeForCategory maps a tracker category onto the release-type
// ladder used for candidate ranking and admission cost decisions.
func ReleaseTypeForCategory(category string) download.ReleaseType {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "freeleech", "free-no-ratio":
		return download.ReleaseFreeNoRatio
	case "free":
		return download.ReleaseFree
	case "bonus", "bonus-eligible":
		return download.ReleaseBonusEligible
	case "premium", "premium-quality":
		return download.ReleasePremiumPaid
	case "premium-title", "vip":
		return download.ReleasePremiumTitle
	case "regional", "special-region":
		return download.ReleaseRegional
	default:
		return download.ReleaseStandardPaid
	}
}
