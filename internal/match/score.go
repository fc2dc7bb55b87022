package match

import (
	"strings"

	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/similarity"
)

// Dimension names, used in score breakdowns and explanations.
const (
	DimCategory     = "category"
	DimAmount       = "amount"
	DimLocation     = "location"
	DimRequirements = "requirements"
	DimTimeline     = "timeline"
	DimSemantic     = "semantic"
)

// semanticWeight is fixed and not user-tunable.
const semanticWeight = 1.0

// ValidateWeights rejects negative weights. All-zero weights are allowed:
// the fixed-weight semantic term keeps the composite denominator positive.
func ValidateWeights(w models.MatchWeights) error {
	for name, v := range map[string]float64{
		DimCategory:     w.CategoryMatch,
		DimAmount:       w.AmountMatch,
		DimLocation:     w.LocationMatch,
		DimRequirements: w.RequirementsMatch,
		DimTimeline:     w.TimelineMatch,
	} {
		if v < 0 {
			return Validationf("weight %s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

// CompositeScore computes the weighted mean of the dimension scores whose
// inputs are present on both sides. Missing dimensions do not count toward
// the denominator, so sparse profiles are not systematically deflated.
// semantic is the externally-computed mission-alignment score; nil means the
// dimension had no usable inputs and is excluded.
func CompositeScore(g models.Grant, p models.ApplicantProfile, w models.MatchWeights, semantic *float64) (float64, map[string]float64) {
	dims := make(map[string]float64)
	var weighted, total float64

	include := func(name string, score, weight float64) {
		dims[name] = score
		weighted += score * weight
		total += weight
	}

	if len(g.Categories) > 0 && len(p.Preferences.Categories) > 0 {
		include(DimCategory, CategoryScore(g.Categories, p.Preferences.Categories), w.CategoryMatch)
	}
	if p.Preferences.FundingAmount != nil && (g.Amount.Min > 0 || g.Amount.Max > 0) {
		include(DimAmount, AmountScore(g.Amount, *p.Preferences.FundingAmount), w.AmountMatch)
	}
	if len(g.Eligibility.Regions) > 0 && len(p.Preferences.Regions) > 0 {
		include(DimLocation, LocationScore(g.Eligibility.Regions, p.Preferences.Regions), w.LocationMatch)
	}

	reqText := strings.Join(g.Eligibility.Requirements, " ")
	expertiseText := ExpertiseText(p)
	if len(similarity.Tokenize(reqText)) > 0 && len(similarity.Tokenize(expertiseText)) > 0 {
		include(DimRequirements, similarity.Text(reqText, expertiseText), w.RequirementsMatch)
	}

	if g.OpenAt != nil && g.Deadline != nil && p.Preferences.Timeline != nil &&
		p.Preferences.Timeline.Earliest != nil && p.Preferences.Timeline.Latest != nil {
		include(DimTimeline, TimelineScore(g, *p.Preferences.Timeline), w.TimelineMatch)
	}

	if semantic != nil {
		include(DimSemantic, clamp01(*semantic), semanticWeight)
	}

	if total == 0 {
		return 0, dims
	}
	return clamp01(weighted / total), dims
}

// CategoryScore is |∩| / max(|grant|, |profile|), a containment-leaning
// overlap that rewards covering the smaller side's interests.
func CategoryScore(grantCats, profileCats []string) float64 {
	gs := lowerSet(grantCats)
	ps := lowerSet(profileCats)
	if len(gs) == 0 || len(ps) == 0 {
		return 0
	}

	overlap := 0
	for c := range gs {
		if _, ok := ps[c]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(len(gs), len(ps)))
}

// AmountScore compares range midpoints: 1 - |Δmean| / max(means), floored
// at 0. Identical midpoints score 1.0.
func AmountScore(grant models.Amount, pref models.AmountRange) float64 {
	grantMean := (grant.Min + grant.Max) / 2
	prefMean := (pref.Min + pref.Max) / 2
	if grantMean <= 0 || prefMean <= 0 {
		return 0
	}

	diff := grantMean - prefMean
	if diff < 0 {
		diff = -diff
	}
	score := 1 - diff/max(grantMean, prefMean)
	if score < 0 {
		return 0
	}
	return score
}

// LocationScore is region-set intersection-over-union. A "Global" grant
// region is a full match, mirroring the filter's carve-out.
func LocationScore(grantRegions, profileRegions []string) float64 {
	for _, r := range grantRegions {
		if strings.EqualFold(strings.TrimSpace(r), "global") {
			return 1.0
		}
	}
	return similarity.TermSet(grantRegions, profileRegions)
}

// TimelineScore is the fraction of temporal overlap between the grant's
// project window and the profile's acceptable window, relative to their
// union span. Non-overlapping windows score 0.
func TimelineScore(g models.Grant, pref models.TimeWindow) float64 {
	gStart, gEnd := g.OpenAt.Unix(), g.Deadline.Unix()
	pStart, pEnd := pref.Earliest.Unix(), pref.Latest.Unix()

	overlap := min(gEnd, pEnd) - max(gStart, pStart)
	if overlap < 0 {
		return 0
	}
	union := max(gEnd, pEnd) - min(gStart, pStart)
	if union == 0 {
		return 1
	}
	return float64(overlap) / float64(union)
}

// MissionText assembles the profile-side document for semantic alignment:
// summary plus extracted entities, topics, and stated keywords.
func MissionText(p models.ApplicantProfile) string {
	parts := []string{p.Summary}
	parts = append(parts, p.Entities.Technologies...)
	parts = append(parts, p.Entities.Markets...)
	parts = append(parts, p.KeyTopics...)
	parts = append(parts, p.Preferences.Keywords...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// ExpertiseText assembles the profile-side document for the requirements
// dimension.
func ExpertiseText(p models.ApplicantProfile) string {
	var parts []string
	if p.Organization != nil {
		parts = append(parts, p.Organization.Expertise...)
	}
	parts = append(parts, p.Summary)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
