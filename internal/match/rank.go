package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/david/grant-matcher/internal/models"
)

// Rank sorts matches by score descending. Ties break by nearer deadline
// first (rolling grants with no deadline last), then by grant ID, so the
// ordering is fully deterministic.
func Rank(matches []models.ScoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}

		da, db := a.Grant.Deadline, b.Grant.Deadline
		switch {
		case da != nil && db == nil:
			return true
		case da == nil && db != nil:
			return false
		case da != nil && db != nil && !da.Equal(*db):
			return da.Before(*db)
		}

		return a.Grant.ID.String() < b.Grant.ID.String()
	})
}

// Paginate slices one page out of the ranked matches. Pages are 1-based.
func Paginate(matches []models.ScoredMatch, page, limit int) (items []models.ScoredMatch, total int, hasMore bool) {
	total = len(matches)
	start := (page - 1) * limit
	if start >= total {
		return []models.ScoredMatch{}, total, false
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matches[start:end], total, end < total
}

// BuildReasons produces the ordered, human-readable explanation for a match.
func BuildReasons(g models.Grant, p models.ApplicantProfile, dims map[string]float64) []string {
	var reasons []string

	if techs := overlapping(g.Categories, p.Entities.Technologies); len(techs) > 0 {
		reasons = append(reasons, fmt.Sprintf("Matches your focus on %s", strings.Join(techs, ", ")))
	}
	if markets := overlapping(g.Categories, p.Entities.Markets); len(markets) > 0 {
		reasons = append(reasons, fmt.Sprintf("Aligns with your target market: %s", strings.Join(markets, ", ")))
	}
	if cats := overlapping(g.Categories, p.Preferences.Categories); len(cats) > 0 {
		reasons = append(reasons, fmt.Sprintf("Covers your preferred categories: %s", strings.Join(cats, ", ")))
	}
	if score, ok := dims[DimAmount]; ok && score > 0.5 {
		reasons = append(reasons, fmt.Sprintf("Funding range %s %.0f–%.0f is close to your target",
			g.Amount.Currency, g.Amount.Min, g.Amount.Max))
	}
	if score, ok := dims[DimLocation]; ok && score > 0 {
		reasons = append(reasons, "Available in your region")
	}
	if score, ok := dims[DimTimeline]; ok && score > 0 {
		reasons = append(reasons, "Application window fits your timeline")
	}
	if score, ok := dims[DimRequirements]; ok && score > 0.3 {
		reasons = append(reasons, "Eligibility requirements align with your expertise")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "Matches based on overall project description")
	}
	return reasons
}

// overlapping returns the items of a that also appear in b, preserving a's
// order and original casing.
func overlapping(a, b []string) []string {
	set := lowerSet(b)
	var out []string
	for _, item := range a {
		if _, ok := set[strings.ToLower(strings.TrimSpace(item))]; ok {
			out = append(out, item)
		}
	}
	return out
}
