// Package match implements the core matching pipeline: hard eligibility
// filtering, weighted multi-dimension scoring, custom rule adjustment, and
// deterministic ranking.
package match

import (
	"strings"
	"time"

	"github.com/david/grant-matcher/internal/models"
)

// FilterConstraints are hard eligibility constraints. Every field is
// independently optional; a zero value imposes no restriction.
type FilterConstraints struct {
	MinAmount         float64    `json:"min_amount,omitempty"`
	MaxAmount         float64    `json:"max_amount,omitempty"`
	Categories        []string   `json:"categories,omitempty"`
	Regions           []string   `json:"regions,omitempty"`
	OrganizationTypes []string   `json:"organization_types,omitempty"`
	DeadlineAfter     *time.Time `json:"deadline_after,omitempty"`
	DeadlineBefore    *time.Time `json:"deadline_before,omitempty"`
}

// Filter returns the grants passing every given constraint. Inactive grants
// never pass, regardless of other constraints.
func Filter(grants []models.Grant, c FilterConstraints) []models.Grant {
	out := make([]models.Grant, 0, len(grants))
	for _, g := range grants {
		if passes(g, c) {
			out = append(out, g)
		}
	}
	return out
}

func passes(g models.Grant, c FilterConstraints) bool {
	if g.Status != models.StatusActive {
		return false
	}

	// Amount: range overlap, not containment.
	if c.MinAmount > 0 && g.Amount.Max < c.MinAmount {
		return false
	}
	if c.MaxAmount > 0 && g.Amount.Min > c.MaxAmount {
		return false
	}

	if len(c.Categories) > 0 && !intersects(g.Categories, c.Categories) {
		return false
	}

	if len(c.Regions) > 0 && !regionMatches(g.Eligibility.Regions, c.Regions) {
		return false
	}

	if len(c.OrganizationTypes) > 0 && !intersects(g.Eligibility.OrganizationTypes, c.OrganizationTypes) {
		return false
	}

	// Deadline window. Rolling grants (no deadline) pass any window since
	// they can always still be applied to.
	if g.Deadline != nil {
		if c.DeadlineAfter != nil && g.Deadline.Before(*c.DeadlineAfter) {
			return false
		}
		if c.DeadlineBefore != nil && g.Deadline.After(*c.DeadlineBefore) {
			return false
		}
	}

	return true
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

// regionMatches is intersection with one carve-out: a grant open to "Global"
// passes any region constraint.
func regionMatches(grantRegions, wanted []string) bool {
	for _, r := range grantRegions {
		if strings.EqualFold(strings.TrimSpace(r), "global") {
			return true
		}
	}
	return intersects(grantRegions, wanted)
}
