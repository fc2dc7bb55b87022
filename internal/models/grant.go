package models

import (
	"time"

	"github.com/google/uuid"
)

// Grant status values. Grants are never hard-deleted; a grant that is no
// longer observed by ingestion is marked inactive so feedback and history
// can keep referencing it.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Amount struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

type Eligibility struct {
	Regions           []string `json:"regions"`
	OrganizationTypes []string `json:"organization_types"`
	Requirements      []string `json:"requirements"`
}

type Grant struct {
	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Organization   string      `json:"organization"`
	ApplicationURL string      `json:"application_url"`
	Amount         Amount      `json:"amount"`
	Categories     []string    `json:"categories"`
	Eligibility    Eligibility `json:"eligibility"`
	Deadline       *time.Time  `json:"deadline"`
	OpenAt         *time.Time  `json:"open_at"` // project window start, when known
	Status         string      `json:"status"`
	Embedding      []float32   `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Entities extracted from an uploaded pitch deck by the content analyzer.
type Entities struct {
	Organizations []string `json:"organizations"`
	Technologies  []string `json:"technologies"`
	Markets       []string `json:"markets"`
}

type AmountRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type TimeWindow struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}

// Preferences are explicit, user-stated constraints and affinities. Every
// field is optional; an absent field imposes no restriction.
type Preferences struct {
	Categories    []string     `json:"categories,omitempty"`
	FundingAmount *AmountRange `json:"funding_amount,omitempty"`
	Regions       []string     `json:"regions,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	Timeline      *TimeWindow  `json:"timeline,omitempty"`
}

// Organization is optional metadata about the applicant's organization.
type Organization struct {
	Type           string   `json:"type,omitempty"`
	Size           int      `json:"size,omitempty"`
	Expertise      []string `json:"expertise,omitempty"`
	PreviousGrants []string `json:"previous_grants,omitempty"`
}

// ApplicantProfile is the query subject of a matching request. It is built
// per request from a deck analysis and/or stated preferences and is not
// persisted by the engine.
type ApplicantProfile struct {
	Summary      string        `json:"summary"`
	Entities     Entities      `json:"entities"`
	KeyTopics    []string      `json:"key_topics"`
	Preferences  Preferences   `json:"preferences"`
	Organization *Organization `json:"organization,omitempty"`
}

// MatchWeights tunes the relative importance of each scoring dimension.
// Semantic/mission alignment is fixed at weight 1.0 and is not listed here.
type MatchWeights struct {
	CategoryMatch     float64 `json:"category_match"`
	AmountMatch       float64 `json:"amount_match"`
	LocationMatch     float64 `json:"location_match"`
	RequirementsMatch float64 `json:"requirements_match"`
	TimelineMatch     float64 `json:"timeline_match"`
}

// DefaultWeights weighs every tunable dimension equally.
func DefaultWeights() MatchWeights {
	return MatchWeights{
		CategoryMatch:     1,
		AmountMatch:       1,
		LocationMatch:     1,
		RequirementsMatch: 1,
		TimelineMatch:     1,
	}
}

// ScoredMatch is one ranked candidate in a recommendation result.
type ScoredMatch struct {
	Grant      Grant              `json:"grant"`
	Score      float64            `json:"score"`
	Reasons    []string           `json:"reasons"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
}
