package api

import (
	"time"

	"github.com/david/grant-matcher/internal/ingest"
)

// seedGrants returns a small realistic corpus for development environments.
// Re-seeding is idempotent because the loader upserts by application URL.
func seedGrants() []ingest.GrantInput {
	return []ingest.GrantInput{
		{
			Title:             "Gates Foundation Grand Challenges - Global Health Innovation",
			Description:       "The Bill & Melinda Gates Foundation seeks bold ideas that explore innovative approaches to global health. Awards support early-stage research and proof-of-concept projects.",
			Organization:      "Bill & Melinda Gates Foundation",
			ApplicationURL:    "https://gcgh.grandchallenges.org/grants",
			AmountMin:         50000,
			AmountMax:         100000,
			Currency:          "USD",
			Categories:        []string{"Healthcare", "Research"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"nonprofit", "research_institution"},
			Requirements:      []string{"Early-stage research proposal", "Proof-of-concept plan"},
		},
		{
			Title:             "EU Horizon Europe - Climate Neutral Cities 2030",
			Description:       "Part of the European Commission's Horizon Europe programme. Supports urban transformation projects including clean energy, sustainable mobility, and circular economy initiatives across EU member states.",
			Organization:      "European Commission",
			ApplicationURL:    "https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/climate-neutral-cities",
			AmountMin:         500000,
			AmountMax:         2000000,
			Currency:          "EUR",
			Categories:        []string{"Climate", "Urban Development"},
			Regions:           []string{"Europe"},
			OrganizationTypes: []string{"government", "nonprofit"},
			Deadline:          timePtr(time.Date(2026, 6, 15, 17, 0, 0, 0, time.UTC)),
			OpenAt:            timePtr(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			Title:             "USAID Development Innovation Ventures (DIV)",
			Description:       "DIV invests in breakthrough solutions to the world's most intractable development challenges. Funding ranges from pilot to scale across sectors including agriculture, education, health, and economic growth.",
			Organization:      "USAID",
			ApplicationURL:    "https://www.usaid.gov/div",
			AmountMin:         25000,
			AmountMax:         15000000,
			Currency:          "USD",
			Categories:        []string{"Agriculture", "Education", "Healthcare", "Economic Development"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"nonprofit", "social_enterprise"},
			Requirements:      []string{"Evidence of cost-effectiveness", "Path to scale"},
			Deadline:          timePtr(time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC)),
		},
		{
			Title:             "Google.org Impact Challenge: AI for Social Good",
			Description:       "Google.org invites nonprofits, social enterprises, and research institutions to propose how they would use AI to create positive social impact. Selected projects receive funding, cloud credits, and mentorship.",
			Organization:      "Google.org",
			ApplicationURL:    "https://impactchallenge.withgoogle.com/ai-for-social-good",
			AmountMin:         100000,
			AmountMax:         2000000,
			Currency:          "USD",
			Categories:        []string{"Technology", "AI", "Social Impact"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"nonprofit", "social_enterprise", "research_institution"},
			Deadline:          timePtr(time.Date(2026, 4, 1, 23, 59, 0, 0, time.UTC)),
		},
		{
			Title:             "Wellcome Trust - Discovery Research Grant",
			Description:       "Wellcome's Discovery Research scheme provides funding for experienced researchers to pursue important questions in science, spanning basic biology to population health.",
			Organization:      "Wellcome Trust",
			ApplicationURL:    "https://wellcome.org/grant-funding/schemes/discovery-research",
			AmountMin:         300000,
			AmountMax:         3500000,
			Currency:          "GBP",
			Categories:        []string{"Research", "Healthcare", "Biology"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"research_institution", "university"},
			Requirements:      []string{"Established research track record"},
		},
		{
			Title:             "Inter-American Development Bank - Social Innovation Fund",
			Description:       "The IDB's Social Innovation Fund supports the design, implementation, and scaling of innovative solutions to persistent social challenges in Latin America and the Caribbean, including poverty, inequality, and exclusion.",
			Organization:      "Inter-American Development Bank",
			ApplicationURL:    "https://www.iadb.org/en/sector/social-investment/social-innovation",
			AmountMin:         10000,
			AmountMax:         150000,
			Currency:          "USD",
			Categories:        []string{"Social Impact", "Economic Development"},
			Regions:           []string{"Latin America", "Caribbean"},
			OrganizationTypes: []string{"nonprofit", "social_enterprise"},
			Deadline:          timePtr(time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)),
		},
		{
			Title:             "Ford Foundation - Creativity and Free Expression",
			Description:       "The Ford Foundation supports creative work that challenges inequality and advances understanding across cultures. Grants are available for film, visual arts, literature, journalism, and digital media.",
			Organization:      "Ford Foundation",
			ApplicationURL:    "https://www.fordfoundation.org/work/challenging-inequality/creativity-and-free-expression/",
			AmountMin:         50000,
			AmountMax:         500000,
			Currency:          "USD",
			Categories:        []string{"Arts", "Media", "Social Justice"},
			Regions:           []string{"North America"},
			OrganizationTypes: []string{"nonprofit", "individual"},
		},
		{
			Title:             "UKRI Future Leaders Fellowships",
			Description:       "UKRI Future Leaders Fellowships are designed to develop the careers of world-class researchers and innovators across business and academia. Awards support ambitious research and innovation over four years.",
			Organization:      "UK Research and Innovation",
			ApplicationURL:    "https://www.ukri.org/opportunity/future-leaders-fellowships-round-9/",
			AmountMin:         400000,
			AmountMax:         1500000,
			Currency:          "GBP",
			Categories:        []string{"Research", "Innovation"},
			Regions:           []string{"United Kingdom"},
			OrganizationTypes: []string{"university", "business"},
			Requirements:      []string{"Early-career researcher", "UK host institution"},
			Deadline:          timePtr(time.Date(2026, 5, 20, 16, 0, 0, 0, time.UTC)),
		},
		{
			Title:             "MIT Solve - Global Challenges 2026",
			Description:       "MIT Solve connects social entrepreneurs with funding, mentorship, and resources to scale their impact. Open to any organization or individual worldwide with a technology-based solution.",
			Organization:      "MIT Solve",
			ApplicationURL:    "https://solve.mit.edu/challenges",
			AmountMin:         10000,
			AmountMax:         50000,
			Currency:          "USD",
			Categories:        []string{"Technology", "Social Impact", "Climate", "Healthcare"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"nonprofit", "social_enterprise", "individual"},
			Deadline:          timePtr(time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)),
		},
		{
			Title:             "Skoll Foundation Award for Social Entrepreneurship",
			Description:       "The Skoll Award supports proven social entrepreneurs whose organizations are achieving transformational impact on critical social issues. Recipients receive multi-year core funding and access to the Skoll community.",
			Organization:      "Skoll Foundation",
			ApplicationURL:    "https://skoll.org/about/skoll-awards/",
			AmountMin:         500000,
			AmountMax:         1500000,
			Currency:          "USD",
			Categories:        []string{"Social Impact", "Entrepreneurship"},
			Regions:           []string{"Global"},
			OrganizationTypes: []string{"social_enterprise", "nonprofit"},
			Requirements:      []string{"Proven systemic impact", "Established organization"},
			Deadline:          timePtr(time.Date(2026, 8, 1, 23, 59, 0, 0, time.UTC)),
		},
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
