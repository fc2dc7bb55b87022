// match_preview runs the recommendation pipeline against the live grants
// table and prints the ranked result, for eyeballing scoring changes
// without going through the HTTP API.
//
// Usage:
//
//	go run ./cmd/tools/match_preview \
//	  -summary "community health projects in east africa" \
//	  -categories Healthcare,Research -regions Africa -min 10000 -max 500000
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/david/grant-matcher/internal/cache"
	"github.com/david/grant-matcher/internal/db"
	"github.com/david/grant-matcher/internal/match"
	"github.com/david/grant-matcher/internal/models"
	"github.com/david/grant-matcher/internal/ratelimit"
	"github.com/david/grant-matcher/internal/recommend"
)

func main() {
	summary := flag.String("summary", "", "applicant project summary")
	categories := flag.String("categories", "", "preferred categories, comma separated")
	regions := flag.String("regions", "", "preferred regions, comma separated")
	orgType := flag.String("org", "nonprofit", "organization type")
	minAmount := flag.Float64("min", 0, "minimum funding amount")
	maxAmount := flag.Float64("max", 0, "maximum funding amount")
	limit := flag.Int("limit", 15, "results to show")
	flag.Parse()

	if *summary == "" {
		log.Fatal("-summary is required")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	logger := zap.NewNop()

	c, err := cache.Open("", logger)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	limiter := ratelimit.New(100, time.Minute, time.Second)
	defer limiter.Stop()

	profile := models.ApplicantProfile{
		Summary: *summary,
		Preferences: models.Preferences{
			Categories: splitCSV(*categories),
			Regions:    splitCSV(*regions),
		},
		Organization: &models.Organization{Type: *orgType},
	}
	if *minAmount > 0 || *maxAmount > 0 {
		profile.Preferences.FundingAmount = &models.AmountRange{Min: *minAmount, Max: *maxAmount}
	}

	svc := recommend.New(db.NewStore(pool), c, limiter, logger,
		recommend.WithRules(match.DefaultRules()))

	result, err := svc.GetRecommendations(ctx, recommend.Request{
		SubjectKey: "match-preview",
		Profile:    profile,
		Limit:      *limit,
	})
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Score", "Title", "Amount", "Deadline", "Top Reason"})

	for i, m := range result.Items {
		deadline := "rolling"
		if m.Grant.Deadline != nil {
			deadline = m.Grant.Deadline.Format("2006-01-02")
		}
		reason := ""
		if len(m.Reasons) > 0 {
			reason = m.Reasons[0]
		}
		amount := fmt.Sprintf("%.0f-%.0f %s", m.Grant.Amount.Min, m.Grant.Amount.Max, m.Grant.Amount.Currency)
		t.AppendRow(table.Row{i + 1, fmt.Sprintf("%.3f", m.Score), m.Grant.Title, amount, deadline, reason})
	}
	t.Render()

	fmt.Printf("\n%d of %d eligible grants shown\n", len(result.Items), result.Total)
}

func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
