package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MatchNarrative is the structured output of the explanation prompt.
type MatchNarrative struct {
	Reasons []string `json:"reasons"`
}

// ExplainMatch asks the generation model for up to three short reasons why
// the grant fits the applicant. Best-effort: callers fall back to the
// locally-built explanation when this errors.
func (c *OllamaClient) ExplainMatch(ctx context.Context, grantTitle, grantDescription, profileSummary string) ([]string, error) {
	prompt := fmt.Sprintf(`You are an expert in matching grants to organizations.

GRANT TITLE: %s
GRANT DESCRIPTION: %s
APPLICANT SUMMARY: %s

Return a JSON object listing up to three short reasons this grant fits the applicant:
{
  "reasons": ["...", "..."]
}

Rules:
1. Each reason is one sentence, addressed to the applicant ("Matches your ...").
2. Only state reasons supported by the text above.
3. RESPOND ONLY WITH JSON.`, grantTitle, grantDescription, profileSummary)

	raw, err := c.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var narrative MatchNarrative
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &narrative); err != nil {
		return nil, fmt.Errorf("failed to parse match narrative: %w", err)
	}

	reasons := make([]string, 0, len(narrative.Reasons))
	for _, r := range narrative.Reasons {
		r = strings.TrimSpace(r)
		if r != "" {
			reasons = append(reasons, r)
		}
	}
	return reasons, nil
}
