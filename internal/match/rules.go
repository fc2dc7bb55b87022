package match

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/david/grant-matcher/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rule is a user- or organization-defined conditional score adjustment.
// Conditions are a closed predicate DSL evaluated by an interpreter; they
// are data, never executable code.
type Rule struct {
	Name      string    `yaml:"name" json:"name"`
	Condition Condition `yaml:"condition" json:"condition"`
	Score     float64   `yaml:"score" json:"score"`
	Weight    float64   `yaml:"weight" json:"weight"`
}

// Condition is either a leaf {field, op, value} comparison or an all/any
// composition of sub-conditions. Exactly one form must be set.
type Condition struct {
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    string `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
}

// RuleSet wraps the rules loaded from configuration.
type RuleSet struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// LoadRules parses a YAML rule set.
func LoadRules(data []byte) ([]Rule, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return rs.Rules, nil
}

// DefaultRules returns the built-in rule set shipped with the binary.
// Deployments override it with a rules file.
func DefaultRules() []Rule {
	rules, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default rules are invalid: %v", err))
	}
	return rules
}

// ApplyRules evaluates the rules in declaration order against the grant,
// profile, and running score. A satisfied rule multiplies the score by
// (1 + rule.Score·rule.Weight), clamped to [0,1]. A rule whose condition
// fails to evaluate is logged and skipped; one bad rule never aborts
// scoring for the candidate set.
func ApplyRules(logger *zap.Logger, rules []Rule, g models.Grant, p models.ApplicantProfile, score float64) float64 {
	for _, rule := range rules {
		ok, err := rule.Condition.Eval(g, p, score)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping unevaluable scoring rule",
					zap.String("rule", rule.Name),
					zap.String("grant_id", g.ID.String()),
					zap.Error(err))
			}
			continue
		}
		if ok {
			score = clamp01(score * (1 + rule.Score*rule.Weight))
		}
	}
	return score
}

// Eval interprets the condition against (grant, profile, currentScore).
func (c Condition) Eval(g models.Grant, p models.ApplicantProfile, score float64) (bool, error) {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			ok, err := sub.Eval(g, p, score)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(c.Any) > 0:
		for _, sub := range c.Any {
			ok, err := sub.Eval(g, p, score)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case c.Field != "":
		return c.evalLeaf(g, p, score)
	default:
		return false, fmt.Errorf("empty condition")
	}
}

func (c Condition) evalLeaf(g models.Grant, p models.ApplicantProfile, score float64) (bool, error) {
	field, err := resolveField(c.Field, g, p, score)
	if err != nil {
		return false, err
	}

	switch v := field.(type) {
	case float64:
		want, err := toFloat(c.Value)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", c.Field, err)
		}
		return compareFloat(v, c.Op, want)
	case string:
		want, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("field %s expects a string value", c.Field)
		}
		return compareString(v, c.Op, want)
	case []string:
		return compareList(v, c.Op, c.Value)
	default:
		return false, fmt.Errorf("unsupported field type for %s", c.Field)
	}
}

func resolveField(name string, g models.Grant, p models.ApplicantProfile, score float64) (any, error) {
	switch name {
	case "score":
		return score, nil
	case "grant.amount_min":
		return g.Amount.Min, nil
	case "grant.amount_max":
		return g.Amount.Max, nil
	case "grant.currency":
		return g.Amount.Currency, nil
	case "grant.organization":
		return g.Organization, nil
	case "grant.categories":
		return g.Categories, nil
	case "grant.regions":
		return g.Eligibility.Regions, nil
	case "grant.organization_types":
		return g.Eligibility.OrganizationTypes, nil
	case "profile.organization_type":
		if p.Organization == nil {
			return "", nil
		}
		return p.Organization.Type, nil
	case "profile.organization_size":
		if p.Organization == nil {
			return float64(0), nil
		}
		return float64(p.Organization.Size), nil
	case "profile.categories":
		return p.Preferences.Categories, nil
	case "profile.regions":
		return p.Preferences.Regions, nil
	case "profile.key_topics":
		return p.KeyTopics, nil
	default:
		return nil, fmt.Errorf("unknown field %q", name)
	}
}

func compareFloat(have float64, op string, want float64) (bool, error) {
	switch op {
	case "eq":
		return have == want, nil
	case "ne":
		return have != want, nil
	case "gt":
		return have > want, nil
	case "gte":
		return have >= want, nil
	case "lt":
		return have < want, nil
	case "lte":
		return have <= want, nil
	default:
		return false, fmt.Errorf("operator %q not valid for numbers", op)
	}
}

func compareString(have, op, want string) (bool, error) {
	switch op {
	case "eq":
		return strings.EqualFold(have, want), nil
	case "ne":
		return !strings.EqualFold(have, want), nil
	case "contains":
		return strings.Contains(strings.ToLower(have), strings.ToLower(want)), nil
	default:
		return false, fmt.Errorf("operator %q not valid for strings", op)
	}
}

func compareList(have []string, op string, value any) (bool, error) {
	switch op {
	case "contains":
		want, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("contains expects a string value")
		}
		for _, item := range have {
			if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(want)) {
				return true, nil
			}
		}
		return false, nil
	case "intersects":
		want, err := toStringSlice(value)
		if err != nil {
			return false, err
		}
		return intersects(have, want), nil
	default:
		return false, fmt.Errorf("operator %q not valid for lists", op)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a numeric value, got %T", v)
	}
}

func toStringSlice(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string list, found %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list value, got %T", v)
	}
}
