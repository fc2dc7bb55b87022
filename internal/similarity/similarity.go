// Package similarity provides the pure scoring primitives used by the
// matching pipeline. All functions are deterministic and case-insensitive,
// which keeps cache keys and test expectations stable.
package similarity

import (
	"math"
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\W+`)

// TermSet computes the Jaccard coefficient |A∩B| / |A∪B| between two term
// collections. Terms are compared case-insensitively. Two empty inputs
// score 0, not NaN.
func TermSet(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	union := len(setB)
	intersection := 0
	for term := range setA {
		if _, ok := setB[term]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Text computes term-frequency cosine similarity between two free-text
// documents. The vocabulary is exactly the union of the two documents'
// tokens. Either document tokenizing to nothing scores 0.
func Text(a, b string) float64 {
	tfA := termFrequencies(a)
	tfB := termFrequencies(b)
	if len(tfA) == 0 || len(tfB) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for term, fa := range tfA {
		normA += fa * fa
		if fb, ok := tfB[term]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range tfB {
		normB += fb * fb
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Vector computes cosine similarity between two embedding vectors, clamped
// to [0,1]. Mismatched lengths or zero vectors score 0.
func Vector(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

// Tokenize splits text on non-word boundaries, lowercases, and drops empty
// tokens. Exported because the scoring stage reuses it to decide whether a
// text dimension has any input at all.
func Tokenize(text string) []string {
	parts := tokenRe.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func termFrequencies(text string) map[string]float64 {
	tf := make(map[string]float64)
	for _, token := range Tokenize(text) {
		tf[token]++
	}
	return tf
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
