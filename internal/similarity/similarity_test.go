package similarity

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTermSet(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{
			name:     "identical sets",
			a:        []string{"Healthcare", "AI"},
			b:        []string{"healthcare", "ai"},
			expected: 1.0,
		},
		{
			name:     "half overlap",
			a:        []string{"healthcare", "ai"},
			b:        []string{"healthcare", "education", "ai", "climate"},
			expected: 0.5,
		},
		{
			name:     "disjoint sets",
			a:        []string{"energy"},
			b:        []string{"arts"},
			expected: 0,
		},
		{
			name:     "both empty",
			a:        nil,
			b:        nil,
			expected: 0,
		},
		{
			name:     "one empty",
			a:        []string{"health"},
			b:        nil,
			expected: 0,
		},
		{
			name:     "duplicates collapse",
			a:        []string{"ai", "AI", "ai"},
			b:        []string{"ai"},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TermSet(tt.a, tt.b)
			if !almostEqual(got, tt.expected) {
				t.Errorf("TermSet() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTermSetSymmetry(t *testing.T) {
	a := []string{"healthcare", "ai", "biotech"}
	b := []string{"ai", "climate"}
	if TermSet(a, b) != TermSet(b, a) {
		t.Error("TermSet is not symmetric")
	}
}

func TestText(t *testing.T) {
	doc := "Machine learning for rural healthcare delivery"

	if got := Text(doc, doc); !almostEqual(got, 1.0) {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
	if got := Text("", ""); got != 0 {
		t.Errorf("empty vs empty = %v, want 0", got)
	}
	if got := Text(doc, ""); got != 0 {
		t.Errorf("doc vs empty = %v, want 0", got)
	}
	if got := Text("solar panels", "jazz history"); got != 0 {
		t.Errorf("disjoint docs = %v, want 0", got)
	}

	partial := Text("healthcare innovation grants", "healthcare research funding")
	if partial <= 0 || partial >= 1 {
		t.Errorf("partial overlap = %v, want strictly between 0 and 1", partial)
	}
}

func TestTextSymmetry(t *testing.T) {
	a := "AI diagnostics for clinics"
	b := "Funding clinical AI pilots in Africa"
	if !almostEqual(Text(a, b), Text(b, a)) {
		t.Error("Text is not symmetric")
	}
}

func TestTextCaseInsensitive(t *testing.T) {
	if !almostEqual(Text("Healthcare AI", "healthcare ai"), 1.0) {
		t.Error("expected case-insensitive match to score 1.0")
	}
}

func TestVector(t *testing.T) {
	if got := Vector([]float32{1, 0}, []float32{1, 0}); !almostEqual(got, 1.0) {
		t.Errorf("identical vectors = %v, want 1.0", got)
	}
	if got := Vector([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	// Opposite vectors clamp to 0 rather than going negative.
	if got := Vector([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposite vectors = %v, want 0", got)
	}
	if got := Vector(nil, nil); got != 0 {
		t.Errorf("empty vectors = %v, want 0", got)
	}
	if got := Vector([]float32{1, 2}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
	if got := Vector([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector = %v, want 0", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("AI-powered, rural healthcare!")
	want := []string{"ai", "powered", "rural", "healthcare"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
