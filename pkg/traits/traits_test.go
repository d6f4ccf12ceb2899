package traits

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		score float64
		want  Band
	}{
		{0, BandSuppressed},
		{1, BandSuppressed},
		{3, BandSuppressed},
		{3.9, BandSuppressed},
		{4, BandBalanced},
		{6, BandBalanced},
		{6.9, BandBalanced},
		{7, BandDominant},
		{7.5, BandDominant},
		{10, BandDominant},
		{-2, BandSuppressed}, // clamped
		{14, BandDominant},   // clamped
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestNarrativeBands(t *testing.T) {
	p := Profile{
		"conscientiousness": 3.0,
		"openness":          7.5,
	}

	narrative := p.Narrative()
	if !strings.Contains(narrative, "openness: 7.5/10 (dominant") {
		t.Errorf("expected openness marked dominant, got:\n%s", narrative)
	}
	if !strings.Contains(narrative, "conscientiousness: 3.0/10 (suppressed") {
		t.Errorf("expected conscientiousness marked suppressed, got:\n%s", narrative)
	}
}

func TestNarrativeEmptyProfile(t *testing.T) {
	if got := (Profile{}).Narrative(); got != "" {
		t.Errorf("expected empty narrative, got %q", got)
	}
}

func TestNarrativeDeterministicOrder(t *testing.T) {
	p := Profile{"b": 8, "a": 8, "c": 9}

	first := p.Narrative()
	for i := 0; i < 10; i++ {
		if got := p.Narrative(); got != first {
			t.Fatal("narrative order is not deterministic")
		}
	}
	if !strings.Contains(first, "c: 9.0") {
		t.Errorf("expected highest score first, got:\n%s", first)
	}
}
