// Package traits classifies numeric trait scores into bands and renders
// the narrative segment used in prompts. The trait set is open: any named
// score in [0,10] participates, and the band is a pure function of the
// numeric value only.
package traits

import (
	"fmt"
	"sort"
	"strings"
)

type Band string

const (
	BandSuppressed Band = "suppressed"
	BandBalanced   Band = "balanced"
	BandDominant   Band = "dominant"
)

// Profile maps trait name to a score in [0,10].
type Profile map[string]float64

// Classify returns the band for a single score. Out-of-range scores are
// clamped into [0,10] first.
func Classify(score float64) Band {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	switch {
	case score >= 7:
		return BandDominant
	case score >= 4:
		return BandBalanced
	default:
		return BandSuppressed
	}
}

// Bands partitions the profile, each band sorted by descending score then
// name so the narrative is deterministic.
func (p Profile) Bands() (dominant, balanced, suppressed []string) {
	type scored struct {
		name  string
		score float64
	}
	byBand := map[Band][]scored{}
	for name, score := range p {
		band := Classify(score)
		byBand[band] = append(byBand[band], scored{name, score})
	}

	sortBand := func(items []scored) []string {
		sort.Slice(items, func(i, j int) bool {
			if items[i].score != items[j].score {
				return items[i].score > items[j].score
			}
			return items[i].name < items[j].name
		})
		names := make([]string, len(items))
		for i, item := range items {
			names[i] = item.name
		}
		return names
	}

	return sortBand(byBand[BandDominant]), sortBand(byBand[BandBalanced]), sortBand(byBand[BandSuppressed])
}

// Narrative renders the trait profile segment for the system prompt.
// Empty profiles render to an empty string so the segment is omitted.
func (p Profile) Narrative() string {
	if len(p) == 0 {
		return ""
	}

	dominant, balanced, suppressed := p.Bands()

	var b strings.Builder
	b.WriteString("TRAIT PROFILE:\n")
	for _, name := range dominant {
		fmt.Fprintf(&b, "- %s: %.1f/10 (dominant - natural strength)\n", name, p[name])
	}
	for _, name := range balanced {
		fmt.Fprintf(&b, "- %s: %.1f/10 (balanced)\n", name, p[name])
	}
	for _, name := range suppressed {
		fmt.Fprintf(&b, "- %s: %.1f/10 (suppressed - needs attention)\n", name, p[name])
	}
	return strings.TrimRight(b.String(), "\n")
}
