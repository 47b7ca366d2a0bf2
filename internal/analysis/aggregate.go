package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

const (
	maxRawKeyAreas        = 10
	lowConfidenceWarn     = 0.4
	homogeneousKeyFrac    = 0.9
	keyVarietyForInsight  = 3
	atypicalExpositionMin = 0.2
	atypicalExpositionMax = 0.5
)

// Aggregate assembles the terminal Result from the section sequence and
// the detector signals. The output is purely derived from the
// structured data and is fully self-sufficient: any optional external
// enrichment downstream may fail without affecting it.
func Aggregate(sections []Section, keyAreas []KeyArea, blocks []ThematicBlock, cadences []Cadence, total float64, cfg Config) *Result {
	res := &Result{
		Sections:          sections,
		OverallConfidence: clamp01(overallConfidence(sections)),
		Raw: RawSignals{
			KeyAreas:     boundedKeyAreas(keyAreas),
			CadenceCount: len(cadences),
			ThemeCount:   countThemes(blocks),
		},
	}

	primaryKey := "Unknown"
	if len(keyAreas) > 0 {
		primaryKey = keyAreas[0].Key
	}
	homogeneous := tonallyHomogeneous(keyAreas, total)

	res.Summary = fmt.Sprintf("Analysis of sonata form in %s: %d structural sections identified with %.0f%% average confidence.",
		primaryKey, len(sections), res.OverallConfidence*100)
	if homogeneous {
		res.Summary += " The piece is tonally homogeneous, which weakens the development hypothesis."
	}

	res.MusicalInsights = buildInsights(res, keyAreas, blocks, cadences, primaryKey, total, homogeneous, cfg)
	return res
}

// overallConfidence is the duration-weighted mean of the per-section
// confidences.
func overallConfidence(sections []Section) float64 {
	if len(sections) == 0 {
		return 0
	}
	confs := make([]float64, len(sections))
	weights := make([]float64, len(sections))
	for i, s := range sections {
		confs[i] = s.Confidence
		weights[i] = s.End - s.Start
	}
	return stat.Mean(confs, weights)
}

func buildInsights(res *Result, keyAreas []KeyArea, blocks []ThematicBlock, cadences []Cadence, primaryKey string, total float64, homogeneous bool, cfg Config) []string {
	insights := []string{
		fmt.Sprintf("Primary key: %s", primaryKey),
		fmt.Sprintf("Total duration: %.1f seconds", total),
		fmt.Sprintf("Key areas detected: %d", len(keyAreas)),
		fmt.Sprintf("Cadences detected: %d", len(cadences)),
	}

	if n := distinctKeys(keyAreas); n > keyVarietyForInsight {
		insights = append(insights, "High key variety suggests an extensive development section")
	}
	if homogeneous {
		insights = append(insights, "A single key governs nearly the whole piece; sonata-form contrast is weak")
	}
	if thematicRecurrence(blocks, total) {
		insights = append(insights, "Opening thematic material returns in the final third, consistent with a recapitulation")
	}
	if frac, atypical := expositionProportion(res.Sections, total); atypical {
		insights = append(insights, fmt.Sprintf("Exposition occupies %.0f%% of the piece, outside the typical range", frac*100))
	}
	if res.OverallConfidence < lowConfidenceWarn {
		insights = append(insights, "Overall confidence is low; the sonata-form reading is tentative")
	}

	if cfg.MaxInsights > 0 && len(insights) > cfg.MaxInsights {
		insights = insights[:cfg.MaxInsights]
	}
	return insights
}

// tonallyHomogeneous reports whether one key governs at least 90% of
// the piece's duration.
func tonallyHomogeneous(keyAreas []KeyArea, total float64) bool {
	if total <= 0 {
		return false
	}
	spans := map[string]float64{}
	for _, a := range keyAreas {
		spans[a.Key] += a.End - a.Start
	}
	for _, span := range spans {
		if span/total >= homogeneousKeyFrac {
			return true
		}
	}
	return false
}

func distinctKeys(keyAreas []KeyArea) int {
	seen := map[string]bool{}
	for _, a := range keyAreas {
		seen[a.Key] = true
	}
	return len(seen)
}

func countThemes(blocks []ThematicBlock) int {
	seen := map[string]bool{}
	for _, b := range blocks {
		seen[b.Label] = true
	}
	return len(seen)
}

// expositionProportion returns the fraction of the piece the exposition
// spans and whether that falls outside the typical range.
func expositionProportion(sections []Section, total float64) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	var end float64
	found := false
	for _, s := range sections {
		switch s.Type {
		case SectionExpositionTheme1, SectionExpositionTransition, SectionExpositionTheme2, SectionExpositionClosing:
			end = s.End
			found = true
		}
	}
	if !found {
		return 0, false
	}
	frac := end / total
	return frac, frac < atypicalExpositionMin || frac > atypicalExpositionMax
}

func boundedKeyAreas(keyAreas []KeyArea) []KeyArea {
	if len(keyAreas) <= maxRawKeyAreas {
		return keyAreas
	}
	return keyAreas[:maxRawKeyAreas]
}
