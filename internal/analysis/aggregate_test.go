package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateOverallConfidenceIsDurationWeighted(t *testing.T) {
	sections := []Section{
		{Type: SectionExpositionTheme1, Start: 0, End: 90, Confidence: 0.9},
		{Type: SectionCoda, Start: 90, End: 100, Confidence: 0.1},
	}
	res := Aggregate(sections, nil, nil, nil, 100, DefaultConfig())

	// 0.9*90 + 0.1*10 over 100 seconds.
	assert.InDelta(t, 0.82, res.OverallConfidence, 1e-9)
}

func TestAggregateSummaryNamesPrimaryKey(t *testing.T) {
	sections := degradedSections(60)
	areas := []KeyArea{{Key: "D minor", Tonic: 2, Mode: ModeMinor, Start: 0, End: 60, Confidence: 0.7}}
	res := Aggregate(sections, areas, nil, nil, 60, DefaultConfig())

	assert.Contains(t, res.Summary, "D minor")
	assert.Contains(t, res.Summary, "3 structural sections")
	// One key over the full span triggers the homogeneity caveat.
	assert.Contains(t, res.Summary, "tonally homogeneous")
}

func TestAggregateInsightsBoundedByConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInsights = 3

	sections := degradedSections(60)
	areas := []KeyArea{
		{Key: "C major", Start: 0, End: 15, Confidence: 0.5},
		{Key: "G major", Start: 15, End: 30, Confidence: 0.5},
		{Key: "D major", Start: 30, End: 45, Confidence: 0.5},
		{Key: "A major", Start: 45, End: 60, Confidence: 0.5},
	}
	res := Aggregate(sections, areas, nil, nil, 60, cfg)

	assert.Len(t, res.MusicalInsights, 3)
}

func TestAggregateRawSignalsBounded(t *testing.T) {
	var areas []KeyArea
	for i := 0; i < 25; i++ {
		areas = append(areas, KeyArea{Key: "C major", Start: float64(i), End: float64(i + 1), Confidence: 0.5})
	}
	res := Aggregate(degradedSections(25), areas, nil, nil, 25, DefaultConfig())

	assert.Len(t, res.Raw.KeyAreas, maxRawKeyAreas)
}

func TestAggregateCountsDistinctThemes(t *testing.T) {
	blocks := []ThematicBlock{
		{Label: "theme-1", Start: 0, End: 4},
		{Label: "theme-2", Start: 4, End: 8},
		{Label: "theme-1", Start: 40, End: 44},
	}
	res := Aggregate(degradedSections(60), nil, blocks, nil, 60, DefaultConfig())

	assert.Equal(t, 2, res.Raw.ThemeCount)
}

func TestAggregateLowConfidenceInsight(t *testing.T) {
	res := Aggregate(degradedSections(60), nil, nil, nil, 60, DefaultConfig())
	require.Less(t, res.OverallConfidence, 0.4)

	found := false
	for _, insight := range res.MusicalInsights {
		if insight == "Overall confidence is low; the sonata-form reading is tentative" {
			found = true
		}
	}
	assert.True(t, found)
}
