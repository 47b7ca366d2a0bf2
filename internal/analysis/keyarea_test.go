package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaleNotes lays the given pitch classes out as a repeating quarter-note
// line between start and end, anchored at octave 4 (MIDI 60 + pc).
func scaleNotes(pcs []int, start, end float64) []TimedNote {
	var notes []TimedNote
	i := 0
	for t := start; t < end; t += 0.5 {
		pc := pcs[i%len(pcs)]
		notes = append(notes, TimedNote{
			Pitch:    60 + pc,
			Start:    t,
			End:      t + 0.5,
			Velocity: 0.8,
		})
		i++
	}
	return notes
}

var (
	cMajorScale = []int{0, 2, 4, 5, 7, 9, 11, 0} // weight the tonic a little
	gMajorScale = []int{7, 9, 11, 0, 2, 4, 6, 7}
	aMinorScale = []int{9, 11, 0, 2, 4, 5, 8, 9} // harmonic minor, G# leading tone
)

func TestDetectKeyAreasSingleKey(t *testing.T) {
	notes := scaleNotes(cMajorScale, 0, 30)
	areas := DetectKeyAreas(notes, 30, DefaultConfig())

	require.Len(t, areas, 1)
	assert.Equal(t, "C major", areas[0].Key)
	assert.Equal(t, ModeMajor, areas[0].Mode)
	assert.InDelta(t, 0.0, areas[0].Start, 1e-9)
	assert.InDelta(t, 30.0, areas[0].End, 1e-9)
	assert.Greater(t, areas[0].Confidence, 0.5)
}

func TestDetectKeyAreasMinorKey(t *testing.T) {
	notes := scaleNotes(aMinorScale, 0, 30)
	areas := DetectKeyAreas(notes, 30, DefaultConfig())

	require.NotEmpty(t, areas)
	assert.Equal(t, "A minor", areas[0].Key)
	assert.Equal(t, ModeMinor, areas[0].Mode)
}

func TestDetectKeyAreasModulationBoundary(t *testing.T) {
	// C major for 40s, G major for the remaining 60s. The detected
	// boundary must land within one window of the true modulation point.
	notes := append(scaleNotes(cMajorScale, 0, 40), scaleNotes(gMajorScale, 40, 100)...)
	cfg := DefaultConfig()
	areas := DetectKeyAreas(notes, 100, cfg)

	require.GreaterOrEqual(t, len(areas), 2)
	assert.Equal(t, "C major", areas[0].Key)
	assert.Equal(t, "G major", areas[1].Key)
	assert.InDelta(t, 40.0, areas[0].End, cfg.KeyWindowSec/2)

	// Contiguous coverage of [0, total].
	assert.InDelta(t, 0.0, areas[0].Start, 1e-9)
	assert.InDelta(t, 100.0, areas[len(areas)-1].End, 1e-9)
	for i := 1; i < len(areas); i++ {
		assert.InDelta(t, areas[i-1].End, areas[i].Start, 1e-9)
	}
}

func TestDetectKeyAreasModulationAndReturn(t *testing.T) {
	// C major for 40s, G major until 70s, then back to C. Both
	// boundaries must land within snap tolerance of the true modulation
	// points; a window straddling a change must not drag the boundary
	// into the neighboring key's span.
	notes := append(scaleNotes(cMajorScale, 0, 40), scaleNotes(gMajorScale, 40, 70)...)
	notes = append(notes, scaleNotes(cMajorScale, 70, 100)...)
	cfg := DefaultConfig()
	areas := DetectKeyAreas(notes, 100, cfg)

	require.Len(t, areas, 3)
	assert.Equal(t, "C major", areas[0].Key)
	assert.Equal(t, "G major", areas[1].Key)
	assert.Equal(t, "C major", areas[2].Key)

	assert.InDelta(t, 40.0, areas[1].Start, cfg.SnapTolSec)
	assert.InDelta(t, 70.0, areas[2].Start, cfg.SnapTolSec)

	assert.InDelta(t, 0.0, areas[0].Start, 1e-9)
	assert.InDelta(t, 100.0, areas[2].End, 1e-9)
}

func TestDetectKeyAreasEmptyInput(t *testing.T) {
	assert.Nil(t, DetectKeyAreas(nil, 0, DefaultConfig()))
}

func TestMergeKeyAreasCollapsesAdjacentSameKey(t *testing.T) {
	areas := []KeyArea{
		{Key: "C major", Mode: ModeMajor, Start: 0, End: 6, Confidence: 0.8},
		{Key: "C major", Mode: ModeMajor, Start: 3, End: 9, Confidence: 0.6},
		{Key: "G major", Mode: ModeMajor, Start: 6, End: 12, Confidence: 0.7},
	}

	merged := MergeKeyAreas(areas)
	require.Len(t, merged, 2)
	assert.Equal(t, "C major", merged[0].Key)
	assert.InDelta(t, 9.0, merged[0].End, 1e-9)
	assert.InDelta(t, 0.7, merged[0].Confidence, 1e-9)
	assert.Equal(t, "G major", merged[1].Key)
}

func TestMergeKeyAreasIdempotent(t *testing.T) {
	areas := []KeyArea{
		{Key: "C major", Mode: ModeMajor, Start: 0, End: 6, Confidence: 0.8},
		{Key: "C major", Mode: ModeMajor, Start: 3, End: 9, Confidence: 0.6},
		{Key: "A minor", Mode: ModeMinor, Start: 9, End: 15, Confidence: 0.5},
	}

	once := MergeKeyAreas(areas)
	twice := MergeKeyAreas(once)
	assert.Equal(t, once, twice)
}

func TestKeyName(t *testing.T) {
	assert.Equal(t, "C major", KeyName(0, ModeMajor))
	assert.Equal(t, "G major", KeyName(7, ModeMajor))
	assert.Equal(t, "A minor", KeyName(9, ModeMinor))
	// Tonic arithmetic wraps.
	assert.Equal(t, "D major", KeyName(14, ModeMajor))
}
