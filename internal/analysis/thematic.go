package analysis

import (
	"fmt"
	"math"
	"sort"
)

// Character descriptors derived from the density/range quadrants of a
// melodic window.
const (
	CharacterRhythmic      = "rhythmic/motivic"
	CharacterLyrical       = "lyrical"
	CharacterDevelopmental = "developmental"
	CharacterCantabile     = "cantabile"
)

// thematic tuning not worth exposing in Config
const (
	minThematicNotes = 10   // below this, no thematic statement is claimed
	densitySplit     = 3.0  // notes/sec separating rhythmic from lyrical
	rangeSplit       = 12.0 // semitones separating narrow from wide
	rangeNorm        = 24.0 // semitones considered a full-range contrast
	densityNorm      = 8.0  // notes/sec considered a full-density contrast
)

type themeWindow struct {
	start, end float64
	contour    []int // -1 down, 0 repeat, +1 up between consecutive notes
	pitchRange float64
	density    float64 // notes per second
}

// DetectThematicMaterial finds recurring or distinctive melodic
// material. The melodic line is reduced to one note at a time (highest
// pitch on simultaneous onsets), cut into fixed-length note windows, and
// windows with similar contour/range/density features are clustered.
// The earliest window of each cluster is the canonical statement and
// names the cluster's label.
func DetectThematicMaterial(notes []TimedNote, cfg Config) []ThematicBlock {
	melody := monophonicReduce(notes)
	if len(melody) < minThematicNotes {
		return nil
	}

	winLen := cfg.ThemeWindowNotes
	hop := cfg.ThemeHopNotes
	if winLen < 2 || hop < 1 {
		winLen, hop = DefaultConfig().ThemeWindowNotes, DefaultConfig().ThemeHopNotes
	}

	var windows []themeWindow
	for i := 0; i+winLen <= len(melody); i += hop {
		windows = append(windows, windowFeatures(melody[i:i+winLen]))
	}
	if len(windows) == 0 {
		return nil
	}

	// Greedy clustering in time order. Each window joins the first
	// existing cluster within the similarity threshold, so earlier
	// occurrences stay canonical on ties.
	type cluster struct {
		canonical themeWindow
		label     string
	}
	var clusters []cluster
	blocks := make([]ThematicBlock, 0, len(windows))

	for _, w := range windows {
		assigned := ""
		for _, c := range clusters {
			if windowDistance(w, c.canonical) <= cfg.ThemeSimThreshold {
				assigned = c.label
				break
			}
		}
		if assigned == "" {
			assigned = fmt.Sprintf("theme-%d", len(clusters)+1)
			clusters = append(clusters, cluster{canonical: w, label: assigned})
		}
		blocks = append(blocks, ThematicBlock{
			Label:     assigned,
			Start:     w.start,
			End:       w.end,
			Character: character(w),
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start < blocks[j].Start })
	return blocks
}

// monophonicReduce keeps one note per onset, preferring the highest
// pitch, and orders the result by start time.
func monophonicReduce(notes []TimedNote) []TimedNote {
	if len(notes) == 0 {
		return nil
	}
	sorted := make([]TimedNote, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Pitch > sorted[j].Pitch
	})
	melody := make([]TimedNote, 0, len(sorted))
	const simultaneous = 1e-3
	for _, n := range sorted {
		if len(melody) > 0 && n.Start-melody[len(melody)-1].Start < simultaneous {
			continue // same onset, lower pitch
		}
		melody = append(melody, n)
	}
	return melody
}

func windowFeatures(notes []TimedNote) themeWindow {
	w := themeWindow{
		start:   notes[0].Start,
		end:     notes[len(notes)-1].End,
		contour: make([]int, 0, len(notes)-1),
	}
	minP, maxP := notes[0].Pitch, notes[0].Pitch
	for i := 1; i < len(notes); i++ {
		switch {
		case notes[i].Pitch > notes[i-1].Pitch:
			w.contour = append(w.contour, 1)
		case notes[i].Pitch < notes[i-1].Pitch:
			w.contour = append(w.contour, -1)
		default:
			w.contour = append(w.contour, 0)
		}
		minP = min(minP, notes[i].Pitch)
		maxP = max(maxP, notes[i].Pitch)
	}
	w.pitchRange = float64(maxP - minP)
	if span := w.end - w.start; span > 0 {
		w.density = float64(len(notes)) / span
	}
	return w
}

// windowDistance is the normalized distance between two windows'
// feature vectors: contour mismatch fraction plus clamped range and
// density contrasts, equally weighted.
func windowDistance(a, b themeWindow) float64 {
	n := min(len(a.contour), len(b.contour))
	if n == 0 {
		return 1
	}
	mismatch := 0.0
	for i := 0; i < n; i++ {
		if a.contour[i] != b.contour[i] {
			mismatch++
		}
	}
	contourDist := mismatch / float64(n)
	rangeDist := math.Min(math.Abs(a.pitchRange-b.pitchRange)/rangeNorm, 1)
	densityDist := math.Min(math.Abs(a.density-b.density)/densityNorm, 1)
	return (contourDist + rangeDist + densityDist) / 3
}

func character(w themeWindow) string {
	highDensity := w.density >= densitySplit
	wideRange := w.pitchRange > rangeSplit
	switch {
	case highDensity && !wideRange:
		return CharacterRhythmic
	case !highDensity && wideRange:
		return CharacterLyrical
	case highDensity && wideRange:
		return CharacterDevelopmental
	default:
		return CharacterCantabile
	}
}
