// Package analysis implements the sonata-form analysis pipeline: time
// mapping, key-area detection, thematic-material detection, cadence
// detection, section estimation, and result aggregation. The pipeline is
// a pure batch computation: it performs no I/O, holds no state across
// invocations, and produces byte-identical output for identical input.
package analysis

// TimedNote is a note event with onset and duration re-expressed in
// seconds. Derived by the time mapper, never mutated afterwards.
type TimedNote struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Velocity float64 `json:"velocity"`
}

// PitchClass returns the note's pitch class (0=C .. 11=B).
func (n TimedNote) PitchClass() int {
	return n.Pitch % 12
}

// KeyArea is a contiguous time span governed by a single tonal center.
type KeyArea struct {
	Key        string  `json:"key"`  // e.g. "C major"
	Tonic      int     `json:"-"`    // pitch class of the tonic
	Mode       string  `json:"mode"` // "major" or "minor"
	Start      float64 `json:"startTime"`
	End        float64 `json:"endTime"`
	Confidence float64 `json:"confidence"` // correlation score, 0-1
}

// ThematicBlock labels a window of distinctive or recurring melodic
// material.
type ThematicBlock struct {
	Label     string  `json:"label"` // theme identifier, e.g. "theme-1"
	Start     float64 `json:"startTime"`
	End       float64 `json:"endTime"`
	Character string  `json:"character"` // e.g. "lyrical", "rhythmic/motivic"
}

// CadenceType is the closed set of cadence classifications.
type CadenceType string

const (
	CadenceAuthentic CadenceType = "authentic"
	CadenceHalf      CadenceType = "half"
)

// Cadence is a point event: harmonic closure at a moment in time.
// Cadence presence is binary evidence for the section estimator; there
// is deliberately no confidence field.
type Cadence struct {
	Type CadenceType `json:"type"`
	Time float64     `json:"time"`
	Key  string      `json:"key"` // governing key at the cadence point
}

// SectionType is the fixed enumeration of sonata-form roles.
type SectionType string

const (
	SectionIntroduction          SectionType = "introduction"
	SectionExpositionTheme1      SectionType = "exposition-theme1"
	SectionExpositionTransition  SectionType = "exposition-transition"
	SectionExpositionTheme2      SectionType = "exposition-theme2"
	SectionExpositionClosing     SectionType = "exposition-closing"
	SectionDevelopment           SectionType = "development"
	SectionRecapitulationTheme1  SectionType = "recapitulation-theme1"
	SectionRecapTransition       SectionType = "recapitulation-transition"
	SectionRecapitulationTheme2  SectionType = "recapitulation-theme2"
	SectionRecapitulationClosing SectionType = "recapitulation-closing"
	SectionCoda                  SectionType = "coda"
)

// Section is one labeled span of the final segmentation. The estimator
// guarantees sections are time-ordered, pairwise non-overlapping, and
// jointly cover [0, totalDuration].
type Section struct {
	Type        SectionType `json:"type"`
	Start       float64     `json:"startTime"`
	End         float64     `json:"endTime"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
	MusicalKey  string      `json:"musicalKey,omitempty"`
}

// RawSignals is a bounded echo of the intermediate detector output,
// included for clients that render the underlying evidence.
type RawSignals struct {
	KeyAreas     []KeyArea `json:"keyAreas"`
	CadenceCount int       `json:"cadenceCount"`
	ThemeCount   int       `json:"themeCount"`
}

// Result is the pipeline's terminal artifact. Owned by the caller once
// returned; the pipeline keeps no reference to it.
type Result struct {
	Sections          []Section  `json:"sections"`
	OverallConfidence float64    `json:"overallConfidence"`
	Summary           string     `json:"summary"`
	MusicalInsights   []string   `json:"musicalInsights"`
	Raw               RawSignals `json:"rawAnalysis"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
