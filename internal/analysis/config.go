package analysis

// Config carries every tunable the pipeline uses. It is passed
// explicitly into each detector rather than read from ambient state so
// test runs can parameterize deterministically. All values are tunable;
// the defaults were chosen against the reference corpus rather than
// derived from theory.
type Config struct {
	// Key-area detection
	KeyWindowSec float64 // analysis window length in seconds
	KeyHopSec    float64 // hop between window starts; must be < window

	// Thematic-material detection
	ThemeWindowNotes  int     // notes per melodic window
	ThemeHopNotes     int     // notes between window starts
	ThemeSimThreshold float64 // normalized distance below which windows cluster

	// Cadence detection
	RestGapFactor      float64 // gap >= factor * median inter-onset => phrase boundary
	LongNoteFactor     float64 // duration >= factor * median duration => phrase boundary
	CadenceContextSec  float64 // how far back to look for the approaching bass
	CadenceMinSpacing  float64 // minimum seconds between reported cadences
	CadenceOnsetWindow float64 // half-width for "landing" notes around a candidate

	// Section estimation
	ExpositionEndFrac  float64 // prior: exposition ends at this fraction of duration
	DevelopmentEndFrac float64 // prior: development ends at this fraction of duration
	BoundaryTolFrac    float64 // evidence within this fraction of duration supports a boundary
	SnapTolSec         float64 // boundaries snap to events within this many seconds
	WeightPrior        float64 // confidence weight: proportion-prior fit
	WeightKey          float64 // confidence weight: key-area confidence overlap
	WeightCadence      float64 // confidence weight: cadence support at the boundary

	// Aggregation
	MaxInsights int
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		KeyWindowSec:       6.0,
		KeyHopSec:          3.0,
		ThemeWindowNotes:   8,
		ThemeHopNotes:      4,
		ThemeSimThreshold:  0.25,
		RestGapFactor:      1.5,
		LongNoteFactor:     2.0,
		CadenceContextSec:  1.5,
		CadenceMinSpacing:  1.0,
		CadenceOnsetWindow: 0.25,
		ExpositionEndFrac:  0.35,
		DevelopmentEndFrac: 0.70,
		BoundaryTolFrac:    0.08,
		SnapTolSec:         2.0,
		WeightPrior:        0.4,
		WeightKey:          0.4,
		WeightCadence:      0.2,
		MaxInsights:        8,
	}
}
