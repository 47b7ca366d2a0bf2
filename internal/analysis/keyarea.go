package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Krumhansl-Kessler tonal hierarchy templates. Index 0 is the tonic
// pitch class; the template is rotated to test each of the 24 keys.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}

	pitchClassNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
)

const (
	ModeMajor = "major"
	ModeMinor = "minor"
)

// KeyName renders a tonic pitch class and mode as a key label.
func KeyName(tonic int, mode string) string {
	return fmt.Sprintf("%s %s", pitchClassNames[((tonic%12)+12)%12], mode)
}

// DetectKeyAreas segments [0, total] into contiguous tonal regions.
// Overlapping windows of cfg.KeyWindowSec (hop cfg.KeyHopSec) each get a
// pitch-class duration profile correlated against the 24 key templates.
// The timeline is then re-labeled on the hop grid by majority vote among
// the windows covering each grid slice, and agreeing slices are merged.
func DetectKeyAreas(notes []TimedNote, total float64, cfg Config) []KeyArea {
	if len(notes) == 0 || total <= 0 {
		return nil
	}

	win := cfg.KeyWindowSec
	hop := cfg.KeyHopSec
	if win <= 0 || hop <= 0 || hop > win {
		win, hop = DefaultConfig().KeyWindowSec, DefaultConfig().KeyHopSec
	}

	windows := classifyWindows(notes, total, win, hop)
	merged := MergeKeyAreas(voteSlices(windows, total, hop))
	return normalizeKeyAreaCoverage(merged, total)
}

// classifyWindows runs the 24-key correlation over every analysis
// window.
func classifyWindows(notes []TimedNote, total, win, hop float64) []KeyArea {
	var windows []KeyArea
	for t := 0.0; t < total; t += hop {
		end := math.Min(t+win, total)
		chroma := windowChroma(notes, t, end)

		if sum(chroma) == 0 {
			// A silent window inherits the previous window's key with
			// zero confidence; a silent opening window is dropped.
			if len(windows) == 0 {
				continue
			}
			prev := windows[len(windows)-1]
			windows = append(windows, KeyArea{
				Key: prev.Key, Tonic: prev.Tonic, Mode: prev.Mode,
				Start: t, End: end, Confidence: 0,
			})
			continue
		}

		tonic, mode, corr := bestKey(chroma)
		windows = append(windows, KeyArea{
			Key:        KeyName(tonic, mode),
			Tonic:      tonic,
			Mode:       mode,
			Start:      t,
			End:        end,
			Confidence: clamp01(corr),
		})
		if end >= total {
			break
		}
	}
	return windows
}

// voteSlices re-labels the timeline on the hop grid. Near a modulation
// the overlapping windows disagree, and a window straddling the change
// can misreport its whole span; each slice therefore takes the key the
// majority of its covering windows voted for, with ties resolving to
// the higher mean confidence. The boundary between two keys then falls
// on the grid point where the vote flips rather than drifting into the
// straddling window.
func voteSlices(windows []KeyArea, total, hop float64) []KeyArea {
	if len(windows) == 0 {
		return nil
	}

	type tally struct {
		count   int
		confSum float64
		area    KeyArea
	}

	const eps = 1e-9
	var slices []KeyArea
	for t := 0.0; t < total-eps; t += hop {
		end := math.Min(t+hop, total)

		var tallies []*tally
		for _, w := range windows {
			if w.Start > t+eps || w.End < end-eps {
				continue
			}
			matched := false
			for _, v := range tallies {
				if v.area.Key == w.Key && v.area.Mode == w.Mode {
					v.count++
					v.confSum += w.Confidence
					matched = true
					break
				}
			}
			if !matched {
				tallies = append(tallies, &tally{count: 1, confSum: w.Confidence, area: w})
			}
		}
		if len(tallies) == 0 {
			continue
		}

		best := tallies[0]
		for _, v := range tallies[1:] {
			if v.count > best.count ||
				(v.count == best.count && v.confSum/float64(v.count) > best.confSum/float64(best.count)) {
				best = v
			}
		}
		slices = append(slices, KeyArea{
			Key:        best.area.Key,
			Tonic:      best.area.Tonic,
			Mode:       best.area.Mode,
			Start:      t,
			End:        end,
			Confidence: best.confSum / float64(best.count),
		})
	}
	return slices
}

// MergeKeyAreas collapses adjacent areas with identical key and mode
// into one area spanning their union, with the mean of the constituent
// confidences. Merging an already-merged sequence is a no-op.
func MergeKeyAreas(areas []KeyArea) []KeyArea {
	if len(areas) == 0 {
		return nil
	}
	merged := make([]KeyArea, 0, len(areas))
	cur := areas[0]
	confSum := cur.Confidence
	count := 1
	for _, a := range areas[1:] {
		if a.Key == cur.Key && a.Mode == cur.Mode {
			cur.End = math.Max(cur.End, a.End)
			confSum += a.Confidence
			count++
			continue
		}
		cur.Confidence = confSum / float64(count)
		merged = append(merged, cur)
		cur = a
		confSum = a.Confidence
		count = 1
	}
	cur.Confidence = confSum / float64(count)
	merged = append(merged, cur)
	return merged
}

// normalizeKeyAreaCoverage makes the sequence contiguous over
// [0, total]: overlapping neighbors meet at the midpoint of their
// overlap, the first area is extended to 0 and the last to total.
func normalizeKeyAreaCoverage(areas []KeyArea, total float64) []KeyArea {
	if len(areas) == 0 {
		return nil
	}
	out := make([]KeyArea, len(areas))
	copy(out, areas)
	out[0].Start = 0
	out[len(out)-1].End = total
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			mid := (out[i].Start + out[i-1].End) / 2
			out[i-1].End = mid
			out[i].Start = mid
		}
	}
	return out
}

// windowChroma accumulates per-pitch-class note duration overlapping
// the window [start, end).
func windowChroma(notes []TimedNote, start, end float64) []float64 {
	chroma := make([]float64, 12)
	for _, n := range notes {
		overlap := math.Min(n.End, end) - math.Max(n.Start, start)
		if overlap > 0 {
			chroma[n.PitchClass()] += overlap
		}
	}
	return chroma
}

// bestKey correlates the chroma profile against all 24 key templates
// and returns the winner. Ties resolve to the lower pitch class and
// major before minor, keeping the scan deterministic.
func bestKey(chroma []float64) (tonic int, mode string, corr float64) {
	best := math.Inf(-1)
	tonic, mode = 0, ModeMajor
	for pc := 0; pc < 12; pc++ {
		if c := profileCorrelation(chroma, majorProfile, pc); c > best {
			best, tonic, mode = c, pc, ModeMajor
		}
		if c := profileCorrelation(chroma, minorProfile, pc); c > best {
			best, tonic, mode = c, pc, ModeMinor
		}
	}
	return tonic, mode, best
}

// profileCorrelation is the Pearson correlation between the chroma
// vector and the template rotated so the tonic sits at index 0.
func profileCorrelation(chroma, profile []float64, tonic int) float64 {
	rotated := make([]float64, 12)
	for pc := 0; pc < 12; pc++ {
		rotated[pc] = profile[((pc-tonic)%12+12)%12]
	}
	c := stat.Correlation(chroma, rotated, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}
