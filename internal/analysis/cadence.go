package analysis

import (
	"math"
	"sort"
)

// scale degrees as semitone offsets from the tonic
const (
	degreeTonic    = 0
	degreeDominant = 7
)

// DetectCadences locates harmonic cadence points. Candidates are
// phrase-boundary moments (rests, long notes, key-area boundaries); at
// each, the local bass motion is read as scale degrees relative to the
// governing key. Dominant-to-tonic bass motion classifies as authentic,
// a phrase ending on the dominant as half. Candidates matching neither
// pattern yield nothing: this is a precision-oriented filter, not an
// exhaustive one.
func DetectCadences(notes []TimedNote, keyAreas []KeyArea, cfg Config) []Cadence {
	if len(notes) < 2 || len(keyAreas) == 0 {
		return nil
	}

	sorted := make([]TimedNote, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	medianIOI := medianInterOnset(sorted)
	medianDur := medianDuration(sorted)
	candidates := candidateTimes(sorted, keyAreas, medianIOI, medianDur, cfg)

	var cadences []Cadence
	for _, t := range candidates {
		area := governingKeyArea(keyAreas, t)
		if area == nil {
			continue
		}
		approach, ok := bassPitchClass(sorted, t-cfg.CadenceContextSec, t-cfg.CadenceOnsetWindow)
		landing, okLanding := bassPitchClass(sorted, t-cfg.CadenceOnsetWindow, t+cfg.CadenceOnsetWindow)
		if !okLanding {
			continue
		}

		landingDegree := degree(landing, area.Tonic)
		var cadType CadenceType
		switch {
		case ok && degree(approach, area.Tonic) == degreeDominant && landingDegree == degreeTonic:
			cadType = CadenceAuthentic
		case landingDegree == degreeDominant:
			cadType = CadenceHalf
		default:
			continue
		}

		if len(cadences) > 0 && t-cadences[len(cadences)-1].Time < cfg.CadenceMinSpacing {
			continue
		}
		cadences = append(cadences, Cadence{Type: cadType, Time: t, Key: area.Key})
	}
	return cadences
}

// candidateTimes collects phrase-boundary moments in ascending order:
// note ends followed by a rest, unusually long notes, and key-area
// boundaries.
func candidateTimes(sorted []TimedNote, keyAreas []KeyArea, medianIOI, medianDur float64, cfg Config) []float64 {
	var times []float64
	for i := 0; i < len(sorted); i++ {
		n := sorted[i]
		if n.End-n.Start >= cfg.LongNoteFactor*medianDur && medianDur > 0 {
			times = append(times, n.End)
			continue
		}
		if i+1 < len(sorted) && sorted[i+1].Start-n.End >= cfg.RestGapFactor*medianIOI && medianIOI > 0 {
			times = append(times, n.End)
		}
	}
	for i := 1; i < len(keyAreas); i++ {
		times = append(times, keyAreas[i].Start)
	}
	sort.Float64s(times)

	// collapse near-duplicates
	dedup := times[:0]
	for _, t := range times {
		if len(dedup) == 0 || t-dedup[len(dedup)-1] > cfg.CadenceOnsetWindow {
			dedup = append(dedup, t)
		}
	}
	return dedup
}

// bassPitchClass returns the lowest pitch class among notes sounding in
// (from, to].
func bassPitchClass(sorted []TimedNote, from, to float64) (int, bool) {
	lowest := math.MaxInt32
	for _, n := range sorted {
		if n.Start > to {
			break
		}
		if n.End <= from {
			continue
		}
		if n.Pitch < lowest {
			lowest = n.Pitch
		}
	}
	if lowest == math.MaxInt32 {
		return 0, false
	}
	return lowest % 12, true
}

func governingKeyArea(areas []KeyArea, t float64) *KeyArea {
	for i := range areas {
		if t >= areas[i].Start && t <= areas[i].End {
			return &areas[i]
		}
	}
	if len(areas) > 0 && t > areas[len(areas)-1].End {
		return &areas[len(areas)-1]
	}
	return nil
}

func degree(pitchClass, tonic int) int {
	return ((pitchClass-tonic)%12 + 12) % 12
}

func medianInterOnset(sorted []TimedNote) float64 {
	if len(sorted) < 2 {
		return 0
	}
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Start-sorted[i-1].Start)
	}
	return median(gaps)
}

func medianDuration(sorted []TimedNote) float64 {
	durs := make([]float64, 0, len(sorted))
	for _, n := range sorted {
		durs = append(durs, n.End-n.Start)
	}
	return median(durs)
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := make([]float64, len(vs))
	copy(s, vs)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
