package analysis

import (
	"fmt"
	"math"
)

// estimatorState enumerates the sonata-form roles in canonical order.
// The estimator walks these via a pure transition function so the rule
// ordering stays auditable.
type estimatorState int

const (
	stateIntroduction estimatorState = iota
	stateExpoTheme1
	stateExpoTransition
	stateExpoTheme2
	stateExpoClosing
	stateDevelopment
	stateRecapTheme1
	stateRecapTransition
	stateRecapTheme2
	stateRecapClosing
	stateCoda
	stateDone
)

// evidence is the fused signal set the transition function and the
// confidence model read from. It is assembled once per estimation and
// never mutated afterwards.
type evidence struct {
	total    float64
	keyAreas []KeyArea
	blocks   []ThematicBlock
	cadences []Cadence
	onsets   []float64

	snapTol      float64
	primary      KeyArea
	secondaryKey string
	hasIntro     bool
	introEnd     float64
	expoEnd      float64 // development start
	recapStart   float64 // development end
	tonicReturn  bool    // recapStart confirmed by a return to the tonic key
	recurrence   bool    // thematic material shared between opening and final third
}

// section-estimation tuning constants; fractions are of the span they
// subdivide, mirroring the classical proportion priors.
const (
	introMaxFrac     = 0.25
	recapMinFrac     = 0.55
	recapMaxFrac     = 0.85
	expoTheme1Frac   = 0.40
	expoTransFrac    = 0.55
	expoTheme2Frac   = 0.85
	recapTheme1Frac  = 0.35
	recapTransFrac   = 0.45
	recapTheme2Frac  = 0.70
	recapClosingFrac = 0.85

	minSectionSpan = 0.25 // seconds; narrower planned spans are skipped

	confidenceFloor   = 0.05
	confidenceCeiling = 0.95
	noKeyEvidenceConf = 0.3

	degradedConfidence = 0.2
	minUsableDuration  = 12.0 // seconds of music needed for the full state walk
)

// EstimateSections fuses key areas, thematic blocks, and cadences with
// duration-proportion priors into a single ordered, non-overlapping,
// gapless Section sequence covering [0, total]. It never fails: minimal
// or contradictory input degrades to a small number of very
// low-confidence sections.
func EstimateSections(keyAreas []KeyArea, blocks []ThematicBlock, cadences []Cadence, onsets []float64, total float64, cfg Config) []Section {
	if total <= 0 {
		return nil
	}
	if len(keyAreas) == 0 || total < minUsableDuration {
		return degradedSections(total)
	}

	ev := buildEvidence(keyAreas, blocks, cadences, onsets, total, cfg)

	state := stateExpoTheme1
	if ev.hasIntro {
		state = stateIntroduction
	}

	sections := make([]Section, 0, 11)
	cursor := 0.0
	for state != stateDone {
		end := sectionEnd(state, ev)
		next := nextState(state, ev)
		if next == stateDone {
			end = ev.total
		}
		if end-cursor >= minSectionSpan && end <= ev.total {
			sections = append(sections, makeSection(state, cursor, end, ev, cfg))
			cursor = end
		}
		state = next
	}
	if len(sections) == 0 {
		return degradedSections(total)
	}

	// Exact edges: downstream consumers require a total cover.
	sections[0].Start = 0
	sections[len(sections)-1].End = total
	return sections
}

// nextState is the pure transition function over the evidence. The walk
// is linear; evidence only decides which optional states participate
// (introduction is decided at entry, the recapitulation's inner states
// collapse when their spans do).
func nextState(s estimatorState, ev *evidence) estimatorState {
	switch s {
	case stateIntroduction:
		return stateExpoTheme1
	case stateExpoTheme1:
		return stateExpoTransition
	case stateExpoTransition:
		return stateExpoTheme2
	case stateExpoTheme2:
		return stateExpoClosing
	case stateExpoClosing:
		return stateDevelopment
	case stateDevelopment:
		return stateRecapTheme1
	case stateRecapTheme1:
		return stateRecapTransition
	case stateRecapTransition:
		return stateRecapTheme2
	case stateRecapTheme2:
		return stateRecapClosing
	case stateRecapClosing:
		return stateCoda
	default:
		return stateDone
	}
}

// sectionEnd places the boundary that closes the given state, snapped
// to supporting events.
func sectionEnd(s estimatorState, ev *evidence) float64 {
	expoStart := 0.0
	if ev.hasIntro {
		expoStart = ev.introEnd
	}
	expoSpan := ev.expoEnd - expoStart
	recapSpan := ev.total - ev.recapStart

	switch s {
	case stateIntroduction:
		return ev.introEnd
	case stateExpoTheme1:
		return ev.snap(expoStart + expoTheme1Frac*expoSpan)
	case stateExpoTransition:
		return ev.snap(expoStart + expoTransFrac*expoSpan)
	case stateExpoTheme2:
		return ev.snap(expoStart + expoTheme2Frac*expoSpan)
	case stateExpoClosing:
		return ev.expoEnd
	case stateDevelopment:
		return ev.recapStart
	case stateRecapTheme1:
		return ev.snap(ev.recapStart + recapTheme1Frac*recapSpan)
	case stateRecapTransition:
		return ev.snap(ev.recapStart + recapTransFrac*recapSpan)
	case stateRecapTheme2:
		return ev.snap(ev.recapStart + recapTheme2Frac*recapSpan)
	case stateRecapClosing:
		return ev.snap(ev.recapStart + recapClosingFrac*recapSpan)
	default:
		return ev.total
	}
}

func buildEvidence(keyAreas []KeyArea, blocks []ThematicBlock, cadences []Cadence, onsets []float64, total float64, cfg Config) *evidence {
	ev := &evidence{
		total:    total,
		keyAreas: keyAreas,
		blocks:   blocks,
		cadences: cadences,
		onsets:   onsets,
		snapTol:  cfg.SnapTolSec,
		primary:  keyAreas[0],
	}

	// Implicit introduction: the opening key area relates to none of the
	// later material and gives way early.
	if len(keyAreas) > 1 && keyAreas[0].End <= introMaxFrac*total {
		foundLater := false
		for _, a := range keyAreas[1:] {
			if a.Key == keyAreas[0].Key {
				foundLater = true
				break
			}
		}
		if !foundLater {
			ev.hasIntro = true
			ev.introEnd = ev.snapWithTol(keyAreas[0].End, cfg.SnapTolSec)
			ev.primary = keyAreas[1]
		}
	}

	tol := cfg.BoundaryTolFrac * total

	// Exposition/development boundary: proportion prior, pulled to a key
	// boundary and cadence when they corroborate it.
	ev.expoEnd = ev.refineBoundary(cfg.ExpositionEndFrac*total, tol)

	// Recapitulation start: a return to the tonic key after the
	// development window beats the prior outright.
	ev.recapStart = ev.refineBoundary(cfg.DevelopmentEndFrac*total, tol)
	for _, a := range keyAreas[1:] {
		if a.Key == ev.primary.Key && a.Start >= recapMinFrac*total && a.Start <= recapMaxFrac*total {
			ev.recapStart = a.Start
			ev.tonicReturn = true
			break
		}
	}
	if ev.recapStart <= ev.expoEnd {
		ev.recapStart = math.Min(ev.expoEnd+(total-ev.expoEnd)/2, total)
	}

	ev.secondaryKey = ev.findSecondaryKey()
	ev.recurrence = thematicRecurrence(blocks, total)
	return ev
}

// refineBoundary starts from the proportion prior and moves to the key
// boundary nearest the prior when one lies within tolerance, then to a
// cadence when one corroborates that point. Where two candidates
// conflict the one nearer a cadence wins; an unresolved tie keeps the
// prior.
func (ev *evidence) refineBoundary(prior, tol float64) float64 {
	best := prior
	bestDist := tol
	for _, a := range ev.keyAreas[1:] {
		if d := math.Abs(a.Start - prior); d < bestDist {
			best, bestDist = a.Start, d
		}
	}
	for _, c := range ev.cadences {
		if math.Abs(c.Time-best) <= tol/2 {
			return c.Time
		}
	}
	return best
}

// snap moves a planned boundary to the nearest defensible musical
// event. Cadences take precedence, then key-area boundaries, then note
// onsets; a boundary never lands on an arbitrary interpolated point
// when an event is in reach.
func (ev *evidence) snap(t float64) float64 {
	return ev.snapWithTol(t, ev.snapTol)
}

func (ev *evidence) snapWithTol(t, tol float64) float64 {
	if c, ok := nearest(cadenceTimes(ev.cadences), t, tol); ok {
		return c
	}
	if b, ok := nearest(keyBoundaryTimes(ev.keyAreas), t, tol); ok {
		return b
	}
	if o, ok := nearest(ev.onsets, t, tol); ok {
		return o
	}
	return t
}

func (ev *evidence) findSecondaryKey() string {
	// The secondary key governs the back half of the exposition.
	for _, a := range ev.keyAreas {
		if a.Start >= 0.5*ev.expoEnd && a.Start < ev.expoEnd && a.Key != ev.primary.Key {
			return a.Key
		}
	}
	// Default to the dominant when no modulation was detected.
	return KeyName(ev.primary.Tonic+7, ModeMajor)
}

// thematicRecurrence reports whether any theme label occurs both in the
// opening 40% and the final third of the piece.
func thematicRecurrence(blocks []ThematicBlock, total float64) bool {
	early := map[string]bool{}
	for _, b := range blocks {
		if b.Start < 0.4*total {
			early[b.Label] = true
		}
	}
	for _, b := range blocks {
		if b.Start >= total*2/3 && early[b.Label] {
			return true
		}
	}
	return false
}

func makeSection(s estimatorState, start, end float64, ev *evidence, cfg Config) Section {
	sec := Section{
		Start: start,
		End:   end,
	}
	primary := ev.primary.Key
	switch s {
	case stateIntroduction:
		sec.Type = SectionIntroduction
		sec.Description = fmt.Sprintf("Introductory material preceding the first theme in %s", primary)
		sec.MusicalKey = ev.keyAreas[0].Key
	case stateExpoTheme1:
		sec.Type = SectionExpositionTheme1
		sec.Description = fmt.Sprintf("First theme area in %s", primary)
		sec.MusicalKey = primary
	case stateExpoTransition:
		sec.Type = SectionExpositionTransition
		sec.Description = "Transitional passage modulating to the secondary key"
		sec.MusicalKey = "modulating"
	case stateExpoTheme2:
		sec.Type = SectionExpositionTheme2
		sec.Description = fmt.Sprintf("Second theme area in %s", ev.secondaryKey)
		sec.MusicalKey = ev.secondaryKey
	case stateExpoClosing:
		sec.Type = SectionExpositionClosing
		sec.Description = fmt.Sprintf("Closing theme confirming %s", ev.secondaryKey)
		sec.MusicalKey = ev.secondaryKey
	case stateDevelopment:
		sec.Type = SectionDevelopment
		sec.Description = "Development with thematic fragmentation and key exploration"
		sec.MusicalKey = "unstable"
	case stateRecapTheme1:
		sec.Type = SectionRecapitulationTheme1
		sec.Description = fmt.Sprintf("Return of the first theme in %s", primary)
		sec.MusicalKey = primary
	case stateRecapTransition:
		sec.Type = SectionRecapTransition
		sec.Description = "Modified transition remaining in the tonic"
		sec.MusicalKey = primary
	case stateRecapTheme2:
		sec.Type = SectionRecapitulationTheme2
		sec.Description = fmt.Sprintf("Second theme now in %s", primary)
		sec.MusicalKey = primary
	case stateRecapClosing:
		sec.Type = SectionRecapitulationClosing
		sec.Description = fmt.Sprintf("Closing material confirming %s", primary)
		sec.MusicalKey = primary
	case stateCoda:
		sec.Type = SectionCoda
		sec.Description = fmt.Sprintf("Coda confirming %s", primary)
		sec.MusicalKey = primary
	}
	sec.Confidence = sectionConfidence(s, sec, ev, cfg)
	return sec
}

// sectionConfidence combines proportion-prior fit, key-area confidence
// overlap, and cadence support, deliberately kept conservative: weak or
// contradictory signals pull the value down rather than being papered
// over.
func sectionConfidence(s estimatorState, sec Section, ev *evidence, cfg Config) float64 {
	priorFit := clamp01(1 - math.Abs(midpoint(sec)-priorMidpoint(s, ev))/ev.total)

	var keyComponent float64
	if s == stateDevelopment {
		keyComponent = developmentInstability(ev)
	} else {
		keyComponent = keyConfidenceOverlap(ev.keyAreas, sec.Start, sec.End)
	}

	cadenceSupport := 0.0
	if _, ok := nearest(cadenceTimes(ev.cadences), sec.End, cfg.SnapTolSec); ok {
		cadenceSupport = 1.0
	}

	conf := cfg.WeightPrior*priorFit + cfg.WeightKey*keyComponent + cfg.WeightCadence*cadenceSupport

	// Recurring themes under matching keys confirm theme placement in
	// both halves of the form.
	if ev.recurrence && (s == stateExpoTheme1 || s == stateExpoTheme2 ||
		s == stateRecapTheme1 || s == stateRecapTheme2) {
		conf += 0.05
	}
	if s == stateRecapTheme1 && ev.tonicReturn {
		conf += 0.05
	}

	return math.Max(confidenceFloor, math.Min(confidenceCeiling, conf))
}

// developmentInstability scores harmonic restlessness inside the
// development window. A single unchanging key is strong evidence
// against a real development.
func developmentInstability(ev *evidence) float64 {
	keys := map[string]bool{}
	for _, a := range ev.keyAreas {
		if a.End > ev.expoEnd && a.Start < ev.recapStart {
			keys[a.Key] = true
		}
	}
	switch {
	case len(keys) <= 1:
		return 0.15
	case len(keys) == 2:
		return 0.6
	default:
		return math.Min(0.9, 0.6+0.1*float64(len(keys)-2))
	}
}

// keyConfidenceOverlap is the duration-weighted mean confidence of key
// areas overlapping [start, end).
func keyConfidenceOverlap(areas []KeyArea, start, end float64) float64 {
	var weighted, span float64
	for _, a := range areas {
		overlap := math.Min(a.End, end) - math.Max(a.Start, start)
		if overlap > 0 {
			weighted += overlap * a.Confidence
			span += overlap
		}
	}
	if span == 0 {
		return noKeyEvidenceConf
	}
	return weighted / span
}

func priorMidpoint(s estimatorState, ev *evidence) float64 {
	// Recompute the unsnapped prior span center for the state.
	expoPrior := 0.35 * ev.total
	devPrior := 0.70 * ev.total
	switch s {
	case stateIntroduction:
		return ev.introEnd / 2
	case stateExpoTheme1:
		return expoTheme1Frac * expoPrior / 2
	case stateExpoTransition:
		return (expoTheme1Frac + expoTransFrac) * expoPrior / 2
	case stateExpoTheme2:
		return (expoTransFrac + expoTheme2Frac) * expoPrior / 2
	case stateExpoClosing:
		return (expoTheme2Frac + 1) * expoPrior / 2
	case stateDevelopment:
		return (expoPrior + devPrior) / 2
	case stateRecapTheme1:
		return devPrior + recapTheme1Frac*(ev.total-devPrior)/2
	case stateRecapTransition:
		return devPrior + (recapTheme1Frac+recapTransFrac)*(ev.total-devPrior)/2
	case stateRecapTheme2:
		return devPrior + (recapTransFrac+recapTheme2Frac)*(ev.total-devPrior)/2
	case stateRecapClosing:
		return devPrior + (recapTheme2Frac+recapClosingFrac)*(ev.total-devPrior)/2
	default:
		return devPrior + (recapClosingFrac+1)*(ev.total-devPrior)/2
	}
}

func degradedSections(total float64) []Section {
	third := total / 3
	mk := func(t SectionType, start, end float64, desc string) Section {
		return Section{Type: t, Start: start, End: end, Confidence: degradedConfidence, Description: desc}
	}
	return []Section{
		mk(SectionExpositionTheme1, 0, third, "Opening material (insufficient evidence for a detailed segmentation)"),
		mk(SectionDevelopment, third, 2*third, "Central material (insufficient evidence for a detailed segmentation)"),
		mk(SectionRecapitulationTheme1, 2*third, total, "Closing material (insufficient evidence for a detailed segmentation)"),
	}
}

func midpoint(s Section) float64 {
	return (s.Start + s.End) / 2
}

func cadenceTimes(cadences []Cadence) []float64 {
	times := make([]float64, len(cadences))
	for i, c := range cadences {
		times[i] = c.Time
	}
	return times
}

func keyBoundaryTimes(areas []KeyArea) []float64 {
	times := make([]float64, 0, len(areas))
	for i := 1; i < len(areas); i++ {
		times = append(times, areas[i].Start)
	}
	return times
}

// nearest returns the candidate closest to t within tol.
func nearest(candidates []float64, t, tol float64) (float64, bool) {
	best, bestDist := 0.0, tol
	found := false
	for _, c := range candidates {
		if d := math.Abs(c - t); d <= bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}
