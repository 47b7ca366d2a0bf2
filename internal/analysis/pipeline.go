package analysis

import (
	"fmt"
	"sync"

	"github.com/tonalworks/sonata-api/internal/score"
)

// Pipeline runs one complete analysis over a score. It is stateless and
// safe for concurrent use: every invocation owns its own intermediate
// collections exclusively.
type Pipeline struct {
	cfg Config
}

// NewPipeline builds a pipeline with the given tuning.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Analyze converts the score into timed notes and runs the detectors
// and the section estimator. The three detectors have no data
// dependency on each other and run in parallel over the same immutable
// TimedNote slice; their results are joined before estimation.
//
// Failures are all-or-nothing: the caller gets either a complete Result
// or a single fatal error (score.ErrInvalidInputFormat or
// score.ErrInvalidTempoMap). Weak signals never fail; they surface as
// reduced confidence.
func (p *Pipeline) Analyze(s *score.Score) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	mapper, err := NewTimeMapper(s.TicksPerQuarter, s.SortedTempos())
	if err != nil {
		return nil, err
	}
	notes, err := mapper.MapNotes(s.SortedNotes())
	if err != nil {
		return nil, err
	}
	total := TotalDuration(notes)
	if total <= 0 {
		// All notes at tick zero with zero duration: nothing to segment,
		// and the gapless-cover guarantee would be vacuously broken.
		return nil, fmt.Errorf("%w: score has no audible duration", score.ErrInvalidInputFormat)
	}

	var (
		keyAreas []KeyArea
		blocks   []ThematicBlock
		cadences []Cadence
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		keyAreas = DetectKeyAreas(notes, total, p.cfg)
	}()
	go func() {
		defer wg.Done()
		blocks = DetectThematicMaterial(notes, p.cfg)
	}()
	wg.Wait()

	// Cadence detection reads the key context, so it joins after the
	// key areas are in.
	cadences = DetectCadences(notes, keyAreas, p.cfg)

	onsets := make([]float64, len(notes))
	for i, n := range notes {
		onsets[i] = n.Start
	}

	sections := EstimateSections(keyAreas, blocks, cadences, onsets, total, p.cfg)
	return Aggregate(sections, keyAreas, blocks, cadences, total, p.cfg), nil
}
