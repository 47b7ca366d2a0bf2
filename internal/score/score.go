// Package score holds the symbolic music representation the analysis
// pipeline consumes: note events in tick time plus tempo and meter
// metadata. Values are immutable once parsed; the pipeline never writes
// back into a Score.
package score

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidInputFormat marks unparseable or empty note data. Fatal: no
// partial analysis is produced.
var ErrInvalidInputFormat = errors.New("invalid input format")

// ErrInvalidTempoMap marks degenerate tempo data (empty map or
// non-positive bpm). Fatal.
var ErrInvalidTempoMap = errors.New("invalid tempo map")

const (
	minPitch = 0
	maxPitch = 127
)

// Note is a single note event in symbolic (tick) time.
type Note struct {
	Pitch    int     `json:"pitch"`    // MIDI note number, 0-127
	Onset    uint32  `json:"onset"`    // ticks
	Duration uint32  `json:"duration"` // ticks
	Velocity float64 `json:"velocity"` // normalized 0.0-1.0
}

// TempoEvent is a bpm change at a tick position. An ordered sequence of
// these defines the piecewise tempo curve used for time mapping.
type TempoEvent struct {
	Tick uint32  `json:"tick"`
	BPM  float64 `json:"bpm"`
}

// TimeSignature is retained as metadata for phrase-boundary heuristics;
// it does not affect tempo computation.
type TimeSignature struct {
	Tick        uint32 `json:"tick"`
	Numerator   int    `json:"numerator"`
	Denominator int    `json:"denominator"`
}

// Score is one piece's worth of symbolic data, owned by a single
// analysis invocation.
type Score struct {
	TicksPerQuarter uint16          `json:"ticksPerQuarter"`
	Notes           []Note          `json:"notes"`
	Tempos          []TempoEvent    `json:"tempos"`
	Meters          []TimeSignature `json:"meters"`
}

// Validate checks the score against the input contract: at least one
// note, a usable tempo map, and in-range pitches and velocities.
func (s *Score) Validate() error {
	if s == nil || len(s.Notes) == 0 {
		return fmt.Errorf("%w: no note events", ErrInvalidInputFormat)
	}
	if s.TicksPerQuarter == 0 {
		return fmt.Errorf("%w: ticks per quarter is zero", ErrInvalidInputFormat)
	}
	if len(s.Tempos) == 0 {
		return fmt.Errorf("%w: no tempo events", ErrInvalidTempoMap)
	}
	for _, t := range s.Tempos {
		if t.BPM <= 0 {
			return fmt.Errorf("%w: non-positive bpm %.2f at tick %d", ErrInvalidTempoMap, t.BPM, t.Tick)
		}
	}
	for i, n := range s.Notes {
		if n.Pitch < minPitch || n.Pitch > maxPitch {
			return fmt.Errorf("%w: note %d pitch %d out of range", ErrInvalidInputFormat, i, n.Pitch)
		}
		if n.Velocity < 0 || n.Velocity > 1 {
			return fmt.Errorf("%w: note %d velocity %.3f out of range", ErrInvalidInputFormat, i, n.Velocity)
		}
	}
	return nil
}

// SortedNotes returns the notes ordered by onset tick, then pitch. The
// receiver is not modified.
func (s *Score) SortedNotes() []Note {
	notes := make([]Note, len(s.Notes))
	copy(notes, s.Notes)
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Onset != notes[j].Onset {
			return notes[i].Onset < notes[j].Onset
		}
		return notes[i].Pitch < notes[j].Pitch
	})
	return notes
}

// SortedTempos returns the tempo events ordered by tick.
func (s *Score) SortedTempos() []TempoEvent {
	tempos := make([]TempoEvent, len(s.Tempos))
	copy(tempos, s.Tempos)
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].Tick < tempos[j].Tick })
	return tempos
}
