package analysis

import (
	"fmt"
	"math"

	"github.com/tonalworks/sonata-api/internal/score"
)

// TimeMapper converts tick positions into real seconds by integrating
// the tempo curve piecewise: each tempo segment contributes
// (ticks / ticksPerQuarter) * (60 / bpm) seconds. Positions beyond the
// last tempo event continue at the last known bpm.
type TimeMapper struct {
	tpq    float64
	tempos []score.TempoEvent // tick-ordered, bpm > 0
	starts []float64          // seconds elapsed at each tempo event
}

// NewTimeMapper validates the tempo map and precomputes segment
// offsets. Empty tempo data or non-positive bpm fails with
// score.ErrInvalidTempoMap.
func NewTimeMapper(ticksPerQuarter uint16, tempos []score.TempoEvent) (*TimeMapper, error) {
	if ticksPerQuarter == 0 {
		return nil, fmt.Errorf("%w: ticks per quarter is zero", score.ErrInvalidTempoMap)
	}
	if len(tempos) == 0 {
		return nil, fmt.Errorf("%w: empty tempo data", score.ErrInvalidTempoMap)
	}
	ordered := make([]score.TempoEvent, len(tempos))
	copy(ordered, tempos)
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Tick < ordered[i-1].Tick {
			return nil, fmt.Errorf("%w: tempo events out of order at tick %d", score.ErrInvalidTempoMap, ordered[i].Tick)
		}
	}
	// The first tempo governs from tick 0 even when it is declared later.
	if ordered[0].Tick != 0 {
		ordered = append([]score.TempoEvent{{Tick: 0, BPM: ordered[0].BPM}}, ordered...)
	}

	tpq := float64(ticksPerQuarter)
	starts := make([]float64, len(ordered))
	for i, t := range ordered {
		if t.BPM <= 0 {
			return nil, fmt.Errorf("%w: non-positive bpm %.2f at tick %d", score.ErrInvalidTempoMap, t.BPM, t.Tick)
		}
		if i > 0 {
			prev := ordered[i-1]
			dt := float64(t.Tick-prev.Tick) / tpq
			starts[i] = starts[i-1] + dt*(60.0/prev.BPM)
		}
	}

	return &TimeMapper{tpq: tpq, tempos: ordered, starts: starts}, nil
}

// SecondsAt maps a tick position to seconds.
func (m *TimeMapper) SecondsAt(tick uint32) float64 {
	i := m.segmentForTick(tick)
	dt := float64(tick-m.tempos[i].Tick) / m.tpq
	return m.starts[i] + dt*(60.0/m.tempos[i].BPM)
}

// TicksAt maps seconds back to a (fractional) tick position through the
// same tempo curve. SecondsAt and TicksAt round-trip within
// floating-point tolerance.
func (m *TimeMapper) TicksAt(sec float64) float64 {
	i := len(m.starts) - 1
	for j := 1; j < len(m.starts); j++ {
		if sec < m.starts[j] {
			i = j - 1
			break
		}
	}
	elapsed := sec - m.starts[i]
	return float64(m.tempos[i].Tick) + elapsed*(m.tempos[i].BPM/60.0)*m.tpq
}

// MapNotes converts note events into TimedNotes. Mapped times are
// strictly non-negative by construction; a negative result would be a
// contract violation and is reported as such rather than tolerated.
func (m *TimeMapper) MapNotes(notes []score.Note) ([]TimedNote, error) {
	timed := make([]TimedNote, 0, len(notes))
	for i, n := range notes {
		start := m.SecondsAt(n.Onset)
		end := m.SecondsAt(n.Onset + n.Duration)
		if start < 0 || end < start {
			return nil, fmt.Errorf("%w: note %d maps to negative time span [%.4f, %.4f]",
				score.ErrInvalidTempoMap, i, start, end)
		}
		timed = append(timed, TimedNote{
			Pitch:    n.Pitch,
			Start:    start,
			End:      end,
			Velocity: n.Velocity,
		})
	}
	return timed, nil
}

// TotalDuration returns the latest note end time in seconds.
func TotalDuration(notes []TimedNote) float64 {
	var max float64
	for _, n := range notes {
		max = math.Max(max, n.End)
	}
	return max
}

func (m *TimeMapper) segmentForTick(tick uint32) int {
	i := len(m.tempos) - 1
	for j := 1; j < len(m.tempos); j++ {
		if tick < m.tempos[j].Tick {
			i = j - 1
			break
		}
	}
	return i
}
