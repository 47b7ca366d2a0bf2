package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonalworks/sonata-api/internal/score"
)

func TestTimeMapperConstantTempo(t *testing.T) {
	m, err := NewTimeMapper(480, []score.TempoEvent{{Tick: 0, BPM: 120}})
	require.NoError(t, err)

	// One quarter at 120 bpm is half a second.
	assert.InDelta(t, 0.5, m.SecondsAt(480), 1e-9)
	assert.InDelta(t, 2.0, m.SecondsAt(1920), 1e-9)
}

func TestTimeMapperTempoChange(t *testing.T) {
	m, err := NewTimeMapper(480, []score.TempoEvent{
		{Tick: 0, BPM: 120},
		{Tick: 1920, BPM: 60},
	})
	require.NoError(t, err)

	// Four quarters at 120 bpm, then one quarter at 60 bpm.
	assert.InDelta(t, 2.0, m.SecondsAt(1920), 1e-9)
	assert.InDelta(t, 3.0, m.SecondsAt(2400), 1e-9)
}

func TestTimeMapperFirstTempoGovernsFromZero(t *testing.T) {
	// Tempo declared mid-piece still applies from tick 0.
	m, err := NewTimeMapper(480, []score.TempoEvent{{Tick: 960, BPM: 60}})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.SecondsAt(480), 1e-9)
}

func TestTimeMapperRoundTrip(t *testing.T) {
	m, err := NewTimeMapper(480, []score.TempoEvent{
		{Tick: 0, BPM: 100},
		{Tick: 960, BPM: 140},
		{Tick: 3840, BPM: 80},
	})
	require.NoError(t, err)

	for _, tick := range []uint32{0, 240, 960, 2000, 3840, 9600} {
		sec := m.SecondsAt(tick)
		assert.InDelta(t, float64(tick), m.TicksAt(sec), 1e-6, "tick %d", tick)
	}
}

func TestTimeMapperRejectsBadTempoData(t *testing.T) {
	_, err := NewTimeMapper(480, nil)
	assert.ErrorIs(t, err, score.ErrInvalidTempoMap)

	_, err = NewTimeMapper(480, []score.TempoEvent{{Tick: 0, BPM: -10}})
	assert.ErrorIs(t, err, score.ErrInvalidTempoMap)

	_, err = NewTimeMapper(480, []score.TempoEvent{
		{Tick: 960, BPM: 120},
		{Tick: 0, BPM: 90},
	})
	assert.ErrorIs(t, err, score.ErrInvalidTempoMap)

	_, err = NewTimeMapper(0, []score.TempoEvent{{Tick: 0, BPM: 120}})
	assert.ErrorIs(t, err, score.ErrInvalidTempoMap)
}

func TestMapNotesProducesOrderedSpans(t *testing.T) {
	m, err := NewTimeMapper(480, []score.TempoEvent{{Tick: 0, BPM: 120}})
	require.NoError(t, err)

	timed, err := m.MapNotes([]score.Note{
		{Pitch: 60, Onset: 0, Duration: 480, Velocity: 0.8},
		{Pitch: 62, Onset: 480, Duration: 960, Velocity: 0.8},
	})
	require.NoError(t, err)
	require.Len(t, timed, 2)

	assert.InDelta(t, 0.0, timed[0].Start, 1e-9)
	assert.InDelta(t, 0.5, timed[0].End, 1e-9)
	assert.InDelta(t, 0.5, timed[1].Start, 1e-9)
	assert.InDelta(t, 1.5, timed[1].End, 1e-9)

	assert.InDelta(t, 1.5, TotalDuration(timed), 1e-9)
}
