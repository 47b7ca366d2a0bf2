// Package midifile decodes Standard MIDI Files into the symbolic score
// representation the analysis pipeline consumes.
package midifile

import (
	"bytes"
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/tonalworks/sonata-api/internal/score"
)

const (
	defaultBPM  = 120.0 // SMF default when no tempo meta event exists
	maxVelocity = 127.0
)

// Read parses SMF bytes into a Score. Unparseable or empty data fails
// with score.ErrInvalidInputFormat.
func Read(data []byte) (*score.Score, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", score.ErrInvalidInputFormat)
	}

	parsed, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", score.ErrInvalidInputFormat, err)
	}

	ticks, ok := parsed.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: SMPTE time format is not supported", score.ErrInvalidInputFormat)
	}

	s := &score.Score{TicksPerQuarter: ticks.Resolution()}
	for _, track := range parsed.Tracks {
		readTrack(track, s)
	}

	if len(s.Tempos) == 0 {
		s.Tempos = []score.TempoEvent{{Tick: 0, BPM: defaultBPM}}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// readTrack appends the track's notes, tempo changes, and meters to the
// score. Note durations come from pairing each note-on with the next
// note-off on the same channel and key; unterminated notes are given a
// one-quarter duration rather than dropped.
func readTrack(track smf.Track, s *score.Score) {
	type noteID struct {
		channel uint8
		key     uint8
	}
	type openNote struct {
		tick     uint32
		velocity uint8
	}
	open := map[noteID][]openNote{}

	var tick uint32
	for _, ev := range track {
		tick += ev.Delta
		msg := ev.Message

		var channel, key, velocity uint8
		var bpm float64
		var num, denom uint8

		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			id := noteID{channel, key}
			open[id] = append(open[id], openNote{tick: tick, velocity: velocity})

		case msg.GetNoteEnd(&channel, &key):
			id := noteID{channel, key}
			if stack := open[id]; len(stack) > 0 {
				n := stack[len(stack)-1]
				open[id] = stack[:len(stack)-1]
				s.Notes = append(s.Notes, score.Note{
					Pitch:    int(key),
					Onset:    n.tick,
					Duration: tick - n.tick,
					Velocity: float64(n.velocity) / maxVelocity,
				})
			}

		case msg.GetMetaTempo(&bpm):
			s.Tempos = append(s.Tempos, score.TempoEvent{Tick: tick, BPM: bpm})

		case msg.GetMetaMeter(&num, &denom):
			s.Meters = append(s.Meters, score.TimeSignature{
				Tick:        tick,
				Numerator:   int(num),
				Denominator: int(denom),
			})
		}
	}

	// Close anything left hanging at end of track.
	for id, stack := range open {
		for _, n := range stack {
			s.Notes = append(s.Notes, score.Note{
				Pitch:    int(id.key),
				Onset:    n.tick,
				Duration: uint32(s.TicksPerQuarter),
				Velocity: float64(n.velocity) / maxVelocity,
			})
		}
	}
}
