package patterns

import (
	"io"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerBeat = 960
	drumChannel  = 9 // channel 10 on the wire
	hitVelocity  = 100
	hitTicks     = ticksPerBeat / 4
)

// DrumNotes are the General MIDI keys for kick, snare, closed hat and ride.
var DrumNotes = [4]uint8{36, 38, 42, 51}

// ExportMIDI writes p as a two track SMF: tempo/meter, then the drums. One
// step lasts one beat, matching playback.
func ExportMIDI(w io.Writer, p Pattern) error {
	bpm := p.BPM
	if bpm <= 0 {
		bpm = 120
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerBeat)

	var meta smf.Track
	if p.Name != "" {
		meta.Add(0, smf.MetaTrackSequenceName(p.Name))
	}
	meta.Add(0, smf.MetaMeter(4, 4))
	meta.Add(0, smf.MetaTempo(float64(bpm)))
	meta.Close(0)
	if err := sm.Add(meta); err != nil {
		return errors.Wrap(err, "add tempo track")
	}

	// Track.Add takes deltas, so walk the grid keeping the tick of the last
	// event written.
	var drums smf.Track
	var last uint32
	rows := p.Steps.Clone().Rows()
	for step := 0; step < NumSteps; step++ {
		on := uint32(step) * ticksPerBeat
		var hits []uint8
		for i, row := range rows {
			if row[step] != 0 {
				hits = append(hits, DrumNotes[i])
			}
		}
		if len(hits) == 0 {
			continue
		}
		for i, key := range hits {
			delta := uint32(0)
			if i == 0 {
				delta = on - last
			}
			drums.Add(delta, midi.NoteOn(drumChannel, key, hitVelocity))
		}
		for i, key := range hits {
			delta := uint32(0)
			if i == 0 {
				delta = hitTicks
			}
			drums.Add(delta, midi.NoteOff(drumChannel, key))
		}
		last = on + hitTicks
	}
	drums.Close(NumSteps*ticksPerBeat - last)
	if err := sm.Add(drums); err != nil {
		return errors.Wrap(err, "add drum track")
	}

	_, err := sm.WriteTo(w)
	return errors.Wrap(err, "write smf")
}
