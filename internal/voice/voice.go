// Package voice plays the lab's sounds on the audio clock: cached samples
// where they loaded, synthesized stand-ins where they did not.
package voice

import (
	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/SirSobhan0/songbuddy/internal/clock"
	"github.com/SirSobhan0/songbuddy/internal/sample"
)

// Kind names a percussive sound. Its String is the sample cache id.
type Kind int

const (
	Click Kind = iota
	Kick
	Snare
	Hat
	Ride
	OnBeat
	OffBeat
)

var kindNames = [...]string{"click", "kick", "snare", "hat", "ride", "on-beat", "off-beat"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Drums are the step sequencer tracks in display order.
var Drums = []Kind{Kick, Snare, Hat, Ride}

// DefaultAssets maps every kind to its file under base.
func DefaultAssets(base string) map[string]string {
	return map[string]string{
		Kick.String():    sample.Join(base, "808", "kick.wav"),
		Snare.String():   sample.Join(base, "808", "snare.wav"),
		Hat.String():     sample.Join(base, "808", "hat.wav"),
		Ride.String():    sample.Join(base, "808", "ride.wav"),
		OnBeat.String():  sample.Join(base, "on-beat.mp3"),
		OffBeat.String(): sample.Join(base, "off-beat.mp3"),
	}
}

const (
	chordSampleGain = 0.7
	chordStagger    = 0.02
	chordLength     = 2.0
	noteRelease     = 0.1
)

// Player schedules sounds on a clock. Every call is independent and
// returns immediately; overlapping sounds mix.
type Player struct {
	ctx   *clock.Context
	cache *sample.Cache
	log   *log.Logger
}

// New returns a player on ctx. cache may be nil, in which case everything
// is synthesized.
func New(ctx *clock.Context, cache *sample.Cache, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.Default()
	}
	return &Player{ctx: ctx, cache: cache, log: logger.WithPrefix("voice")}
}

// Context is the clock the player schedules on.
func (p *Player) Context() *clock.Context { return p.ctx }

// Cached returns the cached buffer for id, or nil.
func (p *Player) Cached(id string) *beep.Buffer {
	if p.cache == nil {
		return nil
	}
	return p.cache.Get(id)
}

// Click is the synthesized metronome tick: a 1kHz blip 50ms long.
func (p *Player) Click(at float64) {
	p.click(at, 1)
}

// Sample plays buf at clock time at with a linear volume.
func (p *Player) Sample(buf *beep.Buffer, at, volume float64) {
	if buf == nil || volume <= 0 {
		return
	}
	src := &effects.Gain{Streamer: buf.Streamer(0, buf.Len()), Gain: volume - 1}
	p.ctx.NewStreamSource(src).Start(at)
}

// Trigger plays kind at clock time at, from the cache when loaded.
func (p *Player) Trigger(kind Kind, at, volume float64) {
	if volume <= 0 {
		return
	}
	if buf := p.Cached(kind.String()); buf != nil {
		p.Sample(buf, at, volume)
		return
	}
	switch kind {
	case Kick:
		p.kick(at, volume)
	case Snare:
		p.snare(at, volume)
	case Hat:
		p.noiseHit(at, volume, 7000, 0.3, 0.05)
	case Ride:
		p.noiseHit(at, volume, 5000, 0.4, 0.3)
	default:
		p.click(at, volume)
	}
}

// Note plays a sine at freq for dur seconds with a short release.
func (p *Player) Note(freq, at, dur, volume float64) {
	if volume <= 0 {
		return
	}
	n := p.noteNode(freq, at, volume)
	n.Release(at+dur, noteRelease)
}

// Held is a note sounding until Off.
type Held struct {
	n   *clock.Node
	ctx *clock.Context
}

// NoteOn starts a sustained sine now.
func (p *Player) NoteOn(freq, volume float64) *Held {
	if volume <= 0 {
		volume = 1
	}
	return &Held{n: p.noteNode(freq, p.ctx.Now(), volume), ctx: p.ctx}
}

// Off releases the note over 100ms.
func (h *Held) Off() {
	h.n.Release(h.ctx.Now(), noteRelease)
}

// Chord plays the sample cached under id, or a staggered sine voicing of
// freqs when there is none.
func (p *Player) Chord(id string, freqs []float64, at, volume float64) {
	if volume <= 0 {
		return
	}
	if buf := p.Cached(id); buf != nil {
		p.Sample(buf, at, chordSampleGain*volume)
		return
	}
	for i, f := range freqs {
		start := at + float64(i)*chordStagger
		n := p.ctx.NewTone(f, clock.Sine)
		p.envelope(n,
			clock.SetAt(start, 0),
			clock.LinearTo(start+0.1, 0.15*volume),
			clock.ExpTo(start+0.3, 0.08*volume),
			clock.ExpTo(start+chordLength, 0.001),
		)
		n.StartStop(start, start+chordLength)
	}
}

func (p *Player) noteNode(freq, at, volume float64) *clock.Node {
	n := p.ctx.NewTone(freq, clock.Sine)
	p.envelope(n,
		clock.SetAt(at, 0),
		clock.LinearTo(at+0.01, 0.3*volume),
		clock.ExpTo(at+0.3, 0.1*volume),
	)
	n.Start(at)
	return n
}

func (p *Player) click(at, volume float64) {
	n := p.ctx.NewTone(1000, clock.Sine)
	p.envelope(n,
		clock.SetAt(at, 0),
		clock.LinearTo(at+0.01, 0.3*volume),
		clock.ExpTo(at+0.05, 0.001),
	)
	n.StartStop(at, at+0.05)
}

func (p *Player) kick(at, volume float64) {
	n := p.ctx.NewTone(150, clock.Sine)
	if err := n.FrequencyRamp(clock.ExpTo(at+0.5, 0.01)); err != nil {
		p.log.Debug("kick pitch", "err", err)
	}
	p.envelope(n, clock.SetAt(at, volume), clock.ExpTo(at+0.5, 0.01*volume))
	n.StartStop(at, at+0.1)
}

func (p *Player) snare(at, volume float64) {
	p.noiseHit(at, volume, 1500, 0.5, 0.2)

	body := p.ctx.NewTone(100, clock.Triangle)
	p.envelope(body, clock.SetAt(at, 0.7*volume), clock.ExpTo(at+0.1, 0.01*volume))
	body.StartStop(at, at+0.2)
}

func (p *Player) noiseHit(at, volume, cutoff, level, length float64) {
	n := p.ctx.NewNoise().HighPass(cutoff)
	p.envelope(n, clock.SetAt(at, level*volume), clock.ExpTo(at+length, 0.01*volume))
	n.StartStop(at, at+length)
}

func (p *Player) envelope(n *clock.Node, points ...clock.Point) {
	if err := n.Envelope(points...); err != nil {
		p.log.Debug("envelope rejected", "err", err)
	}
}
