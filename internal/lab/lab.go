// Package lab holds the consumers that share one scheduler: metronome, step
// sequencer, chord player and piano, plus the glue that keeps them on the
// transport's tempo and the UI in step with what is heard.
package lab

import (
	"github.com/charmbracelet/log"

	"github.com/SirSobhan0/songbuddy/internal/clock"
	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

// Hooks receive visual updates, each at the moment its sound is heard. They
// run on timer goroutines.
type Hooks struct {
	OnBeat  func(beat int)
	OnStep  func(step int)
	OnChord func(bar int, c theory.Chord)
}

// Lab is one session: a transport, an audio clock and every consumer wired
// to a shared scheduler.
type Lab struct {
	Transport   *transport.Transport
	Clock       *clock.Context
	Cache       *sample.Cache
	Player      *voice.Player
	Scheduler   *scheduler.Scheduler
	Highlighter *Highlighter

	Metronome *Metronome
	Sequencer *StepSequencer
	Chords    *ChordPlayer
	Piano     *Piano

	unbind func()
}

// New builds a lab on ctx. Scheduler options are passed through; the player
// and loader are set here.
func New(ctx *clock.Context, cache *sample.Cache, loader scheduler.Loader, logger *log.Logger, hooks Hooks, opts ...scheduler.Option) *Lab {
	if logger == nil {
		logger = log.Default()
	}
	tr := transport.New()
	player := voice.New(ctx, cache, logger)
	opts = append([]scheduler.Option{scheduler.WithLogger(logger)}, opts...)
	opts = append(opts, scheduler.WithPlayer(player))
	if loader != nil {
		opts = append(opts, scheduler.WithLoader(loader))
	}
	sched := scheduler.New(ctx, opts...)
	hl := NewHighlighter(ctx.Now)

	l := &Lab{
		Transport:   tr,
		Clock:       ctx,
		Cache:       cache,
		Player:      player,
		Scheduler:   sched,
		Highlighter: hl,
		Metronome:   NewMetronome(sched, tr, player, hl, hooks.OnBeat),
		Sequencer:   NewStepSequencer(sched, tr, player, hl, hooks.OnStep),
		Chords:      NewChordPlayer(sched, tr, player, hl, logger, hooks.OnChord),
		Piano:       NewPiano(player),
	}
	l.unbind = BindTempo(tr, sched)
	return l
}

// Close stops playback and releases the audio output.
func (l *Lab) Close() error {
	l.Scheduler.Stop()
	l.Highlighter.CancelAll()
	l.Piano.ReleaseAll()
	l.unbind()
	return l.Clock.Close()
}
