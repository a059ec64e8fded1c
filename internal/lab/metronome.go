package lab

import (
	"context"
	"sync"

	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

const (
	onBeatVolume  = 0.7
	offBeatVolume = 0.5
)

// Metronome clicks every beat, accenting the downbeat of each bar.
type Metronome struct {
	sched  *scheduler.Scheduler
	tr     *transport.Transport
	player *voice.Player
	hl     *Highlighter
	cb     scheduler.Callback

	mu     sync.Mutex
	beat   int // 0-based position in the bar of the next click
	onBeat func(beat int)
}

// NewMetronome wires a metronome to s. onBeat, if set, is called with the
// 1-based beat as it is heard.
func NewMetronome(s *scheduler.Scheduler, tr *transport.Transport, p *voice.Player, hl *Highlighter, onBeat func(beat int)) *Metronome {
	m := &Metronome{sched: s, tr: tr, player: p, hl: hl, onBeat: onBeat}
	m.cb = scheduler.Func(m.step)
	return m
}

// Play starts from the downbeat.
func (m *Metronome) Play(ctx context.Context) error {
	m.mu.Lock()
	m.beat = 0
	m.mu.Unlock()

	m.sched.RemoveCallback(m.cb)
	m.sched.AddCallback(m.cb)
	return m.sched.Start(ctx)
}

// Pause stops the scheduler and rewinds to the downbeat.
func (m *Metronome) Pause() {
	m.sched.RemoveCallback(m.cb)
	m.sched.Stop()
	m.mu.Lock()
	m.beat = 0
	m.mu.Unlock()
}

// Beat is the 1-based beat the next click falls on.
func (m *Metronome) Beat() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beat + 1
}

func (m *Metronome) step(at float64, _ int) {
	if !m.tr.ClickEnabled() {
		return
	}
	perBar := m.tr.BeatsPerBar()

	m.mu.Lock()
	beat := m.beat%perBar + 1
	m.beat = (m.beat + 1) % perBar
	notify := m.onBeat
	m.mu.Unlock()

	on := m.player.Cached(voice.OnBeat.String())
	off := m.player.Cached(voice.OffBeat.String())
	switch {
	case beat == 1 && on != nil:
		m.player.Sample(on, at, onBeatVolume)
	case off != nil:
		m.player.Sample(off, at, offBeatVolume)
	default:
		m.player.Click(at)
	}

	if notify != nil && m.hl != nil {
		m.hl.Schedule(at, func() { notify(beat) })
	}
}
