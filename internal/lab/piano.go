package lab

import (
	"strconv"
	"sync"

	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

const (
	MinOctave = 0
	MaxOctave = 8
)

// Piano plays held sine notes in a movable octave. It does not use the
// scheduler; notes start at the current clock time.
type Piano struct {
	player *voice.Player

	mu     sync.Mutex
	octave int
	held   map[string]*voice.Held
}

func NewPiano(p *voice.Player) *Piano {
	return &Piano{player: p, octave: 4, held: make(map[string]*voice.Held)}
}

func (p *Piano) Octave() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.octave
}

// SetOctave clamps to [MinOctave, MaxOctave].
func (p *Piano) SetOctave(o int) {
	p.mu.Lock()
	p.octave = min(max(o, MinOctave), MaxOctave)
	p.mu.Unlock()
}

// NoteOn starts note in the current octave. A key already held is not
// retriggered. It reports whether a note started.
func (p *Piano) NoteOn(note string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := note + strconv.Itoa(p.octave)
	if _, ok := p.held[id]; ok {
		return false
	}
	f, err := theory.Frequency(note, p.octave)
	if err != nil {
		return false
	}
	p.held[id] = p.player.NoteOn(f, 1)
	return true
}

// NoteOff releases note in the current octave.
func (p *Piano) NoteOff(note string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := note + strconv.Itoa(p.octave)
	if h, ok := p.held[id]; ok {
		h.Off()
		delete(p.held, id)
	}
}

// Held lists the sounding keys such as "C4".
func (p *Piano) Held() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.held))
	for id := range p.held {
		out = append(out, id)
	}
	return out
}

// ReleaseAll lets go of every key.
func (p *Piano) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.held {
		h.Off()
		delete(p.held, id)
	}
}
