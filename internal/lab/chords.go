package lab

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

// DefaultProgression is I V vi IV.
var DefaultProgression = []string{"I", "V", "vi", "IV"}

// ChordPlayer plays a progression one chord per bar, cycling.
type ChordPlayer struct {
	sched  *scheduler.Scheduler
	tr     *transport.Transport
	player *voice.Player
	hl     *Highlighter
	log    *log.Logger
	cb     scheduler.Callback

	mu          sync.Mutex
	key         string
	progression []string
	volume      float64
	beat        int
	bar         int
	onChord     func(bar int, c theory.Chord)
}

// NewChordPlayer plays DefaultProgression in C. onChord, if set, is called
// with the bar index and chord as it is heard.
func NewChordPlayer(s *scheduler.Scheduler, tr *transport.Transport, p *voice.Player, hl *Highlighter, logger *log.Logger, onChord func(bar int, c theory.Chord)) *ChordPlayer {
	if logger == nil {
		logger = log.Default()
	}
	c := &ChordPlayer{
		sched:       s,
		tr:          tr,
		player:      p,
		hl:          hl,
		log:         logger.WithPrefix("chords"),
		key:         "C",
		progression: append([]string(nil), DefaultProgression...),
		volume:      1,
		onChord:     onChord,
	}
	c.cb = scheduler.Func(c.step)
	return c
}

// SetKey changes the key from the next bar. Unknown keys are rejected.
func (c *ChordPlayer) SetKey(key string) error {
	if _, err := theory.MajorScale(key); err != nil {
		return err
	}
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
	return nil
}

func (c *ChordPlayer) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// SetProgression replaces the roman numeral sequence. Every numeral must be
// a degree of the current key.
func (c *ChordPlayer) SetProgression(romans []string) error {
	key := c.Key()
	for _, r := range romans {
		if _, err := theory.ChordByRoman(key, r); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.progression = append([]string(nil), romans...)
	c.mu.Unlock()
	return nil
}

func (c *ChordPlayer) Progression() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.progression...)
}

func (c *ChordPlayer) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = min(max(v, 0), 1)
	c.mu.Unlock()
}

// Assets lists the recorded chord files for key under base, by sample id.
func Assets(base, key string) map[string]string {
	out := make(map[string]string)
	for _, r := range theory.Romans() {
		id := theory.SampleID(key, r)
		out[id] = sample.Join(base, "chords", id+".mp3")
	}
	return out
}

// Play joins the scheduler alongside any other consumers and starts it if
// needed.
func (c *ChordPlayer) Play(ctx context.Context) error {
	c.mu.Lock()
	c.beat, c.bar = 0, 0
	c.mu.Unlock()
	c.sched.RemoveCallback(c.cb)
	c.sched.AddCallback(c.cb)
	return c.sched.Start(ctx)
}

// Stop leaves the scheduler, stopping it when nothing else is registered.
func (c *ChordPlayer) Stop() {
	c.sched.RemoveCallback(c.cb)
	if c.sched.CallbackCount() == 0 {
		c.sched.Stop()
	}
}

func (c *ChordPlayer) step(at float64, _ int) {
	perBar := c.tr.BeatsPerBar()

	c.mu.Lock()
	downbeat := c.beat%perBar == 0
	c.beat = (c.beat + 1) % perBar
	if !downbeat || len(c.progression) == 0 {
		c.mu.Unlock()
		return
	}
	bar := c.bar
	key, roman, vol := c.key, c.progression[bar%len(c.progression)], c.volume
	c.bar++
	notify := c.onChord
	c.mu.Unlock()

	chord, err := theory.ChordByRoman(key, roman)
	if err != nil {
		c.log.Warn("skipping chord", "key", key, "roman", roman, "err", err)
		return
	}
	c.player.Chord(theory.SampleID(key, roman), theory.Frequencies(chord.Notes), at, vol)
	if notify != nil && c.hl != nil {
		c.hl.Schedule(at, func() { notify(bar, chord) })
	}
}
