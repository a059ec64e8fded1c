package lab

import (
	"context"
	"sync"

	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

var defaultVolumes = [4]float64{0.8, 0.7, 0.5, 0.6}

// StepSequencer is the 808: four drum rows by eight steps. While playing it
// owns the scheduler and mutes the metronome.
type StepSequencer struct {
	sched  *scheduler.Scheduler
	tr     *transport.Transport
	player *voice.Player
	hl     *Highlighter
	cb     scheduler.Callback

	mu      sync.Mutex
	rows    [4][]int
	volumes [4]float64
	doubles [4]bool
	current int
	running bool
	onStep  func(step int)
}

// NewStepSequencer starts with the default beat. onStep, if set, is called
// with each step index as it is heard.
func NewStepSequencer(s *scheduler.Scheduler, tr *transport.Transport, p *voice.Player, hl *Highlighter, onStep func(step int)) *StepSequencer {
	q := &StepSequencer{
		sched:   s,
		tr:      tr,
		player:  p,
		hl:      hl,
		rows:    patterns.DefaultSteps().Rows(),
		volumes: defaultVolumes,
		onStep:  onStep,
	}
	q.cb = scheduler.Func(q.step)
	return q
}

func track(k voice.Kind) (int, bool) {
	for i, d := range voice.Drums {
		if d == k {
			return i, true
		}
	}
	return 0, false
}

// Toggle flips one step. Unknown tracks and steps are ignored.
func (q *StepSequencer) Toggle(k voice.Kind, step int) {
	i, ok := track(k)
	if !ok || step < 0 || step >= patterns.NumSteps {
		return
	}
	q.mu.Lock()
	q.rows[i][step] ^= 1
	q.mu.Unlock()
}

// Clear turns every step off.
func (q *StepSequencer) Clear() {
	q.mu.Lock()
	q.rows = patterns.EmptySteps().Rows()
	q.mu.Unlock()
}

// Pattern returns a copy of the grid.
func (q *StepSequencer) Pattern() patterns.Steps {
	q.mu.Lock()
	defer q.mu.Unlock()
	return patterns.FromRows(q.rows)
}

// SetPattern replaces the grid, taking effect on the next step.
func (q *StepSequencer) SetPattern(s patterns.Steps) {
	rows := s.Clone().Rows()
	q.mu.Lock()
	q.rows = rows
	q.mu.Unlock()
}

// SetVolume sets a track's linear volume, clamped to [0, 1].
func (q *StepSequencer) SetVolume(k voice.Kind, v float64) {
	i, ok := track(k)
	if !ok {
		return
	}
	v = min(max(v, 0), 1)
	q.mu.Lock()
	q.volumes[i] = v
	q.mu.Unlock()
}

func (q *StepSequencer) Volume(k voice.Kind) float64 {
	i, ok := track(k)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volumes[i]
}

// SetDouble adds a second hit half a beat after every hit of the track.
func (q *StepSequencer) SetDouble(k voice.Kind, on bool) {
	i, ok := track(k)
	if !ok {
		return
	}
	q.mu.Lock()
	q.doubles[i] = on
	q.mu.Unlock()
}

func (q *StepSequencer) Double(k voice.Kind) bool {
	i, ok := track(k)
	if !ok {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.doubles[i]
}

// CurrentStep is the step last heard.
func (q *StepSequencer) CurrentStep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *StepSequencer) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Play claims the scheduler: every other callback is removed and the
// metronome click is switched off until Stop. If the scheduler fails to
// start, the sequencer's callback is removed and the click restored.
func (q *StepSequencer) Play(ctx context.Context) error {
	q.setCurrent(0)

	click := q.tr.ClickEnabled()
	q.sched.ClearCallbacks()
	q.sched.AddCallback(q.cb)
	q.tr.SetClickEnabled(false)
	if err := q.sched.Start(ctx); err != nil {
		q.sched.RemoveCallback(q.cb)
		q.tr.SetClickEnabled(click)
		return err
	}
	q.tr.SetPlaying(true)
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()
	return nil
}

// Stop halts playback, restores the click and drops pending highlights.
func (q *StepSequencer) Stop() {
	q.sched.Stop()
	q.sched.RemoveCallback(q.cb)
	q.tr.SetClickEnabled(true)
	q.tr.SetPlaying(false)
	if q.hl != nil {
		q.hl.CancelAll()
	}
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	q.setCurrent(0)
}

func (q *StepSequencer) setCurrent(step int) {
	q.mu.Lock()
	q.current = step
	notify := q.onStep
	q.mu.Unlock()
	if notify != nil {
		notify(step)
	}
}

func (q *StepSequencer) step(at float64, step int) {
	q.mu.Lock()
	rows := q.rows
	var hits [4]bool
	idx := step % patterns.NumSteps
	for i := range rows {
		hits[i] = rows[i][idx] != 0
	}
	volumes, doubles := q.volumes, q.doubles
	q.mu.Unlock()

	half := 0.5 * q.tr.SecondsPerBeat()
	for i, kind := range voice.Drums {
		if !hits[i] {
			continue
		}
		q.player.Trigger(kind, at, volumes[i])
		if doubles[i] {
			q.player.Trigger(kind, at+half, volumes[i])
		}
	}

	if q.hl != nil {
		q.hl.Schedule(at, func() { q.setCurrent(idx) })
	} else {
		q.setCurrent(idx)
	}
}
