package lab

import (
	"context"
	"io"
	"math"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"

	"github.com/SirSobhan0/songbuddy/internal/clock"
	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

const rate = beep.SampleRate(44100)

func quiet() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func constBuffer(v float64) *beep.Buffer {
	buf := beep.NewBuffer(sample.BufferFormat(rate))
	buf.Append(beep.Take(10, beep.StreamerFunc(func(s [][2]float64) (int, bool) {
		for i := range s {
			s[i] = [2]float64{v, v}
		}
		return len(s), true
	})))
	return buf
}

func newLab(t *testing.T, cache *sample.Cache, hooks Hooks) *Lab {
	t.Helper()
	if cache == nil {
		cache = sample.NewCache(nil, quiet())
	}
	l := New(clock.NewOffline(rate, quiet()), cache, nil, quiet(), hooks, scheduler.WithManualPolling())
	t.Cleanup(func() { l.Close() })
	return l
}

// run polls then renders in 10ms blocks until the clock reaches until.
func run(l *Lab, until float64) [][2]float64 {
	var out [][2]float64
	block := rate.N(10 * time.Millisecond)
	for l.Clock.Now() < until {
		l.Scheduler.Poll()
		out = append(out, l.Clock.Render(block)...)
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBindTempo(t *testing.T) {
	tr := transport.New()
	s := scheduler.New(clock.NewOffline(rate, quiet()), scheduler.WithLogger(quiet()))
	tr.SetBPM(90)
	unbind := BindTempo(tr, s)
	if s.BPM() != 90 {
		t.Fatalf("BPM after bind = %v, want 90", s.BPM())
	}
	tr.SetBPM(140)
	if s.BPM() != 140 {
		t.Fatalf("BPM after change = %v, want 140", s.BPM())
	}
	tr.SetBPM(0)
	if s.BPM() != 140 {
		t.Fatalf("invalid tempo reached the scheduler: %v", s.BPM())
	}
	unbind()
	tr.SetBPM(60)
	if s.BPM() != 140 {
		t.Fatalf("BPM after unbind = %v, want 140", s.BPM())
	}
}

func TestMetronomeAccentsDownbeat(t *testing.T) {
	cache := sample.NewCache(nil, quiet())
	cache.Put(voice.OnBeat.String(), constBuffer(1))
	cache.Put(voice.OffBeat.String(), constBuffer(1))
	l := newLab(t, cache, Hooks{})
	l.Transport.SetTimeSignature(transport.TimeSignature{Numerator: 3, Denominator: 4})

	if err := l.Metronome.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	out := run(l, 1.51)

	for _, tt := range []struct {
		at   float64
		want float64
	}{{0, 0.7}, {0.5, 0.5}, {1.0, 0.5}, {1.5, 0.7}} {
		i := int(math.Round(tt.at * float64(rate)))
		if !near(out[i][0], tt.want) {
			t.Errorf("level at %vs = %v, want %v", tt.at, out[i][0], tt.want)
		}
	}
}

func TestMetronomeFallsBackToClick(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Metronome.Play(context.Background())
	run(l, 1.0)
	if got := l.Clock.Stats().Scheduled; got != 3 {
		t.Fatalf("clicks scheduled = %d, want 3", got)
	}
}

func TestMetronomeRespectsClickEnabled(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Transport.SetClickEnabled(false)
	l.Metronome.Play(context.Background())
	run(l, 1.0)
	if got := l.Clock.Stats().Scheduled; got != 0 {
		t.Fatalf("sounds with click disabled = %d, want 0", got)
	}
}

func TestMetronomePlayPause(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Metronome.Play(context.Background())
	l.Metronome.Play(context.Background())
	if got := l.Scheduler.CallbackCount(); got != 1 {
		t.Fatalf("CallbackCount after double Play = %d, want 1", got)
	}
	run(l, 0.6)
	if got := l.Metronome.Beat(); got != 3 {
		t.Fatalf("Beat = %d, want 3", got)
	}
	l.Metronome.Pause()
	if l.Scheduler.IsPlaying() || l.Scheduler.CallbackCount() != 0 {
		t.Fatal("Pause left the scheduler running or registered")
	}
	if got := l.Metronome.Beat(); got != 1 {
		t.Fatalf("Beat after Pause = %d, want 1", got)
	}
}

func TestSequencerClaimsScheduler(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Scheduler.AddCallback(scheduler.Func(func(float64, int) {}))
	l.Metronome.Play(context.Background())

	if err := l.Sequencer.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := l.Scheduler.CallbackCount(); got != 1 {
		t.Fatalf("CallbackCount = %d, want only the sequencer", got)
	}
	if l.Transport.ClickEnabled() {
		t.Fatal("click still enabled while sequencing")
	}
	if !l.Transport.IsPlaying() || !l.Sequencer.Running() {
		t.Fatal("sequencer not marked playing")
	}

	l.Sequencer.Stop()
	if !l.Transport.ClickEnabled() {
		t.Fatal("click not restored")
	}
	if l.Scheduler.IsPlaying() || l.Scheduler.CallbackCount() != 0 {
		t.Fatal("Stop left the scheduler running or registered")
	}
	if l.Sequencer.CurrentStep() != 0 || l.Highlighter.Pending() != 0 {
		t.Fatal("Stop did not reset the step display")
	}
}

func TestSequencerPlayFailureRestoresState(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Clock.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Sequencer.Play(ctx); err == nil {
		t.Fatal("Play on a closed clock with a cancelled context succeeded")
	}
	if !l.Transport.ClickEnabled() {
		t.Fatal("click left off after a failed start")
	}
	if got := l.Scheduler.CallbackCount(); got != 0 {
		t.Fatalf("CallbackCount = %d, want 0", got)
	}
	if l.Sequencer.Running() || l.Transport.IsPlaying() || l.Scheduler.IsPlaying() {
		t.Fatal("failed start marked the sequencer playing")
	}
}

func TestSequencerTriggersPattern(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	l.Sequencer.Play(context.Background())

	// step 0 of the default beat is kick + hat
	l.Scheduler.Poll()
	if got := l.Clock.Stats().Scheduled; got != 2 {
		t.Fatalf("voices for step 0 = %d, want 2", got)
	}

	// edits apply from the next step
	l.Sequencer.Clear()
	run(l, 3.0)
	if got := l.Clock.Stats().Scheduled; got != 2 {
		t.Fatalf("cleared pattern still sounded: %d voices", got)
	}
}

func TestSequencerDoubleHit(t *testing.T) {
	cache := sample.NewCache(nil, quiet())
	cache.Put(voice.Kick.String(), constBuffer(1))
	l := newLab(t, cache, Hooks{})
	l.Sequencer.SetPattern(patterns.Steps{Kick: []int{1}})
	l.Sequencer.SetDouble(voice.Kick, true)
	l.Sequencer.SetVolume(voice.Kick, 0.5)

	l.Sequencer.Play(context.Background())
	out := run(l, 0.3)
	// 120 BPM: the double lands a quarter second after the hit
	for _, i := range []int{0, rate.N(250 * time.Millisecond)} {
		if !near(out[i][0], 0.5) {
			t.Fatalf("level at sample %d = %v, want 0.5", i, out[i][0])
		}
	}
}

func TestSequencerEditing(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	q := l.Sequencer
	if got := q.Volume(voice.Hat); got != 0.5 {
		t.Fatalf("default hat volume = %v, want 0.5", got)
	}
	q.SetVolume(voice.Ride, 3)
	if got := q.Volume(voice.Ride); got != 1 {
		t.Fatalf("ride volume = %v, want clamped 1", got)
	}
	q.Toggle(voice.Ride, 3)
	q.Toggle(voice.Kick, 0)
	q.Toggle(voice.Kick, 99)
	q.Toggle(voice.Click, 0)
	p := q.Pattern()
	if p.Ride[3] != 1 || p.Kick[0] != 0 {
		t.Fatalf("pattern after toggles = %+v", p)
	}
	p.Ride[3] = 0
	if q.Pattern().Ride[3] != 1 {
		t.Fatal("Pattern returned shared state")
	}
	if q.Double(voice.Snare) {
		t.Fatal("double on by default")
	}
}

func TestSequencerHighlights(t *testing.T) {
	var mu sync.Mutex
	var steps []int
	got := make(chan struct{}, 8)
	l := newLab(t, nil, Hooks{OnStep: func(step int) {
		mu.Lock()
		steps = append(steps, step)
		mu.Unlock()
		got <- struct{}{}
	}})
	l.Sequencer.Play(context.Background())
	<-got // reset to 0 on Play
	run(l, 0.6)
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("highlight never fired")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	rest := append([]int(nil), steps[1:]...)
	sort.Ints(rest)
	if !slices.Equal(rest, []int{0, 1}) {
		t.Fatalf("highlighted steps = %v, want 0 and 1", steps)
	}
}

func TestChordPlayerOneChordPerBar(t *testing.T) {
	cache := sample.NewCache(nil, quiet())
	cache.Put(theory.SampleID("C", "I"), constBuffer(1))
	cache.Put(theory.SampleID("C", "V"), constBuffer(0.5))
	l := newLab(t, cache, Hooks{})

	if err := l.Chords.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	out := run(l, 2.01)
	if !near(out[0][0], 0.7) {
		t.Fatalf("bar 1 level = %v, want 0.7", out[0][0])
	}
	if v := out[rate.N(time.Second)][0]; v != 0 {
		t.Fatalf("chord replayed mid-bar: %v", v)
	}
	if v := out[rate.N(2*time.Second)][0]; !near(v, 0.35) {
		t.Fatalf("bar 2 level = %v, want 0.35", v)
	}
	l.Chords.Stop()
	if l.Scheduler.IsPlaying() {
		t.Fatal("chord player left an empty scheduler running")
	}
}

func TestChordPlayerSynthFallback(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	if err := l.Chords.SetKey("G"); err != nil {
		t.Fatal(err)
	}
	if err := l.Chords.SetKey("H"); err == nil {
		t.Fatal("SetKey accepted H")
	}
	if err := l.Chords.SetProgression([]string{"ii", "V", "I"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Chords.SetProgression([]string{"IX"}); err == nil {
		t.Fatal("SetProgression accepted IX")
	}
	l.Chords.Play(context.Background())
	l.Scheduler.Poll()
	if got := l.Clock.Stats().Scheduled; got != 3 {
		t.Fatalf("voices = %d, want a three note chord", got)
	}
}

func TestChordAssets(t *testing.T) {
	a := Assets("audio", "C")
	if len(a) != 7 {
		t.Fatalf("assets = %d, want 7", len(a))
	}
	if _, ok := a["C-vii°"]; !ok {
		t.Fatal("missing C-vii°")
	}
}

func TestPiano(t *testing.T) {
	l := newLab(t, nil, Hooks{})
	p := l.Piano
	if !p.NoteOn("C") {
		t.Fatal("NoteOn(C) did not start")
	}
	if p.NoteOn("C") {
		t.Fatal("held key retriggered")
	}
	if p.NoteOn("H") {
		t.Fatal("unknown note started")
	}
	if got := p.Held(); !slices.Equal(got, []string{"C4"}) {
		t.Fatalf("Held = %v", got)
	}
	if got := l.Clock.ActiveVoices(); got != 1 {
		t.Fatalf("ActiveVoices = %d, want 1", got)
	}
	p.NoteOff("C")
	if len(p.Held()) != 0 {
		t.Fatal("key still held after NoteOff")
	}

	p.SetOctave(12)
	if p.Octave() != MaxOctave {
		t.Fatalf("octave = %d, want %d", p.Octave(), MaxOctave)
	}
	p.SetOctave(-1)
	if p.Octave() != MinOctave {
		t.Fatalf("octave = %d, want %d", p.Octave(), MinOctave)
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		at, now float64
		want    time.Duration
	}{
		{1.0, 0.975, 25 * time.Millisecond},
		{1.0, 1.0, 0},
		{1.0, 1.2, 0},
	}
	for _, tt := range tests {
		got := Delay(tt.at, tt.now)
		if d := got - tt.want; d > time.Microsecond || d < -time.Microsecond {
			t.Errorf("Delay(%v, %v) = %v, want %v", tt.at, tt.now, got, tt.want)
		}
	}
}

func TestHighlighterCancel(t *testing.T) {
	now := 0.0
	h := NewHighlighter(func() float64 { return now })
	fired := make(chan struct{}, 2)
	h.Schedule(0.05, func() { fired <- struct{}{} })
	h.CancelAll()
	h.Schedule(0, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("immediate highlight never fired")
	}
	select {
	case <-fired:
		t.Fatal("cancelled highlight fired")
	case <-time.After(100 * time.Millisecond):
	}
	if h.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", h.Pending())
	}
}
