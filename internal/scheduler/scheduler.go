// Package scheduler turns a tempo into step callbacks scheduled slightly
// ahead of the audio clock.
//
// A coarse timer polls the clock. Whenever the next step falls inside the
// look-ahead window every registered callback is handed the exact clock time
// of that step, so sounds are placed on the audio timeline rather than at
// the moment the timer happened to fire.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/pkg/errors"
)

const (
	DefaultBPM           = 120
	DefaultInterval      = 10 * time.Millisecond
	DefaultLookAhead     = 25 * time.Millisecond
	DefaultStepsPerCycle = 8
)

// ErrInvalidBPM is returned for a tempo that is not a positive finite number.
var ErrInvalidBPM = errors.New("bpm must be positive and finite")

// Clock is the audio time base the scheduler reads.
type Clock interface {
	Now() float64
	Resume(ctx context.Context) error
}

// Player produces the sounds behind PlayClick and PlaySample.
type Player interface {
	Click(at float64)
	Sample(buf *beep.Buffer, at, volume float64)
}

// Loader fetches and decodes an audio asset, returning nil on failure.
type Loader interface {
	Load(ctx context.Context, url string) *beep.Buffer
}

// Callback receives the clock time at which a step sounds and its index in
// the cycle. Step runs with the scheduler locked: it may call Now,
// StepsPerCycle, PlayClick, PlaySample and LoadSample, and must not call
// any other Scheduler method.
type Callback interface {
	Step(at float64, step int)
}

type funcCallback struct{ fn func(float64, int) }

func (f *funcCallback) Step(at float64, step int) { f.fn(at, step) }

// Func wraps fn in a callback with its own identity, so it can be removed
// again. Each call returns a distinct callback.
func Func(fn func(at float64, step int)) Callback {
	return &funcCallback{fn: fn}
}

// Ticker delivers poll ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLookAhead sets how far past the current clock time steps are
// dispatched.
func WithLookAhead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookAhead = d.Seconds()
		}
	}
}

// WithStepsPerCycle sets how many steps make one cycle.
func WithStepsPerCycle(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.steps = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTicker replaces the poll ticker factory.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(s *Scheduler) { s.newTicker = fn }
}

// WithManualPolling starts no timer; the owner drives the scheduler with
// Poll.
func WithManualPolling() Option {
	return WithTicker(func(time.Duration) Ticker { return idleTicker{} })
}

type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}

func WithPlayer(p Player) Option {
	return func(s *Scheduler) { s.player = p }
}

func WithLoader(l Loader) Option {
	return func(s *Scheduler) { s.loader = l }
}

// Scheduler is the look-ahead step clock. All methods are safe for
// concurrent use, except that callbacks run with the scheduler locked and
// must not call its registry, tempo or Start/Stop methods. Clock and player
// calls from a callback are fine.
type Scheduler struct {
	clock     Clock
	player    Player
	loader    Loader
	log       *log.Logger
	interval  time.Duration
	lookAhead float64
	steps     int
	newTicker func(time.Duration) Ticker

	mu           sync.Mutex
	bpm          float64
	callbacks    []Callback
	playing      bool
	nextNoteTime float64
	step         int
	done         chan struct{}
	wg           sync.WaitGroup
}

// New returns a stopped scheduler at 120 BPM reading time from clock.
func New(clock Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     clock,
		log:       log.Default(),
		interval:  DefaultInterval,
		lookAhead: DefaultLookAhead.Seconds(),
		steps:     DefaultStepsPerCycle,
		newTicker: newTimeTicker,
		bpm:       DefaultBPM,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithPrefix("scheduler")
	return s
}

// SetBPM changes the tempo of every step after the one already queued.
func (s *Scheduler) SetBPM(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return errors.Wrapf(ErrInvalidBPM, "set bpm %v", bpm)
	}
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// AddCallback appends cb. The same callback may be added more than once and
// then runs once per registration.
func (s *Scheduler) AddCallback(cb Callback) {
	if cb == nil {
		return
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

// RemoveCallback removes every registration of cb. Unknown callbacks are
// ignored.
func (s *Scheduler) RemoveCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.callbacks[:0]
	for _, c := range s.callbacks {
		if c != cb {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(s.callbacks); i++ {
		s.callbacks[i] = nil
	}
	s.callbacks = kept
}

// ClearCallbacks drops every registration, including other consumers'.
func (s *Scheduler) ClearCallbacks() {
	s.mu.Lock()
	s.callbacks = nil
	s.mu.Unlock()
}

func (s *Scheduler) CallbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// Start resumes the clock and begins polling from step 0 at the current
// clock time. Calling Start while playing does nothing. A clock that fails
// to resume is logged and playback continues on whatever time it reports.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return nil
	}
	if err := s.clock.Resume(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "start scheduler")
		}
		s.log.Warn("clock resume failed, continuing", "err", err)
	}

	s.playing = true
	s.step = 0
	s.nextNoteTime = s.clock.Now()
	s.done = make(chan struct{})

	t := s.newTicker(s.interval)
	s.wg.Add(1)
	go s.run(t, s.done)
	s.log.Debug("started", "bpm", s.bpm, "at", s.nextNoteTime)
	return nil
}

// Stop halts polling and waits for the poll goroutine to exit. Callbacks
// stay registered and sounds already handed to the clock still play.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Debug("stopped")
}

func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// CurrentStep is the index the next dispatched step will carry.
func (s *Scheduler) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// NextNoteTime is the clock time of the next step to dispatch.
func (s *Scheduler) NextNoteTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNoteTime
}

// StepsPerCycle is the cycle length steps wrap at.
func (s *Scheduler) StepsPerCycle() int { return s.steps }

// Now is the clock's current time.
func (s *Scheduler) Now() float64 { return s.clock.Now() }

// PlayClick sounds the metronome click at clock time at.
func (s *Scheduler) PlayClick(at float64) {
	if s.player != nil {
		s.player.Click(at)
	}
}

// PlaySample plays buf at clock time at. A nil buffer is ignored.
func (s *Scheduler) PlaySample(buf *beep.Buffer, at, volume float64) {
	if buf == nil || s.player == nil {
		return
	}
	s.player.Sample(buf, at, volume)
}

// LoadSample fetches and decodes url. It returns nil on any failure.
func (s *Scheduler) LoadSample(ctx context.Context, url string) *beep.Buffer {
	if s.loader == nil {
		return nil
	}
	return s.loader.Load(ctx, url)
}

func (s *Scheduler) run(t Ticker, done <-chan struct{}) {
	defer s.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C():
			s.Poll()
		}
	}
}

// Poll runs one poll step, dispatching at most one step. The poll loop
// calls it on every tick; offline renders using WithManualPolling call it
// themselves.
func (s *Scheduler) Poll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	if s.nextNoteTime >= s.clock.Now()+s.lookAhead {
		return
	}
	at, step := s.nextNoteTime, s.step
	for _, cb := range s.callbacks {
		s.invoke(cb, at, step)
	}
	s.nextNoteTime += 60 / s.bpm
	s.step = (s.step + 1) % s.steps
}

func (s *Scheduler) invoke(cb Callback, at float64, step int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("callback panicked", "step", step, "at", at, "panic", fmt.Sprint(r))
		}
	}()
	cb.Step(at, step)
}
