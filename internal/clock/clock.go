// Package clock owns the audio output and its monotonic time base.
//
// A Context is the master beep.Streamer. Everything that makes sound is a
// Node scheduled at an absolute clock time in seconds; the Context mixes the
// nodes that fall inside each rendered block at sample accuracy, so callers
// never depend on when their goroutine happened to run.
package clock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/pkg/errors"
)

var (
	// ErrAudioUnavailable means the host gave us no audio output.
	ErrAudioUnavailable = errors.New("audio output unavailable")
	// ErrClosed is returned by operations on a closed context.
	ErrClosed = errors.New("audio context closed")
)

// State of a Context.
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Stats counts node scheduling outcomes.
type Stats struct {
	Scheduled uint64 // nodes accepted for playback
	Late      uint64 // nodes whose start time had already been rendered
	Dropped   uint64 // nodes discarded because the context is silent or closed
	Finished  uint64 // nodes that played to the end
}

type backend interface {
	resume() error
	suspend() error
	close() error
}

// Context is the audio clock. Now only advances while Running.
type Context struct {
	rate beep.SampleRate
	log  *log.Logger

	mu      sync.Mutex
	state   State
	silent  bool
	pos     int64 // samples rendered while running
	voices  []*Node
	stats   Stats
	back    backend
	scratch [][2]float64

	// silent mode keeps time with the wall clock
	wallBase   time.Time
	wallOffset float64
}

func newContext(rate beep.SampleRate, logger *log.Logger) *Context {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Context{
		rate:  rate,
		log:   logger.WithPrefix("clock"),
		state: Suspended,
	}
}

// NewOffline returns a suspended context that only advances when samples
// are pulled with Render or Advance.
func NewOffline(rate beep.SampleRate, logger *log.Logger) *Context {
	return newContext(rate, logger)
}

// NewSilent returns a suspended context with no output. Once resumed its
// time follows the wall clock and every node is discarded.
func NewSilent(rate beep.SampleRate, logger *log.Logger) *Context {
	c := newContext(rate, logger)
	c.silent = true
	return c
}

// SampleRate of the clock.
func (c *Context) SampleRate() beep.SampleRate { return c.rate }

// Format is the stereo float format the context renders.
func (c *Context) Format() beep.Format {
	return beep.Format{SampleRate: c.rate, NumChannels: 2, Precision: 4}
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Silent reports whether sound production is disabled.
func (c *Context) Silent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.silent
}

// Now returns seconds since the context was created, excluding time spent
// suspended. It never goes backwards.
func (c *Context) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Context) nowLocked() float64 {
	if c.silent {
		if c.state == Running {
			return c.wallOffset + time.Since(c.wallBase).Seconds()
		}
		return c.wallOffset
	}
	return float64(c.pos) / float64(c.rate)
}

// Resume starts the clock. It is idempotent. If the output refuses to
// resume the context degrades to silent mode, keeps running on the wall
// clock, and the failure is returned.
func (c *Context) Resume(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Running:
		c.mu.Unlock()
		return nil
	}
	back := c.back
	c.mu.Unlock()

	var err error
	if back != nil {
		err = waitFor(ctx, back.resume)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return ErrClosed
	}
	if c.state == Running {
		return nil
	}
	if err != nil {
		c.goSilentLocked("resume failed", err)
		err = errors.Wrap(err, "resume audio output")
	}
	c.state = Running
	if c.silent {
		c.wallBase = time.Now()
	}
	return err
}

// Suspend pauses the clock and the output. Scheduled nodes are kept.
func (c *Context) Suspend() error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return nil
	}
	if c.silent {
		c.wallOffset += time.Since(c.wallBase).Seconds()
	}
	c.state = Suspended
	back := c.back
	c.mu.Unlock()

	if back != nil {
		return errors.Wrap(back.suspend(), "suspend audio output")
	}
	return nil
}

// Close releases the output. Pending nodes are discarded.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	if c.silent && c.state == Running {
		c.wallOffset += time.Since(c.wallBase).Seconds()
	}
	c.state = Closed
	c.stats.Dropped += uint64(len(c.voices))
	c.voices = nil
	back := c.back
	c.back = nil
	c.mu.Unlock()

	if back != nil {
		return errors.Wrap(back.close(), "close audio output")
	}
	return nil
}

// Stats returns a copy of the scheduling counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ActiveVoices is the number of nodes waiting or sounding.
func (c *Context) ActiveVoices() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voices)
}

// Stream renders the next block. Suspended contexts emit silence without
// advancing time; a closed context is drained.
func (c *Context) Stream(samples [][2]float64) (n int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return 0, false
	}
	for i := range samples {
		samples[i] = [2]float64{}
	}
	if c.state != Running || c.silent {
		return len(samples), true
	}
	c.mixLocked(samples)
	c.pos += int64(len(samples))
	return len(samples), true
}

func (c *Context) Err() error { return nil }

// Render pulls n samples from an offline context and returns them.
func (c *Context) Render(n int) [][2]float64 {
	buf := make([][2]float64, n)
	c.Stream(buf)
	return buf
}

// Advance renders and discards d worth of samples.
func (c *Context) Advance(d time.Duration) {
	const block = 512
	buf := make([][2]float64, block)
	for left := c.rate.N(d); left > 0; left -= block {
		if left < block {
			buf = buf[:left]
		}
		c.Stream(buf)
	}
}

func (c *Context) mixLocked(out [][2]float64) {
	start := c.pos
	end := start + int64(len(out))

	kept := c.voices[:0]
	for _, v := range c.voices {
		if v.startSample >= end {
			kept = append(kept, v)
			continue
		}
		offset := 0
		if v.startSample > start {
			offset = int(v.startSample - start)
		}
		need := len(out) - offset
		if cap(c.scratch) < need {
			c.scratch = make([][2]float64, need)
		}
		buf := c.scratch[:need]
		for i := range buf {
			buf[i] = [2]float64{}
		}
		got, ok := v.Stream(buf)
		for i := 0; i < got; i++ {
			out[offset+i][0] += buf[i][0]
			out[offset+i][1] += buf[i][1]
		}
		if !ok || got < need {
			c.stats.Finished++
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(c.voices); i++ {
		c.voices[i] = nil
	}
	c.voices = kept
}

// schedule queues n to start at its start time. Must be called with mu held.
func (c *Context) scheduleLocked(n *Node, at float64) {
	if c.silent || c.state == Closed {
		c.stats.Dropped++
		return
	}
	start := int64(math.Round(at * float64(c.rate)))
	if start < c.pos {
		c.stats.Late++
		start = c.pos
	}
	n.startSample = start
	c.stats.Scheduled++
	c.voices = append(c.voices, n)
}

func (c *Context) goSilentLocked(reason string, err error) {
	if c.silent {
		return
	}
	c.wallOffset = float64(c.pos) / float64(c.rate)
	c.silent = true
	c.stats.Dropped += uint64(len(c.voices))
	c.voices = nil
	c.log.Warn("audio output lost, continuing silently", "reason", reason, "err", err)
}

func waitFor(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
