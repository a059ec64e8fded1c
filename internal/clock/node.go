package clock

import (
	"math"
	"math/rand"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/pkg/errors"
)

var (
	// ErrEnvelopeOrder is returned when control points are not strictly
	// increasing in time.
	ErrEnvelopeOrder = errors.New("envelope points must increase in time")
	// ErrEnvelopeValue is returned for an exponential ramp to a value <= 0.
	ErrEnvelopeValue = errors.New("exponential ramp target must be positive")
)

// Wave shape of a tone.
type Wave int

const (
	Sine Wave = iota
	Square
	Sawtooth
	Triangle
)

// Curve is how a control point is approached from the previous one.
type Curve int

const (
	Set Curve = iota
	Linear
	Exponential
)

// Point is one automation event at an absolute clock time.
type Point struct {
	Time  float64
	Value float64
	Curve Curve
}

// SetAt, LinearTo and ExpTo build points the way envelopes read.
func SetAt(t, v float64) Point    { return Point{Time: t, Value: v, Curve: Set} }
func LinearTo(t, v float64) Point { return Point{Time: t, Value: v, Curve: Linear} }
func ExpTo(t, v float64) Point    { return Point{Time: t, Value: v, Curve: Exponential} }

// Param is an automatable value on the clock timeline.
type Param struct {
	base   float64
	points []Point
}

func (p *Param) add(points []Point) error {
	last := math.Inf(-1)
	if len(p.points) > 0 {
		last = p.points[len(p.points)-1].Time
	}
	for _, pt := range points {
		if !(pt.Time > last) {
			return ErrEnvelopeOrder
		}
		if pt.Curve == Exponential && pt.Value <= 0 {
			return ErrEnvelopeValue
		}
		last = pt.Time
	}
	p.points = append(p.points, points...)
	return nil
}

// ValueAt evaluates the param at clock time t, with origin the time the
// owning node started.
func (p *Param) ValueAt(origin, t float64) float64 {
	prevT, prevV := origin, p.base
	for _, pt := range p.points {
		if t < pt.Time {
			if pt.Time <= prevT {
				return prevV
			}
			frac := (t - prevT) / (pt.Time - prevT)
			switch pt.Curve {
			case Linear:
				return prevV + (pt.Value-prevV)*frac
			case Exponential:
				if prevV <= 0 {
					return prevV
				}
				return prevV * math.Pow(pt.Value/prevV, frac)
			}
			return prevV
		}
		prevT, prevV = pt.Time, pt.Value
	}
	return prevV
}

// holdAt drops every point after t and pins the current value at t.
func (p *Param) holdAt(origin, t float64) {
	v := p.ValueAt(origin, t)
	kept := p.points[:0]
	for _, pt := range p.points {
		if pt.Time < t {
			kept = append(kept, pt)
		}
	}
	p.points = append(kept, SetAt(t, v))
}

type sourceKind int

const (
	kindOscillator sourceKind = iota
	kindStream
)

// Node is a short-lived sound source with a gain envelope and optional
// highpass. It is created by a Context and plays once.
type Node struct {
	ctx  *Context
	kind sourceKind

	wave  Wave
	freq  Param
	phase float64
	src   beep.Streamer

	gain   Param
	filter *biquad

	started     bool
	startSample int64
	stopAt      float64 // absolute seconds, 0 = until the source ends
	pos         int64
}

// NewTone returns an oscillator node at freq Hz.
func (c *Context) NewTone(freq float64, wave Wave) *Node {
	return &Node{ctx: c, kind: kindOscillator, wave: wave, freq: Param{base: freq}, gain: Param{base: 1}}
}

// NewNoise returns a one-second white noise burst.
func (c *Context) NewNoise() *Node {
	noise := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := rand.Float64()*2 - 1
			samples[i][0] = v
			samples[i][1] = v
		}
		return len(samples), true
	})
	return c.NewStreamSource(beep.Take(c.rate.N(time.Second), noise))
}

// NewBufferSource plays buf from the beginning.
func (c *Context) NewBufferSource(buf *beep.Buffer) *Node {
	return c.NewStreamSource(buf.Streamer(0, buf.Len()))
}

// NewStreamSource wraps any streamer already at the context's rate.
func (c *Context) NewStreamSource(s beep.Streamer) *Node {
	return &Node{ctx: c, kind: kindStream, src: s, gain: Param{base: 1}}
}

// SetGain sets the static gain the envelope starts from.
func (n *Node) SetGain(v float64) *Node {
	n.ctx.mu.Lock()
	n.gain.base = v
	n.ctx.mu.Unlock()
	return n
}

// HighPass inserts a second order highpass at cutoff Hz.
func (n *Node) HighPass(cutoff float64) *Node {
	n.ctx.mu.Lock()
	n.filter = newHighPass(cutoff, float64(n.ctx.rate))
	n.ctx.mu.Unlock()
	return n
}

// ScheduleGainEnvelope appends control points to the node's gain. Points
// must be strictly increasing in time, after any already scheduled.
func (c *Context) ScheduleGainEnvelope(n *Node, points ...Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return n.gain.add(points)
}

// Envelope is ScheduleGainEnvelope on the node's own context.
func (n *Node) Envelope(points ...Point) error {
	return n.ctx.ScheduleGainEnvelope(n, points...)
}

// FrequencyRamp automates an oscillator's frequency.
func (n *Node) FrequencyRamp(points ...Point) error {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return n.freq.add(points)
}

// Start schedules the node at clock time at and lets it run until its source
// ends. Oscillators run until Release.
func (n *Node) Start(at float64) {
	n.StartStop(at, 0)
}

// StartStop schedules the node between at and stop (absolute seconds).
// A start time already in the past starts on the next rendered sample.
func (n *Node) StartStop(at, stop float64) {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	n.stopAt = stop
	n.prepareLocked()
	c.scheduleLocked(n, at)
}

// Release ramps the gain down to silence over d seconds from at and stops
// the node there, replacing any later envelope points.
func (n *Node) Release(at, d float64) {
	c := n.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	origin := n.origin()
	n.gain.holdAt(origin, at)
	if n.gain.ValueAt(origin, at) > 0 {
		n.gain.points = append(n.gain.points, ExpTo(at+d, 0.001))
	} else {
		n.gain.points = append(n.gain.points, LinearTo(at+d, 0))
	}
	n.stopAt = at + d
}

// prepareLocked switches fixed-frequency tones onto beep's generators.
func (n *Node) prepareLocked() {
	if n.kind != kindOscillator || len(n.freq.points) > 0 {
		return
	}
	var (
		s   beep.Streamer
		err error
	)
	switch n.wave {
	case Sine:
		s, err = generators.SineTone(n.ctx.rate, n.freq.base)
	case Square:
		s, err = generators.SquareTone(n.ctx.rate, n.freq.base)
	case Sawtooth:
		s, err = generators.SawtoothTone(n.ctx.rate, n.freq.base)
	case Triangle:
		s, err = generators.TriangleTone(n.ctx.rate, n.freq.base)
	}
	if err != nil || s == nil {
		return
	}
	n.kind = kindStream
	n.src = s
}

func (n *Node) origin() float64 {
	return float64(n.startSample) / float64(n.ctx.rate)
}

// Stream renders the node. Called with the context lock held.
func (n *Node) Stream(samples [][2]float64) (int, bool) {
	rate := float64(n.ctx.rate)
	want := len(samples)
	if n.stopAt > 0 {
		stopSample := int64(math.Round(n.stopAt * rate))
		left := stopSample - (n.startSample + n.pos)
		if left <= 0 {
			return 0, false
		}
		if int64(want) > left {
			want = int(left)
		}
	}

	origin := n.origin()
	got := want
	switch n.kind {
	case kindOscillator:
		for i := 0; i < want; i++ {
			t := origin + float64(n.pos+int64(i))/rate
			v := oscillate(n.wave, n.phase)
			samples[i] = [2]float64{v, v}
			n.phase += n.freq.ValueAt(origin, t) / rate
			n.phase -= math.Floor(n.phase)
		}
	default:
		var ok bool
		got, ok = n.src.Stream(samples[:want])
		if !ok {
			got = 0
		}
	}

	for i := 0; i < got; i++ {
		t := origin + float64(n.pos+int64(i))/rate
		g := n.gain.ValueAt(origin, t)
		samples[i][0] *= g
		samples[i][1] *= g
		if n.filter != nil {
			samples[i] = n.filter.process(samples[i])
		}
	}
	n.pos += int64(got)
	if got == 0 {
		return 0, false
	}
	return got, true
}

func (n *Node) Err() error { return nil }

// oscillate maps a phase in [0,1) to a sample in [-1,1].
func oscillate(w Wave, p float64) float64 {
	switch w {
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*p - 1
	case Triangle:
		return 1 - 4*math.Abs(p-0.5)
	}
	return math.Sin(2 * math.Pi * p)
}

// biquad is an RBJ highpass with per-channel state.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

func newHighPass(cutoff, sampleRate float64) *biquad {
	if cutoff >= sampleRate/2 {
		cutoff = sampleRate/2 - 1
	}
	wc := 2 * math.Pi * cutoff / sampleRate
	cosw := math.Cos(wc)
	alpha := math.Sin(wc) / (2 * 0.707)

	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func (b *biquad) process(in [2]float64) [2]float64 {
	var out [2]float64
	for ch := 0; ch < 2; ch++ {
		x := in[ch]
		y := b.b0*x + b.b1*b.x1[ch] + b.b2*b.x2[ch] - b.a1*b.y1[ch] - b.a2*b.y2[ch]
		b.x2[ch], b.x1[ch] = b.x1[ch], x
		b.y2[ch], b.y1[ch] = b.y1[ch], y
		out[ch] = y
	}
	return out
}
