// Package bounce renders a step sequencer session to a WAV file without an
// audio device.
package bounce

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/pkg/errors"

	"github.com/SirSobhan0/songbuddy/internal/clock"
	"github.com/SirSobhan0/songbuddy/internal/lab"
	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
)

// Tick is the simulated poll period.
const Tick = 10 * time.Millisecond

// Options describe one bounce.
type Options struct {
	Rate    beep.SampleRate
	BPM     int
	Steps   patterns.Steps
	Seconds float64
	Cache   *sample.Cache
	Logger  *log.Logger
}

// Render plays the pattern on an offline clock and returns the mixed audio.
// The scheduler is polled once per simulated tick, so timing matches a live
// session.
func Render(ctx context.Context, o Options) ([][2]float64, error) {
	if o.Seconds <= 0 {
		return nil, errors.Errorf("bounce length %vs", o.Seconds)
	}
	if o.Rate == 0 {
		o.Rate = clock.DefaultSampleRate
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}

	l := lab.New(clock.NewOffline(o.Rate, o.Logger), o.Cache, nil, o.Logger, lab.Hooks{}, scheduler.WithManualPolling())
	defer l.Close()
	if o.BPM > 0 {
		l.Transport.SetBPM(o.BPM)
	}
	l.Sequencer.SetPattern(o.Steps)
	if err := l.Sequencer.Play(ctx); err != nil {
		return nil, errors.Wrap(err, "start bounce")
	}
	defer l.Sequencer.Stop()

	total := int(o.Seconds * float64(o.Rate))
	block := o.Rate.N(Tick)
	out := make([][2]float64, 0, total)
	for len(out) < total {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "bounce")
		}
		l.Scheduler.Poll()
		out = append(out, l.Clock.Render(min(block, total-len(out)))...)
	}
	o.Logger.Debug("bounced", "samples", len(out), "voices", l.Clock.Stats().Scheduled)
	return out, nil
}

// Write encodes samples as 16-bit stereo WAV.
func Write(w io.WriteSeeker, rate beep.SampleRate, samples [][2]float64) error {
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	return errors.Wrap(wav.Encode(w, &slice{s: samples}, format), "encode wav")
}

// ToFile renders o and writes it to path.
func ToFile(ctx context.Context, path string, o Options) error {
	samples, err := Render(ctx, o)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	rate := o.Rate
	if rate == 0 {
		rate = clock.DefaultSampleRate
	}
	if err := Write(f, rate, clip(samples)); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close bounce")
}

// clip limits samples to [-1, 1] in place.
func clip(s [][2]float64) [][2]float64 {
	for i := range s {
		for c := range s[i] {
			s[i][c] = min(max(s[i][c], -1), 1)
		}
	}
	return s
}

type slice struct {
	s   [][2]float64
	pos int
}

func (s *slice) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.s) {
		return 0, false
	}
	n := copy(samples, s.s[s.pos:])
	s.pos += n
	return n, true
}

func (s *slice) Err() error { return nil }
