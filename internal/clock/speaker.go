package clock

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/pkg/errors"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	DefaultBuffer     = 10 * time.Millisecond
)

// Config for the speaker-backed context.
type Config struct {
	SampleRate beep.SampleRate
	Buffer     time.Duration // speaker block size; Now advances in these steps
	Logger     *log.Logger
}

type speakerBackend struct{}

func (speakerBackend) resume() error  { return speaker.Resume() }
func (speakerBackend) suspend() error { return speaker.Suspend() }

func (speakerBackend) close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// Open initializes the system speaker and returns a suspended context
// playing through it. It fails with ErrAudioUnavailable when there is no
// usable output device.
func Open(cfg Config) (*Context, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	c := newContext(cfg.SampleRate, cfg.Logger)

	if err := speaker.Init(cfg.SampleRate, cfg.SampleRate.N(cfg.Buffer)); err != nil {
		return nil, errors.Wrapf(ErrAudioUnavailable, "speaker init: %v", err)
	}
	speaker.Play(c)
	if err := speaker.Suspend(); err != nil {
		c.log.Debug("speaker suspend at open", "err", err)
	}
	c.back = speakerBackend{}
	c.log.Info("audio output open", "rate", int(cfg.SampleRate), "buffer", cfg.Buffer)
	return c, nil
}

// OpenOrSilent opens the speaker and falls back to a silent context, so
// callers always get a working clock.
func OpenOrSilent(cfg Config) *Context {
	c, err := Open(cfg)
	if err != nil {
		logger := cfg.Logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Warn("no audio output, running silently", "err", err)
		return NewSilent(cfg.SampleRate, cfg.Logger)
	}
	return c
}
