package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/SirSobhan0/songbuddy/internal/bounce"
	"github.com/SirSobhan0/songbuddy/internal/clock"
	"github.com/SirSobhan0/songbuddy/internal/config"
	"github.com/SirSobhan0/songbuddy/internal/lab"
	"github.com/SirSobhan0/songbuddy/internal/logging"
	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/scheduler"
	"github.com/SirSobhan0/songbuddy/internal/theory"
	"github.com/SirSobhan0/songbuddy/internal/transport"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

type args struct {
	BPM        int     `arg:"--bpm" help:"tempo in beats per minute"`
	Silent     bool    `arg:"--silent" help:"run without an audio device"`
	Assets     string  `arg:"--assets" help:"URL or directory holding the samples"`
	Bounce     string  `arg:"--bounce" placeholder:"FILE" help:"render the beat to a WAV file and exit"`
	Seconds    float64 `arg:"--seconds" default:"8" help:"length of --bounce"`
	ExportMIDI string  `arg:"--export-midi" placeholder:"FILE" help:"write the beat as a MIDI file and exit"`
	Pattern    string  `arg:"--pattern" placeholder:"ID" help:"saved pattern for --bounce and --export-midi (default: most recent)"`
}

func (args) Description() string {
	return "songbuddy: a metronome, an 808 and a chord player in the terminal"
}

func main() {
	cfg := config.Load()
	var a args
	arg.MustParse(&a)
	if a.BPM > 0 {
		cfg.BPM = a.BPM
	}
	if a.Silent {
		cfg.Silent = true
	}
	if a.Assets != "" {
		cfg.AssetBase = a.Assets
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case a.Bounce != "":
		err = runBounce(ctx, cfg, a)
	case a.ExportMIDI != "":
		err = runExport(ctx, cfg, a)
	default:
		err = runLab(ctx, cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// --- COMMANDS ---

func openStore(cfg config.Config) (*patterns.FileStore, error) {
	return patterns.NewFileStore(filepath.Join(cfg.DataDir, "patterns"))
}

// pickPattern returns the pattern named id, the most recently saved one, or
// the default beat when nothing is saved.
func pickPattern(ctx context.Context, s patterns.Store, id string, bpm int) (patterns.Pattern, error) {
	if id != "" {
		return s.Get(ctx, id)
	}
	saved, err := s.List(ctx)
	if err != nil {
		return patterns.Pattern{}, err
	}
	if len(saved) > 0 {
		return saved[0], nil
	}
	return patterns.Pattern{Name: "default", BPM: bpm, Steps: patterns.DefaultSteps()}, nil
}

func runBounce(ctx context.Context, cfg config.Config, a args) error {
	logger, c, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	p, err := pickPattern(ctx, store, a.Pattern, cfg.BPM)
	if err != nil {
		return err
	}
	if a.BPM > 0 {
		p.BPM = a.BPM
	}

	loader := sample.NewLoader(cfg.SampleRate, sample.WithLogger(logger))
	cache := sample.NewCache(loader, logger)
	if err := cache.Preload(ctx, voice.DefaultAssets(cfg.AssetBase)); err != nil {
		return err
	}
	logger.Info("bouncing", "pattern", p.Name, "bpm", p.BPM, "seconds", a.Seconds, "samples", cache.Len())
	return bounce.ToFile(ctx, a.Bounce, bounce.Options{
		Rate:    cfg.SampleRate,
		BPM:     p.BPM,
		Steps:   p.Steps,
		Seconds: a.Seconds,
		Cache:   cache,
		Logger:  logger,
	})
}

func runExport(ctx context.Context, cfg config.Config, a args) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	p, err := pickPattern(ctx, store, a.Pattern, cfg.BPM)
	if err != nil {
		return err
	}
	if a.BPM > 0 {
		p.BPM = a.BPM
	}
	f, err := os.Create(a.ExportMIDI)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := patterns.ExportMIDI(f, p); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close midi file")
}

// sender forwards hook events into the running program.
type sender struct{ p atomic.Pointer[tea.Program] }

func (s *sender) send(msg tea.Msg) {
	if p := s.p.Load(); p != nil {
		p.Send(msg)
	}
}

func (s *sender) hooks() lab.Hooks {
	return lab.Hooks{
		OnBeat:  func(beat int) { s.send(beatMsg(beat)) },
		OnStep:  func(step int) { s.send(stepMsg(step)) },
		OnChord: func(bar int, c theory.Chord) { s.send(chordMsg{bar: bar, chord: c}) },
	}
}

func runLab(ctx context.Context, cfg config.Config) error {
	// the TUI owns the terminal, so logs go to a file
	if cfg.LogFile == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return errors.WithStack(err)
		}
		cfg.LogFile = filepath.Join(cfg.DataDir, "songbuddy.log")
	}
	logger, c, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	audio := openAudio(cfg, logger)
	loader := sample.NewLoader(cfg.SampleRate, sample.WithLogger(logger))
	cache := sample.NewCache(loader, logger)

	var out sender
	l := lab.New(audio, cache, loader, logger, out.hooks(),
		scheduler.WithInterval(cfg.PollInterval),
		scheduler.WithLookAhead(cfg.LookAhead),
		scheduler.WithStepsPerCycle(cfg.StepsPerCycle),
	)
	defer l.Close()
	l.Transport.SetBPM(transport.ClampBPM(cfg.BPM))

	assets := voice.DefaultAssets(cfg.AssetBase)
	for id, src := range lab.Assets(cfg.AssetBase, l.Chords.Key()) {
		assets[id] = src
	}

	m := newModel(ctx, l, store, cfg.AssetBase)
	m.loading = cache.PreloadAsync(ctx, assets)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	out.p.Store(p)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run ui")
	}
	return nil
}

func openAudio(cfg config.Config, logger *log.Logger) *clock.Context {
	if cfg.Silent {
		logger.Info("audio disabled")
		return clock.NewSilent(cfg.SampleRate, logger)
	}
	return clock.OpenOrSilent(clock.Config{
		SampleRate: cfg.SampleRate,
		Buffer:     cfg.Buffer,
		Logger:     logger,
	})
}
