package bounce

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/SirSobhan0/songbuddy/internal/patterns"
	"github.com/SirSobhan0/songbuddy/internal/sample"
	"github.com/SirSobhan0/songbuddy/internal/voice"
)

const rate = beep.SampleRate(8000)

func quiet() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func kickCache() *sample.Cache {
	c := sample.NewCache(nil, quiet())
	buf := beep.NewBuffer(sample.BufferFormat(rate))
	buf.Append(beep.Take(4, beep.StreamerFunc(func(s [][2]float64) (int, bool) {
		for i := range s {
			s[i] = [2]float64{1, 1}
		}
		return len(s), true
	})))
	c.Put(voice.Kick.String(), buf)
	return c
}

func TestRenderPlacesHits(t *testing.T) {
	out, err := Render(context.Background(), Options{
		Rate:    rate,
		BPM:     120,
		Steps:   patterns.Steps{Kick: []int{1, 0, 1}},
		Seconds: 1.5,
		Cache:   kickCache(),
		Logger:  quiet(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out) != 12000 {
		t.Fatalf("len = %d, want 12000", len(out))
	}
	// steps 0 and 2 at 120 BPM, kick volume 0.8
	for _, i := range []int{0, 8000} {
		if math.Abs(out[i][0]-0.8) > 1e-9 {
			t.Errorf("level at sample %d = %v, want 0.8", i, out[i][0])
		}
	}
	if out[4000][0] != 0 {
		t.Errorf("off step sounded: %v", out[4000][0])
	}
}

func TestRenderRejectsLength(t *testing.T) {
	if _, err := Render(context.Background(), Options{Seconds: 0, Logger: quiet()}); err == nil {
		t.Fatal("Render accepted a zero length")
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Render(ctx, Options{Rate: rate, Seconds: 1, Logger: quiet()})
	if err == nil {
		t.Fatal("cancelled render succeeded")
	}
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beat.wav")
	err := ToFile(context.Background(), path, Options{
		Rate:    rate,
		Steps:   patterns.DefaultSteps(),
		Seconds: 0.5,
		Logger:  quiet(),
	})
	if err != nil {
		t.Fatalf("ToFile: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer s.Close()
	if format.SampleRate != rate || format.NumChannels != 2 {
		t.Fatalf("format = %+v", format)
	}
	if s.Len() != 4000 {
		t.Fatalf("frames = %d, want 4000", s.Len())
	}

	var peak float64
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, v := range buf[:n] {
			peak = math.Max(peak, math.Abs(v[0]))
		}
		if !ok {
			break
		}
	}
	if peak == 0 {
		t.Fatal("bounce is silent")
	}
}
