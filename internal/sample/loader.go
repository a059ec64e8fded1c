// Package sample fetches, decodes and caches audio assets.
package sample

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/pkg/errors"
)

const (
	resampleQuality = 4
	maxAssetBytes   = 32 << 20
)

// BufferPrecision is the sample width of every buffer the loader returns.
// 32-bit keeps decoded and resampled audio from being re-quantized.
const BufferPrecision = 4

var (
	// ErrUnknownFormat means the asset is neither WAV nor MP3.
	ErrUnknownFormat = errors.New("unknown audio format")
	// ErrTooLarge means the asset exceeds the size limit.
	ErrTooLarge = errors.New("asset too large")
)

// BufferFormat is the stereo format for buffers played at rate.
func BufferFormat(rate beep.SampleRate) beep.Format {
	return beep.Format{SampleRate: rate, NumChannels: 2, Precision: BufferPrecision}
}

// Loader turns a URL or path into a buffer at a fixed sample rate.
type Loader struct {
	rate     beep.SampleRate
	client   *http.Client
	log      *log.Logger
	maxBytes int64
}

type LoaderOption func(*Loader)

func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

func WithLogger(lg *log.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.log = lg
		}
	}
}

// NewLoader returns a loader that resamples everything to rate.
func NewLoader(rate beep.SampleRate, opts ...LoaderOption) *Loader {
	l := &Loader{
		rate:     rate,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log.Default(),
		maxBytes: maxAssetBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithPrefix("sample")
	return l
}

// Format is the stereo format every returned buffer has.
func (l *Loader) Format() beep.Format {
	return BufferFormat(l.rate)
}

// Load fetches and decodes src. Any failure is logged and yields nil, so
// callers fall back to synthesis.
func (l *Loader) Load(ctx context.Context, src string) *beep.Buffer {
	buf, err := l.LoadE(ctx, src)
	if err != nil {
		l.log.Warn("asset unavailable", "src", src, "err", err)
		return nil
	}
	return buf
}

// LoadE is Load with the failure returned.
func (l *Loader) LoadE(ctx context.Context, src string) (*beep.Buffer, error) {
	data, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	return l.Decode(data, src)
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "fetch")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("fetch %s: status %d", src, resp.StatusCode)
		}
		return l.readAll(resp.Body, src)
	}

	p := src
	if err == nil && u.Scheme == "file" {
		p = u.Path
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	defer f.Close()
	return l.readAll(f, src)
}

// readAll reads r whole, failing rather than truncating past maxBytes.
func (l *Loader) readAll(r io.Reader, src string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", src)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "%s over %d bytes", src, l.maxBytes)
	}
	return data, nil
}

// Decode decodes WAV or MP3 data, picking the codec from name's extension
// or, failing that, the leading bytes.
func (l *Loader) Decode(data []byte, name string) (*beep.Buffer, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch detect(data, name) {
	case "wav":
		s, format, err = wav.Decode(bytes.NewReader(data))
	case "mp3":
		s, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, errors.Wrap(ErrUnknownFormat, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != l.rate {
		src = beep.Resample(resampleQuality, format.SampleRate, l.rate, s)
	}
	buf := beep.NewBuffer(l.Format())
	buf.Append(src)
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	if buf.Len() == 0 {
		return nil, errors.Errorf("decode %s: no audio", name)
	}
	return buf, nil
}

func detect(data []byte, name string) string {
	if u, err := url.Parse(name); err == nil && u.Path != "" {
		name = u.Path
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".wav", ".wave":
		return "wav"
	case ".mp3":
		return "mp3"
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// Join resolves an asset name against base, which may be a URL or a
// directory.
func Join(base string, elem ...string) string {
	if u, err := url.Parse(base); err == nil && u.Scheme != "" && u.Host != "" {
		return u.JoinPath(elem...).String()
	}
	return filepath.Join(append([]string{base}, elem...)...)
}
