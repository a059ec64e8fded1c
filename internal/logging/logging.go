// Package logging builds the application logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// New returns a logger at level writing to file, appending, or to stderr
// when file is empty. An unknown level falls back to info. The returned
// closer releases the file and is never nil.
func New(file, level string) (*log.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var c io.Closer = nopCloser{}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", file)
		}
		w, c = f, f
	}
	return NewWriter(w, level), c, nil
}

// NewWriter is New for an existing writer.
func NewWriter(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
