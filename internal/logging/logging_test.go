package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown", "key", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=1") {
		t.Fatalf("output = %q", out)
	}
}

func TestNewWriterBadLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "loud")
	l.Debug("hidden")
	l.Info("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output = %q, want info level", out)
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songbuddy.log")
	l, c, err := New(path, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("to file")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file = %q", data)
	}
}

func TestNewBadPath(t *testing.T) {
	if _, _, err := New(filepath.Join(t.TempDir(), "missing", "x.log"), "info"); err == nil {
		t.Fatal("New opened a file in a missing directory")
	}
}
