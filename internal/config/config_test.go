package config

import (
	"path/filepath"
	"testing"
	"time"
)

var keys = []string{
	"SONGBUDDY_SAMPLE_RATE", "SONGBUDDY_BUFFER_MS", "SONGBUDDY_SILENT",
	"SONGBUDDY_POLL_MS", "SONGBUDDY_LOOKAHEAD_MS", "SONGBUDDY_STEPS",
	"SONGBUDDY_BPM", "SONGBUDDY_ASSET_BASE", "SONGBUDDY_DATA_DIR",
	"SONGBUDDY_LOG_FILE", "SONGBUDDY_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.Buffer != 10*time.Millisecond {
		t.Errorf("Buffer = %v, want 10ms", cfg.Buffer)
	}
	if cfg.PollInterval != 10*time.Millisecond {
		t.Errorf("PollInterval = %v, want 10ms", cfg.PollInterval)
	}
	if cfg.LookAhead != 25*time.Millisecond {
		t.Errorf("LookAhead = %v, want 25ms", cfg.LookAhead)
	}
	if cfg.StepsPerCycle != 8 {
		t.Errorf("StepsPerCycle = %d, want 8", cfg.StepsPerCycle)
	}
	if cfg.BPM != 120 {
		t.Errorf("BPM = %d, want 120", cfg.BPM)
	}
	if cfg.AssetBase != "audio" {
		t.Errorf("AssetBase = %q, want audio", cfg.AssetBase)
	}
	if filepath.Base(cfg.DataDir) != "songbuddy" && cfg.DataDir != ".songbuddy" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogFile != "" || cfg.LogLevel != "info" {
		t.Errorf("log = %q/%q, want stderr/info", cfg.LogFile, cfg.LogLevel)
	}
	if cfg.Silent {
		t.Error("Silent on by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SONGBUDDY_SAMPLE_RATE", "48000")
	t.Setenv("SONGBUDDY_LOOKAHEAD_MS", "100")
	t.Setenv("SONGBUDDY_BPM", "90")
	t.Setenv("SONGBUDDY_SILENT", "true")
	t.Setenv("SONGBUDDY_ASSET_BASE", "https://example.com/audio")
	t.Setenv("SONGBUDDY_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.LookAhead != 100*time.Millisecond {
		t.Errorf("LookAhead = %v, want 100ms", cfg.LookAhead)
	}
	if cfg.BPM != 90 {
		t.Errorf("BPM = %d, want 90", cfg.BPM)
	}
	if !cfg.Silent {
		t.Error("Silent = false, want true")
	}
	if cfg.AssetBase != "https://example.com/audio" {
		t.Errorf("AssetBase = %q", cfg.AssetBase)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadIgnoresBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SONGBUDDY_STEPS", "-3")
	t.Setenv("SONGBUDDY_BPM", "fast")
	t.Setenv("SONGBUDDY_SILENT", "maybe")

	cfg := Load()
	if cfg.StepsPerCycle != 8 {
		t.Errorf("StepsPerCycle = %d, want default 8", cfg.StepsPerCycle)
	}
	if cfg.BPM != 120 {
		t.Errorf("BPM = %d, want default 120", cfg.BPM)
	}
	if cfg.Silent {
		t.Error("Silent parsed from garbage")
	}
}
