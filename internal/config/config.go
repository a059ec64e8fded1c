// Package config loads runtime settings from SONGBUDDY_* environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gopxl/beep/v2"
)

// Config holds all runtime configuration.
type Config struct {
	// Audio output
	SampleRate beep.SampleRate
	Buffer     time.Duration
	Silent     bool

	// Scheduler
	PollInterval  time.Duration
	LookAhead     time.Duration
	StepsPerCycle int
	BPM           int

	// Assets and storage
	AssetBase string // URL or directory holding 808/, chords/ and the metronome samples
	DataDir   string // saved patterns

	LogFile  string // empty logs to stderr
	LogLevel string
}

// Load reads configuration from the environment with defaults for anything
// unset or unparsable.
func Load() Config {
	return Config{
		SampleRate: beep.SampleRate(envInt("SONGBUDDY_SAMPLE_RATE", 44100)),
		Buffer:     envMillis("SONGBUDDY_BUFFER_MS", 10),
		Silent:     envBool("SONGBUDDY_SILENT", false),

		PollInterval:  envMillis("SONGBUDDY_POLL_MS", 10),
		LookAhead:     envMillis("SONGBUDDY_LOOKAHEAD_MS", 25),
		StepsPerCycle: envInt("SONGBUDDY_STEPS", 8),
		BPM:           envInt("SONGBUDDY_BPM", 120),

		AssetBase: envStr("SONGBUDDY_ASSET_BASE", "audio"),
		DataDir:   envStr("SONGBUDDY_DATA_DIR", defaultDataDir()),

		LogFile:  envStr("SONGBUDDY_LOG_FILE", ""),
		LogLevel: envStr("SONGBUDDY_LOG_LEVEL", "info"),
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".songbuddy"
	}
	return filepath.Join(dir, "songbuddy")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt ignores values that are not positive integers.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
