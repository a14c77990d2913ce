package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when fields are left unset.
const (
	DefaultCaptureRate  = 16000
	DefaultPlaybackRate = 24000
	DefaultBlockSize    = 2048
	DefaultIntervalMS   = 1000
	DefaultMaxWidth     = 1280
	DefaultJPEGQuality  = 70
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":     {"gemini", "mock"},
	"synth":    {"gemini", "mock"},
	"tracegen": {"gemini", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("synth", cfg.Providers.Synth.Name)
	validateProviderName("tracegen", cfg.Providers.TraceGen.Name)

	if cfg.Providers.Live.Name == "" {
		errs = append(errs, errors.New("providers.live.name is required"))
	}
	if cfg.Providers.Synth.Name == "" {
		slog.Warn("providers.synth is not configured; trace narration will be unavailable")
	}
	if cfg.Providers.TraceGen.Name == "" && cfg.Providers.Synth.Name != "" {
		slog.Warn("providers.tracegen is not configured; traces must be supplied as files")
	}

	// Audio
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = DefaultCaptureRate
	} else if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must be positive", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.PlaybackRate == 0 {
		cfg.Audio.PlaybackRate = DefaultPlaybackRate
	} else if cfg.Audio.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must be positive", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = DefaultBlockSize
	} else if cfg.Audio.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", cfg.Audio.BlockSize))
	}

	// Screen
	if cfg.Screen.IntervalMS == 0 {
		cfg.Screen.IntervalMS = DefaultIntervalMS
	} else if cfg.Screen.IntervalMS < 0 {
		errs = append(errs, fmt.Errorf("screen.interval_ms %d must be positive", cfg.Screen.IntervalMS))
	}
	if cfg.Screen.MaxWidth == 0 {
		cfg.Screen.MaxWidth = DefaultMaxWidth
	} else if cfg.Screen.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("screen.max_width %d must be positive", cfg.Screen.MaxWidth))
	}
	if cfg.Screen.JPEGQuality == 0 {
		cfg.Screen.JPEGQuality = DefaultJPEGQuality
	} else if cfg.Screen.JPEGQuality < 1 || cfg.Screen.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("screen.jpeg_quality %d is out of range [1, 100]", cfg.Screen.JPEGQuality))
	}
	if cfg.Screen.Display < 0 {
		errs = append(errs, fmt.Errorf("screen.display %d must not be negative", cfg.Screen.Display))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
