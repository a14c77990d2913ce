// Package config provides the configuration schema, loader, and provider
// registry for the Voxtrace tutoring system.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxtrace.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Screen    ScreenConfig    `yaml:"screen"`
	Tutor     TutorConfig     `yaml:"tutor"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig declares which provider implementation to use for each
// concern. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// Live is the bidirectional speech session provider.
	Live ProviderEntry `yaml:"live"`

	// Synth is the one-shot narration synthesis provider.
	Synth ProviderEntry `yaml:"synth"`

	// TraceGen is the execution trace generation provider.
	TraceGen ProviderEntry `yaml:"tracegen"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// AudioConfig holds sample rates and block sizing for the audio path.
type AudioConfig struct {
	// CaptureRate is the microphone sample rate in Hz. Default 16000.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the output sample rate in Hz. Default 24000.
	PlaybackRate int `yaml:"playback_rate"`

	// BlockSize is the number of samples per upstream audio block.
	// Default 2048.
	BlockSize int `yaml:"block_size"`
}

// ScreenConfig holds screen sharing parameters.
type ScreenConfig struct {
	// IntervalMS is the frame capture period in milliseconds. Default 1000.
	IntervalMS int `yaml:"interval_ms"`

	// MaxWidth caps the encoded frame width in pixels. Default 1280.
	MaxWidth int `yaml:"max_width"`

	// JPEGQuality is the frame encoder quality, 1 to 100. Default 70.
	JPEGQuality int `yaml:"jpeg_quality"`

	// Display selects which display to capture, 0 being primary.
	Display int `yaml:"display"`
}

// TutorConfig holds the tutoring persona settings.
type TutorConfig struct {
	// Voice is the provider voice used for both the live session and trace
	// narration (e.g., "Aoede").
	Voice string `yaml:"voice"`

	// Instruction overrides the built-in tutoring system prompt.
	Instruction string `yaml:"instruction"`
}
