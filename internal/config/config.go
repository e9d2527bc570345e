// Package config provides the configuration schema, loader, and provider
// registry for phoneval.
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

// StoreDriver selects the result store backend.
type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

// IsValid reports whether d is a recognised store driver.
func (d StoreDriver) IsValid() bool {
	return d == StorePostgres || d == StoreSQLite
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel  LogLevel        `yaml:"log_level"`
	Providers ProvidersConfig `yaml:"providers"`
	Eval      EvalConfig      `yaml:"eval"`
	Narrate   NarrateConfig   `yaml:"narrate"`

	// Lexicon is the path to a YAML pronunciation lexicon. Empty uses the
	// built-in word reading and letter naming lexicon.
	Lexicon string `yaml:"lexicon"`

	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProvidersConfig declares the network backends. Each entry selects a named
// provider registered in the [Registry]; fallbacks are tried in order when
// the primary fails or its circuit breaker is open.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API. When empty, the
	// vendor's environment variable (OPENAI_API_KEY, ...) is used.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. Required for
	// whisper, which has no default server.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values such as "language" or
	// "timeout".
	Options map[string]any `yaml:"options"`
}

// EvalConfig tunes batch evaluation.
type EvalConfig struct {
	// Concurrency bounds the number of samples scored in parallel. Default: 4.
	Concurrency int `yaml:"concurrency"`

	// Metrics lists the error rates computed per sample ("wer", "cer",
	// "per"). Default: [per].
	Metrics []string `yaml:"metrics"`

	// Language is the transcription language hint. Default: "en".
	Language string `yaml:"language"`

	// SampleRate is the rate of raw PCM recordings (.pcm, .raw) that are
	// wrapped into WAV before transcription. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// NarrateConfig tunes LLM narration.
type NarrateConfig struct {
	// Temperature is the sampling temperature. Nil means 0.7.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps the narration length. Zero leaves the provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// StoreConfig selects where runs and scores are persisted. An empty driver
// disables persistence.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// DSN is a PostgreSQL connection string or an SQLite file path.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig controls the Prometheus listener.
type TelemetryConfig struct {
	// MetricsAddr is the listen address for /metrics (e.g., ":9090"). Empty
	// disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}
