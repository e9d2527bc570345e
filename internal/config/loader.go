package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper"},
}

// apiKeyEnv maps LLM vendors to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

var validMetrics = []string{"wer", "cer", "per"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg and resolves provider API
// keys from the environment.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Eval.Concurrency <= 0 {
		cfg.Eval.Concurrency = 4
	}
	if len(cfg.Eval.Metrics) == 0 {
		cfg.Eval.Metrics = []string{"per"}
	}
	for i, m := range cfg.Eval.Metrics {
		cfg.Eval.Metrics[i] = strings.ToLower(strings.TrimSpace(m))
	}
	if cfg.Eval.Language == "" {
		cfg.Eval.Language = "en"
	}
	if cfg.Eval.SampleRate <= 0 {
		cfg.Eval.SampleRate = 16000
	}

	resolveAPIKey(&cfg.Providers.LLM)
	for i := range cfg.Providers.LLMFallbacks {
		resolveAPIKey(&cfg.Providers.LLMFallbacks[i])
	}
}

func resolveAPIKey(e *ProviderEntry) {
	if e.APIKey != "" || e.Name == "" {
		return
	}
	if env, ok := apiKeyEnv[e.Name]; ok {
		e.APIKey = os.Getenv(env)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)
	for i, e := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry("llm", prefix, e)...)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}

	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	for i, e := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry("stt", prefix, e)...)
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
	}

	if cfg.Eval.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("eval.concurrency %d must not be negative", cfg.Eval.Concurrency))
	}
	seen := make(map[string]bool, len(cfg.Eval.Metrics))
	for i, m := range cfg.Eval.Metrics {
		if !slices.Contains(validMetrics, m) {
			errs = append(errs, fmt.Errorf("eval.metrics[%d] %q is invalid; valid values: wer, cer, per", i, m))
		}
		if seen[m] {
			errs = append(errs, fmt.Errorf("eval.metrics[%d] %q is listed twice", i, m))
		}
		seen[m] = true
	}
	if cfg.Eval.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("eval.sample_rate %d must not be negative", cfg.Eval.SampleRate))
	}

	if t := cfg.Narrate.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("narrate.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Narrate.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("narrate.max_tokens %d must not be negative", cfg.Narrate.MaxTokens))
	}

	if cfg.Store.Driver != "" {
		if !cfg.Store.Driver.IsValid() {
			errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: postgres, sqlite", cfg.Store.Driver))
		}
		if cfg.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required when store.driver is %q", cfg.Store.Driver))
		}
	} else if cfg.Store.DSN != "" {
		errs = append(errs, errors.New("store.dsn is set but store.driver is empty"))
	}

	return errors.Join(errs...)
}

func validateEntry(kind, prefix string, e ProviderEntry) []error {
	if e.Name == "" {
		return nil
	}
	validateProviderName(kind, e.Name)

	var errs []error
	if e.Name == "whisper" && e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
	}
	if kind == "llm" && e.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", prefix))
	}
	if env, ok := apiKeyEnv[e.Name]; ok && e.APIKey == "" {
		slog.Warn("provider has no API key; set api_key or "+env, "provider", prefix, "name", e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptFloat extracts a numeric value from a provider Options map. YAML
// integers and floats are both accepted.
func OptFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
