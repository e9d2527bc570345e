package config_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/phoneval/internal/config"
	"github.com/MrWong99/phoneval/internal/resilience"
	"github.com/MrWong99/phoneval/pkg/provider/llm"
	llmmock "github.com/MrWong99/phoneval/pkg/provider/llm/mock"
	"github.com/MrWong99/phoneval/pkg/provider/stt"
	sttmock "github.com/MrWong99/phoneval/pkg/provider/stt/mock"
)

const sampleYAML = `
log_level: debug

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.2
  stt:
    name: whisper
    base_url: http://localhost:8080
    options:
      language: en
      temperature: 0.2

eval:
  concurrency: 8
  metrics: [PER, wer]

narrate:
  temperature: 0.3
  max_tokens: 800

lexicon: lexicons/wre.yaml

store:
  driver: sqlite
  dsn: phoneval.db

telemetry:
  metrics_addr: ":9090"
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" || cfg.Providers.LLM.APIKey != "sk-test" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	if got := config.OptString(cfg.Providers.STT.Options, "language"); got != "en" {
		t.Errorf("stt language = %q", got)
	}
	if got, ok := config.OptFloat(cfg.Providers.STT.Options, "temperature"); !ok || got != 0.2 {
		t.Errorf("stt temperature = %v, %v", got, ok)
	}
	if cfg.Eval.Concurrency != 8 || !slices.Equal(cfg.Eval.Metrics, []string{"per", "wer"}) {
		t.Errorf("eval = %+v", cfg.Eval)
	}
	if cfg.Eval.SampleRate != 16000 || cfg.Eval.Language != "en" {
		t.Errorf("eval defaults not applied: %+v", cfg.Eval)
	}
	if cfg.Narrate.Temperature == nil || *cfg.Narrate.Temperature != 0.3 || cfg.Narrate.MaxTokens != 800 {
		t.Errorf("narrate = %+v", cfg.Narrate)
	}
	if cfg.Lexicon != "lexicons/wre.yaml" {
		t.Errorf("lexicon = %q", cfg.Lexicon)
	}
	if cfg.Store.Driver != config.StoreSQLite || cfg.Store.DSN != "phoneval.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Telemetry.MetricsAddr != ":9090" {
		t.Errorf("metrics_addr = %q", cfg.Telemetry.MetricsAddr)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Eval.Concurrency != 4 || !slices.Equal(cfg.Eval.Metrics, []string{"per"}) {
		t.Errorf("eval = %+v", cfg.Eval)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestApplyDefaults_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("GROQ_API_KEY", "gsk-from-env")

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		LLMFallbacks: []config.ProviderEntry{{Name: "groq", Model: "llama-3.1-8b"}, {Name: "ollama", Model: "llama3.2"}},
	}}
	config.ApplyDefaults(cfg)

	if got := cfg.Providers.LLM.APIKey; got != "sk-from-env" {
		t.Errorf("openai key = %q", got)
	}
	if got := cfg.Providers.LLMFallbacks[0].APIKey; got != "gsk-from-env" {
		t.Errorf("groq key = %q", got)
	}
	if got := cfg.Providers.LLMFallbacks[1].APIKey; got != "" {
		t.Errorf("ollama key = %q, want empty", got)
	}
}

func TestApplyDefaults_ExplicitKeyWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "openai", APIKey: "sk-yaml"},
	}}
	config.ApplyDefaults(cfg)
	if cfg.Providers.LLM.APIKey != "sk-yaml" {
		t.Errorf("api key = %q, want the YAML value", cfg.Providers.LLM.APIKey)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
}

func TestRegistry_CreatePassesEntry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{}, nil
	})

	entry := config.ProviderEntry{Name: "fake", Model: "m1", BaseURL: "http://x"}
	if _, err := reg.CreateLLM(entry); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got.Model != "m1" || got.BaseURL != "http://x" {
		t.Errorf("factory saw %+v", got)
	}
	if !slices.Equal(reg.LLMNames(), []string{"fake"}) || !slices.Equal(reg.STTNames(), []string{"fake"}) {
		t.Errorf("names = %v / %v", reg.LLMNames(), reg.STTNames())
	}
}

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{ResetTimeout: time.Minute}}
}

func TestRegistry_BuildLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })

	none, err := reg.BuildLLM(config.ProvidersConfig{}, fallbackConfig())
	if none != nil || err != nil {
		t.Fatalf("BuildLLM(empty) = %v, %v", none, err)
	}

	single, err := reg.BuildLLM(config.ProvidersConfig{LLM: config.ProviderEntry{Name: "primary"}}, fallbackConfig())
	if err != nil || single != llm.Provider(primary) {
		t.Fatalf("BuildLLM(single) = %v, %v; want the primary itself", single, err)
	}

	p, err := reg.BuildLLM(config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "primary"},
		LLMFallbacks: []config.ProviderEntry{{Name: "backup"}},
	}, fallbackConfig())
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("Complete = %v, %v; want failover to backup", resp, err)
	}

	_, err = reg.BuildLLM(config.ProvidersConfig{
		LLM:          config.ProviderEntry{Name: "primary"},
		LLMFallbacks: []config.ProviderEntry{{Name: "missing"}},
	}, fallbackConfig())
	if !errors.Is(err, config.ErrProviderNotRegistered) || !strings.Contains(err.Error(), "llm_fallbacks[0]") {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry_BuildSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("a", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Err: errors.New("down")}, nil
	})
	reg.RegisterSTT("b", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Default: "AH B AW T"}, nil
	})

	tr, err := reg.BuildSTT(config.ProvidersConfig{
		STT:          config.ProviderEntry{Name: "a"},
		STTFallbacks: []config.ProviderEntry{{Name: "b"}},
	}, fallbackConfig())
	if err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	out, err := tr.Transcribe(context.Background(), stt.Audio{Name: "s.wav"})
	if err != nil || out.Text != "AH B AW T" {
		t.Errorf("Transcribe = %q, %v", out.Text, err)
	}
}
