package main

import (
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phoneval/internal/config"
	"github.com/MrWong99/phoneval/pkg/provider/llm"
	"github.com/MrWong99/phoneval/pkg/provider/llm/anyllm"
	"github.com/MrWong99/phoneval/pkg/provider/llm/openai"
	"github.com/MrWong99/phoneval/pkg/provider/stt"
	"github.com/MrWong99/phoneval/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK so organisation, timeout and
	// retry settings are honoured.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if secs, ok := config.OptFloat(entry.Options, "timeout"); ok {
			opts = append(opts, openai.WithTimeout(time.Duration(secs*float64(time.Second))))
		}
		if n, ok := config.OptFloat(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(int(n)))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// The remaining vendors share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, vendor := range anyllm.Vendors() {
		if vendor == "openai" {
			continue
		}
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(vendor, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if temp, ok := config.OptFloat(entry.Options, "temperature"); ok {
			opts = append(opts, whisper.WithTemperature(temp))
		}
		t, err := whisper.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return t, nil
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "stt", reg.STTNames())
}
