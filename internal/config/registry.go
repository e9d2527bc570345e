package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/phoneval/internal/resilience"
	"github.com/MrWong99/phoneval/pkg/provider/llm"
	"github.com/MrWong99/phoneval/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
	stt map[string]func(ProviderEntry) (stt.Transcriber, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt: make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// LLMNames returns the registered LLM provider names in sorted order.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.llm)
}

// STTNames returns the registered transcriber names in sorted order.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.stt)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildLLM creates the configured LLM provider. With fallbacks configured
// the result is a [resilience.LLMFallback] over all of them. It returns nil,
// nil when no LLM is configured.
func (r *Registry) BuildLLM(p ProvidersConfig, fb resilience.FallbackConfig) (llm.Provider, error) {
	if p.LLM.Name == "" {
		return nil, nil
	}
	primary, err := r.CreateLLM(p.LLM)
	if err != nil {
		return nil, err
	}
	if len(p.LLMFallbacks) == 0 {
		return primary, nil
	}
	group := resilience.NewLLMFallback(primary, p.LLM.Name, fb)
	for i, e := range p.LLMFallbacks {
		prov, err := r.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("llm_fallbacks[%d]: %w", i, err)
		}
		group.AddFallback(e.Name, prov)
	}
	return group, nil
}

// BuildSTT creates the configured transcriber, wrapping fallbacks in a
// [resilience.STTFallback]. It returns nil, nil when no STT is configured.
func (r *Registry) BuildSTT(p ProvidersConfig, fb resilience.FallbackConfig) (stt.Transcriber, error) {
	if p.STT.Name == "" {
		return nil, nil
	}
	primary, err := r.CreateSTT(p.STT)
	if err != nil {
		return nil, err
	}
	if len(p.STTFallbacks) == 0 {
		return primary, nil
	}
	group := resilience.NewSTTFallback(primary, p.STT.Name, fb)
	for i, e := range p.STTFallbacks {
		tr, err := r.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("stt_fallbacks[%d]: %w", i, err)
		}
		group.AddFallback(e.Name, tr)
	}
	return group, nil
}
