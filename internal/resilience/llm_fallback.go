package resilience

import (
	"context"

	"github.com/MrWong99/phoneval/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Group exposes the underlying group for health reporting.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// Complete sends req to the first healthy provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's estimate. Token counting is local and does
// not participate in failover.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities returns the smallest limits across all entries, so a prompt
// sized for the group fits whichever backend ends up serving it.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for i, e := range f.group.entries {
		c := e.value.Capabilities()
		if i == 0 {
			caps = c
			continue
		}
		caps.ContextWindow = min(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = min(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}
