// Package llm defines the Provider interface for text-generation backends.
//
// phoneval only uses an LLM to narrate an evaluation report that has already
// been computed and rendered; the provider never sees raw audio and never
// decides an error rate. A provider wraps a remote or local model API (e.g.,
// OpenAI, Anthropic, or a local Ollama instance) behind one request/response
// call so the narrator does not couple to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// Counts are in the model's native token unit and may differ between
// providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction. Providers without
	// a dedicated system field prepend it as a [RoleSystem] message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the user and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// AllMessages returns the system prompt, if any, followed by Messages. It is
// the message list a provider should count tokens for.
func (r CompletionRequest) AllMessages() []Message {
	out := make([]Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	return append(out, r.Messages...)
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Model is the model that actually served the request, when the backend
	// reports it.
	Model string

	Usage Usage
}

// ModelCapabilities describes static limits of a model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that messages would consume in
	// the model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the underlying model. The
	// result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// EstimateTokens approximates the token count of messages at four bytes per
// token plus a fixed per-message overhead for role and formatting.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}
