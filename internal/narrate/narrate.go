// Package narrate asks a language model to describe an evaluation report in
// prose.
//
// The model never computes anything. The [Narrator] sends the tables rendered
// by package report together with the computed error rates, tells the model
// those numbers are final, and rejects any narration that quotes a different
// rate ([ErrInconsistentNarration]).
package narrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/internal/report"
	"github.com/MrWong99/phoneval/pkg/provider/llm"
)

var (
	// ErrPromptTooLarge is returned when the prompt does not fit the
	// provider's context window.
	ErrPromptTooLarge = errors.New("narrate: prompt exceeds model context window")

	// ErrInconsistentNarration is returned when the narration quotes a
	// percentage that matches none of the computed rates.
	ErrInconsistentNarration = errors.New("narrate: narration contradicts computed rates")

	// ErrEmptyNarration is returned when the model produced no text.
	ErrEmptyNarration = errors.New("narrate: empty narration")
)

const defaultTemperature = 0.7

// SystemPrompt sets the clinician persona for every request.
const SystemPrompt = "You are a medical professional at UCSF Multitudes who is analyzing K-2 children's speech to assess their language proficiency."

// Task identifies the reading exercise a report belongs to.
type Task string

const (
	// TaskWord is the word reading exercise (WRE).
	TaskWord Task = "word"
	// TaskLetter is letter naming fluency (LNF).
	TaskLetter Task = "letter"
)

// Rate is a named, already computed error rate.
type Rate struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Request is everything the narrator needs about one evaluated recording.
type Request struct {
	Task Task

	// Bank is the word or letter bank the child was asked to read.
	Bank []string

	// Reference and Hypothesis are the phone strings that were aligned.
	Reference  string
	Hypothesis string

	// Tables is the rendered Markdown report.
	Tables string

	// Rates are the authoritative numbers; the narration may only quote
	// these (or their complements).
	Rates []Rate
}

// Narration is the model's description of a report.
type Narration struct {
	Text    string        `json:"text"`
	Model   string        `json:"model,omitempty"`
	Usage   llm.Usage     `json:"usage"`
	Latency time.Duration `json:"latency"`
}

// Option is a functional option for configuring a [Narrator].
type Option func(*Narrator)

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(temp float64) Option {
	return func(n *Narrator) {
		n.temperature = temp
	}
}

// WithMaxTokens caps the length of the narration. Zero leaves the provider
// default.
func WithMaxTokens(limit int) Option {
	return func(n *Narrator) {
		n.maxTokens = limit
	}
}

// WithMetrics records narration latency and provider outcomes on m under the
// given provider name.
func WithMetrics(m *observe.Metrics, provider string) Option {
	return func(n *Narrator) {
		n.metrics = m
		n.providerName = provider
	}
}

// Narrator produces prose for evaluation reports through an [llm.Provider].
// It is safe for concurrent use.
type Narrator struct {
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	metrics      *observe.Metrics
	providerName string
}

// New returns a [Narrator] backed by provider.
func New(provider llm.Provider, opts ...Option) *Narrator {
	n := &Narrator{
		llm:          provider,
		temperature:  defaultTemperature,
		providerName: "llm",
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Prompt builds the completion request for req without sending it.
func (n *Narrator) Prompt(req Request) llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userMessage(req)}},
		Temperature:  n.temperature,
		MaxTokens:    n.maxTokens,
	}
}

func userMessage(req Request) string {
	unit := "word"
	if req.Task == TaskLetter {
		unit = "letter"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarise this %s reading assessment for a teacher in one or two short paragraphs.\n\n", unit)
	fmt.Fprintf(&sb, "%s BANK: %s\n", strings.ToUpper(unit), strings.Join(req.Bank, ", "))
	fmt.Fprintf(&sb, "GROUND TRUTH PHONEMES (REF): %s\n", req.Reference)
	fmt.Fprintf(&sb, "PREDICTED PHONEMES (HYP): %s\n\n", req.Hypothesis)
	sb.WriteString("The alignment below was computed exactly. Do not recount, re-align or recompute anything.\n")
	if len(req.Rates) > 0 {
		sb.WriteString("The error rates are final; quote them exactly as given:\n")
		for _, r := range req.Rates {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Name, report.Percent(r.Value))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(req.Tables))
	sb.WriteString("\n\nDescribe which sounds the child struggled with and any patterns across ")
	sb.WriteString(unit)
	sb.WriteString("s (substitutions, dropped final consonants, vowel confusions).")
	return sb.String()
}

// Narrate sends the report to the model and verifies the answer against
// req.Rates. When verification fails the narration is returned together
// with an error wrapping [ErrInconsistentNarration].
func (n *Narrator) Narrate(ctx context.Context, req Request) (Narration, error) {
	creq := n.Prompt(req)

	tokens, err := n.llm.CountTokens(creq.AllMessages())
	if err != nil {
		return Narration{}, fmt.Errorf("narrate: count tokens: %w", err)
	}
	caps := n.llm.Capabilities()
	if window := caps.ContextWindow; window > 0 && tokens+creq.MaxTokens > window {
		return Narration{}, fmt.Errorf("%w: %d prompt tokens, window %d", ErrPromptTooLarge, tokens, window)
	}

	ctx, span := observe.StartSpan(ctx, "narrate.Narrate")
	defer span.End()

	start := time.Now()
	resp, err := n.llm.Complete(ctx, creq)
	latency := time.Since(start)
	n.record(ctx, latency, err)
	if err != nil {
		return Narration{}, fmt.Errorf("narrate: complete: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Narration{}, ErrEmptyNarration
	}

	out := Narration{
		Text:    strings.TrimSpace(resp.Content),
		Model:   resp.Model,
		Usage:   resp.Usage,
		Latency: latency,
	}
	observe.Logger(ctx).Debug("narration received",
		"task", req.Task,
		"model", out.Model,
		"total_tokens", out.Usage.TotalTokens,
		"latency", latency)

	if err := Verify(out.Text, req.Rates); err != nil {
		return out, err
	}
	return out, nil
}

func (n *Narrator) record(ctx context.Context, latency time.Duration, err error) {
	if n.metrics == nil {
		return
	}
	n.metrics.LLMDuration.Record(ctx, latency.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		n.metrics.RecordProviderError(ctx, n.providerName, "llm")
	}
	n.metrics.RecordProviderRequest(ctx, n.providerName, "llm", status)
}
