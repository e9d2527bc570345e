package narrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/phoneval/internal/observe"
	"github.com/MrWong99/phoneval/pkg/provider/llm"
	llmmock "github.com/MrWong99/phoneval/pkg/provider/llm/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func sampleRequest() Request {
	return Request{
		Task:       TaskWord,
		Bank:       []string{"about", "from"},
		Reference:  "AH B AW T F R AH M",
		Hypothesis: "AH B AH T F AH N",
		Tables:     "| Word | Correct? |\n| about | ❌ |\n",
		Rates:      []Rate{{Name: "PER", Value: 0.375}, {Name: "Word error rate", Value: 1}},
	}
}

func roomyProvider(content string) *llmmock.Provider {
	return &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: content, Model: "gpt-4o-mini", Usage: llm.Usage{TotalTokens: 120}},
		TokenCount:        200,
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384},
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()
	n := New(roomyProvider(""))
	req := n.Prompt(sampleRequest())

	if req.SystemPrompt != SystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}
	body := req.Messages[0].Content
	for _, want := range []string{
		"WORD BANK: about, from",
		"GROUND TRUTH PHONEMES (REF): AH B AW T F R AH M",
		"PREDICTED PHONEMES (HYP): AH B AH T F AH N",
		"- PER: 37.5%",
		"- Word error rate: 100.0%",
		"| about | ❌ |",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("user message missing %q:\n%s", want, body)
		}
	}
}

func TestPrompt_LetterTaskAndOptions(t *testing.T) {
	t.Parallel()
	n := New(roomyProvider(""), WithTemperature(0.2), WithMaxTokens(300))
	req := sampleRequest()
	req.Task = TaskLetter
	creq := n.Prompt(req)
	if creq.Temperature != 0.2 || creq.MaxTokens != 300 {
		t.Errorf("temperature/max tokens = %v/%d", creq.Temperature, creq.MaxTokens)
	}
	if !strings.Contains(creq.Messages[0].Content, "LETTER BANK:") {
		t.Error("letter task does not mention the letter bank")
	}
}

func TestNarrate(t *testing.T) {
	t.Parallel()
	p := roomyProvider("  The phoneme error rate was 37.5%, and every word (100%) had an error.  ")
	n := New(p)

	got, err := n.Narrate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if !strings.HasPrefix(got.Text, "The phoneme") || strings.HasSuffix(got.Text, " ") {
		t.Errorf("text = %q, want trimmed", got.Text)
	}
	if got.Model != "gpt-4o-mini" || got.Usage.TotalTokens != 120 {
		t.Errorf("narration = %+v", got)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Req.SystemPrompt != SystemPrompt {
		t.Fatalf("calls = %+v", calls)
	}
	if len(p.CountTokensCalls) != 1 || len(p.CountTokensCalls[0]) != 2 {
		t.Errorf("CountTokens saw %v, want system+user messages", p.CountTokensCalls)
	}
}

func TestNarrate_Errors(t *testing.T) {
	t.Parallel()
	errBackend := errors.New("backend down")

	tests := []struct {
		name      string
		provider  *llmmock.Provider
		wantErr   error
		wantCalls int
		wantNarr  bool
	}{
		{
			name: "prompt too large",
			provider: &llmmock.Provider{
				TokenCount:        4000,
				ModelCapabilities: llm.ModelCapabilities{ContextWindow: 4096},
			},
			wantErr: ErrPromptTooLarge,
		},
		{
			name: "count tokens fails",
			provider: &llmmock.Provider{
				CountTokensErr: errBackend,
			},
			wantErr: errBackend,
		},
		{
			name: "complete fails",
			provider: &llmmock.Provider{
				CompleteErr:       errBackend,
				ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8192},
			},
			wantErr:   errBackend,
			wantCalls: 1,
		},
		{
			name:      "empty content",
			provider:  roomyProvider("   "),
			wantErr:   ErrEmptyNarration,
			wantCalls: 1,
		},
		{
			name:      "wrong rate quoted",
			provider:  roomyProvider("The error rate was 45%."),
			wantErr:   ErrInconsistentNarration,
			wantCalls: 1,
			wantNarr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := New(tt.provider, WithMaxTokens(200))
			got, err := n.Narrate(context.Background(), sampleRequest())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if c := len(tt.provider.Calls()); c != tt.wantCalls {
				t.Errorf("Complete called %d times, want %d", c, tt.wantCalls)
			}
			if tt.wantNarr != (got.Text != "") {
				t.Errorf("narration text = %q", got.Text)
			}
		})
	}
}

func TestNarrate_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	n := New(roomyProvider("Rate: 37.5%"), WithMetrics(m, "openai"))
	if _, err := n.Narrate(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("Narrate: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name == "phoneval.llm.duration" {
				found = met.Data.(metricdata.Histogram[float64]).DataPoints[0].Count == 1
			}
		}
	}
	if !found {
		t.Error("llm duration not recorded")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()
	rates := []Rate{{Name: "WER", Value: 19.0 / 30.0}}

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"exact", "WER = 19 / 30 ≈ 63.3%", false},
		{"rounded", "about 63% of words", false},
		{"complement", "an accuracy of 36.7 %", false},
		{"no numbers", "The child dropped final consonants.", false},
		{"wrong", "WER is 50%", true},
		{"one of two wrong", "63.3% of words, 12% of vowels", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Verify(tt.text, rates)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Verify(%q) = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInconsistentNarration) {
				t.Errorf("err = %v, want ErrInconsistentNarration", err)
			}
		})
	}
}

func TestVerify_ListsMismatches(t *testing.T) {
	t.Parallel()
	err := Verify("first 10% then 20%", []Rate{{Name: "PER", Value: 0.5}})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"10%", "20%", "PER=50.0%"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if Verify("nothing quoted", nil) != nil {
		t.Error("Verify without percentages failed")
	}
}
