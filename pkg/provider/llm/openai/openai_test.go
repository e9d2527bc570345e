package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/phoneval/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "You are helpful."})
	if err != nil || sys.OfSystem == nil {
		t.Errorf("system: OfSystem=%v err=%v", sys.OfSystem, err)
	}
	user, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "Hello!"})
	if err != nil || user.OfUser == nil {
		t.Errorf("user: OfUser=%v err=%v", user.OfUser, err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "Hi there!"})
	if err != nil || asst.OfAssistant == nil {
		t.Errorf("assistant: OfAssistant=%v err=%v", asst.OfAssistant, err)
	}
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "table"}},
		Temperature:  0.7,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(params.Messages))
	}
	if params.Temperature.Value != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", params.Temperature.Value)
	}
	if params.MaxCompletionTokens.Value != 256 {
		t.Errorf("MaxCompletionTokens = %v, want 256", params.MaxCompletionTokens.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestComplete_HTTP(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini-2024-07-18",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "The child missed final consonants."},
				"finish_reason": "stop",
				"logprobs": null
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 8, "total_tokens": 128}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "narrate"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "The child missed final consonants." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("Model = %q", resp.Model)
	}
	if resp.Usage.TotalTokens != 128 {
		t.Errorf("TotalTokens = %d, want 128", resp.Usage.TotalTokens)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "narrate"}},
	})
	if err == nil {
		t.Fatal("expected error from 401 response")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}
	if got := p.Capabilities(); got.ContextWindow != 128_000 {
		t.Errorf("ContextWindow = %d, want 128000", got.ContextWindow)
	}
	n, err := p.CountTokens([]llm.Message{{Role: llm.RoleUser, Content: "Hello world"}})
	if err != nil || n != 7 {
		t.Errorf("CountTokens = %d, %v; want 7", n, err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o", WithOrganization("org-123"), WithTimeout(5e9)); err != nil {
		t.Errorf("unexpected error with valid options: %v", err)
	}
}
