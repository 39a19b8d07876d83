package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header = %q", got)
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Olá!"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	d := NewOpenAIDriver("sk-test", WithOpenAIBaseURL(srv.URL))
	resp, err := d.Complete(context.Background(), contracts.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []models.ChatMessage{{Role: "user", Content: "oi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Olá!" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Fatalf("token counts = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenAICompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewOpenAIDriver("sk-bad", WithOpenAIBaseURL(srv.URL))
	_, err := d.Complete(context.Background(), contracts.ChatRequest{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestAnthropicLiftsSystemMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var req anthropicChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.System != "Você é um assistente." {
			t.Errorf("system = %q", req.System)
		}
		for _, m := range req.Messages {
			if m.Role == "system" {
				t.Error("system message leaked into the messages array")
			}
		}

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg-1",
			"model": "claude-3-5-haiku-20241022",
			"content": []map[string]any{
				{"type": "text", "text": "Claro, "},
				{"type": "text", "text": "posso ajudar."},
			},
			"usage": map[string]any{"input_tokens": 20, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	d := NewAnthropicDriver("sk-ant", WithAnthropicBaseURL(srv.URL))
	resp, err := d.Complete(context.Background(), contracts.ChatRequest{
		Model: "claude-3-5-haiku-20241022",
		Messages: []models.ChatMessage{
			{Role: "system", Content: "Você é um assistente."},
			{Role: "user", Content: "pode ajudar?"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Claro, posso ajudar." {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	d := NewOllamaDriver()
	r.Register("ollama", d)

	got, err := r.Get("ollama")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != "ollama" {
		t.Fatalf("kind = %q", got.Kind())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if names := r.List(); len(names) != 1 || names[0] != "ollama" {
		t.Fatalf("list = %v", names)
	}
}
