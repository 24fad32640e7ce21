package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Stream bool `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request: %v", err)
		}
		if req.Stream {
			t.Error("streaming must be disabled")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "hello from ollama"},
		})
	}))
	defer srv.Close()

	c := New(Options{Provider: ProviderOllama, Model: "llama3.2", OllamaURL: srv.URL})
	got, err := c.Chat(context.Background(), "be brief", "hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "hello from ollama" {
		t.Errorf("reply = %q", got)
	}
}

func TestChatOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello from openai"}},
			},
		})
	}))
	defer srv.Close()

	c := New(Options{Provider: ProviderOpenAI, Model: "gpt-4o-mini", OpenAIURL: srv.URL, APIKey: "sk-test"})
	got, err := c.Chat(context.Background(), "be brief", "hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got != "hello from openai" {
		t.Errorf("reply = %q", got)
	}
}

func TestChatOpenAIRequiresKey(t *testing.T) {
	c := New(Options{Provider: ProviderOpenAI, Model: "gpt-4o-mini"})
	if _, err := c.Chat(context.Background(), "s", "u"); err == nil {
		t.Error("expected error without api key")
	}
}

func TestChatBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{Provider: ProviderOllama, OllamaURL: srv.URL})
	if _, err := c.Chat(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for backend failure")
	}
}
