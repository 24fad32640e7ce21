// Package llm provides chat-completion clients for the model-assisted
// workflow parser. Two backends are supported: the native Ollama API and
// OpenAI-compatible endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider selects the chat backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai" // any OpenAI-compatible API
)

// Chatter is the capability the workflow parser needs: a single bounded
// system+user exchange returning the model's text.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// Options configures a Client.
type Options struct {
	Provider  Provider
	Model     string // e.g. "llama3.2" for Ollama, "gpt-4o-mini" for OpenAI
	OllamaURL string // default http://localhost:11434
	OpenAIURL string // default https://api.openai.com/v1
	APIKey    string
	Timeout   time.Duration // bound on one chat call, default 30s
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Provider:  ProviderOllama,
		Model:     "llama3.2",
		OllamaURL: "http://localhost:11434",
		OpenAIURL: "https://api.openai.com/v1",
		Timeout:   30 * time.Second,
	}
}

// Client is an HTTP chat-completion client.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// New creates a client for the configured provider.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.OllamaURL == "" {
		opts.OllamaURL = "http://localhost:11434"
	}
	if opts.OpenAIURL == "" {
		opts.OpenAIURL = "https://api.openai.com/v1"
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// Chat sends a system instruction plus user content and returns the model's
// reply. The call is bounded by both the client timeout and ctx; callers
// cancelling ctx abort the in-flight request.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	switch c.opts.Provider {
	case ProviderOllama:
		return c.chatOllama(ctx, system, user)
	case ProviderOpenAI:
		return c.chatOpenAI(ctx, system, user)
	default:
		return "", fmt.Errorf("unknown llm provider: %s", c.opts.Provider)
	}
}

func (c *Client) chatOllama(ctx context.Context, system, user string) (string, error) {
	url := c.opts.OllamaURL + "/api/chat"

	payload := map[string]interface{}{
		"model": c.opts.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.1,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse ollama response: %w", err)
	}

	return result.Message.Content, nil
}

func (c *Client) chatOpenAI(ctx context.Context, system, user string) (string, error) {
	if c.opts.APIKey == "" {
		return "", fmt.Errorf("llm api key not set")
	}

	url := c.opts.OpenAIURL + "/chat/completions"

	payload := map[string]interface{}{
		"model": c.opts.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.1,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse llm response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	return result.Choices[0].Message.Content, nil
}
