package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orkio/orkio/pkg/contracts"
)

// OllamaDriver implements ChatDriver against a local Ollama instance
// through its OpenAI-compatible endpoint. No authentication.
type OllamaDriver struct {
	baseURL string
	client  *http.Client
}

// OllamaOption configures the Ollama chat driver.
type OllamaOption func(*OllamaDriver)

// WithOllamaBaseURL overrides the default http://localhost:11434.
func WithOllamaBaseURL(baseURL string) OllamaOption {
	return func(d *OllamaDriver) { d.baseURL = baseURL }
}

// NewOllamaDriver creates an Ollama chat driver.
func NewOllamaDriver(opts ...OllamaOption) *OllamaDriver {
	d := &OllamaDriver{
		baseURL: "http://localhost:11434",
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OllamaDriver) Kind() string { return "ollama" }

// Complete sends the message history and returns the model's reply.
func (d *OllamaDriver) Complete(ctx context.Context, req contracts.ChatRequest) (*contracts.ChatResponse, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("ollama: response carried no choices")
	}

	model := oaiResp.Model
	if model == "" {
		model = req.Model
	}
	return &contracts.ChatResponse{
		Content:      oaiResp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  oaiResp.Usage.PromptTokens,
		OutputTokens: oaiResp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies Ollama is running by listing installed models.
func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}
	return nil
}
