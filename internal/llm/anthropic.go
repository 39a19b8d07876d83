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
	"github.com/orkio/orkio/pkg/models"
)

const anthropicVersion = "2023-06-01"

// AnthropicDriver implements ChatDriver against the Anthropic Messages
// API. System messages are lifted out of the history into the top-level
// system field, as the API requires.
type AnthropicDriver struct {
	apiKey    string
	baseURL   string
	maxTokens int
	client    *http.Client
}

// AnthropicOption configures the Anthropic chat driver.
type AnthropicOption func(*AnthropicDriver)

// WithAnthropicBaseURL points the driver at a custom endpoint.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(d *AnthropicDriver) { d.baseURL = baseURL }
}

// WithAnthropicMaxTokens caps the completion length.
func WithAnthropicMaxTokens(maxTokens int) AnthropicOption {
	return func(d *AnthropicDriver) { d.maxTokens = maxTokens }
}

// NewAnthropicDriver creates an Anthropic chat driver.
func NewAnthropicDriver(apiKey string, opts ...AnthropicOption) *AnthropicDriver {
	d := &AnthropicDriver{
		apiKey:    apiKey,
		baseURL:   "https://api.anthropic.com",
		maxTokens: 4096,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *AnthropicDriver) Kind() string { return "anthropic" }

type anthropicChatRequest struct {
	Model       string               `json:"model"`
	System      string               `json:"system,omitempty"`
	Messages    []models.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature,omitempty"`
}

type anthropicChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends the message history and returns the model's reply.
func (d *AnthropicDriver) Complete(ctx context.Context, req contracts.ChatRequest) (*contracts.ChatResponse, error) {
	var system string
	messages := make([]models.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, m)
	}

	body, err := json.Marshal(anthropicChatRequest{
		Model:       req.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   d.maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var anthResp anthropicChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	for _, c := range anthResp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	model := anthResp.Model
	if model == "" {
		model = req.Model
	}
	return &contracts.ChatResponse{
		Content:      content,
		Model:        model,
		InputTokens:  anthResp.Usage.InputTokens,
		OutputTokens: anthResp.Usage.OutputTokens,
	}, nil
}

// HealthCheck validates credentials with a minimal 1-token completion.
func (d *AnthropicDriver) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	body, _ := json.Marshal(anthropicChatRequest{
		Model:     "claude-3-5-haiku-20241022",
		Messages:  []models.ChatMessage{{Role: "user", Content: "Say OK"}},
		MaxTokens: 1,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, string(respBody))
	}
	return nil
}
