package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL     = "https://api.anthropic.com"
	anthropicModel       = "claude-3-sonnet-20240229"
	anthropicVersion     = "2023-06-01"
	anthropicHTTPTimeout = 90 * time.Second
)

// AnthropicClient wraps the Anthropic messages API for hook analysis.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption customizes the Anthropic client.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicBaseURL overrides the default API base (useful for tests/mocks).
func WithAnthropicBaseURL(base string) AnthropicOption {
	return func(c *AnthropicClient) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithAnthropicHTTPClient overrides the default HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(c *AnthropicClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewAnthropicClient constructs a messages-API client.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	client := &AnthropicClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    anthropicBaseURL,
		httpClient: &http.Client{Timeout: anthropicHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeHooks asks the model for hook candidates over the transcript.
func (c *AnthropicClient) AnalyzeHooks(ctx context.Context, tr *Transcript, target int) ([]Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("analyze hooks: api key required")
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return nil, fmt.Errorf("analyze hooks: empty transcript")
	}

	encoded, err := json.Marshal(anthropicRequest{
		Model:       anthropicModel,
		MaxTokens:   1000,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "user", Content: hookSystemPrompt + "\n\n" + buildHookPrompt(tr, target)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze hooks: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("analyze hooks: request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("analyze hooks: read body: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, payload); err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: api error: %s", ErrBadResponse,
			strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrBadResponse)
	}

	return parseCandidates(parsed.Content[0].Text)
}
