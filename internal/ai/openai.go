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
	chatModel       = "gpt-4"
	chatHTTPTimeout = 90 * time.Second
)

// OpenAIClient wraps the OpenAI chat completion API for hook analysis.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// OpenAIOption customizes the OpenAI client.
type OpenAIOption func(*OpenAIClient)

// WithOpenAIBaseURL overrides the default API base (useful for tests/mocks).
func WithOpenAIBaseURL(base string) OpenAIOption {
	return func(c *OpenAIClient) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithOpenAIHTTPClient overrides the default HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewOpenAIClient constructs a chat-completion client.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	client := &OpenAIClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    openAIBaseURL,
		httpClient: &http.Client{Timeout: chatHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeHooks asks the model for hook candidates over the transcript.
func (c *OpenAIClient) AnalyzeHooks(ctx context.Context, tr *Transcript, target int) ([]Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("analyze hooks: api key required")
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return nil, fmt.Errorf("analyze hooks: empty transcript")
	}

	encoded, err := json.Marshal(chatRequest{
		Model: chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: hookSystemPrompt},
			{Role: "user", Content: buildHookPrompt(tr, target)},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze hooks: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("analyze hooks: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	var completion chatResponse
	if err := json.Unmarshal(payload, &completion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if completion.Error != nil {
		return nil, fmt.Errorf("%w: api error: %s", ErrBadResponse,
			strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrBadResponse)
	}

	return parseCandidates(completion.Choices[0].Message.Content)
}
