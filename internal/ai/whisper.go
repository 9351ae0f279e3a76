package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	openAIBaseURL       = "https://api.openai.com/v1"
	whisperModel        = "whisper-1"
	whisperHTTPTimeout  = 5 * time.Minute
	// OpenAI rejects uploads over 25 MB; stay under it with headroom.
	maxUploadBytes int64 = 23 * 1024 * 1024
)

// WhisperClient wraps the OpenAI audio transcription API.
type WhisperClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// WhisperOption customizes the Whisper client.
type WhisperOption func(*WhisperClient)

// WithWhisperBaseURL overrides the default API base (useful for tests/mocks).
func WithWhisperBaseURL(base string) WhisperOption {
	return func(c *WhisperClient) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithWhisperHTTPClient overrides the default HTTP client.
func WithWhisperHTTPClient(client *http.Client) WhisperOption {
	return func(c *WhisperClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewWhisperClient constructs a transcription client.
func NewWhisperClient(apiKey string, opts ...WhisperOption) *WhisperClient {
	client := &WhisperClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    openAIBaseURL,
		httpClient: &http.Client{Timeout: whisperHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads an audio file and returns timestamped spans.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("transcribe: api key required")
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: stat audio: %w", err)
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d byte upload limit",
			ErrSegmentTooLarge, info.Size(), maxUploadBytes)
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("transcribe: read audio: %w", err)
	}
	_ = form.WriteField("model", whisperModel)
	_ = form.WriteField("response_format", "verbose_json")
	_ = form.WriteField("temperature", "0.2")
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("transcribe: request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

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
		return nil, fmt.Errorf("transcribe: read body: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, payload); err != nil {
		return nil, err
	}

	var parsed whisperResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	tr := &Transcript{Text: parsed.Text}
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		tr.Segments = append(tr.Segments, Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	return tr, nil
}

// classifyStatus maps HTTP failures onto the shared sentinel errors.
func classifyStatus(status int, body []byte) error {
	switch {
	case status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http 429", ErrRateLimited)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: http 413", ErrSegmentTooLarge)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d", ErrServiceUnavailable, status)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrBadResponse, status,
			strings.TrimSpace(truncate(string(body), 200)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
