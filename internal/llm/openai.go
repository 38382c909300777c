package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions backend.
type OpenAIConfig struct {
	// Name identifies the backend ("primary", "openai-fallback", ...).
	Name string
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Model is the default model for requests that do not specify one.
	Model string
	// Timeout bounds a single attempt. Zero means 60s.
	Timeout time.Duration
	// Temperature and MaxTokens are defaults applied when the request
	// leaves them unset.
	Temperature float64
	MaxTokens   int
}

// OpenAIBackend speaks the OpenAI-compatible /chat/completions protocol,
// which covers OpenAI itself plus Ollama, vLLM, and most hosted gateways.
type OpenAIBackend struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIBackend constructs a backend for one chat-completions endpoint.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("llm: backend %q: base URL is required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return b.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate implements Backend. Failures are returned as *Error with the
// retryable flag set from the HTTP status or transport condition.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	messages := make([]chatMessage, 0, 2)
	if req.Context != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Context})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	temp := b.cfg.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := b.cfg.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       b.cfg.Model,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, &Error{Provider: b.cfg.Name, Message: "encode request: " + err.Error(), Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: b.cfg.Name, Message: "build request: " + err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &Error{
			Provider:  b.cfg.Name,
			Message:   "request failed: " + err.Error(),
			Retryable: isTransientNetErr(err),
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &Error{
			Provider:  b.cfg.Name,
			Message:   fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Provider: b.cfg.Name, Message: "decode response: " + err.Error(), Retryable: true, Cause: err}
	}
	if len(out.Choices) == 0 {
		return nil, &Error{Provider: b.cfg.Name, Message: "no choices in response", Retryable: true}
	}

	model := out.Model
	if model == "" {
		model = b.cfg.Model
	}
	return &Response{
		Content:    out.Choices[0].Message.Content,
		Provider:   b.cfg.Name,
		Model:      model,
		TokensUsed: out.Usage.TotalTokens,
		Latency:    time.Since(start),
	}, nil
}

// Health implements Backend with a minimal one-token round-trip.
func (b *OpenAIBackend) Health(ctx context.Context) error {
	one := 1
	zero := 0.0
	_, err := b.Generate(ctx, Request{Prompt: "ping", MaxTokens: &one, Temperature: &zero})
	return err
}

// retryableStatus classifies HTTP status codes: 429 and 5xx warrant another
// round, remaining 4xx are fatal (auth, bad request, content policy,
// context window).
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}

// isTransientNetErr reports whether a transport error is worth retrying:
// deadlines, timeouts, and connection-level failures.
func isTransientNetErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// http.Client wraps timeouts in url.Error with a text we cannot type
	// on; treat remaining transport errors as transient.
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "Client.Timeout") ||
		strings.Contains(s, "EOF")
}
