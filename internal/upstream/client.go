// Package upstream talks to the OpenAI-compatible completion provider.
//
// Two transports on purpose: the primary chat completion streams over raw
// HTTP so the gateway can re-frame the SSE wire format itself, while the
// non-streaming extraction call goes through the openai-go SDK.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lampstand/companion-gateway/internal/config"
)

// ErrNoAPIKey is returned when the provider credential is not configured.
var ErrNoAPIKey = errors.New("upstream API key not configured")

// StatusError is a non-success response from the provider before any
// streaming started.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams describes one streaming completion request.
type ChatParams struct {
	System    string
	History   []Message
	Question  string
	MaxTokens int
}

// Client is the completion provider client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	sdk        openai.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for the streaming path.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates a provider client. The streaming transport bounds how
// long the provider may take to start responding, but not the stream itself.
func NewClient(cfg config.UpstreamConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: config.UpstreamHeaderTimeout,
			},
		},
		sdk: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey returns true if a provider credential is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// StreamChat opens a streaming completion and returns the raw SSE body.
// The caller owns the returned body and must close it. Connection failures
// and non-2xx statuses are returned as errors before any byte is consumed,
// so the caller can still answer with a normal error body.
func (c *Client) StreamChat(ctx context.Context, params ChatParams) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	messages := make([]Message, 0, len(params.History)+2)
	messages = append(messages, Message{Role: "system", Content: params.System})
	messages = append(messages, params.History...)
	messages = append(messages, Message{Role: "user", Content: params.Question})

	payload := struct {
		Model     string    `json:"model"`
		Messages  []Message `json:"messages"`
		MaxTokens int       `json:"max_tokens"`
		Stream    bool      `json:"stream"`
	}{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: params.MaxTokens,
		Stream:    true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, config.MaxErrorBodyLogLen))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return resp.Body, nil
}

// Complete runs a non-streaming completion and returns the answer text.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Completer is the non-streaming completion seam used by the extraction
// pipeline; satisfied by *Client.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

var _ Completer = (*Client)(nil)
