// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package anthropic implements the provider for Anthropic's Messages API.
//
// Anthropic does not expose an OpenAI-compatible endpoint, so this client
// speaks the native wire format: system prompts travel in a dedicated
// request field rather than the message list, and streamed output arrives
// as named SSE events instead of bare data lines.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// =============================================================================
// CLIENT CONSTANTS
// =============================================================================

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	defaultTemperature = 0.7
	defaultMaxTokens   = 2000

	// requestsPerSecond throttles outbound calls so bursty UI actions
	// (model refresh plus chat submit) stay under the API rate limit.
	requestsPerSecond = 5
)

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// streamEvent covers the event payloads this client cares about. Delta text
// arrives on content_block_delta events; error events carry a typed message.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a streaming chat provider for the Anthropic Messages API.
type Client struct {
	cfg     provider.RuntimeConfig
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	initialized bool
}

// NewClient builds an uninitialized client.
func NewClient(cfg provider.RuntimeConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{}, // streaming; timeouts come from the request context
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// Initialize validates the credential. The Messages API has no cheap
// unauthenticated probe, so this checks presence only; a bad key surfaces
// on the first request.
func (c *Client) Initialize(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%s: %w", c.cfg.Name, provider.ErrMissingAPIKey)
	}
	c.initialized = true
	return nil
}

// Models returns the fixed Anthropic catalog. The vendor has no public
// model listing endpoint usable with a plain API key.
func (c *Client) Models(ctx context.Context) ([]model.ModelInfo, error) {
	if !c.initialized {
		return nil, provider.ErrNotInitialized
	}
	return []model.ModelInfo{
		model.NewChatModel("claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", "Anthropic", 200000),
		model.NewChatModel("claude-3-opus-20240229", "Claude 3 Opus", "Anthropic", 200000),
	}, nil
}

// CheckHealth reports whether the provider is usable.
func (c *Client) CheckHealth(ctx context.Context) bool {
	return c.initialized
}

// StreamChat streams a completion over the Messages API. The returned
// channel always yields at least one chunk before closing.
func (c *Client) StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan provider.Chunk {
	out := make(chan provider.Chunk, 16)

	if !c.initialized {
		out <- provider.Chunk{Err: provider.ErrNotInitialized}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		if err := c.streamMessages(ctx, modelID, history, out); err != nil {
			out <- provider.Chunk{Err: err}
		}
	}()

	return out
}

// streamMessages issues the request and pumps delta text into out. Errors
// are returned (not sent) so the caller emits exactly one terminal chunk.
func (c *Client) streamMessages(ctx context.Context, modelID string, history []model.Message, out chan<- provider.Chunk) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &provider.StreamError{Err: err}
	}

	reqBody := buildRequest(modelID, history)
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return &provider.StreamError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return &provider.StreamError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return &provider.StreamError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxChunkSize))
		return &provider.StreamError{Err: decodeAPIError(resp.StatusCode, body)}
	}

	return c.processStream(ctx, resp.Body, out)
}

// processStream reads SSE events until message_stop or stream end.
func (c *Client) processStream(ctx context.Context, body io.Reader, out chan<- provider.Chunk) error {
	reader := NewSSEReader(body)

	var partial string
	emitted := false
	for {
		select {
		case <-ctx.Done():
			return &provider.StreamError{Partial: partial, Err: ctx.Err()}
		default:
		}

		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return &provider.StreamError{Partial: partial, Err: err}
		}

		var event streamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Skip malformed events
			continue
		}

		switch eventType {
		case "content_block_delta":
			if event.Delta.Text == "" {
				continue
			}
			partial += event.Delta.Text
			emitted = true
			select {
			case out <- provider.Chunk{Content: event.Delta.Text}:
			case <-ctx.Done():
				return &provider.StreamError{Partial: partial, Err: ctx.Err()}
			}
		case "error":
			return &provider.StreamError{
				Partial: partial,
				Err:     fmt.Errorf("anthropic %s: %s", event.Error.Type, event.Error.Message),
			}
		case "message_stop":
			if !emitted {
				out <- provider.Chunk{Content: ""}
			}
			return nil
		}
		// ping, message_start, content_block_start, message_delta: ignored
	}

	if !emitted {
		out <- provider.Chunk{Content: ""}
	}
	return nil
}

// buildRequest converts normalized history into a Messages API request,
// routing system messages into the dedicated field. When several system
// messages exist the last one wins, matching how the history is built.
func buildRequest(modelID string, history []model.Message) messagesRequest {
	req := messagesRequest{
		Model:       modelID,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      true,
	}
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			req.System = msg.Content
			continue
		}
		req.Messages = append(req.Messages, wireMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	return req
}

// decodeAPIError turns a non-200 response into a readable error.
func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("anthropic API error (HTTP %d, %s): %s", status, parsed.Error.Type, parsed.Error.Message)
	}
	return fmt.Errorf("anthropic API error: HTTP %d", status)
}

func init() {
	provider.RegisterConstructor("anthropic", func(cfg provider.RuntimeConfig) provider.Provider {
		return NewClient(cfg)
	})
}
