// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openaic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// =============================================================================
// CLIENT CONSTANTS
// =============================================================================

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000

	// healthTimeout bounds the probe issued by CheckHealth.
	healthTimeout = 5 * time.Second
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is a streaming chat provider for one OpenAI-compatible backend.
type Client struct {
	cfg     provider.RuntimeConfig
	profile Profile
	api     *openai.Client
}

// NewClient builds an uninitialized client. Initialize must succeed before
// Models or StreamChat are used.
func NewClient(cfg provider.RuntimeConfig, profile Profile) *Client {
	return &Client{cfg: cfg, profile: profile}
}

// Initialize constructs the underlying API client. Cloud vendors fail here
// when no credential was resolved; keyless backends substitute the
// profile's placeholder token.
func (c *Client) Initialize(ctx context.Context) error {
	key := c.cfg.APIKey
	if key == "" {
		if c.profile.RequiresKey {
			return fmt.Errorf("%s: %w", c.cfg.Name, provider.ErrMissingAPIKey)
		}
		key = c.profile.PlaceholderKey
	}

	apiCfg := openai.DefaultConfig(key)
	apiCfg.BaseURL = c.profile.BaseURL
	if c.cfg.BaseURL != "" {
		apiCfg.BaseURL = c.cfg.BaseURL
	}

	c.api = openai.NewClientWithConfig(apiCfg)
	return nil
}

// Models returns the vendor catalog. Profiles with a fixed catalog answer
// locally; the rest list models from the backend and sort them by id.
func (c *Client) Models(ctx context.Context) ([]model.ModelInfo, error) {
	if c.api == nil {
		return nil, provider.ErrNotInitialized
	}

	if c.profile.Catalog != nil {
		out := make([]model.ModelInfo, len(c.profile.Catalog))
		copy(out, c.profile.Catalog)
		return out, nil
	}

	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", c.cfg.Name, err)
	}

	models := make([]model.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, model.NewChatModel(m.ID, m.ID, c.profile.DisplayName, c.profile.ListedContextLength))
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// StreamChat streams a completion over the chat completions endpoint. The
// returned channel always yields at least one chunk before closing.
func (c *Client) StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan provider.Chunk {
	out := make(chan provider.Chunk, 16)

	if c.api == nil {
		out <- provider.Chunk{Err: provider.ErrNotInitialized}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		req := openai.ChatCompletionRequest{
			Model:       modelID,
			Messages:    toWireMessages(history),
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		}

		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			out <- provider.Chunk{Err: &provider.StreamError{Err: err}}
			return
		}
		defer stream.Close()

		var partial string
		emitted := false
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				// Prefer the context error when cancellation raced the read.
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				out <- provider.Chunk{Err: &provider.StreamError{Partial: partial, Err: err}}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			partial += delta
			emitted = true
			select {
			case out <- provider.Chunk{Content: delta}:
			case <-ctx.Done():
				out <- provider.Chunk{Err: &provider.StreamError{Partial: partial, Err: ctx.Err()}}
				return
			}
		}

		// At-least-one-chunk guarantee for empty completions.
		if !emitted {
			out <- provider.Chunk{Content: ""}
		}
	}()

	return out
}

// CheckHealth reports whether the backend is usable. Fixed-catalog vendors
// are healthy once initialized; listing vendors probe the models endpoint.
func (c *Client) CheckHealth(ctx context.Context) bool {
	if c.api == nil {
		return false
	}
	if c.profile.Catalog != nil {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := c.api.ListModels(probeCtx)
	return err == nil
}

// toWireMessages converts normalized history to the wire format.
func toWireMessages(history []model.Message) []openai.ChatCompletionMessage {
	wire := make([]openai.ChatCompletionMessage, len(history))
	for i, msg := range history {
		wire[i] = openai.ChatCompletionMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		}
	}
	return wire
}
