// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mock implements an offline provider that echoes the last user
// message word by word. It needs no network or credentials and exists for
// demos and for exercising the chat pipeline in tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// wordDelay simulates network pacing between streamed words.
const wordDelay = 50 * time.Millisecond

// Provider is the offline echo provider.
type Provider struct {
	cfg provider.RuntimeConfig

	// Delay between words, overridable so tests run instantly.
	Delay time.Duration
}

// New creates a mock provider.
func New(cfg provider.RuntimeConfig) *Provider {
	return &Provider{cfg: cfg, Delay: wordDelay}
}

// Initialize always succeeds; the mock has nothing to set up.
func (p *Provider) Initialize(ctx context.Context) error { return nil }

// CheckHealth always reports healthy.
func (p *Provider) CheckHealth(ctx context.Context) bool { return true }

// Models returns the two fake models.
func (p *Provider) Models(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{
		model.NewChatModel("mock-gpt-4", "Mock GPT-4", "Mock", 8000),
		model.NewChatModel("mock-claude", "Mock Claude", "Mock", 100000),
	}, nil
}

// StreamChat streams a canned response word by word, each word followed by
// a space, mirroring how token streams arrive in pieces.
func (p *Provider) StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan provider.Chunk {
	out := make(chan provider.Chunk, 16)

	go func() {
		defer close(out)

		lastUser := ""
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == model.RoleUser {
				lastUser = history[i].Content
				break
			}
		}
		response := fmt.Sprintf("This is a mock response from %s. Your message was: '%s'", modelID, lastUser)

		for _, word := range strings.Fields(response) {
			select {
			case out <- provider.Chunk{Content: word + " "}:
			case <-ctx.Done():
				out <- provider.Chunk{Err: &provider.StreamError{Err: ctx.Err()}}
				return
			}
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				out <- provider.Chunk{Err: &provider.StreamError{Err: ctx.Err()}}
				return
			}
		}
	}()

	return out
}

func init() {
	provider.RegisterConstructor("mock", func(cfg provider.RuntimeConfig) provider.Provider {
		return New(cfg)
	})
}
