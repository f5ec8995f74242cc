// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/yat/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Sentinel errors for easy checking.
var (
	// ErrNotInitialized is returned by operations invoked before a
	// successful Initialize.
	ErrNotInitialized = errors.New("provider not initialized")

	// ErrMissingAPIKey is returned by Initialize when a cloud provider has
	// no API key available in its runtime config.
	ErrMissingAPIKey = errors.New("api key not configured")

	// ErrModelNotFound is returned when a chat is requested against a model
	// id the provider does not expose.
	ErrModelNotFound = errors.New("model not found")
)

// StreamError wraps an error that occurred mid-stream, preserving the
// content received before the failure so callers can persist a partial
// response.
type StreamError struct {
	Partial string // Content received before the error
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAM CHUNK
// =============================================================================

// Chunk is one unit of a streamed chat response.
//
// Exactly one field is meaningful: a content chunk carries text in Content
// with a nil Err, and an error chunk carries a non-nil Err. An error chunk
// is always terminal; the channel is closed immediately after it. Consumers
// branch on Err, never on the shape of the content string.
type Chunk struct {
	Content string
	Err     error
}

// IsErr reports whether the chunk is a terminal error chunk.
func (c Chunk) IsErr() bool {
	return c.Err != nil
}

// =============================================================================
// PROVIDER CONTRACT
// =============================================================================

// Provider is the interface every LLM backend implements.
//
// StreamChat returns a receive-only channel that yields at least one chunk
// before closing, even on immediate failure, so consumers never distinguish
// "failed" from "succeeded with empty output" by channel emptiness. The
// channel is closed by the provider when the stream ends for any reason.
// Cancelling ctx stops the stream; the provider then emits a terminal error
// chunk wrapping ctx.Err() and closes the channel.
type Provider interface {
	// Initialize prepares the provider for use (client construction,
	// credential checks). It must be called before Models or StreamChat.
	Initialize(ctx context.Context) error

	// Models returns the models this provider currently exposes. The result
	// is ephemeral; callers refetch rather than cache across sessions.
	Models(ctx context.Context) ([]model.ModelInfo, error)

	// StreamChat streams a completion for the given history against the
	// given model id.
	StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan Chunk

	// CheckHealth reports whether the backend is reachable and usable.
	CheckHealth(ctx context.Context) bool
}

// =============================================================================
// RUNTIME CONFIG
// =============================================================================

// RuntimeConfig is the resolved configuration handed to a provider
// constructor. It carries values only; where a credential came from (env
// var, config file) is the config store's concern and is already resolved
// by the time a constructor sees it.
type RuntimeConfig struct {
	// ID is the registry id of the provider instance (e.g. "openai").
	ID string

	// Name is the display name (e.g. "OpenAI").
	Name string

	// APIKey is the resolved credential, empty for keyless backends.
	APIKey string

	// BaseURL overrides the vendor default endpoint when non-empty.
	BaseURL string

	// Settings carries provider-specific options from the descriptor and
	// the provider config store (e.g. "host" for Ollama).
	Settings map[string]string
}

// Setting returns the named setting or the given fallback when absent
// or empty.
func (c RuntimeConfig) Setting(key, fallback string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return fallback
}
