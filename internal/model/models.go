// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL CAPABILITIES
// =============================================================================

// Capability describes a feature supported by a model.
type Capability string

const (
	CapabilityChat      Capability = "chat"
	CapabilityVision    Capability = "vision"
	CapabilityEmbedding Capability = "embedding"
)

// =============================================================================
// MODEL INFO
// =============================================================================

// ModelInfo describes a single model exposed by a provider.
//
// ModelInfo is ephemeral: it is refetched per session or per refresh and
// never persisted. Only the chosen model id is written to disk. A model id
// is unique within one provider but NOT globally unique, so consumers must
// carry the (ProviderID, ID) pair.
type ModelInfo struct {
	// ID is the vendor-specific model identifier (e.g. "gpt-4o-mini").
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Provider is the display name of the owning backend (e.g. "OpenAI").
	Provider string `json:"provider"`

	// ProviderID is the registry id of the owning provider. It is injected
	// by the LLM manager during fan-out so callers know which provider to
	// route a chat through.
	ProviderID string `json:"provider_id,omitempty"`

	// ContextLength is the model's context window in tokens (0 = unknown).
	ContextLength int `json:"context_length,omitempty"`

	// Capabilities lists the features the model supports. Every chat model
	// carries at least CapabilityChat.
	Capabilities []Capability `json:"capabilities,omitempty"`

	// SupportsStreaming reports whether the model streams incremental output.
	SupportsStreaming bool `json:"supports_streaming"`
}

// NewChatModel creates a ModelInfo for a streaming chat model.
func NewChatModel(id, name, provider string, contextLength int) ModelInfo {
	return ModelInfo{
		ID:                id,
		Name:              name,
		Provider:          provider,
		ContextLength:     contextLength,
		Capabilities:      []Capability{CapabilityChat},
		SupportsStreaming: true,
	}
}

// HasCapability reports whether the model supports the given capability.
func (m *ModelInfo) HasCapability(c Capability) bool {
	for _, cap := range m.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// Key returns the provider-qualified selection key ("<providerID>|<modelID>")
// used by model dropdowns and the persisted last-model setting.
func (m *ModelInfo) Key() string {
	return m.ProviderID + "|" + m.ID
}
