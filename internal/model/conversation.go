// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// TitleMaxRunes is the maximum title length derived from the first user
// prompt of a conversation. Longer prompts are ellipsized.
const TitleMaxRunes = 30

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the metadata row for one chat thread.
//
// Conversations are created lazily: clicking "new chat" alone never creates
// one, only the first submitted prompt does. UpdatedAt is bumped on every
// message append so recency listings stay correct.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ProviderID string    `json:"provider_id"`
	ModelID    string    `json:"model_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewConversation creates a conversation bound to the given provider/model
// pair, with a fresh unique id and a title derived from the first prompt.
func NewConversation(firstPrompt, providerID, modelID string) Conversation {
	now := time.Now()
	return Conversation{
		ID:         uuid.NewString(),
		Title:      DeriveTitle(firstPrompt),
		ProviderID: providerID,
		ModelID:    modelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DeriveTitle builds a conversation title from the first user prompt.
// Prompts longer than TitleMaxRunes runes keep their first TitleMaxRunes
// runes and gain an ellipsis. Rune-based so multi-byte input is never split.
func DeriveTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes]) + "..."
	}
	return prompt
}

// Touch bumps the updated-at timestamp.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
}
