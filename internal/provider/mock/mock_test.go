// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

func TestStreamChatEchoesLastUserMessage(t *testing.T) {
	p := New(provider.RuntimeConfig{ID: "mock", Name: "Mock"})
	p.Delay = 0

	history := []model.Message{
		model.NewUserMessage("first"),
		model.NewAssistantMessage("reply"),
		model.NewUserMessage("second question"),
	}

	var content string
	for chunk := range p.StreamChat(context.Background(), "mock-gpt-4", history) {
		if chunk.Err != nil {
			t.Fatalf("unexpected error chunk: %v", chunk.Err)
		}
		content += chunk.Content
	}

	if !strings.Contains(content, "mock-gpt-4") {
		t.Errorf("response should name the model: %q", content)
	}
	if !strings.Contains(content, "'second question'") {
		t.Errorf("response should echo the last user message: %q", content)
	}
	if strings.Contains(content, "first") {
		t.Errorf("response echoed the wrong message: %q", content)
	}
}

func TestStreamChatCancellation(t *testing.T) {
	p := New(provider.RuntimeConfig{ID: "mock", Name: "Mock"})

	ctx, cancel := context.WithCancel(context.Background())
	ch := p.StreamChat(ctx, "mock-claude", []model.Message{model.NewUserMessage("hi")})

	// Take one chunk then cancel mid-stream.
	<-ch
	cancel()

	var sawErr bool
	for chunk := range ch {
		if chunk.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("cancelled stream must end with a terminal error chunk")
	}
}

func TestModels(t *testing.T) {
	p := New(provider.RuntimeConfig{})
	models, err := p.Models(context.Background())
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].ID != "mock-gpt-4" || models[1].ID != "mock-claude" {
		t.Errorf("models = %q, %q", models[0].ID, models[1].ID)
	}
}

func TestLifecycle(t *testing.T) {
	p := New(provider.RuntimeConfig{})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !p.CheckHealth(context.Background()) {
		t.Error("mock provider must always be healthy")
	}
}
