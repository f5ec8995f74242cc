// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// stubProvider is a scriptable in-memory provider.
type stubProvider struct {
	models    []model.ModelInfo
	modelsErr error
	chunks    []string
	streamErr error
	panics    bool
}

func (s *stubProvider) Initialize(ctx context.Context) error { return nil }
func (s *stubProvider) CheckHealth(ctx context.Context) bool { return true }

func (s *stubProvider) Models(ctx context.Context) ([]model.ModelInfo, error) {
	if s.modelsErr != nil {
		return nil, s.modelsErr
	}
	out := make([]model.ModelInfo, len(s.models))
	copy(out, s.models)
	return out, nil
}

func (s *stubProvider) StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan provider.Chunk {
	if s.panics {
		panic("stub exploded")
	}
	ch := make(chan provider.Chunk, len(s.chunks)+1)
	for _, c := range s.chunks {
		ch <- provider.Chunk{Content: c}
	}
	if s.streamErr != nil {
		ch <- provider.Chunk{Err: s.streamErr}
	}
	close(ch)
	return ch
}

func chatModels(provider string, ids ...string) []model.ModelInfo {
	out := make([]model.ModelInfo, len(ids))
	for i, id := range ids {
		out[i] = model.NewChatModel(id, id, provider, 8000)
	}
	return out
}

func drain(ch <-chan provider.Chunk) (content string, errs []error) {
	for chunk := range ch {
		if chunk.Err != nil {
			errs = append(errs, chunk.Err)
			continue
		}
		content += chunk.Content
	}
	return content, errs
}

func TestFirstRegisteredBecomesActive(t *testing.T) {
	m := NewManager()
	m.Register("mockA", &stubProvider{})
	m.Register("mockB", &stubProvider{})

	active, _ := m.Active()
	if active != "mockA" {
		t.Errorf("active = %q, want mockA", active)
	}

	// Re-registering does not steal the slot either.
	m.Register("mockB", &stubProvider{})
	if active, _ = m.Active(); active != "mockA" {
		t.Errorf("active after re-register = %q, want mockA", active)
	}
}

func TestAllModelsTagsAndOrders(t *testing.T) {
	m := NewManager()
	m.Register("alpha", &stubProvider{models: chatModels("Alpha", "a1", "a2")})
	m.Register("beta", &stubProvider{models: chatModels("Beta", "b1")})

	models := m.AllModels(context.Background())
	if len(models) != 3 {
		t.Fatalf("got %d models, want 3", len(models))
	}
	// Registration order preserved despite parallel fetch.
	if models[0].ID != "a1" || models[1].ID != "a2" || models[2].ID != "b1" {
		t.Errorf("order = %q %q %q", models[0].ID, models[1].ID, models[2].ID)
	}
	for _, mi := range models[:2] {
		if mi.ProviderID != "alpha" {
			t.Errorf("ProviderID = %q, want alpha", mi.ProviderID)
		}
	}
	if models[2].Key() != "beta|b1" {
		t.Errorf("Key = %q", models[2].Key())
	}
}

func TestAllModelsSkipsFailures(t *testing.T) {
	m := NewManager()
	m.Register("bad", &stubProvider{modelsErr: errors.New("unreachable")})
	m.Register("good", &stubProvider{models: chatModels("Good", "g1")})

	models := m.AllModels(context.Background())
	if len(models) != 1 || models[0].ID != "g1" {
		t.Errorf("models = %+v, want only g1", models)
	}
}

func TestStreamChatNoProvider(t *testing.T) {
	m := NewManager()

	_, errs := drain(m.StreamChat(context.Background(), "", "", nil))
	if len(errs) != 1 {
		t.Fatalf("expected one terminal chunk, got %d", len(errs))
	}
	if !errors.Is(errs[0], ErrNoActiveProvider) {
		t.Errorf("err = %v, want ErrNoActiveProvider", errs[0])
	}
}

func TestStreamChatNoModel(t *testing.T) {
	m := NewManager()
	m.Register("mockA", &stubProvider{chunks: []string{"hi"}})

	_, errs := drain(m.StreamChat(context.Background(), "", "", nil))
	if len(errs) != 1 || !errors.Is(errs[0], ErrNoModelSelected) {
		t.Errorf("errs = %v, want ErrNoModelSelected", errs)
	}
}

func TestStreamChatFallsBackToActivePair(t *testing.T) {
	m := NewManager()
	m.Register("mockA", &stubProvider{chunks: []string{"Hello ", "world"}})
	if err := m.SetActive("mockA", "m1"); err != nil {
		t.Fatal(err)
	}

	content, errs := drain(m.StreamChat(context.Background(), "", "", nil))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if content != "Hello world" {
		t.Errorf("content = %q", content)
	}
}

func TestStreamChatLazyModelValidation(t *testing.T) {
	m := NewManager()
	m.Register("mockA", &stubProvider{models: chatModels("Mock", "real-model"), chunks: []string{"ok"}})

	// Before any catalog fetch the manager cannot prove a model unknown,
	// so the chat goes through to the backend.
	content, errs := drain(m.StreamChat(context.Background(), "mockA", "mystery", nil))
	if len(errs) != 0 || content != "ok" {
		t.Errorf("pre-fetch chat: content=%q errs=%v", content, errs)
	}

	m.AllModels(context.Background())

	// Now the cache can prove "mystery" unknown.
	_, errs = drain(m.StreamChat(context.Background(), "mockA", "mystery", nil))
	if len(errs) != 1 || !errors.Is(errs[0], provider.ErrModelNotFound) {
		t.Errorf("errs = %v, want ErrModelNotFound", errs)
	}

	content, errs = drain(m.StreamChat(context.Background(), "mockA", "real-model", nil))
	if len(errs) != 0 || content != "ok" {
		t.Errorf("valid model chat: content=%q errs=%v", content, errs)
	}
}

func TestStreamChatPanicRecovery(t *testing.T) {
	m := NewManager()
	m.Register("boom", &stubProvider{panics: true})

	_, errs := drain(m.StreamChat(context.Background(), "boom", "m1", nil))
	if len(errs) != 1 {
		t.Fatalf("expected one terminal chunk, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "panicked") {
		t.Errorf("err = %v", errs[0])
	}
}

func TestStreamChatForwardsProviderErrors(t *testing.T) {
	cause := errors.New("backend down")
	m := NewManager()
	m.Register("mockA", &stubProvider{chunks: []string{"part"}, streamErr: cause})

	content, errs := drain(m.StreamChat(context.Background(), "mockA", "m1", nil))
	if content != "part" {
		t.Errorf("content = %q", content)
	}
	if len(errs) != 1 || !errors.Is(errs[0], cause) {
		t.Errorf("errs = %v", errs)
	}
}

func TestUnregisterMovesActiveSlot(t *testing.T) {
	m := NewManager()
	m.Register("mockA", &stubProvider{})
	m.Register("mockB", &stubProvider{})

	m.Unregister("mockA")
	active, _ := m.Active()
	if active != "mockB" {
		t.Errorf("active = %q, want mockB", active)
	}

	m.Unregister("mockB")
	if active, _ = m.Active(); active != "" {
		t.Errorf("active = %q, want empty", active)
	}
}

func TestSetActiveUnknownProvider(t *testing.T) {
	m := NewManager()
	if err := m.SetActive("ghost", "m1"); err == nil {
		t.Error("SetActive must reject unknown providers")
	}
}

func TestModelChoices(t *testing.T) {
	models := chatModels("Mock", "b", "a")
	for i := range models {
		models[i].ProviderID = "mock"
	}
	choices := ModelChoices(models)
	if len(choices) != 2 {
		t.Fatalf("got %d choices", len(choices))
	}
	if choices[0].Key != "mock|a" || choices[1].Key != "mock|b" {
		t.Errorf("keys = %q, %q", choices[0].Key, choices[1].Key)
	}
	if !strings.Contains(choices[0].Label, "(Mock)") {
		t.Errorf("label = %q", choices[0].Label)
	}
}
