// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/yat/internal/llm"
	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
	"github.com/jeranaias/yat/internal/storage"
)

// echoProvider answers with "echo: <last user message>" in two chunks.
type echoProvider struct {
	failWith error
	block    chan struct{} // when set, blocks mid-stream until closed or ctx done
}

func (e *echoProvider) Initialize(ctx context.Context) error { return nil }
func (e *echoProvider) CheckHealth(ctx context.Context) bool { return true }
func (e *echoProvider) Models(ctx context.Context) ([]model.ModelInfo, error) {
	return []model.ModelInfo{model.NewChatModel("echo-1", "Echo", "Echo", 8000)}, nil
}

func (e *echoProvider) StreamChat(ctx context.Context, modelID string, history []model.Message) <-chan provider.Chunk {
	out := make(chan provider.Chunk, 4)
	go func() {
		defer close(out)
		last := history[len(history)-1].Content
		out <- provider.Chunk{Content: "echo: "}
		if e.block != nil {
			select {
			case <-e.block:
			case <-ctx.Done():
				out <- provider.Chunk{Err: &provider.StreamError{Partial: "echo: ", Err: ctx.Err()}}
				return
			}
		}
		if e.failWith != nil {
			out <- provider.Chunk{Err: e.failWith}
			return
		}
		out <- provider.Chunk{Content: last}
	}()
	return out
}

func testPipeline(t *testing.T, p provider.Provider, sinks Sinks) (*Pipeline, *storage.Store, context.Context) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	manager := llm.NewManager()
	if p != nil {
		manager.Register("echo", p)
		if err := manager.SetActive("echo", "echo-1"); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pipe := NewPipeline(manager, store, 0, sinks)
	pipe.Start(ctx)
	return pipe, store, ctx
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("pipeline never went idle: %v", err)
	}
}

func TestTurnPersistsBothMessages(t *testing.T) {
	var chunks []string
	var completed []string
	pipe, store, ctx := testPipeline(t, &echoProvider{}, Sinks{
		OnChunk:        func(id, acc string) { chunks = append(chunks, acc) },
		OnTurnComplete: func(id string, msg model.Message) { completed = append(completed, msg.Content) },
	})

	pipe.Submit("hello world")
	waitIdle(t, pipe)

	convID := pipe.CurrentConversationID()
	if convID == "" {
		t.Fatal("conversation not created")
	}

	conv, err := store.GetConversation(ctx, convID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Title != "hello world" {
		t.Errorf("title = %q", conv.Title)
	}

	msgs, err := store.LoadMessages(ctx, convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hello world" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "echo: hello world" {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	if len(chunks) == 0 || chunks[len(chunks)-1] != "echo: hello world" {
		t.Errorf("chunk accumulation = %v", chunks)
	}
	if len(completed) != 1 || completed[0] != "echo: hello world" {
		t.Errorf("completed = %v", completed)
	}
}

func TestTurnWithoutProviderPersistsErrorText(t *testing.T) {
	pipe, store, ctx := testPipeline(t, nil, Sinks{})

	pipe.Submit("Hello")
	waitIdle(t, pipe)

	msgs, err := store.LoadMessages(ctx, pipe.CurrentConversationID())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].Content != "Error: No active provider selected." {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
}

func TestMidStreamErrorKeepsPartial(t *testing.T) {
	pipe, store, ctx := testPipeline(t, &echoProvider{failWith: errors.New("backend died")}, Sinks{})

	pipe.Submit("hi")
	waitIdle(t, pipe)

	msgs, _ := store.LoadMessages(ctx, pipe.CurrentConversationID())
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	want := "echo: \n\n[Error: backend died]"
	if msgs[1].Content != want {
		t.Errorf("assistant content = %q, want %q", msgs[1].Content, want)
	}
}

func TestPromptsProcessFIFO(t *testing.T) {
	pipe, store, ctx := testPipeline(t, &echoProvider{}, Sinks{})

	pipe.Submit("one")
	pipe.Submit("two")
	pipe.Submit("three")
	waitIdle(t, pipe)

	msgs, err := store.LoadMessages(ctx, pipe.CurrentConversationID())
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 6 {
		t.Fatalf("got %d messages, want 6", len(msgs))
	}
	wantUsers := []string{"one", "two", "three"}
	for i, want := range wantUsers {
		if msgs[i*2].Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i*2, msgs[i*2].Content, want)
		}
		if msgs[i*2+1].Content != "echo: "+want {
			t.Errorf("msgs[%d] = %q", i*2+1, msgs[i*2+1].Content)
		}
	}
}

func TestNewConversationIsLazy(t *testing.T) {
	pipe, store, ctx := testPipeline(t, &echoProvider{}, Sinks{})

	// Resetting without submitting persists nothing.
	pipe.NewConversation()
	list, err := store.ListConversations(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("conversations = %d, want 0", len(list))
	}

	pipe.Submit("first")
	waitIdle(t, pipe)
	firstID := pipe.CurrentConversationID()

	// Same session, second prompt reuses the conversation.
	pipe.Submit("second")
	waitIdle(t, pipe)
	if pipe.CurrentConversationID() != firstID {
		t.Error("second prompt must not create a new conversation")
	}

	// After a reset, the next prompt starts a fresh one.
	pipe.NewConversation()
	pipe.Submit("third")
	waitIdle(t, pipe)
	if pipe.CurrentConversationID() == firstID {
		t.Error("prompt after reset must create a new conversation")
	}

	list, _ = store.ListConversations(ctx, 0)
	if len(list) != 2 {
		t.Errorf("conversations = %d, want 2", len(list))
	}
}

func TestLoadAndDeleteConversation(t *testing.T) {
	pipe, _, ctx := testPipeline(t, &echoProvider{}, Sinks{})

	pipe.Submit("remember me")
	waitIdle(t, pipe)
	id := pipe.CurrentConversationID()

	pipe.NewConversation()
	msgs, err := pipe.LoadConversation(ctx, id)
	if err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "remember me" {
		t.Errorf("loaded = %+v", msgs)
	}
	if pipe.CurrentConversationID() != id {
		t.Error("load did not switch the session")
	}

	if err := pipe.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if pipe.CurrentConversationID() != "" {
		t.Error("deleting the current conversation must reset the session")
	}
	if _, err := pipe.LoadConversation(ctx, id); !errors.Is(err, storage.ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestCancelCurrentKeepsPartial(t *testing.T) {
	block := make(chan struct{})
	firstChunk := make(chan struct{}, 1)
	pipe, store, ctx := testPipeline(t, &echoProvider{block: block}, Sinks{
		OnChunk: func(id, acc string) {
			select {
			case firstChunk <- struct{}{}:
			default:
			}
		},
	})

	pipe.Submit("slow one")
	select {
	case <-firstChunk:
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk arrived")
	}

	pipe.CancelCurrent()
	waitIdle(t, pipe)

	msgs, _ := store.LoadMessages(ctx, pipe.CurrentConversationID())
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if !strings.HasPrefix(msgs[1].Content, "echo: ") || !strings.Contains(msgs[1].Content, "[Error:") {
		t.Errorf("cancelled content = %q", msgs[1].Content)
	}
}

func TestBlankPromptIgnored(t *testing.T) {
	pipe, store, ctx := testPipeline(t, &echoProvider{}, Sinks{})

	pipe.Submit("")
	waitIdle(t, pipe)

	list, _ := store.ListConversations(ctx, 0)
	if len(list) != 0 {
		t.Errorf("blank prompt created a conversation")
	}
}
