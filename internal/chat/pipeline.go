// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs the message dispatch pipeline.
//
// Prompts are queued FIFO and processed by a single worker, so turns
// never interleave: each submitted prompt runs a full turn (ensure
// conversation, persist user message, stream the response, persist the
// assistant message, notify) before the next prompt starts. The queue is
// unbounded; submitting never blocks the caller.
package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/yat/internal/llm"
	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/storage"
)

// =============================================================================
// SINKS
// =============================================================================

// Sinks are the pipeline's frontend notifications. All callbacks are
// optional and are invoked from the worker goroutine.
type Sinks struct {
	// OnConversationCreated fires when a turn lazily created a
	// conversation.
	OnConversationCreated func(conv model.Conversation)

	// OnChunk fires for every streamed chunk with the accumulated
	// assistant content so far.
	OnChunk func(conversationID, accumulated string)

	// OnTurnComplete fires after the assistant message was persisted.
	OnTurnComplete func(conversationID string, assistant model.Message)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline owns the conversation state of one chat session and processes
// submitted prompts sequentially.
type Pipeline struct {
	manager *llm.Manager
	store   *storage.Store
	sinks   Sinks

	// streamTimeout bounds one streamed response, 0 meaning none.
	streamTimeout time.Duration

	mu      sync.Mutex
	queue   []string
	signal  chan struct{}
	running bool
	current string
	history []model.Message

	cancelMu      sync.Mutex
	cancelCurrent context.CancelFunc
}

// NewPipeline creates a pipeline. Start must be called to begin
// processing.
func NewPipeline(manager *llm.Manager, store *storage.Store, streamTimeout time.Duration, sinks Sinks) *Pipeline {
	return &Pipeline{
		manager:       manager,
		store:         store,
		sinks:         sinks,
		streamTimeout: streamTimeout,
		signal:        make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine. It returns immediately; the
// worker runs until ctx is done.
func (p *Pipeline) Start(ctx context.Context) {
	go p.worker(ctx)
}

// Submit queues a prompt for processing. Blank prompts are dropped.
// Submit never blocks; the queue is unbounded.
func (p *Pipeline) Submit(prompt string) {
	if prompt == "" {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, prompt)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// CancelCurrent aborts the in-flight stream, if any. The partial content
// received so far is still persisted by the running turn.
func (p *Pipeline) CancelCurrent() {
	p.cancelMu.Lock()
	defer p.cancelMu.Unlock()
	if p.cancelCurrent != nil {
		p.cancelCurrent()
	}
}

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// NewConversation resets the session. The next submitted prompt will
// lazily create a fresh conversation; resetting alone persists nothing.
func (p *Pipeline) NewConversation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = ""
	p.history = nil
}

// LoadConversation switches the session to a stored conversation and
// returns its messages. Loading the already-current conversation is a
// no-op returning the in-memory history.
func (p *Pipeline) LoadConversation(ctx context.Context, id string) ([]model.Message, error) {
	p.mu.Lock()
	if p.current == id {
		out := make([]model.Message, len(p.history))
		copy(out, p.history)
		p.mu.Unlock()
		return out, nil
	}
	p.mu.Unlock()

	if _, err := p.store.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := p.store.LoadMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = id
	p.history = msgs
	p.mu.Unlock()
	return msgs, nil
}

// ListConversations lists stored conversations newest-first.
func (p *Pipeline) ListConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	return p.store.ListConversations(ctx, limit)
}

// DeleteConversation removes a stored conversation. Deleting the current
// one also resets the session.
func (p *Pipeline) DeleteConversation(ctx context.Context, id string) error {
	if err := p.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	p.mu.Lock()
	if p.current == id {
		p.current = ""
		p.history = nil
	}
	p.mu.Unlock()
	return nil
}

// CurrentConversationID returns the current conversation id, "" when the
// session has no conversation yet.
func (p *Pipeline) CurrentConversationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// History returns a snapshot of the in-memory message history.
func (p *Pipeline) History() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Message, len(p.history))
	copy(out, p.history)
	return out
}

// Wait blocks until the queue is empty and no turn is running, or ctx is
// done. Intended for tests and shutdown.
func (p *Pipeline) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		idle := len(p.queue) == 0 && !p.running
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// =============================================================================
// WORKER
// =============================================================================

func (p *Pipeline) worker(ctx context.Context) {
	for {
		prompt, ok := p.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.signal:
				continue
			}
		}
		p.runTurn(ctx, prompt)
	}
}

func (p *Pipeline) pop() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	prompt := p.queue[0]
	p.queue = p.queue[1:]
	p.running = true
	return prompt, true
}

// runTurn processes one prompt end to end.
func (p *Pipeline) runTurn(ctx context.Context, prompt string) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	// 1. Ensure a conversation exists. Created lazily on first prompt.
	p.mu.Lock()
	conversationID := p.current
	p.mu.Unlock()

	if conversationID == "" {
		providerID, modelID := p.manager.Active()
		conv := model.NewConversation(prompt, providerID, modelID)
		if err := p.persistRetry(func() error { return p.store.CreateConversation(ctx, conv) }); err != nil {
			log.Printf("chat: failed to create conversation: %v", err)
			return
		}
		conversationID = conv.ID
		p.mu.Lock()
		p.current = conversationID
		p.mu.Unlock()
		if p.sinks.OnConversationCreated != nil {
			p.sinks.OnConversationCreated(conv)
		}
	}

	// 2. Persist the user message.
	userMsg := model.NewUserMessage(prompt)
	p.mu.Lock()
	p.history = append(p.history, userMsg)
	history := make([]model.Message, len(p.history))
	copy(history, p.history)
	p.mu.Unlock()

	if err := p.persistRetry(func() error { return p.store.SaveMessage(ctx, conversationID, userMsg) }); err != nil {
		log.Printf("chat: failed to persist user message: %v", err)
	}

	// 3. Stream the response, bounded by the stream timeout and
	// cancellable via CancelCurrent.
	turnCtx, cancel := p.turnContext(ctx)
	content := p.streamResponse(turnCtx, conversationID, history)
	cancel()
	p.clearCancel()

	// 4. Persist the assistant message, errors rendered inline.
	assistantMsg := model.NewAssistantMessage(content)
	p.mu.Lock()
	p.history = append(p.history, assistantMsg)
	p.mu.Unlock()

	if err := p.persistRetry(func() error { return p.store.SaveMessage(ctx, conversationID, assistantMsg) }); err != nil {
		log.Printf("chat: failed to persist assistant message: %v", err)
	}

	// 5. Notify.
	if p.sinks.OnTurnComplete != nil {
		p.sinks.OnTurnComplete(conversationID, assistantMsg)
	}
}

// streamResponse consumes the stream and returns the final assistant
// content. Errors become part of the content: a turn that produced
// nothing renders "Error: ...", a turn interrupted mid-stream keeps the
// partial text and appends "\n\n[Error: ...]".
func (p *Pipeline) streamResponse(ctx context.Context, conversationID string, history []model.Message) string {
	var content string
	for chunk := range p.manager.StreamChat(ctx, "", "", history) {
		if chunk.Err != nil {
			if content == "" {
				content = "Error: " + chunk.Err.Error()
			} else {
				content += "\n\n[Error: " + chunk.Err.Error() + "]"
			}
			log.Printf("chat: stream error: %v", chunk.Err)
			if p.sinks.OnChunk != nil {
				p.sinks.OnChunk(conversationID, content)
			}
			continue
		}
		content += chunk.Content
		if p.sinks.OnChunk != nil {
			p.sinks.OnChunk(conversationID, content)
		}
	}
	return content
}

func (p *Pipeline) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if p.streamTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, p.streamTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	p.cancelMu.Lock()
	p.cancelCurrent = cancel
	p.cancelMu.Unlock()
	return ctx, cancel
}

func (p *Pipeline) clearCancel() {
	p.cancelMu.Lock()
	p.cancelCurrent = nil
	p.cancelMu.Unlock()
}

// persistRetry runs a store write, retrying once on failure. Transient
// SQLite busy errors resolve on the second attempt; anything persistent
// is returned.
func (p *Pipeline) persistRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	log.Printf("chat: store write failed, retrying once: %v", err)
	time.Sleep(50 * time.Millisecond)
	return fn()
}
