// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm routes chat traffic to registered providers.
//
// The manager owns the provider instances, tracks the active
// provider/model pair, aggregates model catalogs across providers, and
// shields callers from misbehaving backends: a provider that fails or
// panics mid-stream produces a terminal error chunk, never a crash or an
// empty channel.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// Sentinel errors surfaced as terminal chunks by StreamChat.
var (
	ErrNoActiveProvider = errors.New("No active provider selected.")
	ErrNoModelSelected  = errors.New("no model selected")
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager registers providers and routes chats to them. Only enabled
// providers are registered; disabled ones never reach the manager.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	order     []string

	activeProvider string
	activeModel    string

	// known caches the model ids seen in the last catalog fetch per
	// provider, used for cheap chat-time validation. Empty until the
	// first AllModels call.
	known map[string]map[string]bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]provider.Provider),
		known:     make(map[string]map[string]bool),
	}
}

// Register adds a provider under an id. The first registered provider
// becomes the active one; later registrations never steal the slot.
// Registering an id twice replaces the instance (used by hot reload).
func (m *Manager) Register(id string, p provider.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[id]; !exists {
		m.order = append(m.order, id)
	}
	m.providers[id] = p
	if m.activeProvider == "" {
		m.activeProvider = id
	}
}

// Unregister removes a provider. If it was active, the slot moves to the
// earliest remaining provider.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[id]; !exists {
		return
	}
	delete(m.providers, id)
	delete(m.known, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.activeProvider == id {
		m.activeProvider = ""
		m.activeModel = ""
		if len(m.order) > 0 {
			m.activeProvider = m.order[0]
		}
	}
}

// Get returns a registered provider.
func (m *Manager) Get(id string) (provider.Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	return p, ok
}

// IDs returns the registered provider ids in registration order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// SetActive selects the provider/model pair used when StreamChat gets no
// explicit pair.
func (m *Manager) SetActive(providerID, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerID]; !ok {
		return fmt.Errorf("unknown provider %q", providerID)
	}
	m.activeProvider = providerID
	m.activeModel = modelID
	return nil
}

// Active returns the active provider/model pair.
func (m *Manager) Active() (providerID, modelID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeProvider, m.activeModel
}

// =============================================================================
// MODEL AGGREGATION
// =============================================================================

// AllModels fetches every provider's catalog in parallel and concatenates
// the results in registration order. Each goroutine writes only its own
// slot, so a slow or failing provider cannot corrupt or block the others
// beyond the slowest fetch. Failures are logged and skipped.
func (m *Manager) AllModels(ctx context.Context) []model.ModelInfo {
	m.mu.RLock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	providers := make([]provider.Provider, len(order))
	for i, id := range order {
		providers[i] = m.providers[id]
	}
	m.mu.RUnlock()

	results := make([][]model.ModelInfo, len(order))
	var wg sync.WaitGroup
	for i := range order {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			models, err := providers[slot].Models(ctx)
			if err != nil {
				log.Printf("llm: failed to fetch models from %s: %v", order[slot], err)
				return
			}
			for j := range models {
				models[j].ProviderID = order[slot]
			}
			results[slot] = models
		}(i)
	}
	wg.Wait()

	var all []model.ModelInfo
	seen := make(map[string]map[string]bool, len(order))
	for i, id := range order {
		if results[i] == nil {
			continue
		}
		ids := make(map[string]bool, len(results[i]))
		for _, mi := range results[i] {
			ids[mi.ID] = true
		}
		seen[id] = ids
		all = append(all, results[i]...)
	}

	m.mu.Lock()
	for id, ids := range seen {
		m.known[id] = ids
	}
	m.mu.Unlock()

	return all
}

// =============================================================================
// CHAT ROUTING
// =============================================================================

// StreamChat routes a chat to a provider. Empty providerID or modelID
// fall back to the active pair. All failure modes surface as a single
// terminal error chunk on the returned channel; the channel always yields
// at least one chunk.
//
// The model id is validated lazily, at chat time, and only against the
// catalog cached by the last AllModels call. An unknown model is caught
// here when the cache can prove it; otherwise the backend's own error
// comes through the stream.
func (m *Manager) StreamChat(ctx context.Context, providerID, modelID string, history []model.Message) <-chan provider.Chunk {
	m.mu.RLock()
	if providerID == "" {
		providerID = m.activeProvider
	}
	if modelID == "" {
		modelID = m.activeModel
	}
	p, registered := m.providers[providerID]
	knownModels := m.known[providerID]
	m.mu.RUnlock()

	if providerID == "" || !registered {
		return terminal(ErrNoActiveProvider)
	}
	if modelID == "" {
		return terminal(ErrNoModelSelected)
	}
	if knownModels != nil && !knownModels[modelID] {
		return terminal(fmt.Errorf("%w: %q on provider %q", provider.ErrModelNotFound, modelID, providerID))
	}

	log.Printf("llm: stream_chat provider=%s model=%s", providerID, modelID)

	out := make(chan provider.Chunk, 16)
	go func() {
		defer close(out)
		defer func() {
			// A panicking provider must not take the process down.
			if r := recover(); r != nil {
				log.Printf("llm: provider %s panicked: %v", providerID, r)
				out <- provider.Chunk{Err: fmt.Errorf("provider %s panicked: %v", providerID, r)}
			}
		}()

		for chunk := range p.StreamChat(ctx, modelID, history) {
			select {
			case out <- chunk:
			case <-ctx.Done():
				out <- provider.Chunk{Err: ctx.Err()}
				return
			}
		}
	}()
	return out
}

// terminal builds a closed channel carrying exactly one error chunk.
func terminal(err error) <-chan provider.Chunk {
	ch := make(chan provider.Chunk, 1)
	ch <- provider.Chunk{Err: err}
	close(ch)
	return ch
}

// ModelChoices returns the aggregated catalog keyed for selection
// ("<providerID>|<modelID>" → display label), sorted by key.
func ModelChoices(models []model.ModelInfo) []Choice {
	choices := make([]Choice, 0, len(models))
	for i := range models {
		choices = append(choices, Choice{
			Key:   models[i].Key(),
			Label: fmt.Sprintf("%s (%s)", models[i].Name, models[i].Provider),
		})
	}
	sort.Slice(choices, func(i, j int) bool { return choices[i].Key < choices[j].Key })
	return choices
}

// Choice is one selectable model entry.
type Choice struct {
	Key   string
	Label string
}
