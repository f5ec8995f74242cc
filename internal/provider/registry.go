// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// CONSTRUCTOR REGISTRY
// =============================================================================

// Constructor builds a provider instance from a resolved runtime config.
type Constructor func(cfg RuntimeConfig) Provider

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// RegisterConstructor binds an entry-point name to a constructor. Provider
// subpackages call this from init, so the full set is fixed at link time.
// Registering a duplicate name panics; that is a programming error, not a
// runtime condition.
func RegisterConstructor(entry string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[entry]; exists {
		panic("provider: duplicate constructor entry " + entry)
	}
	registry[entry] = fn
}

// New resolves an entry-point name and builds a provider from it. Unknown
// entry points are an error so a descriptor naming a typo'd or unlinked
// entry fails loudly instead of silently loading nothing.
func New(entry string, cfg RuntimeConfig) (Provider, error) {
	registryMu.RLock()
	fn, ok := registry[entry]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider entry point %q", entry)
	}
	return fn(cfg), nil
}

// HasEntry reports whether an entry-point name is registered.
func HasEntry(entry string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[entry]
	return ok
}

// Entries returns the registered entry-point names in sorted order.
func Entries() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
