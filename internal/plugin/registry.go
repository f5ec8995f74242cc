// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plugin discovers and loads provider plugins from descriptor
// files.
//
// A plugin is a TOML descriptor in the plugins directory naming a
// compile-time registered constructor entry point. The registry never
// scans types or executes foreign code; a descriptor that names an
// unlinked entry point fails to load with a per-plugin error and the rest
// of the set is unaffected. Descriptor files whose name starts with "_"
// are skipped, which is the conventional way to park a plugin without
// deleting it.
package plugin

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/yat/internal/provider"
)

// =============================================================================
// PLUGIN
// =============================================================================

// Plugin is one successfully loaded descriptor.
type Plugin struct {
	ID         string
	Path       string
	Descriptor Descriptor
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry tracks the plugins directory and the load state of every
// descriptor in it. Load failures are recorded per plugin id and never
// abort the caller; a broken descriptor must not take the others down.
type Registry struct {
	dir string

	mu      sync.RWMutex
	plugins map[string]*Plugin
	errors  map[string]string
}

// NewRegistry creates a registry over the given plugins directory.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:     dir,
		plugins: make(map[string]*Plugin),
		errors:  make(map[string]string),
	}
}

// Dir returns the plugins directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Discover lists the loadable descriptor files, creating the plugins
// directory if it does not exist yet. Returned ids are sorted
// lexicographically so load order is deterministic.
func (r *Registry) Discover() ([]string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plugins directory: %w", err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var ids []string
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || filepath.Ext(name) != ".toml" {
			continue
		}
		id := IDFromPath(name)
		// Two files collapsing to one id (openai_plugin.toml and
		// openai.toml) is a per-plugin error, not a fatal one.
		if first, dup := seen[id]; dup {
			r.setError(id, fmt.Sprintf("duplicate plugin id (%s and %s)", first, name))
			continue
		}
		seen[id] = name
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load parses one descriptor and resolves its entry point. Failures are
// recorded against the plugin id; the returned bool reports success.
func (r *Registry) Load(id string) bool {
	path, err := r.descriptorPath(id)
	if err != nil {
		r.setError(id, err.Error())
		return false
	}

	var desc Descriptor
	if _, err := toml.DecodeFile(path, &desc); err != nil {
		r.setError(id, fmt.Sprintf("failed to parse descriptor: %v", err))
		return false
	}

	if desc.ID != "" && desc.ID != id {
		id = desc.ID
	}
	if desc.Entry == "" {
		r.setError(id, "descriptor is missing an entry point")
		return false
	}
	if !provider.HasEntry(desc.Entry) {
		r.setError(id, fmt.Sprintf("unknown entry point %q", desc.Entry))
		return false
	}
	if desc.Name == "" {
		desc.Name = id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.plugins[id]; ok && existing.Path != path {
		r.errors[id] = fmt.Sprintf("duplicate plugin id (already loaded from %s)", filepath.Base(existing.Path))
		return false
	}
	r.plugins[id] = &Plugin{ID: id, Path: path, Descriptor: desc}
	delete(r.errors, id)
	log.Printf("plugin: loaded %s (entry=%s)", id, desc.Entry)
	return true
}

// LoadAll discovers and loads every descriptor. Individual failures are
// collected per plugin; only a discovery failure is returned as an error.
func (r *Registry) LoadAll() error {
	ids, err := r.Discover()
	if err != nil {
		return err
	}
	loaded := 0
	for _, id := range ids {
		if r.Load(id) {
			loaded++
		}
	}
	log.Printf("plugin: %d/%d plugins loaded from %s", loaded, len(ids), r.dir)
	return nil
}

// Reload evicts a plugin and loads its descriptor again.
func (r *Registry) Reload(id string) bool {
	r.Evict(id)
	return r.Load(id)
}

// Evict forgets a plugin and any recorded error for it.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, id)
	delete(r.errors, id)
}

// Get returns a loaded plugin by id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// IDs returns the loaded plugin ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Errors returns a copy of the per-plugin error strings.
func (r *Registry) Errors() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.errors))
	for id, msg := range r.errors {
		out[id] = msg
	}
	return out
}

// =============================================================================
// HOT RELOAD
// =============================================================================

// Watch reloads descriptors as they change on disk until ctx is done.
// Create and write events reload the descriptor; remove and rename evict
// it. OnChange, when set, fires after each applied event so the frontend
// can refresh.
func (r *Registry) Watch(ctx context.Context, onChange func(id string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch plugins directory: %w", err)
	}
	log.Printf("plugin: watching %s for descriptor changes", r.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, "_") || filepath.Ext(name) != ".toml" {
				continue
			}
			id := IDFromPath(name)
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				r.Reload(id)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				log.Printf("plugin: descriptor removed, evicting %s", id)
				r.Evict(id)
			default:
				continue
			}
			if onChange != nil {
				onChange(id)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("plugin: watch error: %v", err)
		}
	}
}

// descriptorPath finds the file backing a plugin id, preferring the
// conventional "<id>_plugin.toml" name over the bare "<id>.toml".
func (r *Registry) descriptorPath(id string) (string, error) {
	for _, name := range []string{id + "_plugin.toml", id + ".toml"} {
		path := filepath.Join(r.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("descriptor file not found for plugin %q", id)
}

func (r *Registry) setError(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[id] = msg
	log.Printf("plugin: failed to load %s: %s", id, msg)
}
