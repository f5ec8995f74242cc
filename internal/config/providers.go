// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/jeranaias/yat/internal/util"
)

// =============================================================================
// PROVIDER STATUS
// =============================================================================

// Provider status values. "active" is earned at runtime when a provider
// actually answers; it is never derived from config and never persisted.
const (
	StatusActive     = "active"
	StatusConfigured = "configured"
	StatusDisabled   = "disabled"
	StatusError      = "error"
)

// Provider types.
const (
	TypeCloud = "cloud"
	TypeLocal = "local"
)

// =============================================================================
// PROVIDER CONFIG TYPES
// =============================================================================

// Setting describes one configurable field of a provider, used by
// frontends to render settings forms.
type Setting struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"` // "text", "password", "number", "boolean"
	Required bool   `json:"required,omitempty"`
	Default  string `json:"default,omitempty"`
	EnvVar   string `json:"env_var,omitempty"`
}

// ProviderConfig is one provider's persisted definition. Status and
// ErrorMessage are derived on load and excluded from the file.
type ProviderConfig struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Icon     string            `json:"icon"`
	Color    string            `json:"color"`
	Enabled  bool              `json:"enabled"`
	Config   map[string]string `json:"config"`
	Settings []Setting         `json:"settings"`

	Status       string `json:"-"`
	ErrorMessage string `json:"-"`
}

// APIKeyEnv returns the name of the env var carrying this provider's
// credential, or "".
func (p *ProviderConfig) APIKeyEnv() string {
	return p.Config["api_key_env"]
}

// providerFile is the on-disk shape of provider_config.json.
type providerFile struct {
	Providers []*ProviderConfig `json:"providers"`
}

// =============================================================================
// CANONICAL DEFAULTS
// =============================================================================

func apiKeySetting(envVar string) Setting {
	return Setting{
		Key:     "api_key_env",
		Label:   "API Key Environment Variable",
		Type:    "text",
		Default: envVar,
		EnvVar:  envVar,
	}
}

// defaultProviders is the canonical provider set. Load re-adds any of
// these missing from the file.
func defaultProviders() []*ProviderConfig {
	return []*ProviderConfig{
		{
			ID: "google", Name: "Google Gemini", Type: TypeCloud,
			Icon: "google", Color: "#4285F4", Enabled: true,
			Config:   map[string]string{"api_key_env": "GOOGLE_API_KEY"},
			Settings: []Setting{apiKeySetting("GOOGLE_API_KEY")},
		},
		{
			ID: "anthropic", Name: "Anthropic Claude", Type: TypeCloud,
			Icon: "smart_toy", Color: "#D97757", Enabled: true,
			Config:   map[string]string{"api_key_env": "ANTHROPIC_API_KEY"},
			Settings: []Setting{apiKeySetting("ANTHROPIC_API_KEY")},
		},
		{
			ID: "openai", Name: "OpenAI GPT", Type: TypeCloud,
			Icon: "bolt", Color: "#10A37F", Enabled: true,
			Config:   map[string]string{"api_key_env": "OPENAI_API_KEY"},
			Settings: []Setting{apiKeySetting("OPENAI_API_KEY")},
		},
		{
			ID: "ollama", Name: "Ollama (Local)", Type: TypeLocal,
			Icon: "laptop_mac", Color: "#000000", Enabled: true,
			Config: map[string]string{"base_url": "http://localhost:11434"},
			Settings: []Setting{{
				Key: "base_url", Label: "Base URL", Type: "text",
				Default: "http://localhost:11434",
			}},
		},
		{
			ID: "groq", Name: "Groq", Type: TypeCloud,
			Icon: "speed", Color: "#f55036", Enabled: true,
			Config:   map[string]string{"api_key_env": "GROQ_API_KEY"},
			Settings: []Setting{apiKeySetting("GROQ_API_KEY")},
		},
		{
			ID: "mistral", Name: "Mistral AI", Type: TypeCloud,
			Icon: "wind_power", Color: "#fd6f00", Enabled: true,
			Config:   map[string]string{"api_key_env": "MISTRAL_API_KEY"},
			Settings: []Setting{apiKeySetting("MISTRAL_API_KEY")},
		},
		{
			ID: "deepseek", Name: "DeepSeek", Type: TypeCloud,
			Icon: "search", Color: "#4d6bfe", Enabled: true,
			Config:   map[string]string{"api_key_env": "DEEPSEEK_API_KEY"},
			Settings: []Setting{apiKeySetting("DEEPSEEK_API_KEY")},
		},
	}
}

// =============================================================================
// PROVIDER STORE
// =============================================================================

// Store manages provider_config.json: loading with self-healing, status
// derivation, and guarded updates.
type Store struct {
	path string

	mu        sync.RWMutex
	providers map[string]*ProviderConfig
	order     []string
}

// NewStore creates a store over the given file and loads it. A missing or
// corrupt file is replaced with the canonical defaults; a valid file
// missing canonical providers gets them re-added (and is rewritten only
// when that happened, so loading is otherwise a pure read).
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, providers: make(map[string]*ProviderConfig)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	var file providerFile

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		// First run, start from defaults and persist them.
	case err != nil:
		return fmt.Errorf("failed to read provider config: %w", err)
	default:
		if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
			log.Printf("config: provider config corrupt, recreating defaults: %v", jsonErr)
			file.Providers = nil
		}
	}

	// SELF-HEALING: re-add canonical providers the file lost.
	existing := make(map[string]bool, len(file.Providers))
	for _, p := range file.Providers {
		existing[p.ID] = true
	}
	healed := false
	for _, def := range defaultProviders() {
		if !existing[def.ID] {
			log.Printf("config: auto-repair, adding missing provider %q", def.ID)
			file.Providers = append(file.Providers, def)
			healed = true
		}
	}

	s.mu.Lock()
	s.providers = make(map[string]*ProviderConfig, len(file.Providers))
	s.order = s.order[:0]
	for _, p := range file.Providers {
		if p.Config == nil {
			p.Config = make(map[string]string)
		}
		p.Status, p.ErrorMessage = deriveStatus(p)
		s.providers[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	s.mu.Unlock()

	if healed {
		return s.Save()
	}
	return nil
}

// Save writes the store to disk atomically, excluding derived fields.
func (s *Store) Save() error {
	s.mu.RLock()
	file := providerFile{Providers: make([]*ProviderConfig, 0, len(s.order))}
	for _, id := range s.order {
		file.Providers = append(file.Providers, s.providers[id])
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provider config: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write provider config: %w", err)
	}
	return nil
}

// deriveStatus computes a provider's status from config and environment.
// A present key only earns "configured"; "active" is earned at runtime.
func deriveStatus(p *ProviderConfig) (status, errMsg string) {
	if !p.Enabled {
		return StatusDisabled, ""
	}
	if p.Type == TypeCloud {
		if envVar := p.APIKeyEnv(); envVar != "" && os.Getenv(envVar) == "" {
			return StatusError, fmt.Sprintf("API key not found. Set %s environment variable.", envVar)
		}
	}
	return StatusConfigured, ""
}

// Get returns a provider config by id.
func (s *Store) Get(id string) (*ProviderConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	return p, ok
}

// All returns every provider in file order.
func (s *Store) All() []*ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProviderConfig, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.providers[id])
	}
	return out
}

// Enabled returns the enabled providers in file order.
func (s *Store) Enabled() []*ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProviderConfig, 0, len(s.order))
	for _, id := range s.order {
		if p := s.providers[id]; p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// SetEnabled flips a provider on or off, rederives its status, and saves.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	p, ok := s.providers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown provider %q", id)
	}
	p.Enabled = enabled
	p.Status, p.ErrorMessage = deriveStatus(p)
	s.mu.Unlock()
	return s.Save()
}

// UpdateConfig merges updates into a provider's config map, rederives
// status, and saves. Secret values are rejected; credentials belong in
// the env file, and this store must never persist them.
func (s *Store) UpdateConfig(id string, updates map[string]string) error {
	s.mu.Lock()
	p, ok := s.providers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown provider %q", id)
	}
	for key := range updates {
		if settingType(p, key) == "password" {
			s.mu.Unlock()
			return fmt.Errorf("setting %q is a credential and cannot be stored in provider config", key)
		}
	}
	for key, value := range updates {
		p.Config[key] = value
	}
	p.Status, p.ErrorMessage = deriveStatus(p)
	s.mu.Unlock()
	return s.Save()
}

// MarkActive promotes a provider to "active" in memory after it proved
// usable at runtime. Never persisted.
func (s *Store) MarkActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[id]; ok && p.Enabled {
		p.Status = StatusActive
	}
}

// SettingValue resolves one setting for a provider: the config map wins,
// then the setting's env var, then "".
func (s *Store) SettingValue(id, key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return ""
	}
	if v, present := p.Config[key]; present {
		return v
	}
	for _, setting := range p.Settings {
		if setting.Key == key && setting.EnvVar != "" {
			return os.Getenv(setting.EnvVar)
		}
	}
	return ""
}

// APIKey resolves a provider's credential from the environment.
func (s *Store) APIKey(id string) string {
	s.mu.RLock()
	p, ok := s.providers[id]
	s.mu.RUnlock()
	if !ok {
		return ""
	}
	if envVar := p.APIKeyEnv(); envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

// IDs returns all provider ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Strings(ids)
	return ids
}

func settingType(p *ProviderConfig, key string) string {
	for _, setting := range p.Settings {
		if setting.Key == key {
			return setting.Type
		}
	}
	return ""
}
