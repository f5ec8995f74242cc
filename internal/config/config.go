// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/yat/internal/util"
)

// =============================================================================
// APP CONFIG
// =============================================================================

// Config is the application configuration, loaded from config.toml in the
// data directory. Session state (active provider, last model) lives here
// too and is written back as the user changes it.
type Config struct {
	// DBFile is the chat database file name, relative to the data dir
	// unless absolute.
	DBFile string `toml:"db_file"`

	// PluginsDir holds the provider plugin descriptors.
	PluginsDir string `toml:"plugins_dir"`

	// EnvFile is the credential file.
	EnvFile string `toml:"env_file"`

	// StreamTimeoutSecs bounds one streamed response end to end.
	// 0 disables the timeout.
	StreamTimeoutSecs int `toml:"stream_timeout_secs"`

	// ActiveProviderID is the provider the user last selected.
	ActiveProviderID string `toml:"active_provider_id"`

	// LastModel is the last chosen model as "<providerID>|<modelID>".
	LastModel string `toml:"last_model"`

	dataDir string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DBFile:            "chat_history.db",
		PluginsDir:        "plugins",
		EnvFile:           ".env",
		StreamTimeoutSecs: 300,
	}
}

// LoadConfig reads config.toml from the data directory, falling back to
// defaults when the file is absent. Unknown keys are tolerated so configs
// survive downgrades.
func LoadConfig(dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.dataDir = dataDir

	path := filepath.Join(dataDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to config.toml atomically.
func (c *Config) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(c.dataDir, "config.toml")
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.StreamTimeoutSecs < 0 {
		return fmt.Errorf("stream_timeout_secs must not be negative")
	}
	if c.DBFile == "" {
		return fmt.Errorf("db_file must not be empty")
	}
	return nil
}

// DataDir returns the data directory this config was loaded from.
func (c *Config) DataDir() string {
	return c.dataDir
}

// DBPath returns the resolved chat database path.
func (c *Config) DBPath() string {
	return c.resolve(c.DBFile)
}

// PluginsPath returns the resolved plugins directory.
func (c *Config) PluginsPath() string {
	return c.resolve(c.PluginsDir)
}

// EnvPath returns the resolved credential file path.
func (c *Config) EnvPath() string {
	return c.resolve(c.EnvFile)
}

// StreamTimeout returns the per-stream timeout, 0 meaning none.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSecs) * time.Second
}

// SetLastModel records the chosen provider/model pair for the next
// session.
func (c *Config) SetLastModel(providerID, modelID string) {
	c.ActiveProviderID = providerID
	c.LastModel = providerID + "|" + modelID
}

// LastModelPair splits the persisted last-model key. ok is false when
// nothing was persisted or the value is malformed.
func (c *Config) LastModelPair() (providerID, modelID string, ok bool) {
	providerID, modelID, found := strings.Cut(c.LastModel, "|")
	if !found || providerID == "" || modelID == "" {
		return "", "", false
	}
	return providerID, modelID, true
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dataDir, p)
}
