// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/yat/internal/util"
)

// =============================================================================
// ENV FILE
// =============================================================================

// EnvFile is the credential file, a flat KEY=VALUE store. It is the only
// place yat writes secrets; provider_config.json carries env var names,
// never values.
type EnvFile struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// LoadEnvFile reads the file at path, tolerating a missing file. Lines
// are KEY=VALUE; blank lines and lines starting with # are skipped.
func LoadEnvFile(path string) (*EnvFile, error) {
	e := &EnvFile{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return e, nil
		}
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		e.values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return e, nil
}

// Apply exports every stored value into the process environment without
// overriding variables already set there. Real environment wins over file.
func (e *EnvFile) Apply() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, value := range e.values {
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

// Get returns the stored value for key, or "".
func (e *EnvFile) Get(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[key]
}

// SetSecret stores a credential, exports it to the process environment,
// and rewrites the file. An empty value removes the key.
func (e *EnvFile) SetSecret(key, value string) error {
	e.mu.Lock()
	if value == "" {
		delete(e.values, key)
		os.Unsetenv(key)
	} else {
		e.values[key] = value
		os.Setenv(key, value)
	}
	e.mu.Unlock()
	return e.save()
}

// Keys returns the stored keys in sorted order.
func (e *EnvFile) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.values))
	for key := range e.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// save rewrites the whole file. Comments do not survive a rewrite; the
// file is machine-managed.
func (e *EnvFile) save() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	keys := make([]string, 0, len(e.values))
	for key := range e.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s=%s\n", key, e.values[key])
	}

	if err := util.AtomicWriteFileWithDir(e.path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}
