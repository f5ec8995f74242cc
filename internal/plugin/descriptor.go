// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/yat/internal/util"
)

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Descriptor is the parsed contents of one plugin descriptor file. A
// descriptor binds a plugin id to a compile-time registered constructor
// entry point plus display metadata.
type Descriptor struct {
	// ID overrides the id derived from the file name. Usually omitted.
	ID string `toml:"id"`

	// Name is the display name (e.g. "OpenAI").
	Name string `toml:"name"`

	// Entry names the registered provider constructor (e.g. "openai").
	Entry string `toml:"entry"`

	// Description is optional display text.
	Description string `toml:"description"`

	// Settings carries provider-specific defaults (e.g. host for Ollama).
	Settings map[string]string `toml:"settings"`
}

// IDFromPath derives a plugin id from a descriptor file path: the file
// stem with the conventional "_plugin" suffix stripped, so
// "openai_plugin.toml" and "openai.toml" both yield "openai".
func IDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimSuffix(stem, "_plugin")
}

// =============================================================================
// DEFAULT DESCRIPTORS
// =============================================================================

// defaultDescriptors is the set written on first run, one per linked
// provider entry point.
var defaultDescriptors = []struct {
	file string
	body string
}{
	{"openai_plugin.toml", "name = \"OpenAI\"\nentry = \"openai\"\ndescription = \"OpenAI GPT models\"\n"},
	{"anthropic_plugin.toml", "name = \"Anthropic\"\nentry = \"anthropic\"\ndescription = \"Anthropic Claude models\"\n"},
	{"ollama_plugin.toml", "name = \"Ollama\"\nentry = \"ollama\"\ndescription = \"Local models via Ollama\"\n\n[settings]\nhost = \"http://127.0.0.1:11434\"\n"},
	{"groq_plugin.toml", "name = \"Groq\"\nentry = \"groq\"\ndescription = \"Groq hosted models\"\n"},
	{"mistral_plugin.toml", "name = \"Mistral\"\nentry = \"mistral\"\ndescription = \"Mistral AI models\"\n"},
	{"deepseek_plugin.toml", "name = \"DeepSeek\"\nentry = \"deepseek\"\ndescription = \"DeepSeek models\"\n"},
	{"mock_plugin.toml", "name = \"Mock\"\nentry = \"mock\"\ndescription = \"Offline echo provider for demos\"\n"},
}

// WriteDefaultDescriptors seeds an empty plugins directory with the stock
// descriptor set. Existing files are never overwritten, so a user who
// deletes or edits a descriptor keeps their change.
func WriteDefaultDescriptors(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create plugins directory: %w", err)
	}
	for _, d := range defaultDescriptors {
		path := filepath.Join(dir, d.file)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := util.AtomicWriteFile(path, []byte(d.body), 0644); err != nil {
			return fmt.Errorf("failed to write descriptor %s: %w", d.file, err)
		}
	}
	return nil
}
