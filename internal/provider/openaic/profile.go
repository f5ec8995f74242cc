// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openaic

import (
	"strings"

	"github.com/jeranaias/yat/internal/model"
	"github.com/jeranaias/yat/internal/provider"
)

// =============================================================================
// VENDOR PROFILES
// =============================================================================

// Profile captures how one vendor in the OpenAI-compatible family differs
// from the others. Everything else is shared client code.
type Profile struct {
	// DisplayName is the vendor name shown on models (e.g. "OpenAI").
	DisplayName string

	// BaseURL is the default API endpoint, overridable per instance.
	BaseURL string

	// RequiresKey marks cloud vendors that refuse to initialize without a
	// credential. Keyless backends get PlaceholderKey instead.
	RequiresKey bool

	// PlaceholderKey is sent for backends that ignore auth but whose client
	// still wants a non-empty token (Ollama).
	PlaceholderKey string

	// Catalog is a fixed model list. When nil the client lists models from
	// the backend instead.
	Catalog []model.ModelInfo

	// ListedContextLength is the context window assumed for dynamically
	// listed models, which the list endpoint does not report.
	ListedContextLength int
}

func openaiProfile() Profile {
	return Profile{
		DisplayName: "OpenAI",
		BaseURL:     "https://api.openai.com/v1",
		RequiresKey: true,
		Catalog: []model.ModelInfo{
			model.NewChatModel("gpt-4o-search-preview", "GPT-4o", "OpenAI", 128000),
			model.NewChatModel("gpt-4-turbo-preview", "GPT-4 Turbo", "OpenAI", 128000),
			model.NewChatModel("gpt-3.5-turbo", "GPT-3.5 Turbo", "OpenAI", 16385),
		},
	}
}

func groqProfile() Profile {
	return Profile{
		DisplayName:         "Groq",
		BaseURL:             "https://api.groq.com/openai/v1",
		RequiresKey:         true,
		ListedContextLength: 8192,
	}
}

func mistralProfile() Profile {
	return Profile{
		DisplayName:         "Mistral",
		BaseURL:             "https://api.mistral.ai/v1",
		RequiresKey:         true,
		ListedContextLength: 32000,
	}
}

func deepseekProfile() Profile {
	return Profile{
		DisplayName:         "DeepSeek",
		BaseURL:             "https://api.deepseek.com/v1",
		RequiresKey:         true,
		ListedContextLength: 32000,
	}
}

func ollamaProfile() Profile {
	return Profile{
		DisplayName: "Ollama",
		// Explicit IPv4 address instead of localhost to avoid IPv6
		// resolution issues on Windows.
		BaseURL:             "http://127.0.0.1:11434/v1",
		PlaceholderKey:      "ollama",
		ListedContextLength: 4096,
	}
}

// normalizeOllamaBase appends the /v1 compatibility suffix to a bare host
// setting, tolerating values that already carry it.
func normalizeOllamaBase(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasSuffix(host, "/v1") {
		return host
	}
	return host + "/v1"
}

func init() {
	provider.RegisterConstructor("openai", func(cfg provider.RuntimeConfig) provider.Provider {
		return NewClient(cfg, openaiProfile())
	})
	provider.RegisterConstructor("groq", func(cfg provider.RuntimeConfig) provider.Provider {
		return NewClient(cfg, groqProfile())
	})
	provider.RegisterConstructor("mistral", func(cfg provider.RuntimeConfig) provider.Provider {
		return NewClient(cfg, mistralProfile())
	})
	provider.RegisterConstructor("deepseek", func(cfg provider.RuntimeConfig) provider.Provider {
		return NewClient(cfg, deepseekProfile())
	})
	provider.RegisterConstructor("ollama", func(cfg provider.RuntimeConfig) provider.Provider {
		p := ollamaProfile()
		if host := cfg.Setting("host", ""); host != "" {
			p.BaseURL = normalizeOllamaBase(host)
		}
		return NewClient(cfg, p)
	})
}
