// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the contract every LLM backend implements and
// the compile-time constructor registry that plugin descriptors resolve
// their entry points against.
//
// A provider wraps one vendor API (OpenAI, Anthropic, a local Ollama
// daemon) behind four operations: Initialize, Models, StreamChat, and
// CheckHealth. Concrete implementations live in subpackages and register
// a constructor under a stable entry-point name in their init function.
// The plugin loader never scans types; it looks descriptor entry points
// up in this registry.
package provider
