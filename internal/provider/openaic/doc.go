// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openaic implements providers for backends that speak the OpenAI
// chat completions API: OpenAI itself plus Groq, Mistral, DeepSeek, and a
// local Ollama daemon through its /v1 compatibility endpoint.
//
// One client implementation covers the whole family; a vendor profile
// supplies the endpoint, the credential policy, and either a fixed model
// catalog or dynamic model listing. Each vendor registers its own entry
// point in the provider constructor registry.
package openaic
