// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config manages everything yat persists outside the chat
// database: the application config file, the provider configuration
// store, and the .env credential file.
//
// Layout under the data directory (~/.yat by default):
//
//	config.toml          application settings and session state
//	provider_config.json provider definitions (never credentials)
//	.env                 credentials, KEY=VALUE
//	plugins/             provider plugin descriptors
//
// Credentials live only in the .env file and the process environment.
// The provider store is self-healing: canonical providers missing from
// provider_config.json are re-added on load, so a hand-edited or
// truncated file repairs itself instead of hiding backends.
package config
