// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the shared data structures for conversations,
// messages, and model metadata.
//
// These types form the normalized vocabulary spoken between the provider
// implementations, the LLM manager, the chat pipeline, and the conversation
// store. Vendor-specific request/response shapes never leave their provider
// package; everything outside speaks in terms of Message and ModelInfo.
package model
