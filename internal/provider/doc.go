// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the LLM backend for explanations and quizzes.
//
// It talks to an OpenRouter-compatible chat completions API. The client
// handles retries with exponential backoff for transient errors, rate
// limits outgoing requests, and bounds response body reads. Prompt
// construction (complexity tiers, length budgets, quiz format) lives here
// too, so callers deal only in topics, conversation history, and finished
// text.
package provider
