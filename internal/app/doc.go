// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires user actions to the conversation engine, the LLM
// provider, and the typed-text reveal.
//
// One action flows as: append the user's message and an empty assistant
// placeholder, request the full response, then reveal it incrementally and
// commit the revealed text over the placeholder. Cancellation at any point
// removes the placeholder so a conversation never ends on a blank
// assistant turn; provider failures replace it with an apology instead.
package app
