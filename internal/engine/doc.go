// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine owns the canonical chat list and keeps it reconciled with
// whichever backing store matches the current identity.
//
// The engine is the single writer of shared conversation state. Mutations
// are synchronous, atomic updates to the in-memory list; mirroring to the
// local or remote store happens afterwards on per-chat queues, fire and
// forget. Store failures never touch the visible conversation: the
// in-memory state is the source of truth and the session continues.
//
// Chats are held in an arena keyed by an internal handle. The externally
// visible id is a mutable attribute, which makes id promotion (temporary
// id to store-assigned id on first remote persist) an atomic swap instead
// of a hunt for stale references.
package engine
