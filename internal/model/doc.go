// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, conversations,
// messages and quiz items, plus the pure transformation functions that
// operate on them.
//
// Everything in this package is side-effect free: operations take a value
// and return a new value, leaving the input untouched. Mutation and
// persistence live in the engine and store packages.
package model
