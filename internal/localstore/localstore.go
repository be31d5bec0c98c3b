// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localstore persists the anonymous user's chat history on the
// local device.
//
// The whole chat list plus the active-chat pointer are written as one JSON
// document, atomically with fsync, so a crash leaves either the previous
// complete state or the new complete state. Timestamps serialize as RFC3339
// via encoding/json.
package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/jeranaias/splain/internal/model"
	"github.com/jeranaias/splain/internal/util"
)

// MaxChats limits stored chats. When exceeded, the least recently updated
// chats are pruned on save.
const MaxChats = 100

// fileName is the history document inside the store directory.
const fileName = "chats.json"

// =============================================================================
// STORE
// =============================================================================

// Store persists chats for anonymous sessions.
type Store struct {
	// BaseDir is the directory holding the history document.
	// Default: ~/.splain
	BaseDir string
}

// document is the on-disk shape.
type document struct {
	Chats    []model.Chat `json:"chats"`
	ActiveID string       `json:"activeId,omitempty"`
}

// New creates a store rooted at the default directory.
func New() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewWithDir(filepath.Join(homeDir, ".splain"))
}

// NewWithDir creates a store rooted at baseDir, creating it if needed.
func NewWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{BaseDir: baseDir}, nil
}

// =============================================================================
// SAVE / LOAD / CLEAR
// =============================================================================

// Save writes the full chat list and active pointer, replacing any previous
// state. Chats beyond MaxChats are pruned, least recently updated first.
func (s *Store) Save(chats []model.Chat, activeID string) error {
	if len(chats) > MaxChats {
		pruned := make([]model.Chat, len(chats))
		copy(pruned, chats)
		sort.SliceStable(pruned, func(i, j int) bool {
			return pruned[i].UpdatedAt.After(pruned[j].UpdatedAt)
		})
		chats = pruned[:MaxChats]
	}

	data, err := json.MarshalIndent(document{Chats: chats, ActiveID: activeID}, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path(), data, 0644)
}

// Load reads the persisted chat list and active pointer. A missing or
// corrupt file loads as empty state rather than an error: local history is
// best-effort and must never block the session.
func (s *Store) Load() ([]model.Chat, string, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt history is discarded, not fatal.
		return nil, "", nil
	}
	return doc.Chats, doc.ActiveID, nil
}

// Clear removes the persisted history. Called when identity transitions
// make the local copy stale (sign-in hands history duty to the remote
// store; sign-out discards the previous user's remnants).
func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// path returns the history document path.
func (s *Store) path() string {
	return filepath.Join(s.BaseDir, fileName)
}
