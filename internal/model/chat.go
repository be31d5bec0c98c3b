// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultTitle is the title given to a chat before its first question.
const DefaultTitle = "New Chat"

// tempIDPrefix marks locally-minted chat identifiers that have not yet been
// persisted to the remote store.
const tempIDPrefix = "temp-"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is one conversation thread with a title and an identifier.
//
// The ID is either a locally-minted temporary id or a store-assigned durable
// id. A chat's id is replaced exactly once, at the moment it is first
// persisted remotely (promotion); that is a lifecycle phase, not a separate
// type, so every operation works over both forms.
type Chat struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	UpdatedAt    time.Time     `json:"timestamp"`
	IsActive     bool          `json:"isActive,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

// NewChat creates an empty chat with a fresh temporary id, marked active.
// If firstMessage is non-empty the chat starts with that user message and
// the topic is derived from title or the message.
func NewChat(title, firstMessage string) Chat {
	if title == "" {
		title = DefaultTitle
	}
	c := Chat{
		ID:        NewTempID(),
		Title:     title,
		UpdatedAt: time.Now(),
		IsActive:  true,
	}
	if firstMessage != "" {
		topic := title
		if topic == DefaultTitle {
			topic = firstMessage
		}
		conv := NewConversation(topic)
		conv.Items = append(conv.Items, MessageItem(NewUserMessage(firstMessage)))
		c.Conversation = &conv
	}
	return c
}

// Clone returns a deep copy of the chat.
func (c Chat) Clone() Chat {
	out := c
	if c.Conversation != nil {
		conv := c.Conversation.Clone()
		out.Conversation = &conv
	}
	return out
}

// =============================================================================
// TEMPORARY IDS
// =============================================================================

// tempIDCounter makes temporary ids monotonic within a process even when
// two chats are minted in the same nanosecond.
var tempIDCounter atomic.Uint64

// NewTempID mints a time-based temporary chat id, monotonic per process.
func NewTempID() string {
	n := tempIDCounter.Add(1)
	return tempIDPrefix + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(n, 10)
}

// IsTempID reports whether id is a locally-minted temporary identifier.
// Background sync operations are a no-op on temporary ids until promotion.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// maxTitleLen bounds auto-derived chat titles.
const maxTitleLen = 50

// DeriveTitle builds a chat title from the first user message: newlines
// stripped, truncated rune-safely. Returns DefaultTitle for empty input.
func DeriveTitle(firstMessage string) string {
	s := strings.ReplaceAll(firstMessage, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTitle
	}
	runes := []rune(s)
	if len(runes) <= maxTitleLen {
		return s
	}
	return string(runes[:maxTitleLen-3]) + "..."
}
