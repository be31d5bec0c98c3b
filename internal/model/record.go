// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// REMOTE RECORD SHAPE
// =============================================================================

// Role values used by the remote record shape.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RecordMessage is one message in the remote store's flattened shape.
type RecordMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRecord is a chat as the remote store represents it. The shape differs
// from Chat: items are flattened to role-tagged messages, and quiz items
// have no representation at all.
type ChatRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Messages  []RecordMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToRecord flattens a chat to the remote record shape.
//
// Quiz items are dropped: the remote schema cannot represent them, so this
// conversion is knowingly lossy. Quizzes are regenerable from the
// explanation text and are treated as ephemeral.
func ToRecord(c Chat) ChatRecord {
	rec := ChatRecord{
		ID:        c.ID,
		Title:     c.Title,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Conversation == nil {
		return rec
	}
	now := time.Now()
	for _, it := range c.Conversation.Items {
		switch it.Kind {
		case ItemMessage:
			role := RoleAssistant
			if it.Message.IsUser {
				role = RoleUser
			}
			rec.Messages = append(rec.Messages, RecordMessage{
				Role:      role,
				Content:   it.Message.Content,
				Timestamp: now,
			})
		case ItemQuiz:
			// Not representable remotely; dropped.
		}
	}
	return rec
}

// FromRecord maps a remote record back to a Chat. Messages become Message
// items in order; the record title becomes both the chat title and the
// conversation topic.
func FromRecord(rec ChatRecord) Chat {
	c := Chat{
		ID:        rec.ID,
		Title:     rec.Title,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Messages) == 0 {
		return c
	}
	conv := NewConversation(rec.Title)
	for _, m := range rec.Messages {
		conv.Items = append(conv.Items, MessageItem(Message{
			IsUser:  m.Role == RoleUser,
			Content: m.Content,
		}))
	}
	c.Conversation = &conv
	return c
}
