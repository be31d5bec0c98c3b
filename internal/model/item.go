// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ITEM KIND
// =============================================================================

// ItemKind discriminates the variants of a conversation Item.
type ItemKind string

const (
	// ItemMessage is a plain chat message (user or assistant).
	ItemMessage ItemKind = "message"

	// ItemQuiz is a generated multiple-choice quiz.
	ItemQuiz ItemKind = "quiz"
)

// String returns the string representation of the kind.
func (k ItemKind) String() string {
	return string(k)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single chat message. Messages are immutable once committed;
// the only sanctioned mutation is the explicit edit operation, which goes
// through Conversation.TruncateAfter and re-submission.
type Message struct {
	IsUser  bool   `json:"isUser"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{IsUser: true, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{IsUser: false, Content: content}
}

// =============================================================================
// QUIZ TYPES
// =============================================================================

// OptionsPerQuestion is the number of answer options a valid quiz question
// carries. The provider contract requires exactly this many.
const OptionsPerQuestion = 4

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Valid reports whether the question satisfies the structural contract:
// exactly four options and a correct-answer index within range.
func (q QuizQuestion) Valid() bool {
	if q.Question == "" {
		return false
	}
	if len(q.Options) != OptionsPerQuestion {
		return false
	}
	return q.CorrectAnswer >= 0 && q.CorrectAnswer < OptionsPerQuestion
}

// QuizItem is a quiz generated from the explanation text of a conversation.
// Quiz items are appended, never edited in place; regenerating a quiz
// appends a new item with a fresh ID.
type QuizItem struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}

// =============================================================================
// ITEM (TAGGED UNION)
// =============================================================================

// Item is a tagged union of Message and QuizItem. Exactly one of the two
// payload fields is set, matching Kind. Consumers must switch on Kind
// exhaustively rather than probing fields.
type Item struct {
	Kind    ItemKind
	Message *Message
	Quiz    *QuizItem
}

// MessageItem wraps a Message as an Item.
func MessageItem(m Message) Item {
	return Item{Kind: ItemMessage, Message: &m}
}

// QuizItemOf wraps a QuizItem as an Item.
func QuizItemOf(q QuizItem) Item {
	return Item{Kind: ItemQuiz, Quiz: &q}
}

// IsAssistantMessage reports whether the item is a non-user message.
func (it Item) IsAssistantMessage() bool {
	return it.Kind == ItemMessage && it.Message != nil && !it.Message.IsUser
}

// IsUserMessage reports whether the item is a user message.
func (it Item) IsUserMessage() bool {
	return it.Kind == ItemMessage && it.Message != nil && it.Message.IsUser
}

// ErrUnknownItemKind is returned when decoding an item whose kind tag is
// missing or unrecognized.
var ErrUnknownItemKind = errors.New("unknown conversation item kind")

// quizWire is the serialized form of a quiz item. The kind tag keeps the
// on-disk shape self-describing.
type quizWire struct {
	Kind      ItemKind       `json:"kind"`
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}

// messageWire mirrors Message with an explicit kind tag.
type messageWire struct {
	Kind    ItemKind `json:"kind"`
	IsUser  bool     `json:"isUser"`
	Content string   `json:"content"`
}

// MarshalJSON encodes the item with a kind tag so heterogeneous item lists
// round-trip through the local store.
func (it Item) MarshalJSON() ([]byte, error) {
	switch it.Kind {
	case ItemMessage:
		if it.Message == nil {
			return nil, errors.New("message item with nil payload")
		}
		return json.Marshal(messageWire{Kind: ItemMessage, IsUser: it.Message.IsUser, Content: it.Message.Content})
	case ItemQuiz:
		if it.Quiz == nil {
			return nil, errors.New("quiz item with nil payload")
		}
		return json.Marshal(quizWire{Kind: ItemQuiz, ID: it.Quiz.ID, Topic: it.Quiz.Topic, Questions: it.Quiz.Questions})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemKind, it.Kind)
	}
}

// UnmarshalJSON decodes an item by its kind tag. Items written before the
// tag existed carry no kind field and are treated as plain messages.
func (it *Item) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind ItemKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Kind {
	case ItemQuiz:
		var w quizWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*it = QuizItemOf(QuizItem{ID: w.ID, Topic: w.Topic, Questions: w.Questions})
		return nil
	case ItemMessage, "":
		var w messageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*it = MessageItem(Message{IsUser: w.IsUser, Content: w.Content})
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownItemKind, probe.Kind)
	}
}
