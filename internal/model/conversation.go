// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered content of a chat: messages and quiz items
// interleaved in insertion order. Insertion order is the only order.
type Conversation struct {
	Items []Item `json:"items"`
	Topic string `json:"topic"`
}

// NewConversation creates a conversation with the given topic and no items.
func NewConversation(topic string) Conversation {
	return Conversation{Topic: topic}
}

// IsEmpty reports whether the conversation has no items.
func (c Conversation) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy of the conversation. Item payloads are copied so
// mutations of the clone never alias the original.
func (c Conversation) Clone() Conversation {
	out := Conversation{Topic: c.Topic}
	if c.Items == nil {
		return out
	}
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		switch it.Kind {
		case ItemMessage:
			m := *it.Message
			out.Items[i] = Item{Kind: ItemMessage, Message: &m}
		case ItemQuiz:
			q := *it.Quiz
			q.Questions = append([]QuizQuestion(nil), it.Quiz.Questions...)
			out.Items[i] = Item{Kind: ItemQuiz, Quiz: &q}
		}
	}
	return out
}

// =============================================================================
// PURE TRANSFORMATIONS
// =============================================================================

// AppendItem returns a new conversation with the item appended. The input
// conversation is left unchanged.
func AppendItem(c Conversation, it Item) Conversation {
	out := c.Clone()
	out.Items = append(out.Items, it)
	return out
}

// ReplaceLastAssistantMessage returns a new conversation whose final item,
// if and only if it is an assistant message, has its content replaced.
// If the last item is anything else the input is returned unchanged.
// Used to commit fully revealed streamed content.
func ReplaceLastAssistantMessage(c Conversation, newContent string) Conversation {
	if len(c.Items) == 0 {
		return c
	}
	if !c.Items[len(c.Items)-1].IsAssistantMessage() {
		return c
	}
	out := c.Clone()
	out.Items[len(out.Items)-1].Message.Content = newContent
	return out
}

// TruncateAfter returns a new conversation keeping items [0..index]
// inclusive. An index at or past the end returns a full copy; a negative
// index returns an empty conversation. Used by message editing to discard
// downstream messages and any quizzes derived from them.
func TruncateAfter(c Conversation, index int) Conversation {
	if index < 0 {
		return Conversation{Topic: c.Topic}
	}
	if index >= len(c.Items)-1 {
		return c.Clone()
	}
	out := c.Clone()
	out.Items = out.Items[:index+1]
	return out
}

// AssistantText concatenates the content of every assistant message,
// separated by blank lines. This is the source text quizzes are generated
// from: strictly what the user has already been shown.
func (c Conversation) AssistantText() string {
	var out string
	for _, it := range c.Items {
		if !it.IsAssistantMessage() {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += it.Message.Content
	}
	return out
}

// History returns the message items in order, skipping quiz items. This is
// the conversation context sent with follow-up requests.
func (c Conversation) History() []Message {
	out := make([]Message, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Kind == ItemMessage && it.Message != nil {
			out = append(out, *it.Message)
		}
	}
	return out
}
