// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"math/rand"
	"strings"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Length selects the response length budget.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// MaxTokens returns the completion budget for the length. Unknown values
// get the medium budget.
func (l Length) MaxTokens() int {
	switch l {
	case LengthShort:
		return 250
	case LengthLong:
		return 800
	default:
		return 500
	}
}

// quizMaxTokens budgets quiz generation, which returns structured JSON
// rather than prose.
const quizMaxTokens = 1000

// Options tunes a single explanation or quiz request.
type Options struct {
	// Complexity is 0-100, from explain-like-I'm-five to expert.
	Complexity int

	// Length selects the response token budget.
	Length Length
}

// audience maps the complexity slider to an audience description. The
// bands are fixed: 0-19, 20-39, 40-59, 60-79, 80-100.
func audience(complexity int) string {
	switch {
	case complexity < 20:
		return "a curious 5-year-old; use very simple words, short sentences, and everyday comparisons"
	case complexity < 40:
		return "a 10-year-old; keep it simple and playful, with concrete examples"
	case complexity < 60:
		return "a teenager; plain language is fine, light technical terms are okay if explained"
	case complexity < 80:
		return "a college student; use proper terminology and assume general background knowledge"
	default:
		return "an expert; be precise and technical, skip the basics"
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

// explainSystemPrompt builds the system prompt for an explanation request.
// The color tags are an app-level convention: the assistant wraps key terms
// and the renderer interprets them. The rest of the pipeline treats tagged
// text as opaque content.
func explainSystemPrompt(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly explainer. Explain things for %s.\n", audience(opts.Complexity))
	b.WriteString("Highlight the most important terms by wrapping them in <blue>...</blue>, ")
	b.WriteString("warnings or common mistakes in <red>...</red>, ")
	b.WriteString("and fun facts in <yellow>...</yellow>. Use the tags sparingly.\n")
	b.WriteString("Answer the question directly. No preamble, no headers.")
	return b.String()
}

// quizSystemPrompt builds the system prompt for quiz generation.
func quizSystemPrompt(opts Options) string {
	return fmt.Sprintf(
		"You write multiple-choice quizzes pitched at %s.\n"+
			"Respond with ONLY a JSON array. Each element has the shape "+
			`{"question": string, "options": [4 strings], "correctAnswer": index 0-3}. `+
			"No prose, no code fences, no trailing text.", audience(opts.Complexity))
}

// quizUserPrompt asks for a quiz about the topic.
func quizUserPrompt(topic string) string {
	return fmt.Sprintf("Write a 3-question multiple-choice quiz about: %s", topic)
}

// =============================================================================
// SURPRISE TOPICS
// =============================================================================

// surpriseTopics feeds the "surprise me" action. Deliberately eclectic.
var surpriseTopics = []string{
	"Why is the sky blue?",
	"How do black holes work?",
	"Why do cats purr?",
	"How does the internet work?",
	"Why do we dream?",
	"How do airplanes stay in the air?",
	"What is quantum entanglement?",
	"Why do onions make you cry?",
	"How do vaccines work?",
	"Why is the ocean salty?",
	"How do bees make honey?",
	"What causes the northern lights?",
	"Why do leaves change color in autumn?",
	"How does GPS know where you are?",
	"Why can't you tickle yourself?",
	"How do chameleons change color?",
	"What makes popcorn pop?",
	"Why do we get goosebumps?",
	"How does a microwave heat food?",
	"Why is yawning contagious?",
}

// RandomTopic returns a random surprise topic.
func RandomTopic() string {
	return surpriseTopics[rand.Intn(len(surpriseTopics))]
}

// =============================================================================
// FALLBACK TEXT
// =============================================================================

// ApologyText is shown in place of an explanation when the provider fails
// after retries. It replaces the thinking placeholder so the conversation
// never ends on a blank assistant turn.
const ApologyText = "Oops! My brain got a little scrambled there. Mind asking me that again?"
