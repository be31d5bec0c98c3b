// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/jeranaias/splain/internal/model"
)

// =============================================================================
// QUIZ PARSING
// =============================================================================

// rawQuestion mirrors the JSON shape the model is asked to produce.
type rawQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// parseQuizQuestions extracts valid quiz questions from model output.
// Models wrap JSON in code fences or prose despite instructions, so the
// parser locates the outermost array before decoding. Questions that fail
// validation are dropped individually rather than discarding the batch.
func parseQuizQuestions(content string) []model.QuizQuestion {
	payload := extractJSONArray(content)
	if payload == "" {
		return nil
	}

	var raw []rawQuestion
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil
	}

	var questions []model.QuizQuestion
	for i, rq := range raw {
		q := model.QuizQuestion{
			Question:      strings.TrimSpace(rq.Question),
			Options:       rq.Options,
			CorrectAnswer: rq.CorrectAnswer,
		}
		if !q.Valid() {
			log.Printf("WARNING: dropping invalid quiz question %d", i)
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// extractJSONArray returns the substring from the first '[' to the last
// ']', or empty if no array is present.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// =============================================================================
// FALLBACK QUIZ
// =============================================================================

// FallbackQuestions returns the fixed quiz served when generation yields
// nothing usable. The questions are about the topic only nominally; they
// keep the quiz interaction working instead of surfacing an error.
func FallbackQuestions(topic string) []model.QuizQuestion {
	return []model.QuizQuestion{
		{
			Question: "What topic were we just exploring?",
			Options: []string{
				topic,
				"The history of cheese",
				"Competitive snail racing",
				"None of the above",
			},
			CorrectAnswer: 0,
		},
		{
			Question: "What is the best thing to do when you don't know something?",
			Options: []string{
				"Pretend you know it",
				"Ask questions and stay curious",
				"Give up immediately",
				"Change the subject",
			},
			CorrectAnswer: 1,
		},
		{
			Question: "Learning works best when you...",
			Options: []string{
				"Memorize without understanding",
				"Never review anything",
				"Connect new ideas to things you already know",
				"Only study the night before",
			},
			CorrectAnswer: 2,
		},
	}
}
