// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/jeranaias/splain/internal/engine"
	"github.com/jeranaias/splain/internal/model"
	"github.com/jeranaias/splain/internal/provider"
	"github.com/jeranaias/splain/internal/request"
	"github.com/jeranaias/splain/internal/reveal"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a submission overlaps an in-flight request
	// or an active reveal of the same kind.
	ErrBusy = errors.New("a request is already in flight")

	// ErrNoActiveChat is returned by operations that need an existing
	// conversation when none is active.
	ErrNoActiveChat = errors.New("no active chat")

	// ErrNoExplanation is returned by quiz generation when the active
	// conversation has no assistant text to quiz on.
	ErrNoExplanation = errors.New("nothing to quiz on yet")

	// ErrNotUserMessage is returned when the edit target is not a user
	// message.
	ErrNotUserMessage = errors.New("only user messages can be edited")
)

// =============================================================================
// PROVIDER CONTRACT
// =============================================================================

// Provider generates explanations and quizzes.
type Provider interface {
	Explain(ctx context.Context, topic string, history []model.Message, opts provider.Options) (string, error)
	GenerateQuiz(ctx context.Context, topic string, history []model.Message, opts provider.Options) (model.QuizItem, error)
}

// =============================================================================
// APP
// =============================================================================

// App orchestrates user actions over the engine, provider, and reveal.
type App struct {
	engine *engine.Engine
	prov   Provider
	coord  *request.Coordinator

	mu        sync.Mutex
	presenter *reveal.Presenter
	// revealChatID is the chat the active reveal commits into. Captured at
	// submission; the engine's id aliasing keeps it valid across promotion.
	revealChatID string
	opts         provider.Options

	onReveal   func(chatID, revealed string)
	revealOpts []reveal.Option
}

// Option configures an App.
type Option func(*App)

// WithOnReveal sets a callback fired with the revealed-so-far text as a
// response is disclosed. Used by the serving layer to push progress.
func WithOnReveal(fn func(chatID, revealed string)) Option {
	return func(a *App) { a.onReveal = fn }
}

// WithRevealOptions forwards options to the reveal presenter, for tests.
func WithRevealOptions(opts ...reveal.Option) Option {
	return func(a *App) { a.revealOpts = opts }
}

// WithOptions sets the initial complexity and length settings.
func WithOptions(opts provider.Options) Option {
	return func(a *App) { a.opts = opts }
}

// New creates an app over the given engine and provider.
func New(eng *engine.Engine, prov Provider, opts ...Option) *App {
	a := &App{
		engine: eng,
		prov:   prov,
		coord:  request.NewCoordinator(),
		opts:   provider.Options{Complexity: 50, Length: provider.LengthMedium},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine exposes the underlying engine for read paths (chat list, share).
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// SetOptions updates the complexity and length used for new requests.
func (a *App) SetOptions(opts provider.Options) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
}

// Options returns the current request settings.
func (a *App) Options() provider.Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// Busy reports whether an explanation request or its reveal is in flight.
// Submissions are rejected while busy.
func (a *App) Busy() bool {
	if a.coord.Active(request.KindExplanation) {
		return true
	}
	a.mu.Lock()
	p := a.presenter
	a.mu.Unlock()
	return p != nil && p.State() == reveal.StateRevealing
}

// =============================================================================
// ASK / FOLLOW-UP
// =============================================================================

// Ask submits a question into the active chat, creating one if needed.
// Follow-ups are the same operation: history comes from the conversation
// so far. Blocks until the provider answers and the reveal starts; the
// reveal itself completes in the background.
func (a *App) Ask(ctx context.Context, question string) error {
	if a.Busy() {
		return ErrBusy
	}

	chatID, history := a.placeQuestion(question)
	return a.generate(ctx, chatID, question, history)
}

// SurpriseMe asks a random topic.
func (a *App) SurpriseMe(ctx context.Context) (string, error) {
	topic := provider.RandomTopic()
	return topic, a.Ask(ctx, topic)
}

// placeQuestion appends the user's message to the active chat (creating a
// chat when none is active) and returns the target chat id plus the
// history preceding the question.
func (a *App) placeQuestion(question string) (string, []model.Message) {
	chat, ok := a.engine.ActiveChat()
	if !ok {
		id := a.engine.CreateNewChat("", question)
		return id, nil
	}

	var history []model.Message
	if chat.Conversation != nil {
		history = chat.Conversation.History()
	}
	a.engine.AppendMessage(chat.ID, model.NewUserMessage(question))
	return chat.ID, history
}

// generate runs the provider request and hands the result to the reveal.
// The empty assistant placeholder appended here is what cancellation
// removes and what the commit replaces.
func (a *App) generate(ctx context.Context, chatID, question string, history []model.Message) error {
	a.engine.AppendMessage(chatID, model.NewAssistantMessage(""))

	opts := a.Options()
	var text string
	outcome, err := a.coord.Do(ctx, request.KindExplanation, func(ctx context.Context) error {
		var perr error
		text, perr = a.prov.Explain(ctx, question, history, opts)
		return perr
	})

	switch outcome {
	case request.OutcomeSuccess:
		a.startReveal(chatID, text)
		return nil
	case request.OutcomeCancelled:
		a.removePlaceholder(chatID)
		return nil
	default:
		log.Printf("WARNING: explanation request failed: %v", err)
		a.commitAssistantText(chatID, provider.ApologyText)
		return err
	}
}

// =============================================================================
// REVEAL PLUMBING
// =============================================================================

// startReveal begins disclosing text into chatID, replacing any previous
// presenter. The commit callback writes the full text over the
// placeholder, which triggers the reconciliation mirror.
func (a *App) startReveal(chatID, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.revealChatID = chatID
	onReveal := a.onReveal

	opts := a.revealOpts
	if onReveal != nil {
		opts = append(opts, reveal.WithProgress(func(revealed string) {
			onReveal(chatID, revealed)
		}))
	}

	a.presenter = reveal.New(func(full string) {
		a.commitAssistantText(chatID, full)
	}, opts...)

	if err := a.presenter.Start(text); err != nil {
		// Freshly constructed presenter; Start cannot find one revealing.
		log.Printf("WARNING: reveal failed to start: %v", err)
	}
}

// commitAssistantText replaces the trailing assistant placeholder with
// content and writes the conversation back through the engine.
func (a *App) commitAssistantText(chatID, content string) {
	chat, ok := a.engine.Chat(chatID)
	if !ok || chat.Conversation == nil {
		return
	}
	conv := model.ReplaceLastAssistantMessage(*chat.Conversation, content)
	a.engine.UpdateConversation(chatID, &conv)
}

// removePlaceholder drops a trailing empty assistant message, if present.
func (a *App) removePlaceholder(chatID string) {
	chat, ok := a.engine.Chat(chatID)
	if !ok || chat.Conversation == nil {
		return
	}
	conv := *chat.Conversation
	n := len(conv.Items)
	if n == 0 {
		return
	}
	last := conv.Items[n-1]
	if !last.IsAssistantMessage() || last.Message.Content != "" {
		return
	}
	conv = model.TruncateAfter(conv, n-2)
	a.engine.UpdateConversation(chatID, &conv)
}

// RevealState returns the current reveal state, for the serving layer.
func (a *App) RevealState() reveal.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.presenter == nil {
		return reveal.StateIdle
	}
	return a.presenter.State()
}

// Revealed returns the text disclosed so far by the active reveal.
func (a *App) Revealed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.presenter == nil {
		return ""
	}
	return a.presenter.Revealed()
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel aborts the in-flight explanation request and any active reveal,
// removing the orphaned placeholder. Safe to call at any time, repeatedly.
func (a *App) Cancel() {
	a.coord.Cancel(request.KindExplanation)

	a.mu.Lock()
	p := a.presenter
	chatID := a.revealChatID
	a.mu.Unlock()

	if p != nil && p.State() == reveal.StateRevealing {
		p.Cancel()
		a.removePlaceholder(chatID)
	}
}

// CancelQuiz aborts the in-flight quiz request, if any.
func (a *App) CancelQuiz() {
	a.coord.Cancel(request.KindQuiz)
}

// =============================================================================
// MESSAGE EDITING
// =============================================================================

// EditMessage rewrites the user message at index in the active chat,
// discards everything after it (including quiz items derived from the
// now-deleted responses), and resubmits through the normal ask path.
func (a *App) EditMessage(ctx context.Context, index int, newContent string) error {
	if a.Busy() {
		return ErrBusy
	}

	chat, ok := a.engine.ActiveChat()
	if !ok || chat.Conversation == nil {
		return ErrNoActiveChat
	}
	conv := *chat.Conversation
	if index < 0 || index >= len(conv.Items) || !conv.Items[index].IsUserMessage() {
		return ErrNotUserMessage
	}

	conv = model.TruncateAfter(conv, index)
	conv.Items[len(conv.Items)-1] = model.MessageItem(model.NewUserMessage(newContent))
	a.engine.UpdateConversation(chat.ID, &conv)

	history := model.Conversation{Items: conv.Items[:len(conv.Items)-1]}.History()
	return a.generate(ctx, chat.ID, newContent, history)
}

// =============================================================================
// QUIZ GENERATION
// =============================================================================

// GenerateQuiz builds a quiz from the explanation text already produced in
// the active chat and appends it to the conversation. Independent of
// explanation requests: one of each kind may be in flight.
func (a *App) GenerateQuiz(ctx context.Context) error {
	if a.coord.Active(request.KindQuiz) {
		return ErrBusy
	}

	chat, ok := a.engine.ActiveChat()
	if !ok {
		return ErrNoActiveChat
	}
	if chat.Conversation == nil {
		return ErrNoExplanation
	}
	source := chat.Conversation.AssistantText()
	if source == "" {
		return ErrNoExplanation
	}
	topic := chat.Conversation.Topic
	chatID := chat.ID

	opts := a.Options()
	var quiz model.QuizItem
	outcome, err := a.coord.Do(ctx, request.KindQuiz, func(ctx context.Context) error {
		var perr error
		// The quiz derives strictly from text already shown to the user.
		quiz, perr = a.prov.GenerateQuiz(ctx, topic,
			[]model.Message{model.NewAssistantMessage(source)}, opts)
		return perr
	})

	switch outcome {
	case request.OutcomeSuccess:
		a.appendQuiz(chatID, quiz)
		return nil
	case request.OutcomeCancelled:
		return nil
	default:
		log.Printf("WARNING: quiz request failed: %v", err)
		a.appendAssistantMessage(chatID, provider.ApologyText)
		return err
	}
}

// appendQuiz appends a quiz item to the chat's conversation.
func (a *App) appendQuiz(chatID string, quiz model.QuizItem) {
	chat, ok := a.engine.Chat(chatID)
	if !ok || chat.Conversation == nil {
		return
	}
	conv := model.AppendItem(*chat.Conversation, model.QuizItemOf(quiz))
	a.engine.UpdateConversation(chatID, &conv)
}

// appendAssistantMessage appends a plain assistant message.
func (a *App) appendAssistantMessage(chatID, content string) {
	a.engine.AppendMessage(chatID, model.NewAssistantMessage(content))
}
