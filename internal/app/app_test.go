// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/splain/internal/engine"
	"github.com/jeranaias/splain/internal/model"
	"github.com/jeranaias/splain/internal/provider"
	"github.com/jeranaias/splain/internal/request"
	"github.com/jeranaias/splain/internal/reveal"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeProvider struct {
	mu        sync.Mutex
	answers   []string
	calls     int
	explainFn func(ctx context.Context, topic string) (string, error)
	quizFn    func(ctx context.Context, topic string) (model.QuizItem, error)
}

func (f *fakeProvider) Explain(ctx context.Context, topic string, history []model.Message, opts provider.Options) (string, error) {
	f.mu.Lock()
	f.calls++
	fn := f.explainFn
	var canned string
	if len(f.answers) > 0 {
		canned = f.answers[0]
		f.answers = f.answers[1:]
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, topic)
	}
	if canned == "" {
		canned = "answer to " + topic
	}
	return canned, nil
}

func (f *fakeProvider) GenerateQuiz(ctx context.Context, topic string, history []model.Message, opts provider.Options) (model.QuizItem, error) {
	if f.quizFn != nil {
		return f.quizFn(ctx, topic)
	}
	return model.QuizItem{
		ID:        "quiz-1",
		Topic:     topic,
		Questions: provider.FallbackQuestions(topic),
	}, nil
}

type fakeLocal struct{}

func (fakeLocal) Save([]model.Chat, string) error     { return nil }
func (fakeLocal) Load() ([]model.Chat, string, error) { return nil, "", nil }
func (fakeLocal) Clear() error                        { return nil }

type fakeRemote struct{}

func (fakeRemote) Insert(context.Context, string, model.ChatRecord) (string, error) {
	return "", errors.New("unused")
}
func (fakeRemote) Update(context.Context, string, string, model.ChatRecord) error { return nil }
func (fakeRemote) Delete(context.Context, string, string) error                   { return nil }
func (fakeRemote) ListByUser(context.Context, string) ([]model.ChatRecord, error) {
	return nil, nil
}

// fakeScheduler queues reveal steps so tests drive them explicitly.
type fakeScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (f *fakeScheduler) Schedule(d time.Duration, fn func()) {
	f.mu.Lock()
	f.pending = append(f.pending, fn)
	f.mu.Unlock()
}

func (f *fakeScheduler) pop() (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, false
	}
	fn := f.pending[0]
	f.pending = f.pending[1:]
	return fn, true
}

func (f *fakeScheduler) drain() {
	for {
		fn, ok := f.pop()
		if !ok {
			return
		}
		fn()
	}
}

func (f *fakeScheduler) runSteps(n int) {
	for i := 0; i < n; i++ {
		fn, ok := f.pop()
		if !ok {
			return
		}
		fn()
	}
}

func newTestApp(prov *fakeProvider) (*App, *fakeScheduler) {
	sched := &fakeScheduler{}
	eng := engine.New(fakeLocal{}, fakeRemote{})
	a := New(eng, prov, WithRevealOptions(
		reveal.WithScheduler(sched),
		reveal.WithRand(rand.New(rand.NewSource(1)))))
	return a, sched
}

// items returns the active chat's conversation items.
func items(t *testing.T, a *App) []model.Item {
	t.Helper()
	chat, ok := a.Engine().ActiveChat()
	require.True(t, ok)
	if chat.Conversation == nil {
		return nil
	}
	return chat.Conversation.Items
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_RevealsAndCommits(t *testing.T) {
	prov := &fakeProvider{answers: []string{"Because of Rayleigh scattering."}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "why is the sky blue?"))

	// Provider responded; the placeholder is in place and the reveal is live.
	got := items(t, a)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsUserMessage())
	assert.True(t, got[1].IsAssistantMessage())
	assert.Equal(t, "", got[1].Message.Content)
	assert.Equal(t, reveal.StateRevealing, a.RevealState())
	assert.True(t, a.Busy())

	sched.drain()

	got = items(t, a)
	require.Len(t, got, 2)
	assert.Equal(t, "Because of Rayleigh scattering.", got[1].Message.Content)
	assert.Equal(t, reveal.StateCompleted, a.RevealState())
	assert.False(t, a.Busy())
}

func TestAsk_FollowUpCarriesHistory(t *testing.T) {
	var gotHistory int
	prov := &fakeProvider{answers: []string{"first answer"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "first question"))
	sched.drain()

	// Swap in an observing provider for the follow-up.
	a.prov = &historyObserver{inner: prov, out: &gotHistory}

	require.NoError(t, a.Ask(context.Background(), "tell me more"))
	sched.drain()

	assert.Equal(t, 2, gotHistory, "follow-up history must contain the first exchange")
	got := items(t, a)
	require.Len(t, got, 4)
	assert.Equal(t, "follow-up answer", got[3].Message.Content)
}

type historyObserver struct {
	inner *fakeProvider
	out   *int
}

func (h *historyObserver) Explain(ctx context.Context, topic string, history []model.Message, opts provider.Options) (string, error) {
	*h.out = len(history)
	return "follow-up answer", nil
}

func (h *historyObserver) GenerateQuiz(ctx context.Context, topic string, history []model.Message, opts provider.Options) (model.QuizItem, error) {
	return h.inner.GenerateQuiz(ctx, topic, history, opts)
}

func TestAsk_BusyWhileRevealing(t *testing.T) {
	prov := &fakeProvider{answers: []string{"a long answer being revealed"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "q1"))
	assert.ErrorIs(t, a.Ask(context.Background(), "q2"), ErrBusy)

	sched.drain()
	require.NoError(t, a.Ask(context.Background(), "q2"))
	sched.drain()
}

func TestAsk_ProviderFailureLeavesApology(t *testing.T) {
	prov := &fakeProvider{}
	prov.explainFn = func(ctx context.Context, topic string) (string, error) {
		return "", errors.New("backend exploded")
	}
	a, _ := newTestApp(prov)

	err := a.Ask(context.Background(), "doomed question")
	require.Error(t, err)

	got := items(t, a)
	require.Len(t, got, 2)
	assert.True(t, got[1].IsAssistantMessage())
	assert.Equal(t, provider.ApologyText, got[1].Message.Content)
	assert.False(t, a.Busy())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_BeforeProviderResponds(t *testing.T) {
	prov := &fakeProvider{}
	started := make(chan struct{})
	prov.explainFn = func(ctx context.Context, topic string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	a, _ := newTestApp(prov)

	done := make(chan error, 1)
	go func() { done <- a.Ask(context.Background(), "slow question") }()

	<-started
	a.Cancel()
	require.NoError(t, <-done, "cancellation is not an error")

	// No trailing empty assistant placeholder survives.
	got := items(t, a)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsUserMessage())
	assert.False(t, a.Busy())
}

func TestCancel_DuringReveal(t *testing.T) {
	prov := &fakeProvider{answers: []string{"a fairly long answer that keeps revealing for a while"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "q"))
	sched.runSteps(2)
	require.Equal(t, reveal.StateRevealing, a.RevealState())

	a.Cancel()
	sched.drain() // stale steps are no-ops

	got := items(t, a)
	require.Len(t, got, 1, "the unfinished placeholder must be removed")
	assert.True(t, got[0].IsUserMessage())
	assert.Equal(t, reveal.StateCancelled, a.RevealState())
	assert.False(t, a.Busy())
}

func TestCancel_Idempotent(t *testing.T) {
	prov := &fakeProvider{}
	a, _ := newTestApp(prov)

	a.Cancel()
	a.Cancel()
	a.CancelQuiz()
}

// =============================================================================
// EDITING
// =============================================================================

func TestEditMessage_TruncatesAndResubmits(t *testing.T) {
	prov := &fakeProvider{answers: []string{"A0", "A1", "A2"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "U0"))
	sched.drain()
	require.NoError(t, a.Ask(context.Background(), "U1"))
	sched.drain()
	require.NoError(t, a.Ask(context.Background(), "U2"))
	sched.drain()
	require.Len(t, items(t, a), 6) // U0 A0 U1 A1 U2 A2

	prov.mu.Lock()
	prov.answers = []string{"A1 prime"}
	prov.mu.Unlock()

	require.NoError(t, a.EditMessage(context.Background(), 2, "U1 prime"))
	sched.drain()
	a.Engine().Wait()

	got := items(t, a)
	require.Len(t, got, 4)
	assert.Equal(t, "U0", got[0].Message.Content)
	assert.Equal(t, "A0", got[1].Message.Content)
	assert.Equal(t, "U1 prime", got[2].Message.Content)
	assert.Equal(t, "A1 prime", got[3].Message.Content)
}

func TestEditMessage_RejectsNonUserTargets(t *testing.T) {
	prov := &fakeProvider{answers: []string{"A0"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "U0"))
	sched.drain()

	assert.ErrorIs(t, a.EditMessage(context.Background(), 1, "nope"), ErrNotUserMessage)
	assert.ErrorIs(t, a.EditMessage(context.Background(), 99, "nope"), ErrNotUserMessage)
	assert.ErrorIs(t, a.EditMessage(context.Background(), -1, "nope"), ErrNotUserMessage)
}

// =============================================================================
// QUIZZES
// =============================================================================

func TestGenerateQuiz_AppendsQuizItem(t *testing.T) {
	prov := &fakeProvider{answers: []string{"an explanation about volcanoes"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "volcanoes"))
	sched.drain()

	require.NoError(t, a.GenerateQuiz(context.Background()))

	got := items(t, a)
	require.Len(t, got, 3)
	assert.Equal(t, model.ItemQuiz, got[2].Kind)
	assert.NotEmpty(t, got[2].Quiz.Questions)
}

func TestGenerateQuiz_RequiresExplanation(t *testing.T) {
	prov := &fakeProvider{}
	a, _ := newTestApp(prov)

	a.Engine().CreateNewChat("", "")
	assert.ErrorIs(t, a.GenerateQuiz(context.Background()), ErrNoExplanation)

	// A user message alone is not enough either.
	a.Engine().AppendMessage(a.Engine().ActiveID(), model.NewUserMessage("hello"))
	assert.ErrorIs(t, a.GenerateQuiz(context.Background()), ErrNoExplanation)
}

func TestGenerateQuiz_SourcesFromAssistantText(t *testing.T) {
	prov := &fakeProvider{answers: []string{"lava is molten rock"}}
	var gotSource string
	prov.quizFn = nil
	a, sched := newTestApp(prov)
	a.prov = &quizSourceObserver{inner: prov, out: &gotSource}

	require.NoError(t, a.Ask(context.Background(), "volcanoes"))
	sched.drain()
	require.NoError(t, a.GenerateQuiz(context.Background()))

	assert.Equal(t, "lava is molten rock", gotSource,
		"the quiz must derive from text already shown to the user")
}

type quizSourceObserver struct {
	inner *fakeProvider
	out   *string
}

func (q *quizSourceObserver) Explain(ctx context.Context, topic string, history []model.Message, opts provider.Options) (string, error) {
	return q.inner.Explain(ctx, topic, history, opts)
}

func (q *quizSourceObserver) GenerateQuiz(ctx context.Context, topic string, history []model.Message, opts provider.Options) (model.QuizItem, error) {
	if len(history) > 0 {
		*q.out = history[0].Content
	}
	return q.inner.GenerateQuiz(ctx, topic, history, opts)
}

func TestGenerateQuiz_FailureAppendsApology(t *testing.T) {
	prov := &fakeProvider{answers: []string{"some explanation"}}
	prov.quizFn = func(ctx context.Context, topic string) (model.QuizItem, error) {
		return model.QuizItem{}, fmt.Errorf("quiz backend down")
	}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "topic"))
	sched.drain()

	err := a.GenerateQuiz(context.Background())
	require.Error(t, err)

	got := items(t, a)
	last := got[len(got)-1]
	require.True(t, last.IsAssistantMessage())
	assert.Equal(t, provider.ApologyText, last.Message.Content)
}

// =============================================================================
// SETTINGS AND SURPRISE
// =============================================================================

func TestSurpriseMe(t *testing.T) {
	prov := &fakeProvider{}
	a, sched := newTestApp(prov)

	topic, err := a.SurpriseMe(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, topic)
	sched.drain()

	got := items(t, a)
	require.Len(t, got, 2)
	assert.Equal(t, topic, got[0].Message.Content)
}

func TestOptionsRoundTrip(t *testing.T) {
	prov := &fakeProvider{}
	a, _ := newTestApp(prov)

	opts := provider.Options{Complexity: 85, Length: provider.LengthLong}
	a.SetOptions(opts)
	assert.Equal(t, opts, a.Options())
}

func TestOutcomeIndependence_QuizWhileExplanationIdle(t *testing.T) {
	prov := &fakeProvider{answers: []string{"explained"}}
	a, sched := newTestApp(prov)

	require.NoError(t, a.Ask(context.Background(), "topic"))
	sched.drain()

	// Explanation idle, quiz runs; coordinator kinds are independent.
	assert.False(t, a.coord.Active(request.KindExplanation))
	require.NoError(t, a.GenerateQuiz(context.Background()))
}
