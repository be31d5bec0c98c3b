// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify(nil))
	assert.Equal(t, OutcomeCancelled, Classify(context.Canceled))
	assert.Equal(t, OutcomeCancelled, Classify(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.Equal(t, OutcomeFailed, Classify(errors.New("boom")))
}

func TestDo_Success(t *testing.T) {
	c := NewCoordinator()
	outcome, err := c.Do(context.Background(), KindExplanation, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.False(t, c.Active(KindExplanation))
}

func TestDo_Failure(t *testing.T) {
	c := NewCoordinator()
	boom := errors.New("boom")
	outcome, err := c.Do(context.Background(), KindExplanation, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestBegin_SupersedesSameKind(t *testing.T) {
	c := NewCoordinator()

	ctx1, release1 := c.Begin(context.Background(), KindExplanation)
	defer release1()

	ctx2, release2 := c.Begin(context.Background(), KindExplanation)
	defer release2()

	// The first request's context is cancelled; the second lives on.
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.True(t, c.Active(KindExplanation))
}

func TestBegin_KindsAreIndependent(t *testing.T) {
	c := NewCoordinator()

	ctxExplain, releaseExplain := c.Begin(context.Background(), KindExplanation)
	defer releaseExplain()
	_, releaseQuiz := c.Begin(context.Background(), KindQuiz)
	defer releaseQuiz()

	assert.NoError(t, ctxExplain.Err(), "quiz request must not cancel explanation")
	assert.True(t, c.Active(KindExplanation))
	assert.True(t, c.Active(KindQuiz))
}

func TestRelease_DoesNotClearNewerRequest(t *testing.T) {
	c := NewCoordinator()

	_, release1 := c.Begin(context.Background(), KindQuiz)
	_, release2 := c.Begin(context.Background(), KindQuiz)

	// Releasing the superseded request must not evict the active one.
	release1()
	assert.True(t, c.Active(KindQuiz))

	release2()
	assert.False(t, c.Active(KindQuiz))
}

func TestCancel(t *testing.T) {
	c := NewCoordinator()

	ctx, release := c.Begin(context.Background(), KindExplanation)
	defer release()

	c.Cancel(KindExplanation)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// Cancelling an idle kind is a no-op.
	c.Cancel(KindQuiz)
}

func TestCancelAll(t *testing.T) {
	c := NewCoordinator()

	ctx1, r1 := c.Begin(context.Background(), KindExplanation)
	defer r1()
	ctx2, r2 := c.Begin(context.Background(), KindQuiz)
	defer r2()

	c.CancelAll()
	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
}

func TestDo_CancelledMidFlight(t *testing.T) {
	c := NewCoordinator()

	started := make(chan struct{})
	go func() {
		<-started
		c.Cancel(KindExplanation)
	}()

	outcome, err := c.Do(context.Background(), KindExplanation, func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			return fmt.Errorf("request aborted: %w", ctx.Err())
		case <-time.After(5 * time.Second):
			return errors.New("cancel never arrived")
		}
	})
	require.Error(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
}

func TestDo_SupersededOutcomeIsCancelled(t *testing.T) {
	c := NewCoordinator()

	firstStarted := make(chan struct{})
	firstDone := make(chan struct{})
	var firstOutcome Outcome

	go func() {
		defer close(firstDone)
		firstOutcome, _ = c.Do(context.Background(), KindQuiz, func(ctx context.Context) error {
			close(firstStarted)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-firstStarted
	outcome, err := c.Do(context.Background(), KindQuiz, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	<-firstDone
	assert.Equal(t, OutcomeCancelled, firstOutcome)
}
