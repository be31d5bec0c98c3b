// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reveal

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScheduler queues scheduled functions and runs them on demand, so
// reveals complete deterministically without timers.
type fakeScheduler struct {
	pending []func()
}

func (f *fakeScheduler) Schedule(d time.Duration, fn func()) {
	f.pending = append(f.pending, fn)
}

// drain runs scheduled steps until none remain.
func (f *fakeScheduler) drain() {
	for len(f.pending) > 0 {
		fn := f.pending[0]
		f.pending = f.pending[1:]
		fn()
	}
}

// runSteps runs at most n scheduled steps.
func (f *fakeScheduler) runSteps(n int) {
	for i := 0; i < n && len(f.pending) > 0; i++ {
		fn := f.pending[0]
		f.pending = f.pending[1:]
		fn()
	}
}

func newTestPresenter(onCommit func(string)) (*Presenter, *fakeScheduler) {
	sched := &fakeScheduler{}
	p := New(onCommit,
		WithScheduler(sched),
		WithRand(rand.New(rand.NewSource(42))))
	return p, sched
}

func TestReveal_CompletesWithFullText(t *testing.T) {
	var committed []string
	p, sched := newTestPresenter(func(full string) {
		committed = append(committed, full)
	})

	const target = "Rayleigh scattering favors short wavelengths. That is why the sky looks blue!"
	require.NoError(t, p.Start(target))
	sched.drain()

	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, target, p.Revealed())
	require.Len(t, committed, 1, "commit must fire exactly once")
	assert.Equal(t, target, committed[0])
}

func TestReveal_ProgressIsMonotonicPrefix(t *testing.T) {
	var snapshots []string
	sched := &fakeScheduler{}
	const target = "short answer, with a clause; and an end."
	p := New(nil,
		WithScheduler(sched),
		WithRand(rand.New(rand.NewSource(7))),
		WithProgress(func(revealed string) {
			snapshots = append(snapshots, revealed)
		}))

	require.NoError(t, p.Start(target))
	sched.drain()

	require.NotEmpty(t, snapshots)
	prev := ""
	for _, snap := range snapshots {
		assert.True(t, len(snap) > len(prev), "revealed text must grow")
		assert.Equal(t, snap, target[:len(snap)], "revealed text must be a prefix of the target")
		prev = snap
	}
	assert.Equal(t, target, snapshots[len(snapshots)-1])
}

func TestReveal_StartWhileRevealingFails(t *testing.T) {
	p, sched := newTestPresenter(nil)

	require.NoError(t, p.Start("first"))
	assert.ErrorIs(t, p.Start("second"), ErrRevealInProgress)

	sched.drain()
	assert.Equal(t, "first", p.Revealed())
}

func TestReveal_CancelStopsDisclosureAndSkipsCommit(t *testing.T) {
	commits := 0
	p, sched := newTestPresenter(func(string) { commits++ })

	require.NoError(t, p.Start("a fairly long target string that will not finish"))
	sched.runSteps(2)
	partial := p.Revealed()

	p.Cancel()
	sched.drain() // stale steps must be no-ops

	assert.Equal(t, StateCancelled, p.State())
	assert.Equal(t, partial, p.Revealed())
	assert.Zero(t, commits)
}

func TestReveal_CancelSafeFromAnyState(t *testing.T) {
	p, sched := newTestPresenter(nil)

	p.Cancel() // idle
	assert.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Start("done quickly."))
	sched.drain()
	p.Cancel() // completed
	p.Cancel() // repeated
	assert.Equal(t, StateCompleted, p.State())
}

func TestReveal_RestartAfterCancel(t *testing.T) {
	var committed []string
	p, sched := newTestPresenter(func(full string) {
		committed = append(committed, full)
	})

	require.NoError(t, p.Start("abandoned attempt"))
	sched.runSteps(1)
	p.Cancel()

	require.NoError(t, p.Start("second try."))
	sched.drain()

	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, "second try.", p.Revealed())
	assert.Equal(t, []string{"second try."}, committed)
}

func TestReveal_EmptyTarget(t *testing.T) {
	commits := 0
	p, sched := newTestPresenter(func(string) { commits++ })

	require.NoError(t, p.Start(""))
	sched.drain()

	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, "", p.Revealed())
	assert.Equal(t, 1, commits)
}

func TestReveal_MultibyteTarget(t *testing.T) {
	p, sched := newTestPresenter(nil)

	const target = "héllo wörld — ünïcode text. 日本語もある!"
	require.NoError(t, p.Start(target))
	sched.drain()

	assert.Equal(t, target, p.Revealed())
}
