// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reveal implements the typed-text presentation of a completed
// response.
//
// The provider returns the full explanation at once; this package discloses
// it incrementally at a human-like cadence. The reveal is an explicit state
// machine (Idle -> Revealing -> Completed | Cancelled) driven by a single
// scheduler abstraction: every advance step schedules the next, so no two
// steps for the same reveal ever run concurrently. Cancellation is a state
// transition, not a flag.
package reveal

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle state of a reveal.
type State int

const (
	// StateIdle means no reveal has been started.
	StateIdle State = iota

	// StateRevealing means text is being disclosed.
	StateRevealing

	// StateCompleted means the full target text has been revealed and the
	// commit callback has fired.
	StateCompleted

	// StateCancelled means the reveal was stopped before completion.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRevealing:
		return "revealing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrRevealInProgress is returned by Start while a reveal is active.
// The previous reveal must be cancelled (or allowed to complete) first.
var ErrRevealInProgress = errors.New("reveal already in progress")

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler runs a function after a delay. The production implementation
// uses time.AfterFunc; tests substitute a synchronous fake so reveals are
// deterministic and instant.
type Scheduler interface {
	Schedule(d time.Duration, fn func())
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

// Schedule implements Scheduler.
func (TimerScheduler) Schedule(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// =============================================================================
// CADENCE
// =============================================================================

// Cadence tuning. Delays mimic typing: quick after ordinary characters,
// a beat after clause punctuation, a longer pause after sentence endings.
const (
	minCharDelay = 10 * time.Millisecond
	maxCharDelay = 30 * time.Millisecond

	minClauseDelay = 40 * time.Millisecond
	maxClauseDelay = 90 * time.Millisecond

	minSentenceDelay = 100 * time.Millisecond
	maxSentenceDelay = 400 * time.Millisecond

	// burstChance is the probability of a multi-character burst,
	// like a quick run of keystrokes.
	burstChance = 0.1
)

// isSentenceEnd reports sentence-ending punctuation.
func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isClause reports clause punctuation.
func isClause(r rune) bool {
	return r == ',' || r == ';' || r == ':'
}

// isBoundary reports a word or punctuation boundary, where chunks prefer
// to end.
func isBoundary(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || isSentenceEnd(r) || isClause(r)
}

// =============================================================================
// PRESENTER
// =============================================================================

// Presenter reveals one target string at a time for a single conversation
// slot. At most one reveal is active per presenter.
type Presenter struct {
	mu    sync.Mutex
	state State

	target []rune
	pos    int

	// gen invalidates scheduled steps from a cancelled or replaced reveal:
	// a step only runs if its generation still matches.
	gen uint64

	sched Scheduler
	rng   *rand.Rand

	onProgress func(revealed string)
	onCommit   func(full string)
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithScheduler substitutes the step scheduler.
func WithScheduler(s Scheduler) Option {
	return func(p *Presenter) { p.sched = s }
}

// WithRand substitutes the cadence randomness source, for deterministic
// tests.
func WithRand(rng *rand.Rand) Option {
	return func(p *Presenter) { p.rng = rng }
}

// WithProgress sets a callback invoked with the revealed-so-far text after
// every advance step.
func WithProgress(fn func(revealed string)) Option {
	return func(p *Presenter) { p.onProgress = fn }
}

// New creates a presenter. onCommit is invoked exactly once when a reveal
// reaches the end of its target naturally; it is never invoked for a
// cancelled reveal.
func New(onCommit func(full string), opts ...Option) *Presenter {
	p := &Presenter{
		state:    StateIdle,
		sched:    TimerScheduler{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		onCommit: onCommit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current reveal state.
func (p *Presenter) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Revealed returns the text disclosed so far.
func (p *Presenter) Revealed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.target[:p.pos])
}

// Start begins revealing targetText from the beginning. It fails with
// ErrRevealInProgress if a reveal is already active; callers replace a
// running reveal by cancelling first.
func (p *Presenter) Start(targetText string) error {
	p.mu.Lock()
	if p.state == StateRevealing {
		p.mu.Unlock()
		return ErrRevealInProgress
	}

	p.state = StateRevealing
	p.target = []rune(targetText)
	p.pos = 0
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.sched.Schedule(0, func() { p.step(gen) })
	return nil
}

// Cancel stops an active reveal immediately. Safe to call from any state,
// any number of times; cancelling an Idle or Completed presenter is a
// no-op. The caller is responsible for discarding any placeholder message
// the cancelled reveal never committed.
func (p *Presenter) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRevealing {
		return
	}
	p.state = StateCancelled
	p.gen++
}

// step advances the reveal by one chunk and schedules the next step.
func (p *Presenter) step(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != StateRevealing {
		p.mu.Unlock()
		return
	}

	p.pos = p.nextPosLocked()
	revealed := string(p.target[:p.pos])
	done := p.pos >= len(p.target)

	var delay time.Duration
	if done {
		p.state = StateCompleted
	} else {
		delay = p.delayLocked()
	}

	onProgress := p.onProgress
	onCommit := p.onCommit
	full := string(p.target)
	p.mu.Unlock()

	if onProgress != nil {
		onProgress(revealed)
	}
	if done {
		if onCommit != nil {
			onCommit(full)
		}
		return
	}
	p.sched.Schedule(delay, func() { p.step(gen) })
}

// nextPosLocked picks the end of the next chunk: one or two characters
// normally, an occasional burst, stretched to a nearby word or punctuation
// boundary when one is close. Caller must hold the lock.
func (p *Presenter) nextPosLocked() int {
	size := 1 + p.rng.Intn(2)
	if p.rng.Float64() < burstChance {
		size = 2 + p.rng.Intn(5)
	}

	next := p.pos + size
	if next > len(p.target) {
		return len(p.target)
	}

	// Stretch up to three characters to land on a boundary, so chunks
	// tend to end at whole words.
	for extra := 0; extra < 3 && next < len(p.target); extra++ {
		if isBoundary(p.target[next-1]) {
			break
		}
		next++
	}
	if next > len(p.target) {
		next = len(p.target)
	}
	return next
}

// delayLocked picks the pause before the next chunk based on the last
// revealed character. Caller must hold the lock.
func (p *Presenter) delayLocked() time.Duration {
	last := p.target[p.pos-1]
	switch {
	case isSentenceEnd(last):
		return randDuration(p.rng, minSentenceDelay, maxSentenceDelay)
	case isClause(last):
		return randDuration(p.rng, minClauseDelay, maxClauseDelay)
	default:
		return randDuration(p.rng, minCharDelay, maxCharDelay)
	}
}

// randDuration returns a uniform duration in [lo, hi].
func randDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}
