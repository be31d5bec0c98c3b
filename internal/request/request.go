// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request coordinates in-flight provider work by kind.
//
// The app allows at most one explanation request and one quiz request at a
// time. Starting a new request of a kind supersedes the previous one of
// the same kind: the old context is cancelled and its outcome is recorded
// as cancelled, never as a failure. Every finished request settles into
// exactly one of three outcomes.
package request

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// =============================================================================
// KINDS AND OUTCOMES
// =============================================================================

// Kind identifies a request category. Requests of different kinds run
// independently.
type Kind string

const (
	// KindExplanation covers ask, follow-up, and edit-message requests.
	KindExplanation Kind = "explanation"

	// KindQuiz covers quiz generation requests.
	KindQuiz Kind = "quiz"
)

// Outcome is the terminal result of a request.
type Outcome int

const (
	// OutcomeSuccess means the request finished and its result was applied.
	OutcomeSuccess Outcome = iota

	// OutcomeCancelled means the request was superseded or explicitly
	// cancelled; its result, if any, was discarded.
	OutcomeCancelled

	// OutcomeFailed means the request finished with an error that was not
	// a cancellation.
	OutcomeFailed
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Classify maps an error from a finished request to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// inflight tracks one running request.
type inflight struct {
	id     uint64
	cancel context.CancelFunc
}

// Coordinator enforces the one-request-per-kind rule. Safe for concurrent
// use.
type Coordinator struct {
	mu      sync.Mutex
	current map[Kind]*inflight
	nextID  atomic.Uint64
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{current: make(map[Kind]*inflight)}
}

// Begin registers a new request of the given kind, cancelling any request
// of the same kind already in flight. It returns a context derived from
// parent and a release function the caller must invoke when the request
// settles; release is idempotent.
func (c *Coordinator) Begin(parent context.Context, kind Kind) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	entry := &inflight{id: c.nextID.Add(1), cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.current[kind]; ok {
		prev.cancel()
	}
	c.current[kind] = entry
	c.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			c.mu.Lock()
			// Only clear the slot if a newer request has not replaced us.
			if cur, ok := c.current[kind]; ok && cur.id == entry.id {
				delete(c.current, kind)
			}
			c.mu.Unlock()
		})
	}
	return ctx, release
}

// Cancel cancels the in-flight request of the given kind, if any.
func (c *Coordinator) Cancel(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.current[kind]; ok {
		entry.cancel()
	}
}

// CancelAll cancels every in-flight request.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.current {
		entry.cancel()
	}
}

// Active reports whether a request of the given kind is in flight.
func (c *Coordinator) Active(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.current[kind]
	return ok
}

// Do runs fn under the one-per-kind rule and classifies its outcome. When
// fn returns because its context was cancelled, the outcome is
// OutcomeCancelled even if fn wrapped the error.
func (c *Coordinator) Do(parent context.Context, kind Kind, fn func(ctx context.Context) error) (Outcome, error) {
	ctx, release := c.Begin(parent, kind)
	defer release()

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		return OutcomeCancelled, err
	}
	return Classify(err), err
}
