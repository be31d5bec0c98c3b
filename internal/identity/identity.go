// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity models the external auth session as a stream of
// discrete states.
//
// The auth backend itself is out of scope: something else decides who the
// user is. This package only carries that decision to subscribers as
// ordered, discrete values (not a polled flag), so the reconciliation
// engine can react to sign-in and sign-out exactly once each.
package identity

import (
	"log"
	"sync"
)

// =============================================================================
// STATE
// =============================================================================

// Status is the authentication status of the session.
type Status int

const (
	// Anonymous means no auth session is present.
	Anonymous Status = iota

	// SignedIn means an auth session with a known user id is present.
	SignedIn
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case SignedIn:
		return "signed-in"
	default:
		return "unknown"
	}
}

// State is one discrete identity value. UserID is set only when signed in.
type State struct {
	Status Status
	UserID string
}

// AnonymousState returns the anonymous identity value.
func AnonymousState() State {
	return State{Status: Anonymous}
}

// SignedInState returns a signed-in identity value for userID.
func SignedInState(userID string) State {
	return State{Status: SignedIn, UserID: userID}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Transition classifies the change between two consecutive identity states.
type Transition int

const (
	// TransitionNone means the identity did not change category
	// (steady-state anonymous or steady-state authenticated).
	TransitionNone Transition = iota

	// TransitionSignIn means anonymous became authenticated.
	TransitionSignIn

	// TransitionSignOut means authenticated became anonymous.
	TransitionSignOut

	// TransitionSwitchUser means one authenticated user was replaced by
	// another without an observed sign-out in between.
	TransitionSwitchUser
)

// String returns the string representation of the transition.
func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionSignIn:
		return "sign-in"
	case TransitionSignOut:
		return "sign-out"
	case TransitionSwitchUser:
		return "switch-user"
	default:
		return "unknown"
	}
}

// Classify derives the transition from prev to next.
func Classify(prev, next State) Transition {
	switch {
	case prev.Status == Anonymous && next.Status == SignedIn:
		return TransitionSignIn
	case prev.Status == SignedIn && next.Status == Anonymous:
		return TransitionSignOut
	case prev.Status == SignedIn && next.Status == SignedIn && prev.UserID != next.UserID:
		return TransitionSwitchUser
	default:
		return TransitionNone
	}
}

// =============================================================================
// WATCHER
// =============================================================================

// subscriberBuffer bounds each subscriber's pending events.
const subscriberBuffer = 16

// Watcher fans identity states out to subscribers in order.
type Watcher struct {
	mu      sync.Mutex
	current State
	subs    []chan State
}

// NewWatcher creates a watcher starting in the anonymous state.
func NewWatcher() *Watcher {
	return &Watcher{current: AnonymousState()}
}

// Current returns the latest identity state.
func (w *Watcher) Current() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Subscribe returns a channel that receives every subsequent identity
// state, starting with the current one so new subscribers need no separate
// initial read.
func (w *Watcher) Subscribe() <-chan State {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan State, subscriberBuffer)
	ch <- w.current
	w.subs = append(w.subs, ch)
	return ch
}

// Set publishes a new identity state to all subscribers. States are
// delivered in publish order per subscriber.
func (w *Watcher) Set(next State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current = next
	for _, ch := range w.subs {
		select {
		case ch <- next:
		default:
			log.Printf("WARNING: identity subscriber lagging, dropped state %s", next.Status)
		}
	}
}
