// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		prev State
		next State
		want Transition
	}{
		{"anonymous to signed-in", AnonymousState(), SignedInState("u1"), TransitionSignIn},
		{"signed-in to anonymous", SignedInState("u1"), AnonymousState(), TransitionSignOut},
		{"steady anonymous", AnonymousState(), AnonymousState(), TransitionNone},
		{"steady same user", SignedInState("u1"), SignedInState("u1"), TransitionNone},
		{"user switch", SignedInState("u1"), SignedInState("u2"), TransitionSwitchUser},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.prev, tc.next))
		})
	}
}

func TestWatcher_SubscribeDeliversCurrentThenUpdates(t *testing.T) {
	w := NewWatcher()
	ch := w.Subscribe()

	got := <-ch
	assert.Equal(t, AnonymousState(), got)

	w.Set(SignedInState("u1"))
	got = <-ch
	assert.Equal(t, SignedInState("u1"), got)
	assert.Equal(t, SignedInState("u1"), w.Current())
}

func TestWatcher_OrderedDelivery(t *testing.T) {
	w := NewWatcher()
	ch := w.Subscribe()
	<-ch // initial anonymous

	w.Set(SignedInState("u1"))
	w.Set(AnonymousState())
	w.Set(SignedInState("u2"))

	require.Equal(t, SignedInState("u1"), <-ch)
	require.Equal(t, AnonymousState(), <-ch)
	require.Equal(t, SignedInState("u2"), <-ch)
}
