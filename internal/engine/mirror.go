// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "sync"

// mirrorQueue runs store-mirroring tasks strictly in enqueue order, one at
// a time. Each chat gets its own queue so a later mutation's mirror can
// never overtake an earlier one and resurrect stale content, while
// different chats still mirror in parallel.
type mirrorQueue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func newMirrorQueue() *mirrorQueue {
	return &mirrorQueue{}
}

// enqueue appends a task and starts a drain worker if none is running.
// Never blocks.
func (q *mirrorQueue) enqueue(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
}

// drain pops and runs tasks until the queue is empty.
func (q *mirrorQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
