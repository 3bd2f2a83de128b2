/*
 * Copyright 2025 Will Reeves and TouchStream Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mailbox implements a single-slot, last-write-wins handoff between
// one producer context and one consumer context. The producer never blocks:
// an unconsumed value is silently replaced when a newer one arrives. Memory
// use stays constant no matter how far the consumer falls behind.
package mailbox

import "sync/atomic"

// Mailbox is a coalescing cell of capacity one.
type Mailbox[T any] struct {
	slot    atomic.Pointer[T]
	dropped atomic.Uint64
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Put stores v, replacing any value that has not been taken yet.
func (m *Mailbox[T]) Put(v T) {
	if prev := m.slot.Swap(&v); prev != nil {
		m.dropped.Add(1)
	}
}

// Take removes and returns the most recent value, or reports false when the
// mailbox is empty. Take never blocks.
func (m *Mailbox[T]) Take() (T, bool) {
	p := m.slot.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}

	return *p, true
}

// Dropped returns how many values were replaced before being taken.
func (m *Mailbox[T]) Dropped() uint64 {
	return m.dropped.Load()
}
