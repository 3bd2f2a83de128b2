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

package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeEmpty(t *testing.T) {
	m := New[int]()

	v, ok := m.Take()
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestPutTake(t *testing.T) {
	m := New[string]()

	m.Put("a")

	v, ok := m.Take()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = m.Take()
	assert.False(t, ok, "slot must be empty after take")
}

func TestCoalescingKeepsNewest(t *testing.T) {
	m := New[int]()

	for i := 0; i < 100; i++ {
		m.Put(i)
	}

	v, ok := m.Take()
	require.True(t, ok)
	assert.Equal(t, 99, v, "consumer observes only the most recent value")
	assert.Equal(t, uint64(99), m.Dropped())
}

func TestProducerNeverBlocks(t *testing.T) {
	m := New[[]byte]()

	// No consumer at all; flooding the mailbox must terminate and must not
	// retain more than one buffer.
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			buf := make([]byte, 1024)
			for i := 0; i < 10000; i++ {
				m.Put(buf)
			}
		}()
	}

	wg.Wait()

	_, ok := m.Take()
	assert.True(t, ok)

	_, ok = m.Take()
	assert.False(t, ok, "at most one sample outstanding")
}
