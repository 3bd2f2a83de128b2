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

package capture

import (
	"sync"
	"time"
)

// Signal is declared lost when the measured rate drops below this while a
// signal was previously present.
const signalLossThresholdFPS = 1.0

// minimum wall-time window before a new rate is computed
const minRateWindow = time.Second

// RateTracker measures frame arrival rate from the monotonic arrival counter
// and derives signal presence. Driven by the 1 Hz heartbeat.
type RateTracker struct {
	mu        sync.Mutex
	now       func() time.Time
	lastCheck time.Time
	lastCount uint64
	fps       float64
	hasSignal bool
}

// NewRateTracker creates a tracker. A nil clock uses time.Now.
func NewRateTracker(now func() time.Time) *RateTracker {
	if now == nil {
		now = time.Now
	}

	return &RateTracker{
		now:       now,
		lastCheck: now(),
	}
}

// Update recomputes the measured rate from the current arrival count. It
// reports true exactly when the signal flips from present to lost.
func (r *RateTracker) Update(arrivals uint64) (fps float64, lostSignal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.now().Sub(r.lastCheck)
	if elapsed < minRateWindow {
		return r.fps, false
	}

	r.fps = float64(arrivals-r.lastCount) / elapsed.Seconds()
	r.lastCount = arrivals
	r.lastCheck = r.now()

	if r.fps < signalLossThresholdFPS && r.hasSignal {
		r.hasSignal = false
		return r.fps, true
	}

	return r.fps, false
}

// MarkSignal records that a frame reached the rendering boundary, clearing
// any no-signal condition.
func (r *RateTracker) MarkSignal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hasSignal = true
}

// HasSignal reports current signal presence.
func (r *RateTracker) HasSignal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasSignal
}

// FPS returns the last measured rate.
func (r *RateTracker) FPS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.fps
}
