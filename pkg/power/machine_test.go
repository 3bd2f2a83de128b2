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

package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

type fixture struct {
	machine *Machine
	clock   time.Time
	onCount int
	off     int
}

func newFixture() *fixture {
	f := &fixture{clock: time.Unix(10000, 0)}

	f.machine = New(logger.NewTestLogger(),
		WithIdleTimeout(3*time.Hour),
		WithClock(func() time.Time { return f.clock }),
		WithDisplayCommands(
			func() error { f.onCount++; return nil },
			func() error { f.off++; return nil },
		),
	)

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func TestInitialStateAwake(t *testing.T) {
	f := newFixture()

	assert.Equal(t, models.PowerAwake, f.machine.State())
	assert.Zero(t, f.onCount, "no display command on construction")
}

func TestSleepsAfterIdleTimeoutExactlyOnce(t *testing.T) {
	f := newFixture()

	f.advance(3*time.Hour + time.Minute)

	f.machine.Check(false)
	assert.Equal(t, models.PowerAsleep, f.machine.State())
	assert.Equal(t, 1, f.off)

	// Repeated checks while asleep do not re-fire the action.
	f.advance(time.Hour)
	f.machine.Check(false)
	f.machine.Check(false)
	assert.Equal(t, 1, f.off)
}

func TestDoesNotSleepBeforeTimeout(t *testing.T) {
	f := newFixture()

	f.advance(2 * time.Hour)

	f.machine.Check(false)
	assert.Equal(t, models.PowerAwake, f.machine.State())
	assert.Zero(t, f.off)
}

func TestStreamingPreventsSleep(t *testing.T) {
	f := newFixture()

	// The stream keeps refreshing activity across several check windows.
	for i := 0; i < 5; i++ {
		f.advance(2 * time.Hour)
		f.machine.Check(true)
	}

	f.advance(time.Hour)
	f.machine.Check(false)

	assert.Equal(t, models.PowerAwake, f.machine.State())
	assert.Zero(t, f.off)
}

func TestTouchWakesExactlyOnceAndResetsIdle(t *testing.T) {
	f := newFixture()

	f.advance(4 * time.Hour)
	f.machine.Check(false)
	assert.Equal(t, models.PowerAsleep, f.machine.State())

	f.machine.RecordActivity()
	assert.Equal(t, models.PowerAwake, f.machine.State())
	assert.Equal(t, 1, f.onCount)

	// Idle clock restarted: no sleep inside a fresh window.
	f.advance(time.Hour)
	f.machine.Check(false)
	assert.Equal(t, models.PowerAwake, f.machine.State())

	// Touch while awake is an idempotent no-op for the display action.
	f.machine.RecordActivity()
	assert.Equal(t, 1, f.onCount)
}

func TestStreamStartWakes(t *testing.T) {
	f := newFixture()

	f.advance(4 * time.Hour)
	f.machine.Check(false)
	assert.Equal(t, models.PowerAsleep, f.machine.State())

	f.machine.NotifyStreamStarted()
	assert.Equal(t, models.PowerAwake, f.machine.State())
	assert.Equal(t, 1, f.onCount)
}
