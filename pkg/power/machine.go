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

// Package power sleeps and wakes the display based on idle time, streaming
// activity, and touch events. Display power itself is an opaque OS command.
package power

import (
	"os/exec"
	"sync"
	"time"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

// DefaultIdleTimeout is how long the display stays on without activity.
const DefaultIdleTimeout = 3 * time.Hour

// Machine is the display power state machine. Initial state is Awake with a
// fresh activity timestamp. All methods are safe for concurrent use.
type Machine struct {
	mu           sync.Mutex
	state        models.PowerState
	lastActivity time.Time
	idleTimeout  time.Duration
	now          func() time.Time
	displayOn    func() error
	displayOff   func() error
	log          logger.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithIdleTimeout overrides the sleep timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Machine) { m.idleTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithDisplayCommands overrides the display power actions.
func WithDisplayCommands(on, off func() error) Option {
	return func(m *Machine) {
		m.displayOn = on
		m.displayOff = off
	}
}

func New(log logger.Logger, opts ...Option) *Machine {
	m := &Machine{
		state:       models.PowerAwake,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		displayOn:   func() error { return displayPower(true) },
		displayOff:  func() error { return displayPower(false) },
		log:         log,
	}

	for _, o := range opts {
		o(m)
	}

	m.lastActivity = m.now()

	return m
}

// RecordActivity registers a touch/input event: it refreshes the idle
// timestamp and wakes the display if asleep.
func (m *Machine) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActivity = m.now()
	m.wakeLocked("touch")
}

// NotifyStreamStarted wakes the display when streaming begins.
func (m *Machine) NotifyStreamStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastActivity = m.now()
	m.wakeLocked("stream start")
}

// Check runs the periodic sleep evaluation. An active stream counts as
// continuous activity, so the display cannot sleep mid-stream.
func (m *Machine) Check(streaming bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if streaming {
		m.lastActivity = m.now()
		return
	}

	if m.state == models.PowerAsleep {
		return
	}

	if m.now().Sub(m.lastActivity) <= m.idleTimeout {
		return
	}

	m.state = models.PowerAsleep
	m.log.Info().Dur("idle_timeout", m.idleTimeout).Msg("Idle timeout reached, display off")

	if err := m.displayOff(); err != nil {
		m.log.Error().Err(err).Msg("Display off failed")
	}
}

// wakeLocked transitions to Awake, invoking the display-on action exactly
// once per entry. A no-op while already awake.
func (m *Machine) wakeLocked(reason string) {
	if m.state == models.PowerAwake {
		return
	}

	m.state = models.PowerAwake
	m.log.Info().Str("reason", reason).Msg("Waking display")

	if err := m.displayOn(); err != nil {
		m.log.Error().Err(err).Msg("Display on failed")
	}
}

// State returns the current power state.
func (m *Machine) State() models.PowerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// displayPower toggles the attached display through the firmware.
func displayPower(on bool) error {
	arg := "0"
	if on {
		arg = "1"
	}

	return exec.Command("vcgencmd", "display_power", arg).Run()
}
