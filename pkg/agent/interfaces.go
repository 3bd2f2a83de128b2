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

package agent

import "github.com/touchstream/spoke/pkg/models"

// ConfigSource supplies the current device configuration.
type ConfigSource interface {
	Snapshot() models.DeviceConfig
}

// Streamer supervises the external streaming process.
type Streamer interface {
	Start(cfg models.DeviceConfig) error
	Stop()
	IsRunning() bool
}

// FrameSource delivers preview frames through a non-blocking slot.
type FrameSource interface {
	Start() error
	Stop()
	TakeFrame() (models.FrameSample, bool)
	Arrivals() uint64
}

// LevelSource delivers audio level samples through a non-blocking slot.
type LevelSource interface {
	Start() error
	Stop()
	TakeLevel() (models.AudioLevelSample, bool)
}

// PowerController is the display power state machine.
type PowerController interface {
	RecordActivity()
	NotifyStreamStarted()
	Check(streaming bool)
	State() models.PowerState
}
