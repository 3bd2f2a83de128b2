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

package models

// PowerState is the display power state.
type PowerState int

const (
	PowerAwake PowerState = iota
	PowerAsleep
)

func (p PowerState) String() string {
	switch p {
	case PowerAsleep:
		return "asleep"
	default:
		return "awake"
	}
}

// Device status text shown on the HUD boundary.
const (
	StatusPendingAdoption = "Pending Adoption"
	StatusStreaming       = "Streaming"
	StatusStandby         = "Standby"
)

// DeviceStatus is the per-heartbeat snapshot handed to the rendering
// boundary. All fields are cheap in-memory reads.
type DeviceStatus struct {
	StatusText  string     `json:"status_text"`
	Streaming   bool       `json:"streaming"`
	HasSignal   bool       `json:"has_signal"`
	FPS         float64    `json:"fps"`
	CPUTempC    float64    `json:"cpu_temp_c"`
	CPUUsagePct float64    `json:"cpu_usage_pct"`
	Power       PowerState `json:"power"`
	BootID      string     `json:"boot_id"`
}
