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

// Package models contains the shared data types exchanged between the spoke's
// subsystems and with the hub.
package models

// UnadoptedID is the sentinel reported for device_id until a hub has adopted
// this spoke.
const UnadoptedID = "unadopted"

// ModelTag identifies the hardware class in /info responses.
const ModelTag = "raspberry-pi"

// DeviceConfig is the typed view of the persisted device configuration.
// The backing file may carry additional keys set by the hub; those are
// preserved by the config store and are not represented here.
type DeviceConfig struct {
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	Location     string `json:"location"`
	IngestURL    string `json:"ingest_url"`
	VideoBitrate string `json:"video_bitrate"`
	AudioBitrate string `json:"audio_bitrate"`
	Resolution   string `json:"resolution"`
	Framerate    string `json:"framerate"`
	AudioMuted   bool   `json:"audio_muted"`
}

// Adopted reports whether a hub has assigned this device an identity.
func (c DeviceConfig) Adopted() bool {
	return c.DeviceID != ""
}

// DeviceInfo is the identity snapshot returned by GET /info.
type DeviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	IP         string `json:"ip"`
	Model      string `json:"model"`
	Status     string `json:"status"`
}

// BeaconMessage is the periodic UDP broadcast advertising device presence.
type BeaconMessage struct {
	DeviceName string `json:"device_name"`
	DeviceID   string `json:"device_id"`
}
