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

// FrameSample is one decoded preview frame. Ownership of Data transfers to
// whoever drains it from the frame mailbox; an unconsumed frame is dropped
// when a newer one arrives.
type FrameSample struct {
	Data   []byte
	Width  int
	Height int
}

// AudioLevelSample carries normalized per-channel loudness in [0,1].
// Mono sources report the same value on both channels.
type AudioLevelSample struct {
	Left  float64
	Right float64
}
