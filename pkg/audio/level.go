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

package audio

import "github.com/touchstream/spoke/pkg/models"

// Normalization window: -60 dB maps to 0.0 and 0 dB maps to 1.0.
const silenceFloorDB = 60.0

// Normalize converts an RMS dB reading into normalized loudness in [0,1].
// Readings outside the window clamp.
func Normalize(db float64) float64 {
	v := (db + silenceFloorDB) / silenceFloorDB
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}

// SampleFromRMS builds a level sample from per-channel RMS dB readings.
// Mono sources report the same loudness on both channels; an empty reading
// is silence.
func SampleFromRMS(rms []float64) models.AudioLevelSample {
	switch len(rms) {
	case 0:
		return models.AudioLevelSample{}
	case 1:
		v := Normalize(rms[0])
		return models.AudioLevelSample{Left: v, Right: v}
	default:
		return models.AudioLevelSample{
			Left:  Normalize(rms[0]),
			Right: Normalize(rms[1]),
		}
	}
}

// rmsValues coerces the "rms" field of a level message into a float slice.
// The engine reports it as a value array; depending on the binding it
// surfaces as []float64 or []interface{}.
func rmsValues(v interface{}) []float64 {
	switch vals := v.(type) {
	case []float64:
		return vals
	case []interface{}:
		out := make([]float64, 0, len(vals))

		for _, item := range vals {
			if f, ok := item.(float64); ok {
				out = append(out, f)
			}
		}

		return out
	default:
		return nil
	}
}
