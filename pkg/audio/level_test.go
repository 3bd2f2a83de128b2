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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		db   float64
		want float64
	}{
		{name: "silence floor", db: -60, want: 0.0},
		{name: "full scale", db: 0, want: 1.0},
		{name: "midpoint", db: -30, want: 0.5},
		{name: "above full scale clamps", db: 5, want: 1.0},
		{name: "below floor clamps", db: -90, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Normalize(tt.db), 0.0001)
		})
	}
}

func TestSampleFromRMSStereo(t *testing.T) {
	sample := SampleFromRMS([]float64{-30, -60})

	assert.InDelta(t, 0.5, sample.Left, 0.0001)
	assert.InDelta(t, 0.0, sample.Right, 0.0001)
}

func TestSampleFromRMSMono(t *testing.T) {
	sample := SampleFromRMS([]float64{-30})

	assert.InDelta(t, 0.5, sample.Left, 0.0001)
	assert.Equal(t, sample.Left, sample.Right, "mono maps to equal channels")
}

func TestSampleFromRMSEmpty(t *testing.T) {
	sample := SampleFromRMS(nil)

	assert.Zero(t, sample.Left)
	assert.Zero(t, sample.Right)
}

func TestRMSValuesCoercion(t *testing.T) {
	assert.Equal(t, []float64{-30, -20}, rmsValues([]float64{-30, -20}))
	assert.Equal(t, []float64{-30, -20}, rmsValues([]interface{}{-30.0, -20.0}))
	assert.Nil(t, rmsValues("not a level reading"))
}

