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

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// cpuSampler reads CPU usage and temperature for the HUD. Both reads are
// cheap: usage diffs kernel counters since the previous call, temperature is
// one sysfs read.
type cpuSampler struct {
	usageFn func(ctx context.Context) (float64, error)
	tempFn  func(ctx context.Context) (float64, error)
}

func newCPUSampler() *cpuSampler {
	return &cpuSampler{
		usageFn: cpuUsagePercent,
		tempFn:  cpuTemperature,
	}
}

// sample returns (usage %, temperature °C). Failures report zero values; the
// HUD shows placeholders for those.
func (c *cpuSampler) sample(ctx context.Context) (usage, temp float64) {
	if v, err := c.usageFn(ctx); err == nil {
		usage = v
	}

	if v, err := c.tempFn(ctx); err == nil {
		temp = v
	}

	return usage, temp
}

// cpuUsagePercent diffs against the previous invocation, so the first
// heartbeat reads zero.
func cpuUsagePercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}

	return percents[0], nil
}

func cpuTemperature(ctx context.Context) (float64, error) {
	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") {
				return t.Temperature, nil
			}
		}
	}

	// Pi firmware exposes the SoC temperature in millidegrees.
	data, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0, err
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}

	return float64(milli) / 1000.0, nil
}
