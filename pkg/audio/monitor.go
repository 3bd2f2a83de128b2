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

// Package audio runs the level-metering media graph: ALSA capture into a
// level element posting periodic per-channel RMS messages, terminated by a
// discard sink. Nothing is played back; the graph exists only to meter.
// Samples reach the consumer through the same single-slot mailbox pattern
// the preview pipeline uses.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/mailbox"
	"github.com/touchstream/spoke/pkg/models"
)

// Metering cadence of the level element.
const levelIntervalNS = 50_000_000 // 50ms

const busPollTimeout = 500 * time.Millisecond

// Monitor owns the level-metering graph. Start/Stop mirror the preview
// pipeline's contract: lazy build, idempotent stop, failure confined to this
// subsystem.
type Monitor struct {
	mu       sync.Mutex
	device   string
	pipeline *gst.Pipeline
	levels   *mailbox.Mailbox[models.AudioLevelSample]
	done     chan struct{}
	wg       sync.WaitGroup
	log      logger.Logger
}

func NewMonitor(device string, log logger.Logger) *Monitor {
	return &Monitor{
		device: device,
		levels: mailbox.New[models.AudioLevelSample](),
		log:    log,
	}
}

// Start builds and activates the graph and begins consuming level messages
// from its bus.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipeline != nil {
		return nil
	}

	pipeline, err := m.build()
	if err != nil {
		return err
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to start level pipeline: %w", err)
	}

	m.pipeline = pipeline
	m.done = make(chan struct{})

	m.wg.Add(1)
	go m.watchBus(pipeline.GetPipelineBus(), m.done)

	m.log.Info().Str("device", m.device).Msg("Audio level monitor started")

	return nil
}

// build assembles alsasrc → audioconvert → level → fakesink.
func (m *Monitor) build() (*gst.Pipeline, error) {
	// Safe to call multiple times.
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create level pipeline: %w", err)
	}

	src, err := gst.NewElement("alsasrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create alsasrc: %w", err)
	}
	src.SetProperty("device", m.device)

	converter, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioconvert: %w", err)
	}

	level, err := gst.NewElement("level")
	if err != nil {
		return nil, fmt.Errorf("failed to create level element: %w", err)
	}
	level.SetProperty("interval", uint64(levelIntervalNS))

	sink, err := gst.NewElement("fakesink")
	if err != nil {
		return nil, fmt.Errorf("failed to create fakesink: %w", err)
	}
	sink.SetProperty("sync", false)

	if err := pipeline.AddMany(src, converter, level, sink); err != nil {
		return nil, fmt.Errorf("failed to add level pipeline elements: %w", err)
	}

	if err := gst.ElementLinkMany(src, converter, level, sink); err != nil {
		return nil, fmt.Errorf("failed to link level pipeline elements: %w", err)
	}

	return pipeline, nil
}

// watchBus consumes element messages posted by the level element. Runs on
// its own background context; faults here never reach other subsystems.
func (m *Monitor) watchBus(bus *gst.Bus, done chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		msg := bus.TimedPop(busPollTimeout)
		if msg == nil {
			continue
		}

		if msg.Type() != gst.MessageElement {
			continue
		}

		s := msg.GetStructure()
		if s == nil || s.Name() != "level" {
			continue
		}

		raw, err := s.GetValue("rms")
		if err != nil {
			continue
		}

		if rms := rmsValues(raw); rms != nil {
			m.levels.Put(SampleFromRMS(rms))
		}
	}
}

// Stop deactivates and releases the graph. Safe when never started or
// already stopped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipeline == nil {
		return
	}

	close(m.done)
	m.wg.Wait()

	if err := m.pipeline.SetState(gst.StateNull); err != nil {
		m.log.Warn().Err(err).Msg("Level pipeline teardown reported error")
	}

	m.pipeline = nil

	m.log.Info().Msg("Audio level monitor stopped")
}

// TakeLevel drains the most recent level sample without blocking.
func (m *Monitor) TakeLevel() (models.AudioLevelSample, bool) {
	return m.levels.Take()
}
