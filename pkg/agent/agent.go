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

// Package agent is the composition root of the spoke: it wires the config
// store, capture pipelines, stream supervisor, and power state machine, and
// exposes the pull-based feed the rendering boundary drains on its tick.
package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/touchstream/spoke/pkg/capture"
	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

// Agent coordinates the spoke's subsystems. Frame/level drains run on the
// externally driven foreground tick and never block; everything else runs on
// background contexts owned by the subsystems themselves.
type Agent struct {
	store    ConfigSource
	streamer Streamer
	preview  FrameSource
	levels   LevelSource
	power    PowerController
	rate     *capture.RateTracker
	cpu      *cpuSampler
	log      logger.Logger
	bootID   string

	// reconcile nudges the background reconciler; capacity one, a pending
	// nudge is enough since the reconciler always reads fresh config.
	reconcile chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup

	previewFailed bool
	levelsFailed  bool
}

// Deps carries the collaborators the agent wires together.
type Deps struct {
	Store    ConfigSource
	Streamer Streamer
	Preview  FrameSource
	Levels   LevelSource
	Power    PowerController
	Rate     *capture.RateTracker
	Logger   logger.Logger
}

func New(deps Deps) *Agent {
	rate := deps.Rate
	if rate == nil {
		rate = capture.NewRateTracker(nil)
	}

	return &Agent{
		store:     deps.Store,
		streamer:  deps.Streamer,
		preview:   deps.Preview,
		levels:    deps.Levels,
		power:     deps.Power,
		rate:      rate,
		cpu:       newCPUSampler(),
		log:       deps.Logger,
		bootID:    uuid.NewString(),
		reconcile: make(chan struct{}, 1),
	}
}

// BootID identifies this process instance; it changes on every restart so a
// hub can tell a rebooted unadopted device from a new one.
func (a *Agent) BootID() string {
	return a.bootID
}

// Start brings the capture subsystems up. Either pipeline failing to
// activate is fatal for that subsystem only: the agent keeps running in a
// no-signal state, and streaming and discovery are unaffected.
func (a *Agent) Start(_ context.Context) error {
	if err := a.preview.Start(); err != nil {
		a.log.Error().Err(err).Msg("Preview pipeline failed, continuing without preview")
		a.previewFailed = true
	}

	if err := a.levels.Start(); err != nil {
		a.log.Error().Err(err).Msg("Audio metering failed, continuing without levels")
		a.levelsFailed = true
	}

	a.done = make(chan struct{})
	a.wg.Add(1)

	go a.reconcileLoop(a.done)

	return nil
}

// Stop tears the subsystems down. Safe to call redundantly.
func (a *Agent) Stop(_ context.Context) error {
	if a.done != nil {
		close(a.done)
		a.wg.Wait()
		a.done = nil
	}

	a.streamer.Stop()
	a.preview.Stop()
	a.levels.Stop()

	return nil
}

// TickResult is what one foreground tick drained. Nil fields mean no new
// sample arrived since the last tick.
type TickResult struct {
	Frame *models.FrameSample
	Level *models.AudioLevelSample
}

// Tick drains the frame and level mailboxes. Non-blocking; called from the
// rendering boundary at its own cadence.
func (a *Agent) Tick() TickResult {
	var res TickResult

	if frame, ok := a.preview.TakeFrame(); ok {
		res.Frame = &frame
		a.rate.MarkSignal()
	}

	if level, ok := a.levels.TakeLevel(); ok {
		res.Level = &level
	}

	return res
}

// ReportActivity is the entry point for touch/input events from the
// rendering boundary.
func (a *Agent) ReportActivity() {
	a.power.RecordActivity()
}

// Heartbeat runs the 1 Hz housekeeping pass: rate and signal-loss
// measurement, a nudge to the stream reconciler, the power check, and the
// status snapshot for the HUD. Everything it does is in-memory or a cheap
// OS counter read; process spawning and stop waits happen on the
// reconciler's own context.
func (a *Agent) Heartbeat(ctx context.Context) models.DeviceStatus {
	fps, lostSignal := a.rate.Update(a.preview.Arrivals())
	if lostSignal {
		a.log.Warn().Msg("Signal lost")
	}

	a.requestReconcile()

	streaming := a.streamer.IsRunning()
	a.power.Check(streaming)

	usage, temp := a.cpu.sample(ctx)

	return models.DeviceStatus{
		StatusText:  a.statusText(streaming),
		Streaming:   streaming,
		HasSignal:   a.rate.HasSignal(),
		FPS:         fps,
		CPUTempC:    temp,
		CPUUsagePct: usage,
		Power:       a.power.State(),
		BootID:      a.bootID,
	}
}

// requestReconcile nudges the reconciler without blocking the caller.
func (a *Agent) requestReconcile() {
	select {
	case a.reconcile <- struct{}{}:
	default:
	}
}

// reconcileLoop owns all process spawning and termination waits. The
// foreground tick only ever signals it.
func (a *Agent) reconcileLoop(done chan struct{}) {
	defer a.wg.Done()

	for {
		select {
		case <-done:
			return
		case <-a.reconcile:
			a.reconcileStream()
		}
	}
}

// reconcileStream drives the supervisor from configuration: a configured
// ingest target keeps the stream running; clearing it stops the stream.
func (a *Agent) reconcileStream() {
	cfg := a.store.Snapshot()

	switch {
	case cfg.IngestURL == "":
		if a.streamer.IsRunning() {
			a.log.Info().Msg("Ingest target cleared, stopping stream")
			a.streamer.Stop()
		}
	case !a.streamer.IsRunning():
		if err := a.streamer.Start(cfg); err != nil {
			a.log.Error().Err(err).Msg("Stream start failed")
		} else {
			a.power.NotifyStreamStarted()
		}
	}
}

func (a *Agent) statusText(streaming bool) string {
	if !a.store.Snapshot().Adopted() {
		return models.StatusPendingAdoption
	}

	if streaming {
		return models.StatusStreaming
	}

	return models.StatusStandby
}
