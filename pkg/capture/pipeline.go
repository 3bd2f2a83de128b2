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

// Package capture runs the GStreamer preview graph: full-resolution V4L2
// capture, aggressive downscale, RGB conversion, and a single-buffer appsink
// that drops stale frames instead of backpressuring the device. Decoded
// frames land in a coalescing mailbox the render tick drains at its own
// pace.
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/mailbox"
	"github.com/touchstream/spoke/pkg/models"
)

const (
	// CaptureWidth and friends describe the raw HDMI capture mode. The
	// TC358743 bridge requires bt601 colorimetry at this mode.
	CaptureWidth  = 1920
	CaptureHeight = 1080
	CaptureFPS    = 30

	// Preview resolution is 1/16th the pixels of 1080p; the on-device
	// display does not need more.
	PreviewWidth  = 480
	PreviewHeight = 270
)

// captureCaps locks the source to the bridge's native mode.
func captureCaps() string {
	return fmt.Sprintf(
		"video/x-raw,format=UYVY,width=%d,height=%d,framerate=%d/1,colorimetry=bt601",
		CaptureWidth, CaptureHeight, CaptureFPS,
	)
}

// previewCaps locks the downscaled preview resolution.
func previewCaps() string {
	return fmt.Sprintf("video/x-raw,width=%d,height=%d", PreviewWidth, PreviewHeight)
}

const rgbCaps = "video/x-raw,format=RGB"

// Pipeline owns the preview media graph. Start builds the graph lazily on
// first call; Stop releases it and is safe to call at any time.
type Pipeline struct {
	mu       sync.Mutex
	device   string
	pipeline *gst.Pipeline
	frames   *mailbox.Mailbox[models.FrameSample]
	arrivals atomic.Uint64
	log      logger.Logger
}

func NewPipeline(device string, log logger.Logger) *Pipeline {
	return &Pipeline{
		device: device,
		frames: mailbox.New[models.FrameSample](),
		log:    log,
	}
}

// Start builds and activates the graph. Activation failure is fatal for this
// subsystem only; the caller keeps running in a no-signal state.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline != nil {
		return nil
	}

	pipeline, err := p.build()
	if err != nil {
		return err
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to start preview pipeline: %w", err)
	}

	p.pipeline = pipeline

	p.log.Info().
		Int("width", PreviewWidth).
		Int("height", PreviewHeight).
		Int("fps", CaptureFPS).
		Msg("Preview pipeline started")

	return nil
}

// build assembles v4l2src → capture caps → videoscale → preview caps →
// videoconvert → RGB caps → appsink.
func (p *Pipeline) build() (*gst.Pipeline, error) {
	// Safe to call multiple times.
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", p.device)

	capsCapture, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture capsfilter: %w", err)
	}
	capsCapture.SetProperty("caps", gst.NewCapsFromString(captureCaps()))

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	scaler.SetProperty("add-borders", false)

	capsPreview, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview capsfilter: %w", err)
	}
	capsPreview.SetProperty("caps", gst.NewCapsFromString(previewCaps()))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 4)

	capsRGB, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create RGB capsfilter: %w", err)
	}
	capsRGB.SetProperty("caps", gst.NewCapsFromString(rgbCaps))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, capsCapture, scaler, capsPreview, converter, capsRGB, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add preview pipeline elements: %w", err)
	}

	if err := gst.ElementLinkMany(src, capsCapture, scaler, capsPreview, converter, capsRGB, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link preview pipeline elements: %w", err)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onNewSample,
	})

	return pipeline, nil
}

// onNewSample runs on the pipeline's own streaming context. It does the
// minimum: copy the buffer into the mailbox and bump the arrival counter.
func (p *Pipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)

	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}

	// The engine reuses the buffer after the callback returns.
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	p.frames.Put(models.FrameSample{
		Data:   frame,
		Width:  PreviewWidth,
		Height: PreviewHeight,
	})
	p.arrivals.Add(1)

	return gst.FlowOK
}

// Stop deactivates and releases the graph. Safe when never started or
// already stopped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline == nil {
		return
	}

	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		p.log.Warn().Err(err).Msg("Preview pipeline teardown reported error")
	}

	p.pipeline = nil

	p.log.Info().Msg("Preview pipeline stopped")
}

// TakeFrame drains the most recent frame without blocking.
func (p *Pipeline) TakeFrame() (models.FrameSample, bool) {
	return p.frames.Take()
}

// Arrivals returns the total number of frames delivered by the graph.
func (p *Pipeline) Arrivals() uint64 {
	return p.arrivals.Load()
}

// Dropped returns how many frames were overwritten before being drained.
func (p *Pipeline) Dropped() uint64 {
	return p.frames.Dropped()
}
