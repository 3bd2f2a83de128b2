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

// Package supervisor manages the external streaming process that relays the
// captured source to the ingest endpoint.
package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

const (
	// DefaultVideoDevice is the V4L2 capture device for the HDMI input.
	DefaultVideoDevice = "/dev/video0"
	// DefaultAudioDevice is the ALSA capture device for the HDMI audio.
	DefaultAudioDevice = "hw:2,0"

	defaultBinary      = "ffmpeg"
	defaultStopTimeout = 5 * time.Second
)

// ErrNoIngestURL is returned by Start when streaming is not configured.
var ErrNoIngestURL = errors.New("no ingest_url configured")

// handle tracks one spawned streaming process. done is closed by the reaper
// goroutine once the process has exited, whatever the reason.
type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor starts, monitors, and stops the external transcoder. All
// methods are safe for concurrent use.
type Supervisor struct {
	mu          sync.Mutex
	proc        *handle
	log         logger.Logger
	binary      string
	argsFn      func(models.DeviceConfig) []string
	videoDevice string
	audioDevice string
	stopTimeout time.Duration
	onStart     func()
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithOnStart registers a notification fired after a successful spawn, used
// to wake the display when streaming begins.
func WithOnStart(fn func()) Option {
	return func(s *Supervisor) { s.onStart = fn }
}

// WithDevices overrides the capture device paths.
func WithDevices(video, audio string) Option {
	return func(s *Supervisor) {
		s.videoDevice = video
		s.audioDevice = audio
	}
}

// WithCommand overrides the spawned binary and its argument builder.
func WithCommand(binary string, argsFn func(models.DeviceConfig) []string) Option {
	return func(s *Supervisor) {
		s.binary = binary
		s.argsFn = argsFn
	}
}

// WithStopTimeout overrides the graceful-termination wait before the process
// is killed.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.stopTimeout = d }
}

func New(log logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		log:         log,
		binary:      defaultBinary,
		videoDevice: DefaultVideoDevice,
		audioDevice: DefaultAudioDevice,
		stopTimeout: defaultStopTimeout,
	}

	for _, o := range opts {
		o(s)
	}

	if s.argsFn == nil {
		s.argsFn = func(cfg models.DeviceConfig) []string {
			return BuildArgs(cfg, s.videoDevice, s.audioDevice)
		}
	}

	return s
}

// BuildArgs constructs the deterministic transcoder invocation: V4L2 + ALSA
// capture, x264 with a low-latency profile, AAC audio, MPEG-TS to the ingest
// URL. A muted device drops the audio input and codec entirely.
func BuildArgs(cfg models.DeviceConfig, videoDevice, audioDevice string) []string {
	resolution := cfg.Resolution
	if resolution == "" {
		resolution = "1920x1080"
	}

	framerate := cfg.Framerate
	if framerate == "" {
		framerate = "30"
	}

	videoBitrate := cfg.VideoBitrate
	if videoBitrate == "" {
		videoBitrate = "4000k"
	}

	audioBitrate := cfg.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = "128k"
	}

	args := []string{
		"-f", "v4l2",
		"-input_format", "uyvy422",
		"-framerate", framerate,
		"-video_size", resolution,
		"-i", videoDevice,
	}

	if !cfg.AudioMuted {
		args = append(args,
			"-f", "alsa",
			"-i", audioDevice,
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-b:v", videoBitrate,
	)

	if !cfg.AudioMuted {
		args = append(args,
			"-c:a", "aac",
			"-b:a", audioBitrate,
		)
	}

	args = append(args, "-f", "mpegts", cfg.IngestURL)

	return args
}

// Start spawns the streaming process for the given configuration. It returns
// ErrNoIngestURL without spawning when no ingest target is configured, and
// is a no-op when the process is already running.
func (s *Supervisor) Start(cfg models.DeviceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.IngestURL == "" {
		return ErrNoIngestURL
	}

	if s.runningLocked() {
		return nil
	}

	args := s.argsFn(cfg)

	cmd := exec.Command(s.binary, args...)
	// The transcoder's output is noise at this layer.
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		s.log.Error().Err(err).Str("binary", s.binary).Msg("Failed to start streamer")
		return fmt.Errorf("failed to start streamer: %w", err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}

	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	s.proc = h

	s.log.Info().
		Int("pid", cmd.Process.Pid).
		Str("ingest_url", cfg.IngestURL).
		Msg("Streamer started")

	if s.onStart != nil {
		s.onStart()
	}

	return nil
}

// Stop terminates the streaming process, escalating from SIGTERM to SIGKILL
// after the stop timeout. It is a no-op when nothing is running. The handle
// is detached under the lock but the escalation wait runs outside it, so
// IsRunning and Start stay responsive while a stop is in flight.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	h := s.proc
	s.proc = nil
	s.mu.Unlock()

	if h == nil {
		return
	}

	select {
	case <-h.done:
		// Already exited on its own.
		return
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug().Err(err).Msg("SIGTERM failed, process likely gone")
	}

	select {
	case <-h.done:
	case <-time.After(s.stopTimeout):
		s.log.Warn().Int("pid", h.cmd.Process.Pid).Msg("Streamer ignored SIGTERM, killing")

		_ = h.cmd.Process.Kill()
		<-h.done
	}

	s.log.Info().Msg("Streamer stopped")
}

// IsRunning reports actual process liveness, not supervisor intent: when the
// process dies on its own, the next call observes it.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.proc == nil {
		return false
	}

	select {
	case <-s.proc.done:
		s.proc = nil
		return false
	default:
		return true
	}
}
