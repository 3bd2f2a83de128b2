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

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

func testConfig() models.DeviceConfig {
	return models.DeviceConfig{
		IngestURL:    "udp://10.0.0.2:5000",
		Resolution:   "1920x1080",
		Framerate:    "30",
		VideoBitrate: "4000k",
		AudioBitrate: "128k",
	}
}

func sleepCommand() Option {
	return WithCommand("sleep", func(models.DeviceConfig) []string {
		return []string{"60"}
	})
}

func TestStartWithoutIngestURL(t *testing.T) {
	s := New(logger.NewTestLogger(), sleepCommand())

	err := s.Start(models.DeviceConfig{})
	require.ErrorIs(t, err, ErrNoIngestURL)
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	s := New(logger.NewTestLogger(), sleepCommand())

	require.NoError(t, s.Start(testConfig()))
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	s := New(logger.NewTestLogger(), sleepCommand())
	defer s.Stop()

	require.NoError(t, s.Start(testConfig()))
	require.NoError(t, s.Start(testConfig()), "second start must be a no-op")
	assert.True(t, s.IsRunning())
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	s := New(logger.NewTestLogger(), sleepCommand())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestStopEscalatesToKill(t *testing.T) {
	s := New(logger.NewTestLogger(),
		WithCommand("sh", func(models.DeviceConfig) []string {
			return []string{"-c", `trap "" TERM; sleep 60`}
		}),
		WithStopTimeout(200*time.Millisecond),
	)

	require.NoError(t, s.Start(testConfig()))
	require.True(t, s.IsRunning())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not escalate to kill in time")
	}

	assert.False(t, s.IsRunning())
}

func TestIsRunningNotBlockedDuringStopEscalation(t *testing.T) {
	s := New(logger.NewTestLogger(),
		WithCommand("sh", func(models.DeviceConfig) []string {
			return []string{"-c", `trap "" TERM; sleep 60`}
		}),
		WithStopTimeout(2*time.Second),
	)

	require.NoError(t, s.Start(testConfig()))
	require.True(t, s.IsRunning())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// The process ignores SIGTERM, so Stop is parked in its escalation wait;
	// liveness checks must still answer well inside that window.
	assert.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond, "IsRunning must not wait out the escalation")

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not finish after escalation")
	}
}

func TestIsRunningObservesExternalExit(t *testing.T) {
	s := New(logger.NewTestLogger(),
		WithCommand("sleep", func(models.DeviceConfig) []string {
			return []string{"0.05"}
		}),
	)

	require.NoError(t, s.Start(testConfig()))

	assert.Eventually(t, func() bool {
		return !s.IsRunning()
	}, 2*time.Second, 20*time.Millisecond, "liveness check must observe the process dying on its own")
}

func TestStartFiresActivityNotification(t *testing.T) {
	notified := make(chan struct{}, 1)

	s := New(logger.NewTestLogger(),
		sleepCommand(),
		WithOnStart(func() { notified <- struct{}{} }),
	)
	defer s.Stop()

	require.NoError(t, s.Start(testConfig()))

	select {
	case <-notified:
	default:
		t.Fatal("expected activity notification on start")
	}
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(testConfig(), "/dev/video0", "hw:2,0")

	assert.Equal(t, []string{
		"-f", "v4l2",
		"-input_format", "uyvy422",
		"-framerate", "30",
		"-video_size", "1920x1080",
		"-i", "/dev/video0",
		"-f", "alsa",
		"-i", "hw:2,0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-b:v", "4000k",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "mpegts",
		"udp://10.0.0.2:5000",
	}, args)
}

func TestBuildArgsMuted(t *testing.T) {
	cfg := testConfig()
	cfg.AudioMuted = true

	args := BuildArgs(cfg, "/dev/video0", "hw:2,0")

	assert.NotContains(t, args, "alsa")
	assert.NotContains(t, args, "aac")
	assert.Contains(t, args, "libx264")
}

func TestBuildArgsDefaults(t *testing.T) {
	cfg := models.DeviceConfig{IngestURL: "udp://host:1"}

	args := BuildArgs(cfg, "/dev/video0", "hw:2,0")

	assert.Contains(t, args, "1920x1080")
	assert.Contains(t, args, "4000k")
	assert.Contains(t, args, "128k")
}
