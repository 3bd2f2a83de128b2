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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/touchstream/spoke/pkg/agent"
	"github.com/touchstream/spoke/pkg/audio"
	"github.com/touchstream/spoke/pkg/capture"
	"github.com/touchstream/spoke/pkg/config"
	"github.com/touchstream/spoke/pkg/discovery"
	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/power"
	"github.com/touchstream/spoke/pkg/supervisor"
	"github.com/touchstream/spoke/pkg/updater"
)

const (
	tickInterval      = time.Second / 30
	heartbeatInterval = time.Second

	defaultUpdateURL = "https://updates.touchstream.dev/spoke/latest/spoke-linux-arm64"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to device config file (default: ~/stream-config.json)")
	videoDevice := flag.String("video-device", supervisor.DefaultVideoDevice, "V4L2 capture device")
	audioDevice := flag.String("audio-device", supervisor.DefaultAudioDevice, "ALSA capture device")
	updateURL := flag.String("update-url", defaultUpdateURL, "Source for self-update images")
	flag.Parse()

	logConfig := logger.DefaultConfig()

	rootLog, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	componentLog := func(name string) logger.Logger {
		l, cerr := logger.NewComponentLogger(logConfig, name)
		if cerr != nil {
			return rootLog
		}

		return l
	}

	store := config.NewStore(*configPath, componentLog("config"))
	cfg := store.Snapshot()

	rootLog.Info().
		Str("config", store.Path()).
		Str("device_name", cfg.DeviceName).
		Bool("adopted", cfg.Adopted()).
		Msg("TouchStream spoke starting")

	streamer := supervisor.New(componentLog("supervisor"),
		supervisor.WithDevices(*videoDevice, *audioDevice),
	)
	preview := capture.NewPipeline(*videoDevice, componentLog("capture"))
	levels := audio.NewMonitor(*audioDevice, componentLog("audio"))
	powerMachine := power.New(componentLog("power"))

	spoke := agent.New(agent.Deps{
		Store:    store,
		Streamer: streamer,
		Preview:  preview,
		Levels:   levels,
		Power:    powerMachine,
		Logger:   componentLog("agent"),
	})

	upd := updater.New(*updateURL, componentLog("updater"))

	srv := discovery.NewServer(store, upd, componentLog("discovery"))
	beacon := discovery.NewBeacon(store, componentLog("beacon"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start()

	go beacon.Run(ctx)

	if err := spoke.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			rootLog.Info().Msg("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Stop(shutdownCtx); err != nil {
				rootLog.Warn().Err(err).Msg("Discovery server shutdown error")
			}

			return spoke.Stop(shutdownCtx)

		case <-tick.C:
			// The rendering layer attaches here: drained frames become the
			// preview texture, drained levels drive the meters.
			spoke.Tick()

		case <-heartbeat.C:
			status := spoke.Heartbeat(ctx)
			rootLog.Debug().
				Str("status", status.StatusText).
				Float64("fps", status.FPS).
				Bool("has_signal", status.HasSignal).
				Str("power", status.Power.String()).
				Msg("Heartbeat")
		}
	}
}
