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

// Package discovery exposes the spoke to its hub: an HTTP API for identity,
// adoption, and remote lifecycle commands, plus a periodic UDP broadcast
// beacon for passive discovery on the local subnet.
//
// The adoption endpoint merges arbitrary JSON keys into the device config
// and performs no authentication. That is the wire contract the hub fleet
// speaks today; tightening it is a protocol change, not a local fix.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"

	"github.com/gorilla/mux"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

// HTTPPort is the fixed discovery API port the hub probes.
const HTTPPort = 6077

// responseFlushDelay gives the HTTP response time to reach the hub before a
// shutdown/reboot/update action tears the connection down.
const responseFlushDelay = 500 * time.Millisecond

// Server is the discovery/adoption HTTP endpoint set.
type Server struct {
	store        ConfigStore
	updater      Updater
	log          logger.Logger
	router       *mux.Router
	httpSrv      *http.Server
	listenAddr   string
	resolveIP    func() string
	powerCommand func(action string) error
	actionDelay  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithListenAddr overrides the default listen address.
func WithListenAddr(addr string) Option {
	return func(s *Server) { s.listenAddr = addr }
}

// WithIPResolver overrides outbound IP resolution.
func WithIPResolver(fn func() string) Option {
	return func(s *Server) { s.resolveIP = fn }
}

// WithPowerCommand overrides the privileged OS power action.
func WithPowerCommand(fn func(action string) error) Option {
	return func(s *Server) { s.powerCommand = fn }
}

// WithActionDelay overrides the pause before deferred actions run.
func WithActionDelay(d time.Duration) Option {
	return func(s *Server) { s.actionDelay = d }
}

func NewServer(store ConfigStore, updater Updater, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		store:        store,
		updater:      updater,
		log:          log,
		router:       mux.NewRouter(),
		listenAddr:   fmt.Sprintf(":%d", HTTPPort),
		resolveIP:    OutboundIP,
		powerCommand: systemPowerCommand,
		actionDelay:  responseFlushDelay,
	}

	for _, o := range opts {
		o(s)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/adopt", s.handleAdopt).Methods(http.MethodPost)
	s.router.HandleFunc("/shutdown", s.handleShutdown).Methods(http.MethodPost)
	s.router.HandleFunc("/reboot", s.handleReboot).Methods(http.MethodPost)
	s.router.HandleFunc("/update", s.handleUpdate).Methods(http.MethodPost)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s.router.NotFoundHandler = notFound
	// Unknown methods on known paths are indistinguishable from unknown
	// paths as far as the hub is concerned.
	s.router.MethodNotAllowedHandler = notFound
}

// Handler exposes the router, used by tests and by Start.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background. Listen errors after startup are
// logged; they never propagate into other subsystems.
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info().Str("addr", s.listenAddr).Msg("Discovery HTTP server running")

		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Discovery HTTP server failed")
		}
	}()
}

// Stop shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	cfg := s.store.Snapshot()

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = models.UnadoptedID
	}

	s.writeJSON(w, models.DeviceInfo{
		DeviceID:   deviceID,
		DeviceName: cfg.DeviceName,
		IP:         s.resolveIP(),
		Model:      models.ModelTag,
		Status:     "ready",
	})
}

// handleAdopt merges the request body into the device config. A malformed
// body still answers 200 with a structured error, matching the protocol the
// hub expects.
func (s *Server) handleAdopt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeJSON(w, map[string]any{"status": "error", "error": err.Error()})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.log.Warn().Err(err).Msg("Malformed adoption payload")
		s.writeJSON(w, map[string]any{"status": "error", "error": err.Error()})

		return
	}

	s.store.Update(payload)
	s.log.Info().Interface("payload", payload).Msg("Adoption payload applied")

	s.writeJSON(w, map[string]any{"status": "ok", "saved": true})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{"status": "shutdown_initiated"})
	s.deferAction("shutdown")
}

func (s *Server) handleReboot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{"status": "reboot_initiated"})
	s.deferAction("reboot")
}

func (s *Server) handleUpdate(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{"status": "updating"})

	// The request context dies with the response; the fetch must not.
	go func() {
		time.Sleep(s.actionDelay)

		if err := s.updater.Apply(context.Background()); err != nil {
			// The old revision keeps running; nothing to roll back.
			s.log.Error().Err(err).Msg("Update failed")
		}
	}()
}

// deferAction runs a privileged power action after the response has had a
// chance to flush. Fire and forget: no confirmation is reported back.
func (s *Server) deferAction(action string) {
	go func() {
		time.Sleep(s.actionDelay)

		s.log.Info().Str("action", action).Msg("Executing power action")

		if err := s.powerCommand(action); err != nil {
			s.log.Error().Err(err).Str("action", action).Msg("Power action failed")
		}
	}()
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func systemPowerCommand(action string) error {
	switch action {
	case "reboot":
		return exec.Command("sudo", "reboot").Run()
	default:
		return exec.Command("sudo", "shutdown", "-h", "now").Run()
	}
}
