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

// Package config owns the persisted device configuration. Every load, save,
// and merge goes through a single Store so concurrent callers (HTTP adoption
// handler, beacon loop, status reads) never race on the backing file.
//
// The file is held as a flat JSON object. Keys the hub sets during adoption
// are merged verbatim and preserved across reloads even when they are not
// part of the default key set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/touchstream/spoke/pkg/logger"
	"github.com/touchstream/spoke/pkg/models"
)

// DefaultFileName is the config file created under the user's home directory
// on first run.
const DefaultFileName = "stream-config.json"

const (
	defaultVideoBitrate = "4000k"
	defaultAudioBitrate = "128k"
	defaultResolution   = "1920x1080"
	defaultFramerate    = "30"
)

// Store serializes all access to the persisted device configuration.
type Store struct {
	mu   sync.Mutex
	path string
	log  logger.Logger
}

// NewStore creates a store backed by the given file path. An empty path
// resolves to DefaultFileName in the user's home directory.
func NewStore(path string, log logger.Logger) *Store {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}

		path = filepath.Join(home, DefaultFileName)
	}

	return &Store{path: path, log: log}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Defaults returns a fresh default configuration map. device_name falls back
// to the host name.
func Defaults() map[string]any {
	name, err := os.Hostname()
	if err != nil {
		name = "touchstream-spoke"
	}

	return map[string]any{
		"device_id":     "",
		"device_name":   name,
		"location":      "",
		"ingest_url":    "",
		"video_bitrate": defaultVideoBitrate,
		"audio_bitrate": defaultAudioBitrate,
		"resolution":    defaultResolution,
		"framerate":     defaultFramerate,
		"audio_muted":   false,
	}
}

// Load reads the persisted configuration. A missing file is created with
// defaults; any read or parse failure falls back to an in-memory default
// config. Missing default keys are backfilled into the loaded value without
// overwriting keys that are present, so a file written by an older revision
// stays usable after new fields are added.
func (s *Store) Load() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *Store) loadLocked() map[string]any {
	s.ensureLocked()

	cfg := make(map[string]any)

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Config read failed, using defaults")
		return Defaults()
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Config parse failed, using defaults")
		return Defaults()
	}

	for k, v := range Defaults() {
		if _, ok := cfg[k]; !ok {
			cfg[k] = v
		}
	}

	return cfg
}

// Save persists the full configuration. Failures are logged and swallowed;
// the in-memory config remains the source of truth for the caller.
func (s *Store) Save(cfg map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveLocked(cfg)
}

func (s *Store) saveLocked(cfg map[string]any) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode config")
		return
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("Failed to save config")
	}
}

// Update merges the payload into the current configuration with last-write-
// wins per key and persists the result. The load-merge-save sequence holds
// the store lock for its whole duration, so concurrent updates cannot lose
// keys. The merged config is returned.
func (s *Store) Update(payload map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.loadLocked()
	for k, v := range payload {
		cfg[k] = v
	}

	s.saveLocked(cfg)

	return cfg
}

// Snapshot returns the typed view of the current configuration.
func (s *Store) Snapshot() models.DeviceConfig {
	return TypedConfig(s.Load())
}

// ensureLocked creates the config file with defaults if it does not exist.
func (s *Store) ensureLocked() {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("Failed to create config directory")
			return
		}
	}

	if _, err := os.Stat(s.path); err == nil {
		return
	}

	s.saveLocked(Defaults())
	s.log.Info().Str("path", s.path).Msg("Created default config")
}

// TypedConfig converts a raw config map into the typed view. Unknown keys
// are ignored here but stay in the map. A JSON null device_id (written by
// earlier firmware revisions) reads as unadopted.
func TypedConfig(cfg map[string]any) models.DeviceConfig {
	return models.DeviceConfig{
		DeviceID:     stringKey(cfg, "device_id"),
		DeviceName:   stringKey(cfg, "device_name"),
		Location:     stringKey(cfg, "location"),
		IngestURL:    stringKey(cfg, "ingest_url"),
		VideoBitrate: stringKey(cfg, "video_bitrate"),
		AudioBitrate: stringKey(cfg, "audio_bitrate"),
		Resolution:   stringKey(cfg, "resolution"),
		Framerate:    stringKey(cfg, "framerate"),
		AudioMuted:   boolKey(cfg, "audio_muted"),
	}
}

// stringKey reads a scalar value as a string. Hubs are not required to send
// strings for string-valued keys (a numeric device_id is valid JSON), so
// numbers and booleans are rendered to their text form rather than dropped.
// Nulls and composite values read as empty.
func stringKey(cfg map[string]any, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case float64, bool:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

func boolKey(cfg map[string]any, key string) bool {
	v, ok := cfg[key]
	if !ok || v == nil {
		return false
	}

	b, ok := v.(bool)

	return ok && b
}
