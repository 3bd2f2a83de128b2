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

// Package updater replaces the running agent in place: fetch the latest
// binary, swap it over the current executable, and re-exec. The process
// image is replaced rather than a child spawned, so no parent remains to
// monitor the transition. There is no rollback; any failure leaves the old
// revision running.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/touchstream/spoke/pkg/logger"
)

var (
	ErrNoUpdateURL  = errors.New("no update source configured")
	errEmptyImage   = errors.New("fetched update image is empty")
	errFetchFailed  = errors.New("update fetch failed")
	defaultExecFunc = syscall.Exec
)

// Updater fetches and applies in-place software updates.
type Updater struct {
	url        string
	client     *http.Client
	log        logger.Logger
	execFn     func(argv0 string, argv []string, envv []string) error
	executable func() (string, error)
}

// Option configures an Updater.
type Option func(*Updater)

// WithHTTPClient overrides the fetch client.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.client = c }
}

// WithExecFunc overrides the re-exec call, used by tests.
func WithExecFunc(fn func(string, []string, []string) error) Option {
	return func(u *Updater) { u.execFn = fn }
}

// WithExecutablePath overrides resolution of the running binary's path.
func WithExecutablePath(fn func() (string, error)) Option {
	return func(u *Updater) { u.executable = fn }
}

// New creates an updater fetching from the given URL.
func New(url string, log logger.Logger, opts ...Option) *Updater {
	u := &Updater{
		url:        url,
		client:     &http.Client{Timeout: 5 * time.Minute},
		log:        log,
		execFn:     defaultExecFunc,
		executable: os.Executable,
	}

	for _, o := range opts {
		o(u)
	}

	return u
}

// Apply fetches the latest revision and re-executes the agent in place. The
// downloaded image must be non-empty and is staged next to the running
// binary so the final rename stays on one filesystem.
func (u *Updater) Apply(ctx context.Context) error {
	if u.url == "" {
		return ErrNoUpdateURL
	}

	self, err := u.executable()
	if err != nil {
		return fmt.Errorf("cannot resolve running executable: %w", err)
	}

	u.log.Info().Str("url", u.url).Msg("Fetching update")

	staged, err := u.fetch(ctx, self)
	if err != nil {
		return err
	}

	if err := os.Rename(staged, self); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("failed to install update: %w", err)
	}

	u.log.Info().Str("path", self).Msg("Update installed, re-executing")

	if err := u.execFn(self, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec failed: %w", err)
	}

	return nil
}

// fetch downloads the image into a staging file beside dest and returns the
// staging path.
func (u *Updater) fetch(ctx context.Context, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errFetchFailed, err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %s", errFetchFailed, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".update-*")
	if err != nil {
		return "", fmt.Errorf("failed to stage update: %w", err)
	}

	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()

	switch {
	case err != nil:
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", errFetchFailed, err)
	case closeErr != nil:
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage update: %w", closeErr)
	case written == 0:
		_ = os.Remove(tmp.Name())
		return "", errEmptyImage
	}

	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to mark update executable: %w", err)
	}

	return tmp.Name(), nil
}
