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

package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchstream/spoke/pkg/logger"
)

type execRecorder struct {
	called bool
	argv0  string
}

func (e *execRecorder) exec(argv0 string, _ []string, _ []string) error {
	e.called = true
	e.argv0 = argv0

	return nil
}

func fakeBinary(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spoke")
	require.NoError(t, os.WriteFile(path, []byte("old revision"), 0o755))

	return path
}

func newUpdater(t *testing.T, url, binary string, rec *execRecorder) *Updater {
	t.Helper()

	return New(url, logger.NewTestLogger(),
		WithExecFunc(rec.exec),
		WithExecutablePath(func() (string, error) { return binary, nil }),
	)
}

func TestApplyReplacesBinaryAndReexecs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new revision"))
	}))
	defer srv.Close()

	binary := fakeBinary(t)
	rec := &execRecorder{}

	u := newUpdater(t, srv.URL, binary, rec)
	require.NoError(t, u.Apply(context.Background()))

	content, err := os.ReadFile(binary)
	require.NoError(t, err)
	assert.Equal(t, "new revision", string(content))

	info, err := os.Stat(binary)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "installed image must be executable")

	assert.True(t, rec.called)
	assert.Equal(t, binary, rec.argv0)
}

func TestApplyFetchFailureKeepsOldRevision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	binary := fakeBinary(t)
	rec := &execRecorder{}

	u := newUpdater(t, srv.URL, binary, rec)
	require.Error(t, u.Apply(context.Background()))

	content, err := os.ReadFile(binary)
	require.NoError(t, err)
	assert.Equal(t, "old revision", string(content), "failed fetch must not touch the binary")
	assert.False(t, rec.called)
}

func TestApplyRejectsEmptyImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	binary := fakeBinary(t)
	rec := &execRecorder{}

	u := newUpdater(t, srv.URL, binary, rec)

	err := u.Apply(context.Background())
	require.ErrorIs(t, err, errEmptyImage)
	assert.False(t, rec.called)
}

func TestApplyWithoutURL(t *testing.T) {
	rec := &execRecorder{}
	u := newUpdater(t, "", fakeBinary(t), rec)

	require.ErrorIs(t, u.Apply(context.Background()), ErrNoUpdateURL)
}

func TestApplyLeavesNoStagingFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	binary := fakeBinary(t)
	rec := &execRecorder{}

	u := newUpdater(t, srv.URL, binary, rec)
	require.Error(t, u.Apply(context.Background()))

	entries, err := os.ReadDir(filepath.Dir(binary))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging files must be cleaned up on failure")
}
