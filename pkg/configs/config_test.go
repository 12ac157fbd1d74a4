// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second, cfg.LogBuffer.FlushInterval())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Objects.Backend = "badger"
	cfg.Scan.Ignore = []string{"*.o", "build/"}
	cfg.Portability.IgnoreFlags = []string{"symlink"}
	cfg.Journal.Enabled = false
	require.NoError(t, Save(root, cfg))

	got, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	a, err := got.Portability.Analyzer()
	require.NoError(t, err)
	assert.NotZero(t, a.Ignore)
}

func TestEnvironmentOverrides(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Save(root, Default()))
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvObjectsBackend, "badger")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "badger", cfg.Objects.Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":   "logging:\n  level: loud\n",
		"backend": "objects:\n  backend: s3\n",
		"flags":   "portability:\n  ignore_flags: [nonsense]\n",
		"backups": "backups:\n  max_attempts: 500\n",
		"yaml":    "logging: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(root, ControlDir), 0o755))
			require.NoError(t, os.WriteFile(PathFor(root), []byte(body), 0o644))
			_, err := Load(root)
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("/wc", ControlDir, "objects.db"), Resolve("/wc", "objects.db"))
	assert.Equal(t, "/elsewhere/o.db", Resolve("/wc", "/elsewhere/o.db"))
	assert.Empty(t, Resolve("/wc", ""))
}
