// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package etl

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExportStatusRows(t *testing.T) {
	out := filepath.Join(t.TempDir(), "status.duckdb")
	rows := []StatusRow{
		{ID: "a", Path: "a.txt", Kind: "file", Class: "added", Hash: "h1"},
		{ID: "b", Path: "docs/b.txt", OldPath: "b.txt", Kind: "file", Class: "none", Mods: "moved"},
		{ID: "c", Path: "c.txt", Kind: "file", Class: "added"},
	}

	stats, err := RunExport(ExportConfig{DuckDBPath: out, Snapshot: "cs1", Rows: rows})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Rows)
	assert.Zero(t, stats.Logs)

	counts, err := CountByClass(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"added": 2, "none": 1}, counts)

	// A second export replaces the tables.
	_, err = RunExport(ExportConfig{DuckDBPath: out, Snapshot: "cs1", Rows: rows[:1]})
	require.NoError(t, err)
	counts, err = CountByClass(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"added": 1}, counts)
}

func TestRunExportCopiesLogs(t *testing.T) {
	dir := t.TempDir()
	opts := db.DefaultOptions()
	opts.Path = filepath.Join(dir, "wc.db")
	src, err := db.Open(opts)
	require.NoError(t, err)
	defer src.Close()

	l := db.StartOperationLog(src, "revert", 10, time.Hour)
	for i, level := range []string{"info", "warning", "info"} {
		l.Add(db.LogEntry{
			Timestamp: time.Unix(int64(1000+i), 0).UTC(),
			Level:     level,
			Entity:    "reconcile",
			Message:   "message",
		})
	}
	require.NoError(t, l.Stop())

	out := filepath.Join(dir, "logs.duckdb")
	stats, err := RunExport(ExportConfig{DuckDBPath: out, LogsDB: src})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Logs)

	duck, err := OpenDuckDB(out)
	require.NoError(t, err)
	defer duck.Close()
	var warnings int
	require.NoError(t, duck.SQL().QueryRow("SELECT COUNT(*) FROM logs WHERE level = 'warning'").Scan(&warnings))
	assert.Equal(t, 1, warnings)
	var inRun int
	require.NoError(t, duck.SQL().QueryRow("SELECT COUNT(*) FROM logs WHERE run = ?", l.Run()).Scan(&inRun))
	assert.Equal(t, 3, inRun)
}

func TestRunExportRequiresPath(t *testing.T) {
	_, err := RunExport(ExportConfig{})
	assert.Error(t, err)
}
