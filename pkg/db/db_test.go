// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wc.db")

	h, state, err := Begin(path, 0)
	require.NoError(t, err)
	assert.Nil(t, state, "fresh database has no state")

	h.Timestamps().Put("n1", Stamp{MTime: 10, Written: 20, Size: 3})
	require.NoError(t, h.Save(&PendingState{
		Parents: []string{"c1"},
		Tree:    json.RawMessage(`{"root":"r"}`),
		Issues:  []MergeIssue{{ID: "i1", Path: "a", Description: "conflict"}},
	}))

	h, state, err = Begin(path, 0)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, []string{"c1"}, state.Parents)
	assert.JSONEq(t, `{"root":"r"}`, string(state.Tree))
	require.Len(t, state.Issues, 1)

	s, ok := h.Timestamps().Get("n1")
	require.True(t, ok)
	assert.Equal(t, int64(10), s.MTime)
	require.NoError(t, h.Abort())
}

func TestAbortDiscardsStagedStamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wc.db")

	h, _, err := Begin(path, 0)
	require.NoError(t, err)
	h.Timestamps().Put("n1", Stamp{MTime: 1})
	_, ok := h.Timestamps().Get("n1")
	assert.True(t, ok, "staged stamps are visible inside the operation")
	require.NoError(t, h.Abort())

	h, _, err = Begin(path, 0)
	require.NoError(t, err)
	defer h.Abort()
	_, ok = h.Timestamps().Get("n1")
	assert.False(t, ok)
}

func TestBeginIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wc.db")

	h, _, err := Begin(path, 0)
	require.NoError(t, err)
	defer h.Abort()

	_, _, err = Begin(path, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
}

func TestOperationLogStampsEntries(t *testing.T) {
	d, err := Open(Options{Path: filepath.Join(t.TempDir(), "wc.db"), LockTimeout: time.Second})
	require.NoError(t, err)
	defer d.Close()

	revert := StartOperationLog(d, "revert", 2, time.Hour)
	revert.Add(LogEntry{Level: "info", Message: "first"})
	revert.Add(LogEntry{Level: "error", Message: "boom"})
	revert.Add(LogEntry{Level: "info", Message: "second"})
	require.NoError(t, revert.Stop())
	require.NoError(t, revert.Stop())

	update := StartOperationLog(d, "update", 10, time.Hour)
	update.Add(LogEntry{Level: "info", Message: "other run"})
	require.NoError(t, update.Stop())
	assert.NotEqual(t, revert.Run(), update.Run())

	entries, err := d.RunLogs(revert.Run())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, "revert", e.Operation)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, []string{"first", "boom", "second"}, []string{entries[0].Message, entries[1].Message, entries[2].Message})

	info, err := d.ReadLogs("info", 0)
	require.NoError(t, err)
	assert.Len(t, info, 3)

	levels, err := d.LogLevels()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"info", "error"}, levels)
}

func TestOperationLogReportsFlushFailure(t *testing.T) {
	d, err := Open(Options{Path: filepath.Join(t.TempDir(), "wc.db"), LockTimeout: time.Second})
	require.NoError(t, err)

	l := StartOperationLog(d, "commit", 10, time.Hour)
	l.Add(LogEntry{Level: "info", Message: "lost"})
	require.NoError(t, d.Close())
	assert.ErrorIs(t, l.Stop(), ErrClosed)
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wc.db")
	h, _, err := Begin(path, 0)
	require.NoError(t, err)
	h.Timestamps().Put("x", Stamp{})
	h.Timestamps().Put("y", Stamp{})
	h.Timestamps().Delete("y")
	require.NoError(t, h.Save(&PendingState{Parents: []string{"p"}}))

	r, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Stamps)
	assert.Equal(t, []string{"p"}, r.State.Parents)
	assert.Equal(t, 0, r.TreeBytes)
}
