// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package logservice

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogRespectsConsoleThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewSenderWithLogger(zap.New(core), "warning")

	require.NoError(t, s.Log("info", "quiet", "scan", "n1"))
	require.NoError(t, s.Log("error", "loud", "scan", "n2"))
	assert.Error(t, s.Log("verbose", "bad level", "scan", "n3"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "loud", entry.Message)
	assert.Equal(t, "n2", entry.ContextMap()["entity_id"])
}

func TestAttachPersistsEveryLevel(t *testing.T) {
	d, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "wc.db"), LockTimeout: time.Second})
	require.NoError(t, err)
	defer d.Close()

	core, _ := observer.New(zap.DebugLevel)
	s := NewSenderWithLogger(zap.New(core), "error")
	run := s.Attach(d, "revert")
	require.NoError(t, s.Log("debug", "below threshold", "reconcile", "x"))
	require.NoError(t, s.Log("error", "above threshold", "reconcile", "x"))
	s.Detach()
	require.NoError(t, s.Log("debug", "after detach", "reconcile", "y"))

	entries, err := d.ReadLogs("debug", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "below threshold", entries[0].Message)
	assert.Equal(t, "revert", entries[0].Operation)

	runLogs, err := d.RunLogs(run)
	require.NoError(t, err)
	require.Len(t, runLogs, 2)
	assert.Equal(t, "above threshold", runLogs[1].Message)
}

func TestNewSenderRejectsBadConfig(t *testing.T) {
	_, err := NewSender(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = NewSender(Config{Encoding: "xml"})
	assert.Error(t, err)
	s, err := NewSender(Config{Encoding: "json"})
	require.NoError(t, err)
	assert.Equal(t, "info", s.Level)
}
