// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// MergeIssue is an unresolved issue left behind by a merge.
type MergeIssue struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Resolved    bool   `json:"resolved"`
}

// PendingState is everything persisted between operations besides the
// timestamp cache.
type PendingState struct {
	Parents []string        `json:"parents"`
	Tree    json.RawMessage `json:"tree,omitempty"` // absent when clean
	Issues  []MergeIssue    `json:"issues,omitempty"`
	Saved   time.Time       `json:"saved"`
}

// Handle is a locked pending-state database for one logical operation.
type Handle struct {
	db     *DB
	stamps *TimestampCache
	done   bool
}

// Begin acquires the exclusive lock and loads the pending state. The state
// is nil when nothing has ever been saved.
func Begin(path string, lockTimeout time.Duration) (*Handle, *PendingState, error) {
	opts := DefaultOptions()
	opts.Path = path
	if lockTimeout > 0 {
		opts.LockTimeout = lockTimeout
	}
	d, err := Open(opts)
	if err != nil {
		return nil, nil, err
	}

	state, err := loadState(d)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	return &Handle{db: d, stamps: newTimestampCache(d)}, state, nil
}

func loadState(d *DB) (*PendingState, error) {
	var state *PendingState
	err := d.View(func(tx *bolt.Tx) error {
		b := getBucket(tx, GetStateBucketPath())
		if b == nil {
			return nil
		}
		v := b.Get([]byte(KeyPendingState))
		if v == nil {
			return nil
		}
		var s PendingState
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("failed to decode pending state: %w", err)
		}
		state = &s
		return nil
	})
	return state, err
}

// DB exposes the underlying database (log persistence attaches here).
func (h *Handle) DB() *DB {
	return h.db
}

// Timestamps returns the staged timestamp cache of this operation.
func (h *Handle) Timestamps() *TimestampCache {
	return h.stamps
}

// Save writes state and the staged timestamp changes in one transaction and
// releases the lock.
func (h *Handle) Save(state *PendingState) error {
	if h.done {
		return fmt.Errorf("pending-state handle already released")
	}
	state.Saved = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode pending state: %w", err)
	}
	err = h.db.Update(func(tx *bolt.Tx) error {
		b, err := getOrCreateBucket(tx, GetStateBucketPath())
		if err != nil {
			return err
		}
		if err := b.Put([]byte(KeyPendingState), data); err != nil {
			return fmt.Errorf("failed to put pending state: %w", err)
		}
		return h.stamps.flush(tx)
	})
	if err != nil {
		return fmt.Errorf("failed to save pending state: %w", err)
	}
	return h.release()
}

// Abort releases the lock leaving the stored state unchanged.
func (h *Handle) Abort() error {
	if h.done {
		return nil
	}
	return h.release()
}

func (h *Handle) release() error {
	h.done = true
	return h.db.Close()
}

// ReadState loads the pending state without taking the write lock.
func ReadState(path string) (*PendingState, error) {
	opts := DefaultOptions()
	opts.Path = path
	opts.ReadOnly = true
	d, err := Open(opts)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return loadState(d)
}
