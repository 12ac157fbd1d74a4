// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrLocked is returned when another operation holds the working copy.
var ErrLocked = errors.New("working copy is locked by another operation")

// ErrClosed is returned by transactions on a closed handle.
var ErrClosed = errors.New("pending-state database is closed")

// Options configures how the pending-state database is opened.
type Options struct {
	Path        string
	LockTimeout time.Duration // how long to wait for the exclusive file lock
	ReadOnly    bool
}

// DefaultOptions returns options with a short lock wait.
func DefaultOptions() Options {
	return Options{LockTimeout: 2 * time.Second}
}

// DB wraps the bbolt handle of one working copy's pending-state database.
// bbolt holds an exclusive flock on the file for the lifetime of a
// read-write handle, which is the operation lock.
type DB struct {
	bolt *bolt.DB
	path string
}

// Open opens the database and creates the top-level buckets.
func Open(opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	bdb, err := bolt.Open(opts.Path, 0600, &bolt.Options{
		Timeout:  opts.LockTimeout,
		ReadOnly: opts.ReadOnly,
	})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%s: %w", opts.Path, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", opts.Path, err)
	}

	d := &DB{bolt: bdb, path: opts.Path}
	if !opts.ReadOnly {
		if err := d.Update(ensureTopLevelBuckets); err != nil {
			bdb.Close()
			return nil, err
		}
	}
	return d, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// IsOpen reports whether the handle has not been closed.
func (d *DB) IsOpen() bool {
	return d != nil && d.bolt != nil
}

// Update runs fn in a read-write transaction.
func (d *DB) Update(fn func(tx *bolt.Tx) error) error {
	if !d.IsOpen() {
		return ErrClosed
	}
	return d.bolt.Update(fn)
}

// View runs fn in a read-only transaction.
func (d *DB) View(fn func(tx *bolt.Tx) error) error {
	if !d.IsOpen() {
		return ErrClosed
	}
	return d.bolt.View(fn)
}

// Close releases the file lock.
func (d *DB) Close() error {
	if d.bolt == nil {
		return nil
	}
	err := d.bolt.Close()
	d.bolt = nil
	return err
}
