// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"sort"

	bolt "go.etcd.io/bbolt"
)

// Report summarizes the contents of a pending-state database.
type Report struct {
	Path        string
	State       *PendingState
	TreeBytes   int
	Stamps      int
	LogsByLevel map[string]int
}

// Levels returns the log levels of the report in sorted order.
func (r *Report) Levels() []string {
	out := make([]string, 0, len(r.LogsByLevel))
	for l := range r.LogsByLevel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Inspect opens the database read-only and counts what it holds.
func Inspect(path string) (*Report, error) {
	opts := DefaultOptions()
	opts.Path = path
	opts.ReadOnly = true
	d, err := Open(opts)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	state, err := loadState(d)
	if err != nil {
		return nil, err
	}
	r := &Report{Path: path, State: state, LogsByLevel: map[string]int{}}
	if state != nil {
		r.TreeBytes = len(state.Tree)
	}

	levels, err := d.LogLevels()
	if err != nil {
		return nil, err
	}
	err = d.View(func(tx *bolt.Tx) error {
		r.Stamps = CountBucket(tx, GetTimestampsBucketPath())
		for _, l := range levels {
			r.LogsByLevel[l] = CountBucket(tx, GetLogLevelBucketPath(l))
		}
		return nil
	})
	return r, err
}
