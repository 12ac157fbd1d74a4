// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// OperationLog collects the log entries of one working-copy operation and
// writes them into the LOGS/<level> buckets in batches. Entries are
// stamped with the operation name, a run id and a sequence number; their
// keys sort by run start and then by sequence, so a run stays contiguous
// inside every level bucket.
type OperationLog struct {
	db        *DB
	operation string
	run       string
	started   time.Time
	batchSize int

	mu       sync.Mutex
	pending  []LogEntry
	seq      int
	flushErr error

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// StartOperationLog begins a run of operation on d. It flushes every
// batchSize entries and every flushInterval until Stop.
func StartOperationLog(d *DB, operation string, batchSize int, flushInterval time.Duration) *OperationLog {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	l := &OperationLog{
		db:        d,
		operation: operation,
		run:       uuid.NewString(),
		started:   time.Now().UTC(),
		batchSize: batchSize,
		pending:   make([]LogEntry, 0, batchSize),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go l.flushLoop(flushInterval)
	return l
}

// Operation returns the operation name the run was started for.
func (l *OperationLog) Operation() string {
	return l.operation
}

// Run returns the id shared by every entry of this run.
func (l *OperationLog) Run() string {
	return l.run
}

// Add stamps entry with the run and queues it. A missing id or timestamp
// is filled in.
func (l *OperationLog) Add(entry LogEntry) {
	if entry.ID == "" {
		entry.ID = GenerateLogID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Operation = l.operation
	entry.Run = l.run

	l.mu.Lock()
	entry.Seq = l.seq
	l.seq++
	l.pending = append(l.pending, entry)
	full := len(l.pending) >= l.batchSize
	l.mu.Unlock()

	if full {
		l.Flush()
	}
}

// Flush writes the queued entries in one transaction. The first failure is
// kept and returned by Stop.
func (l *OperationLog) Flush() {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.pending
	l.pending = make([]LogEntry, 0, l.batchSize)
	l.mu.Unlock()

	err := l.db.Update(func(tx *bolt.Tx) error {
		for _, entry := range batch {
			b, err := GetOrCreateLogLevelBucket(tx, entry.Level)
			if err != nil {
				return fmt.Errorf("failed to get log level bucket: %w", err)
			}
			value, err := SerializeLogEntry(entry)
			if err != nil {
				return err
			}
			if err := b.Put(KeyLog(l.started, l.run, entry.Seq), value); err != nil {
				return fmt.Errorf("failed to put log entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		l.mu.Lock()
		if l.flushErr == nil {
			l.flushErr = fmt.Errorf("failed to flush %d log entries of %s: %w", len(batch), l.operation, err)
		}
		l.mu.Unlock()
	}
}

func (l *OperationLog) flushLoop(interval time.Duration) {
	defer close(l.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.stop:
			l.Flush()
			return
		}
	}
}

// Stop writes what is left and ends the run. The DB must still be open.
// Calling it again returns the same result.
func (l *OperationLog) Stop() error {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.stopped
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushErr
}

// RunLogs returns every entry of one run across all levels, in the order
// they were logged.
func (d *DB) RunLogs(run string) ([]LogEntry, error) {
	levels, err := d.LogLevels()
	if err != nil {
		return nil, err
	}
	var out []LogEntry
	for _, level := range levels {
		entries, err := d.ReadLogs(level, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Run == run {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
