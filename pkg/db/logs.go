// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// LogEntry is one persisted log record.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Message   string    `json:"message"`
	Operation string    `json:"operation,omitempty"`
	Run       string    `json:"run,omitempty"`
	Seq       int       `json:"seq"`
}

// SerializeLogEntry converts a LogEntry to bytes for the LOGS buckets.
func SerializeLogEntry(entry LogEntry) ([]byte, error) {
	return json.Marshal(entry)
}

// DeserializeLogEntry parses a stored LogEntry.
func DeserializeLogEntry(data []byte) (*LogEntry, error) {
	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize LogEntry: %w", err)
	}
	return &entry, nil
}

// GenerateLogID generates a new UUID for a log entry.
func GenerateLogID() string {
	return uuid.New().String()
}

// ReadLogs returns the stored entries of one level, run by run in the
// order the runs started. limit <= 0 means all of them.
func (d *DB) ReadLogs(level string, limit int) ([]LogEntry, error) {
	var out []LogEntry
	err := d.View(func(tx *bolt.Tx) error {
		b := getBucket(tx, GetLogLevelBucketPath(level))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entry, err := DeserializeLogEntry(v)
			if err != nil {
				return err
			}
			out = append(out, *entry)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// LogLevels lists the levels that have persisted entries.
func (d *DB) LogLevels() ([]string, error) {
	var out []string
	err := d.View(func(tx *bolt.Tx) error {
		logs := tx.Bucket([]byte(BucketLogs))
		if logs == nil {
			return nil
		}
		return logs.ForEach(func(k, v []byte) error {
			if v == nil {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}
