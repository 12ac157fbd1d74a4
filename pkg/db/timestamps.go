// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Stamp is the cached observation of a file whose content hash was computed.
type Stamp struct {
	MTime   int64 `json:"mtime"`   // observed modification time, unix nanos
	Written int64 `json:"written"` // when this stamp was recorded, unix nanos
	Size    int64 `json:"size"`
}

// TimestampCache reads stamps from the TIMESTAMPS bucket and stages
// changes until the handle is saved.
type TimestampCache struct {
	db     *DB
	staged map[string]*Stamp // nil value means delete
}

func newTimestampCache(d *DB) *TimestampCache {
	return &TimestampCache{db: d, staged: make(map[string]*Stamp)}
}

// Get returns the stamp for id.
func (c *TimestampCache) Get(id string) (Stamp, bool) {
	if s, ok := c.staged[id]; ok {
		if s == nil {
			return Stamp{}, false
		}
		return *s, true
	}
	var out Stamp
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := getBucket(tx, GetTimestampsBucketPath())
		if b == nil {
			return nil
		}
		v := b.Get(KeyTimestamp(id))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &out); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return out, found
}

// Put stages a stamp.
func (c *TimestampCache) Put(id string, s Stamp) {
	c.staged[id] = &s
}

// Delete stages removal of a stamp.
func (c *TimestampCache) Delete(id string) {
	c.staged[id] = nil
}

// Len returns the number of persisted stamps (staged changes excluded).
func (c *TimestampCache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = CountBucket(tx, GetTimestampsBucketPath())
		return nil
	})
	return n
}

func (c *TimestampCache) flush(tx *bolt.Tx) error {
	b, err := getOrCreateBucket(tx, GetTimestampsBucketPath())
	if err != nil {
		return err
	}
	for id, s := range c.staged {
		if s == nil {
			if err := b.Delete(KeyTimestamp(id)); err != nil {
				return fmt.Errorf("failed to delete stamp %s: %w", id, err)
			}
			continue
		}
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode stamp %s: %w", id, err)
		}
		if err := b.Put(KeyTimestamp(id), data); err != nil {
			return fmt.Errorf("failed to put stamp %s: %w", id, err)
		}
	}
	c.staged = make(map[string]*Stamp)
	return nil
}
