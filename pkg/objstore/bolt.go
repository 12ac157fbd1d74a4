// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package objstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names inside the bolt object store.
const (
	BucketBlobs      = "BLOBS"
	BucketTrees      = "TREES"
	BucketChangesets = "CHANGESETS"
)

// BoltStore keeps every object in a single bbolt file.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (or creates) a bolt object store.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open object store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketBlobs, BucketTrees, BucketChangesets} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, path: path}, nil
}

// Path returns the file backing the store.
func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) get(bucket string, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get(key)
		if v == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrObjectNotFound)
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	return out, err
}

func (s *BoltStore) put(bucket string, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get(key) != nil && bucket != BucketChangesets {
			return nil
		}
		return b.Put(key, value)
	})
}

// ComputeHash implements Store.
func (s *BoltStore) ComputeHash(data []byte) Hash {
	return ComputeHash(data)
}

// FetchBlob implements Store.
func (s *BoltStore) FetchBlob(h Hash) ([]byte, error) {
	return s.get(BucketBlobs, []byte(h))
}

// PutBlob implements Store.
func (s *BoltStore) PutBlob(data []byte) (Hash, error) {
	h := ComputeHash(data)
	if err := s.put(BucketBlobs, []byte(h), data); err != nil {
		return "", fmt.Errorf("failed to put blob: %w", err)
	}
	return h, nil
}

// LoadTree implements Store.
func (s *BoltStore) LoadTree(h Hash) ([]TreeEntry, error) {
	data, err := s.get(BucketTrees, []byte(h))
	if err != nil {
		return nil, err
	}
	return DecodeTree(data)
}

// PutTree implements Store.
func (s *BoltStore) PutTree(entries []TreeEntry) (Hash, error) {
	data, err := EncodeTree(entries)
	if err != nil {
		return "", err
	}
	h := ComputeHash(data)
	if err := s.put(BucketTrees, []byte(h), data); err != nil {
		return "", fmt.Errorf("failed to put tree: %w", err)
	}
	return h, nil
}

// GetChangeset implements Store.
func (s *BoltStore) GetChangeset(id string) (*Changeset, error) {
	data, err := s.get(BucketChangesets, []byte(id))
	if err != nil {
		return nil, err
	}
	var cs Changeset
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to decode changeset %s: %w", id, err)
	}
	return &cs, nil
}

// PutChangeset implements Store.
func (s *BoltStore) PutChangeset(cs *Changeset) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode changeset: %w", err)
	}
	return s.put(BucketChangesets, []byte(cs.ID), data)
}

// CountObjects returns the number of keys in each object bucket.
func (s *BoltStore) CountObjects() (blobs, trees, changesets int, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		blobs = tx.Bucket([]byte(BucketBlobs)).Stats().KeyN
		trees = tx.Bucket([]byte(BucketTrees)).Stats().KeyN
		changesets = tx.Bucket([]byte(BucketChangesets)).Stats().KeyN
		return nil
	})
	return blobs, trees, changesets, err
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
