// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package db

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Top-level buckets.
const (
	BucketState      = "STATE"
	BucketTimestamps = "TIMESTAMPS"
	BucketLogs       = "LOGS" // one sub-bucket per level
)

// Keys inside the STATE bucket.
const (
	KeyPendingState = "pending"
)

// GetStateBucketPath returns ["STATE"].
func GetStateBucketPath() []string {
	return []string{BucketState}
}

// GetTimestampsBucketPath returns ["TIMESTAMPS"].
func GetTimestampsBucketPath() []string {
	return []string{BucketTimestamps}
}

// GetLogLevelBucketPath returns ["LOGS", level].
func GetLogLevelBucketPath(level string) []string {
	return []string{BucketLogs, level}
}

func ensureTopLevelBuckets(tx *bolt.Tx) error {
	for _, name := range []string{BucketState, BucketTimestamps, BucketLogs} {
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", name, err)
		}
	}
	return nil
}

// getBucket walks a bucket path, returning nil if any element is missing.
func getBucket(tx *bolt.Tx, path []string) *bolt.Bucket {
	if len(path) == 0 {
		return nil
	}
	b := tx.Bucket([]byte(path[0]))
	for _, name := range path[1:] {
		if b == nil {
			return nil
		}
		b = b.Bucket([]byte(name))
	}
	return b
}

// getOrCreateBucket walks a bucket path, creating missing elements.
func getOrCreateBucket(tx *bolt.Tx, path []string) (*bolt.Bucket, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty bucket path")
	}
	b, err := tx.CreateBucketIfNotExists([]byte(path[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %w", path[0], err)
	}
	for _, name := range path[1:] {
		b, err = b.CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
		}
	}
	return b, nil
}

// GetOrCreateLogLevelBucket returns the LOGS/<level> bucket.
func GetOrCreateLogLevelBucket(tx *bolt.Tx, level string) (*bolt.Bucket, error) {
	return getOrCreateBucket(tx, GetLogLevelBucketPath(level))
}

// CountBucket counts the keys of the bucket at path (0 if absent).
func CountBucket(tx *bolt.Tx, path []string) int {
	b := getBucket(tx, path)
	if b == nil {
		return 0
	}
	return b.Stats().KeyN
}
