// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package objstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/dgraph-io/badger/v4"
)

const (
	prefixBlob      = "blob:"
	prefixTree      = "tree:"
	prefixChangeset = "cs:"
)

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// BadgerStore keeps objects in a badger key space, one prefix per object type.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a badger object store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger object store needs a path")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger object store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (s *BadgerStore) put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// ComputeHash implements Store.
func (s *BadgerStore) ComputeHash(data []byte) Hash {
	return ComputeHash(data)
}

// FetchBlob implements Store.
func (s *BadgerStore) FetchBlob(h Hash) ([]byte, error) {
	return s.get(prefixBlob + string(h))
}

// PutBlob implements Store.
func (s *BadgerStore) PutBlob(data []byte) (Hash, error) {
	h := ComputeHash(data)
	if err := s.put(prefixBlob+string(h), data); err != nil {
		return "", fmt.Errorf("failed to put blob: %w", err)
	}
	return h, nil
}

// LoadTree implements Store.
func (s *BadgerStore) LoadTree(h Hash) ([]TreeEntry, error) {
	data, err := s.get(prefixTree + string(h))
	if err != nil {
		return nil, err
	}
	return DecodeTree(data)
}

// PutTree implements Store.
func (s *BadgerStore) PutTree(entries []TreeEntry) (Hash, error) {
	data, err := EncodeTree(entries)
	if err != nil {
		return "", err
	}
	h := ComputeHash(data)
	if err := s.put(prefixTree+string(h), data); err != nil {
		return "", fmt.Errorf("failed to put tree: %w", err)
	}
	return h, nil
}

// GetChangeset implements Store.
func (s *BadgerStore) GetChangeset(id string) (*Changeset, error) {
	data, err := s.get(prefixChangeset + id)
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
func (s *BadgerStore) PutChangeset(cs *Changeset) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to encode changeset: %w", err)
	}
	return s.put(prefixChangeset+cs.ID, data)
}

// CountObjects counts keys under each object prefix.
func (s *BadgerStore) CountObjects() (blobs, trees, changesets int, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			switch {
			case strings.HasPrefix(k, prefixBlob):
				blobs++
			case strings.HasPrefix(k, prefixTree):
				trees++
			case strings.HasPrefix(k, prefixChangeset):
				changesets++
			}
		}
		return nil
	})
	return blobs, trees, changesets, err
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through the log service.
type badgerLogger struct{}

func (badgerLogger) log(level, format string, args ...any) {
	if logservice.LS != nil {
		_ = logservice.LS.Log(level, fmt.Sprintf(format, args...), "objstore", "badger")
	}
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log("error", format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log("warning", format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log("debug", format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log("trace", format, args...) }
