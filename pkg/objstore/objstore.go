// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package objstore is the content-addressed store for blobs, directory
// trees and changesets.
package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrObjectNotFound is returned when a hash or changeset id is unknown.
var ErrObjectNotFound = errors.New("object not found")

// Hash is the hex SHA-256 of an object's bytes.
type Hash string

// Kind is the type of a tracked entry.
type Kind uint8

const (
	KindDirectory Kind = iota + 1
	KindFile
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// AttrBits are the portable attribute bits tracked per entry.
type AttrBits uint32

// AttrExecutable marks a file as executable.
const AttrExecutable AttrBits = 1

// TreeEntry is one child listed in a stored directory.
type TreeEntry struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Hash      Hash     `json:"hash"`
	Attrs     AttrBits `json:"attrs,omitempty"`
	XAttrHash Hash     `json:"xattr_hash,omitempty"`
}

// Changeset is one committed snapshot.
type Changeset struct {
	ID       string    `json:"id"`
	Parents  []string  `json:"parents"`
	RootID   string    `json:"root_id"`
	RootHash Hash      `json:"root_hash"`
	Message  string    `json:"message"`
	Created  time.Time `json:"created"`
}

// Store is the object-store collaborator used by the tree model, the
// diff engine and the reconciler.
type Store interface {
	LoadTree(h Hash) ([]TreeEntry, error)
	PutTree(entries []TreeEntry) (Hash, error)
	FetchBlob(h Hash) ([]byte, error)
	PutBlob(data []byte) (Hash, error)
	ComputeHash(data []byte) Hash
	GetChangeset(id string) (*Changeset, error)
	PutChangeset(cs *Changeset) error
	Close() error
}

// ComputeHash hashes data the same way every backend does.
func ComputeHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// EncodeTree produces the canonical bytes of a directory listing.
func EncodeTree(entries []TreeEntry) ([]byte, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate entry name %q in tree", sorted[i].Name)
		}
	}
	return json.Marshal(sorted)
}

// DecodeTree parses bytes produced by EncodeTree.
func DecodeTree(data []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	return entries, nil
}

// EncodeXAttrs produces the canonical bytes of an extended-attribute map.
// encoding/json sorts map keys.
func EncodeXAttrs(xattrs map[string][]byte) ([]byte, error) {
	return json.Marshal(xattrs)
}

// DecodeXAttrs parses bytes produced by EncodeXAttrs.
func DecodeXAttrs(data []byte) (map[string][]byte, error) {
	out := map[string][]byte{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode xattrs: %w", err)
	}
	return out, nil
}

// HashXAttrs returns the hash an xattr map would be stored under; an empty
// map hashes to "".
func HashXAttrs(xattrs map[string][]byte) (Hash, error) {
	if len(xattrs) == 0 {
		return "", nil
	}
	data, err := EncodeXAttrs(xattrs)
	if err != nil {
		return "", err
	}
	return ComputeHash(data), nil
}

// PutXAttrs stores an xattr map as a blob.
func PutXAttrs(s Store, xattrs map[string][]byte) (Hash, error) {
	if len(xattrs) == 0 {
		return "", nil
	}
	data, err := EncodeXAttrs(xattrs)
	if err != nil {
		return "", err
	}
	return s.PutBlob(data)
}

// FetchXAttrs loads an xattr map stored by PutXAttrs.
func FetchXAttrs(s Store, h Hash) (map[string][]byte, error) {
	if h == "" {
		return nil, nil
	}
	data, err := s.FetchBlob(h)
	if err != nil {
		return nil, err
	}
	return DecodeXAttrs(data)
}

// Open opens the configured backend at path. backend is "bolt" or "badger".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "bolt":
		return OpenBolt(path)
	case "badger":
		return OpenBadger(BadgerConfig{Path: path})
	default:
		return nil, fmt.Errorf("unknown object store backend %q", backend)
	}
}
