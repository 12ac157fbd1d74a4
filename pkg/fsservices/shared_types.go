// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package fsservices

import (
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
)

// Entry is one on-disk directory entry as seen by lstat.
type Entry struct {
	Name    string
	Kind    objstore.Kind
	Size    int64
	ModTime time.Time
}

// ListResult is the listing of one directory, sorted by name.
type ListResult struct {
	Entries []Entry
}

// ByName indexes the listing.
func (r ListResult) ByName() map[string]Entry {
	out := make(map[string]Entry, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Name] = e
	}
	return out
}

// FSAdapter is the filesystem surface used by the scanner and the
// reconciler. Identifiers are absolute paths; Abs and Rel convert from and
// to paths relative to Root.
type FSAdapter interface {
	Root() string
	Abs(rel string) string
	Rel(abs string) (string, error)
	ListChildren(identifier string) (ListResult, error)
	Stat(identifier string) (Entry, error)
	Exists(identifier string) bool
	ReadFile(identifier string, kind objstore.Kind) ([]byte, error)
	WriteFile(identifier string, kind objstore.Kind, content []byte) error
	CreateFolder(identifier string) error
	Rename(from, to string) error
	Remove(identifier string) error
	RemoveAll(identifier string) error
}
