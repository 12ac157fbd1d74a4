// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package fsservices is the local filesystem adapter of the working copy.
package fsservices

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/google/uuid"
)

// LocalFS implements FSAdapter for the local filesystem.
type LocalFS struct {
	root    string // absolute, normalized working-copy root
	control string // name of the control directory hidden at the root
}

var _ FSAdapter = (*LocalFS)(nil)

// NewLocalFS constructs a new LocalFS adapter rooted at the given path.
// Entries named control directly under the root are never listed.
func NewLocalFS(rootPath, control string) (*LocalFS, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}
	return &LocalFS{root: filepath.Clean(abs), control: control}, nil
}

// Root returns the absolute root.
func (l *LocalFS) Root() string {
	return l.root
}

// Abs turns a slash separated repo-relative path into an absolute path.
func (l *LocalFS) Abs(rel string) string {
	if rel == "" {
		return l.root
	}
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// Rel turns an absolute path under the root into a repo-relative path.
func (l *LocalFS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the working copy", abs)
	}
	return rel, nil
}

func kindOf(mode fs.FileMode) (objstore.Kind, bool) {
	switch {
	case mode.IsDir():
		return objstore.KindDirectory, true
	case mode&fs.ModeSymlink != 0:
		return objstore.KindSymlink, true
	case mode.IsRegular():
		return objstore.KindFile, true
	default:
		return 0, false
	}
}

// ListChildren lists the immediate children of a directory. Sockets,
// devices and pipes are skipped.
func (l *LocalFS) ListChildren(identifier string) (ListResult, error) {
	var result ListResult

	entries, err := os.ReadDir(identifier)
	if err != nil {
		if logservice.LS != nil {
			_ = logservice.LS.Log(
				"error",
				fmt.Sprintf("Failed to read directory %s: %v", identifier, err),
				"fsservices",
				"local",
			)
		}
		return result, err
	}
	atRoot := filepath.Clean(identifier) == l.root

	for _, entry := range entries {
		if atRoot && entry.Name() == l.control {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if logservice.LS != nil {
				_ = logservice.LS.Log(
					"warning",
					fmt.Sprintf("Failed to get info for %s: %v", entry.Name(), err),
					"fsservices",
					"local",
				)
			}
			continue
		}
		kind, ok := kindOf(info.Mode())
		if !ok {
			continue
		}
		result.Entries = append(result.Entries, Entry{
			Name:    entry.Name(),
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(result.Entries, func(i, j int) bool { return result.Entries[i].Name < result.Entries[j].Name })
	return result, nil
}

// Stat describes one entry without following symlinks.
func (l *LocalFS) Stat(identifier string) (Entry, error) {
	info, err := os.Lstat(identifier)
	if err != nil {
		return Entry{}, err
	}
	kind, ok := kindOf(info.Mode())
	if !ok {
		return Entry{}, fmt.Errorf("%s is not a file, directory or symlink", identifier)
	}
	return Entry{Name: info.Name(), Kind: kind, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Exists reports whether anything occupies identifier.
func (l *LocalFS) Exists(identifier string) bool {
	_, err := os.Lstat(identifier)
	return err == nil
}

// ReadFile returns file content or, for a symlink, its target.
func (l *LocalFS) ReadFile(identifier string, kind objstore.Kind) ([]byte, error) {
	if kind == objstore.KindSymlink {
		target, err := os.Readlink(identifier)
		if err != nil {
			return nil, err
		}
		return []byte(filepath.ToSlash(target)), nil
	}
	return os.ReadFile(identifier)
}

// WriteFile creates or replaces a file or symlink. Files are written to a
// sibling temp file and renamed into place.
func (l *LocalFS) WriteFile(identifier string, kind objstore.Kind, content []byte) error {
	dir := filepath.Dir(identifier)
	tmp := filepath.Join(dir, ".sylos-tmp-"+uuid.NewString())

	var err error
	if kind == objstore.KindSymlink {
		err = os.Symlink(filepath.FromSlash(string(content)), tmp)
	} else {
		err = os.WriteFile(tmp, content, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, identifier)
	}
	if err != nil {
		_ = os.Remove(tmp)
		if logservice.LS != nil {
			_ = logservice.LS.Log(
				"error",
				fmt.Sprintf("Failed to write %s: %v", identifier, err),
				"fsservices",
				"local",
			)
		}
		return err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log(
			"trace",
			fmt.Sprintf("Wrote %s (%d bytes)", identifier, len(content)),
			"fsservices",
			"local",
		)
	}
	return nil
}

// CreateFolder creates one directory; its parent must exist.
func (l *LocalFS) CreateFolder(identifier string) error {
	if err := os.Mkdir(identifier, 0o755); err != nil {
		if logservice.LS != nil {
			_ = logservice.LS.Log(
				"error",
				fmt.Sprintf("Failed to create folder %s: %v", identifier, err),
				"fsservices",
				"local",
			)
		}
		return err
	}
	return nil
}

// Rename moves an entry; the destination must not exist.
func (l *LocalFS) Rename(from, to string) error {
	if _, err := os.Lstat(to); err == nil {
		// A case-only rename on a case-insensitive filesystem sees itself.
		if !sameFile(from, to) {
			return fmt.Errorf("rename %s: destination %s exists: %w", from, to, fs.ErrExist)
		}
	}
	if err := os.Rename(from, to); err != nil {
		if logservice.LS != nil {
			_ = logservice.LS.Log(
				"error",
				fmt.Sprintf("Failed to rename %s to %s: %v", from, to, err),
				"fsservices",
				"local",
			)
		}
		return err
	}
	return nil
}

func sameFile(a, b string) bool {
	ia, err := os.Lstat(a)
	if err != nil {
		return false
	}
	ib, err := os.Lstat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

// Remove deletes a file, symlink or empty directory.
func (l *LocalFS) Remove(identifier string) error {
	return os.Remove(identifier)
}

// RemoveAll deletes an entry and everything below it.
func (l *LocalFS) RemoveAll(identifier string) error {
	return os.RemoveAll(identifier)
}

// CaseInsensitive probes whether the filesystem holding dir folds case.
func CaseInsensitive(dir string) (bool, error) {
	name := ".sylos-case-" + uuid.NewString()
	probe := filepath.Join(dir, name)
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return false, err
	}
	defer os.Remove(probe)
	_, err := os.Lstat(filepath.Join(dir, strings.ToUpper(name)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
