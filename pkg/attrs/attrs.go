// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package attrs reads and applies attribute bits and extended attributes.
package attrs

import (
	"fmt"
	"os"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
)

// Store is the attribute/xattr capability of a filesystem.
type Store interface {
	Read(path string, kind objstore.Kind) (objstore.AttrBits, map[string][]byte, error)
	Apply(path string, kind objstore.Kind, bits objstore.AttrBits, xattrs map[string][]byte) error
}

// Local works on the local filesystem. With XAttrs false, extended
// attributes are neither read nor written.
type Local struct {
	XAttrs bool
}

// NewLocal returns the local attribute store.
func NewLocal(xattrs bool) *Local {
	return &Local{XAttrs: xattrs && Supported}
}

// Read returns the attribute bits and extended attributes of path.
// Symlinks carry no attribute bits.
func (l *Local) Read(path string, kind objstore.Kind) (objstore.AttrBits, map[string][]byte, error) {
	var bits objstore.AttrBits
	if kind == objstore.KindFile {
		info, err := os.Lstat(path)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.Mode().Perm()&0o111 != 0 {
			bits |= objstore.AttrExecutable
		}
	}
	if !l.XAttrs {
		return bits, map[string][]byte{}, nil
	}
	xs, err := readXAttrs(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read xattrs of %s: %w", path, err)
	}
	return bits, xs, nil
}

// Apply makes path carry exactly bits and xattrs.
func (l *Local) Apply(path string, kind objstore.Kind, bits objstore.AttrBits, xattrs map[string][]byte) error {
	if kind == objstore.KindFile {
		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		mode := info.Mode().Perm()
		want := mode &^ 0o111
		if bits&objstore.AttrExecutable != 0 {
			// Grant execute wherever read is granted.
			want |= (mode & 0o444) >> 2
		}
		if want != mode {
			if err := os.Chmod(path, want); err != nil {
				return fmt.Errorf("failed to chmod %s: %w", path, err)
			}
		}
	}
	if !l.XAttrs {
		return nil
	}
	if err := applyXAttrs(path, xattrs); err != nil {
		return fmt.Errorf("failed to apply xattrs to %s: %w", path, err)
	}
	return nil
}
