// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

//go:build linux

package attrs

import (
	"bytes"
	"errors"

	"golang.org/x/sys/unix"
)

// Supported reports whether the platform has an xattr implementation.
const Supported = true

// Namespace is the only xattr namespace that is versioned. System and
// security attributes belong to the host.
const Namespace = "user."

func unsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}

func listXAttrs(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range bytes.Split(buf[:n], []byte{0}) {
		if bytes.HasPrefix(name, []byte(Namespace)) {
			names = append(names, string(name))
		}
	}
	return names, nil
}

func readXAttrs(path string) (map[string][]byte, error) {
	out := map[string][]byte{}
	names, err := listXAttrs(path)
	if err != nil {
		if unsupported(err) {
			return out, nil
		}
		return nil, err
	}
	for _, name := range names {
		size, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			if errors.Is(err, unix.ENODATA) {
				continue
			}
			return nil, err
		}
		val := make([]byte, size)
		if size > 0 {
			n, err := unix.Lgetxattr(path, name, val)
			if err != nil {
				return nil, err
			}
			val = val[:n]
		}
		out[name] = val
	}
	return out, nil
}

func applyXAttrs(path string, want map[string][]byte) error {
	have, err := readXAttrs(path)
	if err != nil {
		return err
	}
	for name := range have {
		if _, keep := want[name]; keep {
			continue
		}
		if err := unix.Lremovexattr(path, name); err != nil && !errors.Is(err, unix.ENODATA) {
			return err
		}
	}
	for name, val := range want {
		if cur, ok := have[name]; ok && bytes.Equal(cur, val) {
			continue
		}
		if err := unix.Lsetxattr(path, name, val, 0); err != nil {
			return err
		}
	}
	return nil
}
