// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package fsservices

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListChildrenHidesControlDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".sylos"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.Symlink("b.txt", filepath.Join(root, "link")))

	l, err := NewLocalFS(root, ".sylos")
	require.NoError(t, err)
	res, err := l.ListChildren(root)
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, "b.txt", res.Entries[0].Name)
	assert.Equal(t, objstore.KindFile, res.Entries[0].Kind)
	assert.Equal(t, int64(2), res.Entries[0].Size)
	assert.Equal(t, objstore.KindDirectory, res.Entries[1].Kind)
	assert.Equal(t, objstore.KindSymlink, res.Entries[2].Kind)

	target, err := l.ReadFile(filepath.Join(root, "link"), objstore.KindSymlink)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", string(target))
}

func TestWriteAndRename(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocalFS(root, ".sylos")
	require.NoError(t, err)

	a := l.Abs("a.txt")
	require.NoError(t, l.WriteFile(a, objstore.KindFile, []byte("one")))
	require.NoError(t, l.WriteFile(a, objstore.KindFile, []byte("two")))
	got, err := l.ReadFile(a, objstore.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, l.CreateFolder(l.Abs("d")))
	require.NoError(t, l.Rename(a, l.Abs("d/a.txt")))
	assert.False(t, l.Exists(a))

	require.NoError(t, l.WriteFile(l.Abs("other"), objstore.KindFile, nil))
	err = l.Rename(l.Abs("other"), l.Abs("d/a.txt"))
	assert.ErrorIs(t, err, fs.ErrExist)

	rel, err := l.Rel(l.Abs("d/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "d/a.txt", rel)
}

func TestCaseInsensitiveProbe(t *testing.T) {
	_, err := CaseInsensitive(t.TempDir())
	assert.NoError(t, err)
}
