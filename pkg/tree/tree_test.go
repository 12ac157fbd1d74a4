// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package tree

import (
	"path/filepath"
	"testing"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseline builds: root/{a/{f.txt}, b.txt}
func baseline(t *testing.T) (objstore.Store, objstore.Hash) {
	t.Helper()
	s, err := objstore.OpenBolt(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fh, err := s.PutBlob([]byte("f"))
	require.NoError(t, err)
	bh, err := s.PutBlob([]byte("b"))
	require.NoError(t, err)
	ah, err := s.PutTree([]objstore.TreeEntry{{ID: "f", Name: "f.txt", Kind: objstore.KindFile, Hash: fh}})
	require.NoError(t, err)
	rh, err := s.PutTree([]objstore.TreeEntry{
		{ID: "a", Name: "a", Kind: objstore.KindDirectory, Hash: ah},
		{ID: "b", Name: "b.txt", Kind: objstore.KindFile, Hash: bh},
	})
	require.NoError(t, err)
	return s, rh
}

func TestLoadChildrenIsLazyAndIdempotent(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	assert.Equal(t, 1, tr.Len())

	require.NoError(t, tr.LoadChildren("root"))
	require.NoError(t, tr.LoadChildren("root"))
	assert.Equal(t, 3, tr.Len())
	assert.False(t, tr.IsLoaded("a"))

	kids, err := tr.Children("root")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "a", kids[0].Name())
	assert.Equal(t, "b.txt", kids[1].Name())
}

func TestLoadChildrenOfFilePanics(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	require.NoError(t, tr.LoadChildren("root"))
	assert.Panics(t, func() { _ = tr.LoadChildren("b") })
}

func TestFindByIDLoadsOnDemand(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)

	n, err := tr.FindByID("f")
	require.NoError(t, err)
	assert.Equal(t, "f.txt", n.Name())

	_, err = tr.FindByID("nope")
	assert.ErrorIs(t, err, wcerr.ErrNotFound)
}

func TestPathsFollowMovesAndRenames(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	f, err := tr.FindByID("f")
	require.NoError(t, err)

	require.NoError(t, tr.Move("f", "root"))
	f.SetName("g.txt")

	cur, err := tr.CurrentPath("f")
	require.NoError(t, err)
	orig, err := tr.OriginalPath("f")
	require.NoError(t, err)
	assert.Equal(t, "g.txt", cur)
	assert.Equal(t, "a/f.txt", orig)

	assert.True(t, f.IsMoved())
	assert.True(t, f.IsRenamed())
	require.Len(t, tr.Ghosts("a"), 1)

	byOrig, err := tr.LookupOriginal("a/f.txt")
	require.NoError(t, err)
	assert.Equal(t, f, byOrig)

	_, err = tr.Lookup("a/f.txt")
	assert.ErrorIs(t, err, wcerr.ErrNotFound)
}

func TestOverrideNormalizesBackToBaseline(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	b, err := tr.FindByID("b")
	require.NoError(t, err)

	orig := b.Hash()
	b.SetContent("other")
	assert.True(t, b.IsModified())
	assert.Equal(t, orig, b.Baseline.Hash, "override never touches the baseline")

	b.SetContent(orig)
	assert.Nil(t, b.Override)
	assert.False(t, b.IsDirtySelf())
}

func TestUniqueIDs(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	require.NoError(t, tr.LoadChildren("root"))

	err := tr.AddChild("root", &Node{ID: "b", Kind: objstore.KindFile, State: StateAdded, Override: &Descriptor{Name: "dup"}})
	assert.Error(t, err)

	seen := map[ID]bool{}
	for _, n := range tr.Nodes() {
		assert.False(t, seen[n.ID])
		seen[n.ID] = true
	}
}

func TestUnloadEvictsCleanSubtrees(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	require.NoError(t, tr.LoadAll())
	assert.Equal(t, 4, tr.Len())

	assert.False(t, tr.Unload())
	assert.Equal(t, 1, tr.Len())

	b, err := tr.FindByID("b")
	require.NoError(t, err)
	b.SetAttrs(objstore.AttrExecutable)
	_, err = tr.FindByID("f")
	require.NoError(t, err)

	assert.True(t, tr.Unload())
	_, aLoaded := tr.Node("f")
	assert.False(t, aLoaded, "clean directory a is evicted")
	_, bLoaded := tr.Node("b")
	assert.True(t, bLoaded)
}

func TestMarshalRoundTrip(t *testing.T) {
	s, rh := baseline(t)
	tr := New(s, "root", rh)
	require.NoError(t, tr.LoadChildren("root"))
	require.NoError(t, tr.AddChild("root", &Node{ID: "new", Kind: objstore.KindFile, State: StateAdded, Override: &Descriptor{Name: "new.txt"}}))
	require.NoError(t, tr.AddChild("root", &Node{ID: "tmp", Kind: objstore.KindFile, State: StateFound, Override: &Descriptor{Name: "tmp.o"}}))
	_, err := tr.FindByID("f")
	require.NoError(t, err)
	require.NoError(t, tr.Move("f", "root"))
	tr.Unload()

	data, err := tr.Marshal()
	require.NoError(t, err)

	back, err := Unmarshal(s, data)
	require.NoError(t, err)
	_, hasFound := back.Node("tmp")
	assert.False(t, hasFound, "found entries are not persisted")

	p, err := back.CurrentPath("f")
	require.NoError(t, err)
	assert.Equal(t, "f.txt", p)
	assert.Len(t, back.Ghosts("a"), 1)

	n, ok := back.Node("new")
	require.True(t, ok)
	assert.Equal(t, StateAdded, n.State)
}
