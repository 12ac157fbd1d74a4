// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package diff

import (
	"path/filepath"
	"testing"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shape describes a snapshot: a file has content, a directory has kids.
type shape struct {
	id      string
	name    string
	content string
	kids    []shape
	dir     bool
}

func file(id, name, content string) shape { return shape{id: id, name: name, content: content} }
func dir(id, name string, kids ...shape) shape {
	return shape{id: id, name: name, kids: kids, dir: true}
}

func put(t *testing.T, s objstore.Store, kids []shape) objstore.Hash {
	t.Helper()
	var entries []objstore.TreeEntry
	for _, k := range kids {
		e := objstore.TreeEntry{ID: k.id, Name: k.name}
		if k.dir {
			e.Kind = objstore.KindDirectory
			e.Hash = put(t, s, k.kids)
		} else {
			e.Kind = objstore.KindFile
			h, err := s.PutBlob([]byte(k.content))
			require.NoError(t, err)
			e.Hash = h
		}
		entries = append(entries, e)
	}
	h, err := s.PutTree(entries)
	require.NoError(t, err)
	return h
}

func newStore(t *testing.T) objstore.Store {
	t.Helper()
	s, err := objstore.OpenBolt(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTreesClassifies(t *testing.T) {
	s := newStore(t)
	base := put(t, s, []shape{
		dir("d", "d", file("f", "f.txt", "f"), file("g", "g.txt", "g")),
		dir("same", "same", file("s", "s.txt", "s")),
		file("r", "r.txt", "r"),
		file("gone", "gone.txt", "x"),
	})
	goal := put(t, s, []shape{
		dir("d", "d", file("g", "g.txt", "g2")),
		dir("same", "same", file("s", "s.txt", "s")),
		file("r", "renamed.txt", "r"),
		file("f", "f.txt", "f"),
		file("new", "new.txt", "n"),
	})

	res, err := Trees(s, "root", base, goal)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"f", "g", "r", "gone", "new"}, res.IDs(), "directory hashes never count as modified")
	assert.Equal(t, ModMoved, res.Entries["f"].Mods)
	assert.Equal(t, ModModified, res.Entries["g"].Mods)
	assert.Equal(t, ModRenamed, res.Entries["r"].Mods)
	assert.Equal(t, ClassDeleted, res.Entries["gone"].Class)
	assert.Equal(t, ClassAdded, res.Entries["new"].Class)

	_, walked := res.Old["s"]
	assert.False(t, walked, "identical subtrees are not expanded")
}

func TestMovedIdenticalSubtree(t *testing.T) {
	s := newStore(t)
	base := put(t, s, []shape{
		dir("a", "a", dir("m", "m", file("x", "x", "1"), dir("deep", "deep", file("y", "y", "2")))),
		dir("b", "b"),
	})
	goal := put(t, s, []shape{
		dir("a", "a"),
		dir("b", "b", dir("m", "m", file("x", "x", "1"), dir("deep", "deep", file("y", "y", "2")))),
	})
	res, err := Trees(s, "root", base, goal)
	require.NoError(t, err)

	require.Contains(t, res.Entries, "m")
	assert.Equal(t, ModMoved, res.Entries["m"].Mods)
	for _, id := range []string{"x", "deep", "y"} {
		assert.NotContains(t, res.Entries, id)
	}
}

func TestMovedAndChangedSubtree(t *testing.T) {
	s := newStore(t)
	base := put(t, s, []shape{
		dir("p", "p", dir("q", "q", file("x", "x", "1"))),
	})
	// q moves above p and p moves into q; x changes.
	goal := put(t, s, []shape{
		dir("q", "q", file("x", "x", "2"), dir("p", "p")),
	})
	res, err := Trees(s, "root", base, goal)
	require.NoError(t, err)

	assert.Equal(t, ModMoved, res.Entries["p"].Mods)
	assert.Equal(t, ModMoved, res.Entries["q"].Mods)
	assert.Equal(t, ModModified, res.Entries["x"].Mods)
	assert.Len(t, res.Entries, 3)
}

func TestWorkingCopyAndCompose(t *testing.T) {
	s := newStore(t)
	base := put(t, s, []shape{
		file("a", "a.txt", "a"),
		file("b", "b.txt", "b"),
		file("c", "c.txt", "c"),
	})
	goal := put(t, s, []shape{
		file("a", "x.txt", "a"),
		file("b", "same.txt", "b"),
		file("c", "c.txt", "c2"),
	})

	tr := tree.New(s, "root", base)
	a, err := tr.FindByID("a")
	require.NoError(t, err)
	a.SetName("y.txt")
	b, err := tr.FindByID("b")
	require.NoError(t, err)
	b.SetName("same.txt")

	wc := WorkingCopy(tr)
	require.Len(t, wc, 2)
	assert.Equal(t, ModRenamed, wc[0].Mods)

	res, err := Trees(s, "root", base, goal)
	require.NoError(t, err)
	comp := Compose(tr, res)

	assert.Equal(t, ModRenamed, comp["a"].Divergent)
	assert.Equal(t, ModRenamed, comp["b"].Same)
	assert.Zero(t, comp["b"].Divergent)
	assert.Equal(t, ModModified, comp["c"].GoalOnly())
	assert.Zero(t, comp["c"].Local)
}
