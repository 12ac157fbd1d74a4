// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/attrs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache map[string]db.Stamp

func (m mapCache) Get(id string) (db.Stamp, bool) { s, ok := m[id]; return s, ok }
func (m mapCache) Put(id string, s db.Stamp)      { m[id] = s }
func (m mapCache) Delete(id string)               { delete(m, id) }

type fixture struct {
	root  string
	fs    *fsservices.LocalFS
	store objstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".sylos"), 0o755))
	fs, err := fsservices.NewLocalFS(root, ".sylos")
	require.NoError(t, err)
	store, err := objstore.OpenBadger(objstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{root: root, fs: fs, store: store}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) scan(t *testing.T, tr *tree.Tree, cache StampCache, opts Options) Stats {
	t.Helper()
	st, err := New(f.fs, attrs.NewLocal(false), cache, opts).Scan(tr)
	require.NoError(t, err)
	return st
}

func TestAddModeAddsEverything(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "a")
	f.write(t, "d/b.txt", "b")
	tr := tree.New(f.store, "root", "")

	st := f.scan(t, tr, nil, Options{Mode: ModeAdd})
	assert.Equal(t, 3, st.Added)

	n, err := tr.Lookup("d/b.txt")
	require.NoError(t, err)
	assert.Equal(t, tree.StateAdded, n.State)
	assert.Equal(t, objstore.ComputeHash([]byte("b")), n.Hash())

	_, err = tr.Lookup(".sylos")
	assert.Error(t, err, "control directory is never scanned")
}

func TestReportFoundDoesNotDescend(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "a")
	f.write(t, "d/b.txt", "b")
	tr := tree.New(f.store, "root", "")

	st := f.scan(t, tr, nil, Options{Mode: ModeReportFound})
	assert.Equal(t, 2, st.Found)
	assert.Zero(t, st.Hashed)

	d, err := tr.Lookup("d")
	require.NoError(t, err)
	assert.Equal(t, tree.StateFound, d.State)
	kids, err := tr.Children(d.ID)
	require.NoError(t, err)
	assert.Empty(t, kids)

	data, err := tr.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a.txt")
}

func TestTimestampCacheRule(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "one")
	tr := tree.New(f.store, "root", "")
	cache := mapCache{}

	clock := time.Now()
	var hashed []string
	opts := Options{
		Now:    func() time.Time { return clock },
		OnHash: func(rel string) { hashed = append(hashed, rel) },
	}

	opts.Mode = ModeAdd
	f.scan(t, tr, cache, opts)
	require.Equal(t, []string{"a.txt"}, hashed)

	// Same mtime but the cache entry is younger than one second.
	opts.Mode = ModeRefresh
	f.scan(t, tr, cache, opts)
	assert.Len(t, hashed, 2)

	clock = clock.Add(2 * time.Second)
	st := f.scan(t, tr, cache, opts)
	assert.Len(t, hashed, 2, "unchanged mtime must not rehash")
	assert.Equal(t, 1, st.CacheHits)

	n, err := tr.Lookup("a.txt")
	require.NoError(t, err)
	cached := n.Hash()

	fresh := tree.New(f.store, "root", "")
	f.scan(t, fresh, nil, Options{Mode: ModeAdd})
	m, err := fresh.Lookup("a.txt")
	require.NoError(t, err)
	assert.Equal(t, m.Hash(), cached, "cached verdict equals a forced recomputation")

	f.write(t, "a.txt", "two")
	p := filepath.Join(f.root, "a.txt")
	future := clock.Add(time.Hour)
	require.NoError(t, os.Chtimes(p, future, future))
	clock = clock.Add(2 * time.Second)
	f.scan(t, tr, cache, opts)
	assert.Len(t, hashed, 3)
	assert.Equal(t, objstore.ComputeHash([]byte("two")), n.Hash())
}

func baselineTree(t *testing.T, f *fixture) *tree.Tree {
	t.Helper()
	ah, err := f.store.PutBlob([]byte("a"))
	require.NoError(t, err)
	bh, err := f.store.PutBlob([]byte("b"))
	require.NoError(t, err)
	dh, err := f.store.PutTree([]objstore.TreeEntry{{ID: "b", Name: "b.txt", Kind: objstore.KindFile, Hash: bh}})
	require.NoError(t, err)
	rh, err := f.store.PutTree([]objstore.TreeEntry{
		{ID: "a", Name: "a.txt", Kind: objstore.KindFile, Hash: ah},
		{ID: "d", Name: "d", Kind: objstore.KindDirectory, Hash: dh},
	})
	require.NoError(t, err)
	f.write(t, "a.txt", "a")
	f.write(t, "d/b.txt", "b")
	return tree.New(f.store, "root", rh)
}

func TestMissingEntries(t *testing.T) {
	tests := []struct {
		name     string
		implicit bool
		want     tree.State
	}{
		{"lost", false, tree.StateLost},
		{"implicit delete", true, tree.StateDeleted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tr := baselineTree(t, f)
			require.NoError(t, os.RemoveAll(filepath.Join(f.root, "d")))

			f.scan(t, tr, nil, Options{ImplicitDeletes: tc.implicit})
			for _, id := range []string{"d", "b"} {
				n, err := tr.FindByID(id)
				require.NoError(t, err)
				assert.Equal(t, tc.want, n.State)
				assert.Equal(t, tc.implicit, n.Flags&tree.FlagImplicitDelete != 0)
			}
			a, err := tr.FindByID("a")
			require.NoError(t, err)
			assert.False(t, a.IsDirtySelf())
		})
	}
}

func TestLostEntryComesBack(t *testing.T) {
	f := newFixture(t)
	tr := baselineTree(t, f)
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.txt")))
	f.scan(t, tr, nil, Options{})
	a, _ := tr.Node("a")
	require.Equal(t, tree.StateLost, a.State)

	f.write(t, "a.txt", "a")
	f.scan(t, tr, nil, Options{})
	assert.Equal(t, tree.StateNormal, a.State)
	assert.False(t, a.IsDirtySelf())
}

func TestVanishedAddedEntryIsDropped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "new.txt", "n")
	tr := tree.New(f.store, "root", "")
	f.scan(t, tr, nil, Options{Mode: ModeAdd})
	n, err := tr.Lookup("new.txt")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.root, "new.txt")))
	f.scan(t, tr, nil, Options{})
	_, ok := tr.Node(n.ID)
	assert.False(t, ok)
}

func TestImplicitAddDowngrade(t *testing.T) {
	f := newFixture(t)
	f.write(t, "x/y/f.txt", "f")
	f.write(t, "x/other.txt", "o")
	f.write(t, "z/keep.txt", "k")
	tr := tree.New(f.store, "root", "")

	flt, err := filter.New(filter.Options{Items: []string{"x/y/f.txt", "z/none.txt"}, Recursive: true})
	require.NoError(t, err)
	f.scan(t, tr, nil, Options{Mode: ModeAdd, Filter: flt})

	x, err := tr.Lookup("x")
	require.NoError(t, err)
	assert.Equal(t, tree.StateAdded, x.State)
	assert.NotZero(t, x.Flags&tree.FlagImplicitAdd)

	fn, err := tr.Lookup("x/y/f.txt")
	require.NoError(t, err)
	assert.Equal(t, tree.StateAdded, fn.State)

	_, err = tr.Lookup("x/other.txt")
	assert.Error(t, err)

	z, err := tr.Lookup("z")
	require.NoError(t, err)
	assert.Equal(t, tree.StateFound, z.State)
	assert.Zero(t, z.Flags&tree.FlagImplicitAdd)
}

func TestIgnoredEntriesAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.o", "obj")
	f.write(t, "a.c", "src")
	tr := tree.New(f.store, "root", "")

	flt, err := filter.New(filter.Options{Recursive: true, Ignore: []string{"*.o"}})
	require.NoError(t, err)
	f.scan(t, tr, nil, Options{Mode: ModeAdd, Filter: flt})

	_, err = tr.Lookup("a.o")
	assert.Error(t, err)
	_, err = tr.Lookup("a.c")
	assert.NoError(t, err)
}

func TestNameSafetyWarnings(t *testing.T) {
	f := newFixture(t)
	f.write(t, "README", "1")
	f.write(t, "ReadMe", "2")
	require.NoError(t, os.Symlink("README", filepath.Join(f.root, "link")))
	tr := tree.New(f.store, "root", "")

	f.scan(t, tr, nil, Options{Mode: ModeAdd, WarnSymlinks: true})

	ws := tr.Warnings()
	portability.SortWarnings(ws)
	require.Len(t, ws, 3)
	assert.Equal(t, "README", ws[0].Name)
	assert.True(t, ws[0].Flags.Has(portability.FlagCollisionCase))
	assert.Equal(t, "ReadMe", ws[1].Name)
	assert.Equal(t, "link", ws[2].Name)
	assert.True(t, ws[2].Flags.Has(portability.FlagSymlink))
}
