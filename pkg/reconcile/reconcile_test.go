// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package reconcile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Project-Sylos/Sylos-VC/pkg/attrs"
	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ent struct {
	id, parent, name, content string
	dir                       bool
}

func file(id, parent, name, content string) ent {
	return ent{id: id, parent: parent, name: name, content: content}
}

func folder(id, parent, name string) ent {
	return ent{id: id, parent: parent, name: name, dir: true}
}

type fixture struct {
	root    string
	fs      *fsservices.LocalFS
	store   objstore.Store
	parking string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".sylos"), 0o755))
	lfs, err := fsservices.NewLocalFS(root, ".sylos")
	require.NoError(t, err)
	store, err := objstore.OpenBadger(objstore.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &fixture{
		root:    lfs.Root(),
		fs:      lfs,
		store:   store,
		parking: filepath.Join(lfs.Root(), ".sylos", "tmp", "parking-test"),
	}
}

// snapshot stores ents as a root directory and returns its hash.
func (f *fixture) snapshot(t *testing.T, ents []ent) objstore.Hash {
	t.Helper()
	kids := map[string][]ent{}
	for _, e := range ents {
		kids[e.parent] = append(kids[e.parent], e)
	}
	var put func(id string) objstore.Hash
	put = func(id string) objstore.Hash {
		list := []objstore.TreeEntry{}
		for _, e := range kids[id] {
			te := objstore.TreeEntry{ID: e.id, Name: e.name, Kind: objstore.KindFile}
			if e.dir {
				te.Kind = objstore.KindDirectory
				te.Hash = put(e.id)
			} else {
				h, err := f.store.PutBlob([]byte(e.content))
				require.NoError(t, err)
				te.Hash = h
			}
			list = append(list, te)
		}
		h, err := f.store.PutTree(list)
		require.NoError(t, err)
		return h
	}
	return put("root")
}

func (f *fixture) materialize(t *testing.T, ents []ent) {
	t.Helper()
	byID := map[string]ent{}
	for _, e := range ents {
		byID[e.id] = e
	}
	var path func(id string) string
	path = func(id string) string {
		if id == "root" {
			return f.root
		}
		e := byID[id]
		return filepath.Join(path(e.parent), e.name)
	}
	for _, e := range ents {
		p := path(e.id)
		if e.dir {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(e.content), 0o644))
	}
}

// checkout writes ents to disk and returns a tree based on them.
func (f *fixture) checkout(t *testing.T, ents []ent) (*tree.Tree, objstore.Hash) {
	t.Helper()
	f.materialize(t, ents)
	h := f.snapshot(t, ents)
	tr := tree.New(f.store, "root", h)
	f.scan(t, tr, scan.ModeRefresh)
	require.Empty(t, diff.WorkingCopy(tr))
	return tr, h
}

func (f *fixture) scan(t *testing.T, tr *tree.Tree, mode scan.Mode) {
	t.Helper()
	_, err := scan.New(f.fs, attrs.NewLocal(false), nil, scan.Options{Mode: mode}).Scan(tr)
	require.NoError(t, err)
}

// layout reads the working directory: directories end in "/", files map
// to their content. The control directory is skipped.
func (f *fixture) layout(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if rel == ".sylos" {
			return filepath.SkipDir
		}
		if d.IsDir() {
			out[rel+"/"] = ""
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) rename(t *testing.T, from, to string) {
	t.Helper()
	require.NoError(t, os.Rename(filepath.Join(f.root, from), filepath.Join(f.root, to)))
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.root, filepath.FromSlash(rel)), []byte(content), 0o644))
}

func (f *fixture) options() Options {
	return Options{Parking: f.parking}
}

func node(t *testing.T, tr *tree.Tree, id string) *tree.Node {
	t.Helper()
	n, err := tr.FindByID(id)
	require.NoError(t, err)
	return n
}

func flagAll(tr *tree.Tree) {
	for _, n := range tr.Nodes() {
		if n.ID != tr.RootID() {
			n.Flags |= tree.FlagReverting
		}
	}
}

func (f *fixture) apply(t *testing.T, p *Plan) {
	t.Helper()
	require.NoError(t, p.Apply(ApplyOptions{Attrs: attrs.NewLocal(false)}))
	_, err := os.Stat(f.parking)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "parking area is removed once empty")
}

func baseline() []ent {
	return []ent{
		folder("A", "root", "a"),
		file("F", "A", "f.txt", "one"),
		file("B", "root", "b.txt", "two"),
		folder("C", "root", "c"),
		file("G", "C", "g.txt", "three"),
		file("H", "root", "h.txt", "four"),
	}
}

func TestRevertRestoresBaseline(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, baseline())
	want := f.layout(t)

	f.rename(t, "b.txt", "b2.txt")
	node(t, tr, "B").SetName("b2.txt")
	f.rename(t, "a/f.txt", "c/f.txt")
	require.NoError(t, tr.Move("F", "C"))
	f.write(t, "c/g.txt", "changed")
	require.NoError(t, os.Remove(filepath.Join(f.root, "h.txt")))
	node(t, tr, "H").State = tree.StateDeleted
	f.write(t, "new.txt", "fresh")
	f.scan(t, tr, scan.ModeAdd)
	require.Len(t, diff.WorkingCopy(tr), 5)

	flagAll(tr)
	opts := f.options()
	opts.Backups = true
	plan, err := Revert(tr, f.fs, opts)
	require.NoError(t, err)
	assert.Zero(t, plan.Count(ActPark))
	f.apply(t, plan)

	want["new.txt"] = "fresh"
	want["c/g.txt~bak00~"] = "changed"
	assert.Equal(t, want, f.layout(t))
	assert.Empty(t, diff.WorkingCopy(tr), "every node is clean and the added file is untracked")

	p, err := tr.CurrentPath("F")
	require.NoError(t, err)
	assert.Equal(t, "a/f.txt", p)

	f.scan(t, tr, scan.ModeRefresh)
	flagAll(tr)
	again, err := Revert(tr, f.fs, f.options())
	require.NoError(t, err)
	assert.True(t, again.Empty(), "a second revert does nothing")
}

func TestRevertWithoutBackupsOverwrites(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, baseline())
	f.write(t, "c/g.txt", "changed")
	f.scan(t, tr, scan.ModeRefresh)

	node(t, tr, "G").Flags |= tree.FlagReverting
	plan, err := Revert(tr, f.fs, f.options())
	require.NoError(t, err)
	assert.Zero(t, plan.Count(ActBackup))
	f.apply(t, plan)

	got := f.layout(t)
	assert.Equal(t, "three", got["c/g.txt"])
	assert.NotContains(t, got, "c/g.txt~bak00~")
}

func TestRevertSwappedNamesGoesThroughParking(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, []ent{
		file("A", "root", "a.txt", "a"),
		file("B", "root", "b.txt", "b"),
	})
	f.rename(t, "a.txt", "tmp")
	f.rename(t, "b.txt", "a.txt")
	f.rename(t, "tmp", "b.txt")
	node(t, tr, "A").SetName("b.txt")
	node(t, tr, "B").SetName("a.txt")
	f.scan(t, tr, scan.ModeRefresh)

	flagAll(tr)
	plan, err := Revert(tr, f.fs, f.options())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Count(ActPark))
	assert.Equal(t, 2, plan.Count(ActMove))
	f.apply(t, plan)

	assert.Equal(t, map[string]string{"a.txt": "a", "b.txt": "b"}, f.layout(t))
	assert.Empty(t, diff.WorkingCopy(tr))
}

func TestRevertDisplacesFoundOccupant(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, baseline())
	require.NoError(t, os.Remove(filepath.Join(f.root, "h.txt")))
	node(t, tr, "H").State = tree.StateDeleted
	f.write(t, "h.txt", "someone else's")
	f.scan(t, tr, scan.ModeReportFound)

	node(t, tr, "H").Flags |= tree.FlagReverting
	plan, err := Revert(tr, f.fs, f.options())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Count(ActDisplace))
	f.apply(t, plan)

	got := f.layout(t)
	assert.Equal(t, "four", got["h.txt"])
	assert.Equal(t, "someone else's", got["h.txt~bak00~"])
}

func TestRevertRestoresMissingParent(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, baseline())
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "c")))
	f.scan(t, tr, scan.ModeRefresh)
	assert.Equal(t, tree.StateLost, node(t, tr, "C").State)

	// Only the file is named; its directory comes back with it.
	node(t, tr, "G").Flags |= tree.FlagReverting
	plan, err := Revert(tr, f.fs, f.options())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Count(ActMkdir))
	f.apply(t, plan)

	assert.Equal(t, "three", f.layout(t)["c/g.txt"])
	assert.Equal(t, tree.StateNormal, node(t, tr, "C").State)
}

func TestRenderIsADryRun(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, []ent{file("F", "root", "f.txt", "one\n")})
	f.write(t, "f.txt", "local\n")
	f.scan(t, tr, scan.ModeRefresh)

	flagAll(tr)
	opts := f.options()
	opts.Backups = true
	plan, err := Revert(tr, f.fs, opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, plan.Render(&buf, RenderOptions{Previews: true}))
	out := buf.String()
	assert.Contains(t, out, "backup   f.txt -> f.txt~bak00~")
	assert.Contains(t, out, "write    f.txt")
	assert.Contains(t, out, "-local")
	assert.Contains(t, out, "+one")

	assert.Equal(t, map[string]string{"f.txt": "local\n"}, f.layout(t), "rendering touches nothing")
}

func TestTooManyBackupNames(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.checkout(t, []ent{file("F", "root", "f.txt", "one")})
	for i := 0; i < MaxBackupNames; i++ {
		f.write(t, fmt.Sprintf("f.txt~bak%02d~", i), "old")
	}
	f.write(t, "f.txt", "local")
	f.scan(t, tr, scan.ModeRefresh)

	flagAll(tr)
	opts := f.options()
	opts.Backups = true
	_, err := Revert(tr, f.fs, opts)
	assert.True(t, errors.Is(err, wcerr.ErrTooManyBackupNames), "got %v", err)
}

func (f *fixture) update(t *testing.T, tr *tree.Tree, base objstore.Hash, goal []ent, opts Options) (*Plan, error) {
	t.Helper()
	h := f.snapshot(t, goal)
	res, err := diff.Trees(f.store, "root", base, h)
	require.NoError(t, err)
	return Update(tr, f.fs, res, h, opts)
}

func TestUpdateRenameConflict(t *testing.T) {
	base := []ent{file("A", "root", "a.txt", "a")}

	t.Run("different names", func(t *testing.T) {
		f := newFixture(t)
		tr, h := f.checkout(t, base)
		f.rename(t, "a.txt", "x.txt")
		node(t, tr, "A").SetName("x.txt")

		_, err := f.update(t, tr, h, []ent{file("A", "root", "y.txt", "a")}, f.options())
		require.Error(t, err)
		assert.True(t, errors.Is(err, wcerr.ErrUpdateConflict))
		assert.Equal(t, map[string]string{"x.txt": "a"}, f.layout(t))
	})

	t.Run("same name", func(t *testing.T) {
		f := newFixture(t)
		tr, h := f.checkout(t, base)
		f.rename(t, "a.txt", "x.txt")
		node(t, tr, "A").SetName("x.txt")

		plan, err := f.update(t, tr, h, []ent{file("A", "root", "x.txt", "a")}, f.options())
		require.NoError(t, err)
		assert.True(t, plan.Empty())
		f.apply(t, plan)
		assert.Empty(t, diff.WorkingCopy(tr), "the rename is now part of the baseline")
	})
}

func TestUpdateSwapsNestedDirectories(t *testing.T) {
	f := newFixture(t)
	tr, h := f.checkout(t, []ent{
		folder("P", "root", "p"),
		folder("Q", "P", "q"),
		file("F", "Q", "f.txt", "x"),
	})

	plan, err := f.update(t, tr, h, []ent{
		folder("Q", "root", "q"),
		folder("P", "Q", "p"),
		file("F", "Q", "f.txt", "x"),
	}, f.options())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, plan.Count(ActPark), 1)
	f.apply(t, plan)

	assert.Equal(t, map[string]string{"q/": "", "q/f.txt": "x", "q/p/": ""}, f.layout(t))
	p, err := tr.CurrentPath("P")
	require.NoError(t, err)
	assert.Equal(t, "q/p", p)
	assert.Empty(t, diff.WorkingCopy(tr))
	assert.Zero(t, node(t, tr, "P").Flags&tree.FlagParkedForCycle)
}

func TestUpdateCarriesLocalEdits(t *testing.T) {
	f := newFixture(t)
	tr, h := f.checkout(t, []ent{
		file("F", "root", "f.txt", "v1"),
		file("G", "root", "g.txt", "g1"),
	})
	f.write(t, "f.txt", "local")
	f.scan(t, tr, scan.ModeRefresh)

	plan, err := f.update(t, tr, h, []ent{
		file("F", "root", "h.txt", "v1"),
		file("G", "root", "g.txt", "g2"),
		folder("N", "root", "n"),
		file("M", "N", "m.txt", "new"),
	}, f.options())
	require.NoError(t, err)
	f.apply(t, plan)

	assert.Equal(t, map[string]string{
		"h.txt":   "local",
		"g.txt":   "g2",
		"n/":      "",
		"n/m.txt": "new",
	}, f.layout(t))

	wc := diff.WorkingCopy(tr)
	require.Len(t, wc, 1)
	assert.Equal(t, "F", wc[0].ID)
	assert.Equal(t, diff.ModModified, wc[0].Mods)
}

func TestUpdateRejectsDeletingDirectoryWithFoundEntries(t *testing.T) {
	f := newFixture(t)
	tr, h := f.checkout(t, []ent{
		folder("D", "root", "d"),
		file("F", "D", "f.txt", "x"),
	})
	f.write(t, "d/junk.txt", "mine")
	f.scan(t, tr, scan.ModeReportFound)

	_, err := f.update(t, tr, h, nil, f.options())
	require.Error(t, err)
	assert.True(t, errors.Is(err, wcerr.ErrUpdateConflict))
	assert.Contains(t, err.Error(), "junk.txt")
	assert.Equal(t, map[string]string{"d/": "", "d/f.txt": "x", "d/junk.txt": "mine"}, f.layout(t))
}

func TestUpdateDeletesRemovedEntries(t *testing.T) {
	f := newFixture(t)
	tr, h := f.checkout(t, []ent{
		folder("D", "root", "d"),
		folder("E", "D", "e"),
		file("F", "E", "f.txt", "x"),
		file("K", "root", "keep.txt", "k"),
	})

	plan, err := f.update(t, tr, h, []ent{file("K", "root", "keep.txt", "k")}, f.options())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Count(ActDelete))
	assert.Equal(t, 2, plan.Count(ActRmdir))
	f.apply(t, plan)

	assert.Equal(t, map[string]string{"keep.txt": "k"}, f.layout(t))
	_, ok := tr.Node("D")
	assert.False(t, ok)
}

func TestUpdatePortabilityWarnings(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *tree.Tree, objstore.Hash) {
		f := newFixture(t)
		tr, h := f.checkout(t, []ent{file("A", "root", "a.txt", "a")})
		f.write(t, "ReadMe", "local")
		f.scan(t, tr, scan.ModeAdd)
		return f, tr, h
	}
	goal := []ent{
		file("A", "root", "a.txt", "a"),
		file("R", "root", "README", "upstream"),
	}

	f, tr, h := setup(t)
	_, err := f.update(t, tr, h, goal, f.options())
	require.Error(t, err)
	assert.True(t, errors.Is(err, wcerr.ErrPortabilityWarning))
	assert.NotContains(t, f.layout(t), "README")

	f, tr, h = setup(t)
	opts := f.options()
	opts.IgnoreWarnings = true
	plan, err := f.update(t, tr, h, goal, opts)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Warnings)
	f.apply(t, plan)
	got := f.layout(t)
	assert.Equal(t, "upstream", got["README"])
	assert.Equal(t, "local", got["ReadMe"])
}

func TestLinesShowParkingRelativePaths(t *testing.T) {
	f := newFixture(t)
	p := &Plan{parking: f.parking, fs: f.fs, Actions: []Action{
		{Kind: ActPark, From: filepath.Join(f.root, "a"), To: filepath.Join(f.parking, "x")},
		{Kind: ActMkdir, To: filepath.Join(f.root, "d", "e")},
		{Kind: ActRmdir, From: filepath.Join(f.root, "gone")},
	}}
	lines := p.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "park     a -> <parking>/x", lines[0])
	assert.Equal(t, "mkdir    d/e", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], " gone"))
}
