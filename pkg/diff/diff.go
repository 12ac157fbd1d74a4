// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package diff computes per-id differences between tree snapshots and
// between a snapshot and the working tree.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
)

// Class is the primary, mutually exclusive classification of an entry.
type Class uint8

const (
	ClassNone Class = iota // present on both sides
	ClassAdded
	ClassDeleted
	ClassFound
	ClassLost
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAdded:
		return "added"
	case ClassDeleted:
		return "deleted"
	case ClassFound:
		return "found"
	case ClassLost:
		return "lost"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Mods are the independent modifier flags of an entry.
type Mods uint8

const (
	ModRenamed Mods = 1 << iota
	ModMoved
	ModModified
	ModAttrs
	ModXAttrs
)

var modNames = []struct {
	m    Mods
	name string
}{
	{ModRenamed, "renamed"},
	{ModMoved, "moved"},
	{ModModified, "modified"},
	{ModAttrs, "attrs"},
	{ModXAttrs, "xattrs"},
}

func (m Mods) String() string {
	var parts []string
	for _, mn := range modNames {
		if m&mn.m != 0 {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, ",")
}

// Structural are the modifiers that change where an entry lives.
const Structural = ModRenamed | ModMoved

// Item is one side of an entry.
type Item struct {
	Parent    tree.ID
	Name      string
	Kind      objstore.Kind
	Hash      objstore.Hash
	Attrs     objstore.AttrBits
	XAttrHash objstore.Hash
}

// Descriptor returns the tree descriptor of the item.
func (it Item) Descriptor() *tree.Descriptor {
	return &tree.Descriptor{Name: it.Name, Hash: it.Hash, Attrs: it.Attrs, XAttrHash: it.XAttrHash}
}

// Compare returns the modifiers that turn a into b.
func Compare(a, b Item) Mods {
	var m Mods
	if a.Name != b.Name {
		m |= ModRenamed
	}
	if a.Parent != b.Parent {
		m |= ModMoved
	}
	if a.Kind != objstore.KindDirectory && a.Hash != b.Hash {
		m |= ModModified
	}
	if a.Attrs != b.Attrs {
		m |= ModAttrs
	}
	if a.XAttrHash != b.XAttrHash {
		m |= ModXAttrs
	}
	return m
}

// Entry is the difference of one id between an old and a new side.
type Entry struct {
	ID    tree.ID
	Kind  objstore.Kind
	Old   *Item // nil when absent on the old side
	New   *Item // nil when absent on the new side
	Class Class
	Mods  Mods
}

// Changed reports whether the entry differs at all.
func (e *Entry) Changed() bool {
	return e.Class != ClassNone || e.Mods != 0
}

// Result is a snapshot-to-snapshot diff. Old and New hold every entry the
// walk visited; subtrees identical on both sides are not visited.
type Result struct {
	RootID  tree.ID
	Old     map[tree.ID]Item
	New     map[tree.ID]Item
	Entries map[tree.ID]*Entry
}

// IDs returns the changed ids in sorted order.
func (r *Result) IDs() []tree.ID {
	ids := make([]tree.ID, 0, len(r.Entries))
	for id := range r.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type walker struct {
	store   objstore.Store
	res     *Result
	seen    [2]map[tree.ID]bool
	pending map[tree.ID]bool
}

// Trees diffs two stored root directories that share rootID.
func Trees(store objstore.Store, rootID tree.ID, oldRoot, newRoot objstore.Hash) (*Result, error) {
	w := &walker{
		store: store,
		res: &Result{
			RootID:  rootID,
			Old:     map[tree.ID]Item{},
			New:     map[tree.ID]Item{},
			Entries: map[tree.ID]*Entry{},
		},
		seen:    [2]map[tree.ID]bool{{}, {}},
		pending: map[tree.ID]bool{},
	}
	if err := w.walk(rootID, oldRoot, newRoot, true, true); err != nil {
		return nil, err
	}
	if err := w.drain(); err != nil {
		return nil, err
	}
	w.classify()
	return w.res, nil
}

func (w *walker) load(h objstore.Hash) ([]objstore.TreeEntry, error) {
	if h == "" {
		return nil, nil
	}
	entries, err := w.store.LoadTree(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", h, err)
	}
	return entries, nil
}

// walk expands dirID on the requested sides. A directory present at the
// same place with the same hash on both sides is not expanded. Directories
// that appear under dirID on one side only are deferred until both of
// their positions are known.
func (w *walker) walk(dirID tree.ID, oldHash, newHash objstore.Hash, onOld, onNew bool) error {
	if onOld && onNew && oldHash == newHash && !w.seen[0][dirID] && !w.seen[1][dirID] {
		return nil
	}
	onOld = onOld && !w.seen[0][dirID]
	onNew = onNew && !w.seen[1][dirID]
	var oldEntries, newEntries []objstore.TreeEntry
	var err error
	if onOld {
		w.seen[0][dirID] = true
		if oldEntries, err = w.load(oldHash); err != nil {
			return err
		}
	}
	if onNew {
		w.seen[1][dirID] = true
		if newEntries, err = w.load(newHash); err != nil {
			return err
		}
	}

	newDirs := map[tree.ID]objstore.Hash{}
	for _, e := range newEntries {
		w.res.New[e.ID] = itemOf(dirID, e)
		if e.Kind == objstore.KindDirectory {
			newDirs[e.ID] = e.Hash
		}
	}
	for _, e := range oldEntries {
		w.res.Old[e.ID] = itemOf(dirID, e)
		if e.Kind != objstore.KindDirectory {
			continue
		}
		if nh, both := newDirs[e.ID]; both {
			delete(newDirs, e.ID)
			if err := w.walk(e.ID, e.Hash, nh, true, true); err != nil {
				return err
			}
			continue
		}
		w.pending[e.ID] = true
	}
	for id := range newDirs {
		w.pending[id] = true
	}
	return nil
}

// drain expands deferred directories, those known on both sides first.
func (w *walker) drain() error {
	for len(w.pending) > 0 {
		ids := make([]tree.ID, 0, len(w.pending))
		for id := range w.pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		progressed := false
		for _, id := range ids {
			_, okOld := w.res.Old[id]
			_, okNew := w.res.New[id]
			if okOld && okNew {
				delete(w.pending, id)
				if err := w.expand(id); err != nil {
					return err
				}
				progressed = true
			}
		}
		if !progressed {
			delete(w.pending, ids[0])
			if err := w.expand(ids[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) expand(id tree.ID) error {
	o, okOld := w.res.Old[id]
	n, okNew := w.res.New[id]
	return w.walk(id, o.Hash, n.Hash, okOld, okNew)
}

func itemOf(parent tree.ID, e objstore.TreeEntry) Item {
	return Item{
		Parent:    parent,
		Name:      e.Name,
		Kind:      e.Kind,
		Hash:      e.Hash,
		Attrs:     e.Attrs,
		XAttrHash: e.XAttrHash,
	}
}

func (w *walker) classify() {
	for id, o := range w.res.Old {
		o := o
		if n, ok := w.res.New[id]; ok {
			n := n
			if m := Compare(o, n); m != 0 {
				w.res.Entries[id] = &Entry{ID: id, Kind: o.Kind, Old: &o, New: &n, Mods: m}
			}
			continue
		}
		w.res.Entries[id] = &Entry{ID: id, Kind: o.Kind, Old: &o, Class: ClassDeleted}
	}
	for id, n := range w.res.New {
		n := n
		if _, ok := w.res.Old[id]; !ok {
			w.res.Entries[id] = &Entry{ID: id, Kind: n.Kind, New: &n, Class: ClassAdded}
		}
	}
}

// Lookup returns the item of id on the new side, and whether id is known
// to be absent there. An id the walk never reached is unchanged: the
// caller falls back to the old side.
func (r *Result) Lookup(id tree.ID) (item *Item, absent bool) {
	if it, ok := r.New[id]; ok {
		return &it, false
	}
	if _, ok := r.Old[id]; ok {
		return nil, true
	}
	return nil, false
}
