// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package tree is the in-memory working tree: an arena of nodes keyed by
// id, loaded lazily from the object store.
package tree

import (
	"fmt"
	"sort"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// Tree is the working tree of one operation.
type Tree struct {
	store  objstore.Store
	rootID ID
	nodes  map[ID]*Node

	// movedOut[p] holds the ids whose baseline parent is p but whose
	// current parent is not: the ghosts of directory p.
	movedOut map[ID]map[ID]struct{}

	names    map[string]string
	warnings []portability.Warning
}

// New synthesizes a tree from a baseline root directory.
func New(store objstore.Store, rootID ID, rootHash objstore.Hash) *Tree {
	t := newEmpty(store)
	t.rootID = rootID
	t.nodes[rootID] = &Node{
		ID:       rootID,
		Kind:     objstore.KindDirectory,
		Baseline: &Descriptor{Hash: rootHash},
		children: map[ID]struct{}{},
	}
	return t
}

func newEmpty(store objstore.Store) *Tree {
	return &Tree{
		store:    store,
		nodes:    make(map[ID]*Node),
		movedOut: make(map[ID]map[ID]struct{}),
		names:    make(map[string]string),
	}
}

// Store returns the object store the tree loads from.
func (t *Tree) Store() objstore.Store {
	return t.store
}

// RootID returns the id of the root directory.
func (t *Tree) RootID() ID {
	return t.rootID
}

// Root returns the root directory node.
func (t *Tree) Root() *Node {
	return t.nodes[t.rootID]
}

// Node returns a loaded node.
func (t *Tree) Node(id ID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of loaded nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Warn records a portability warning for the operation.
func (t *Tree) Warn(ws ...portability.Warning) {
	t.warnings = append(t.warnings, ws...)
}

// Warnings returns the accumulated warnings.
func (t *Tree) Warnings() []portability.Warning {
	return t.warnings
}

func (t *Tree) intern(s string) string {
	if v, ok := t.names[s]; ok {
		return v
	}
	t.names[s] = s
	return s
}

func (t *Tree) mustDir(id ID) *Node {
	n, ok := t.nodes[id]
	if !ok {
		panic(fmt.Sprintf("tree: node %s is not loaded", id))
	}
	if !n.IsDir() {
		panic(fmt.Sprintf("tree: children requested of non-directory %s", id))
	}
	return n
}

// LoadChildren materializes the baseline listing of dir. It is idempotent.
func (t *Tree) LoadChildren(dirID ID) error {
	dir := t.mustDir(dirID)
	if dir.loaded {
		return nil
	}
	if dir.children == nil {
		dir.children = map[ID]struct{}{}
	}
	if dir.Baseline != nil && dir.Baseline.Hash != "" {
		entries, err := t.store.LoadTree(dir.Baseline.Hash)
		if err != nil {
			return fmt.Errorf("failed to load children of %s: %w", dirID, err)
		}
		for _, e := range entries {
			if _, exists := t.nodes[e.ID]; exists {
				// Already materialized elsewhere by a pending move.
				continue
			}
			child := &Node{
				ID:   e.ID,
				Kind: e.Kind,
				Baseline: &Descriptor{
					Name:      t.intern(e.Name),
					Hash:      e.Hash,
					Attrs:     e.Attrs,
					XAttrHash: e.XAttrHash,
				},
				BaselineParent: dirID,
				Parent:         dirID,
			}
			if child.IsDir() {
				child.children = map[ID]struct{}{}
			}
			t.nodes[e.ID] = child
			dir.children[e.ID] = struct{}{}
		}
	}
	dir.loaded = true
	return nil
}

// IsLoaded reports whether the children of dir are materialized.
func (t *Tree) IsLoaded(dirID ID) bool {
	n, ok := t.nodes[dirID]
	return ok && n.loaded
}

// Children returns the current children of dir sorted by name.
func (t *Tree) Children(dirID ID) ([]*Node, error) {
	if err := t.LoadChildren(dirID); err != nil {
		return nil, err
	}
	dir := t.nodes[dirID]
	out := make([]*Node, 0, len(dir.children))
	for id := range dir.children {
		out = append(out, t.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() == out[j].Name() {
			return out[i].ID < out[j].ID
		}
		return out[i].Name() < out[j].Name()
	})
	return out, nil
}

// ChildNamed returns the child of dir currently called name, or nil.
// An entry present on disk wins over a deleted or lost one of the same
// name.
func (t *Tree) ChildNamed(dirID ID, name string) (*Node, error) {
	if err := t.LoadChildren(dirID); err != nil {
		return nil, err
	}
	var absent *Node
	for id := range t.nodes[dirID].children {
		c := t.nodes[id]
		if c.Name() != name {
			continue
		}
		if c.OnDisk() {
			return c, nil
		}
		if absent == nil || c.ID < absent.ID {
			absent = c
		}
	}
	return absent, nil
}

// Ghosts returns the nodes that moved out of dir since the baseline.
func (t *Tree) Ghosts(dirID ID) []*Node {
	var out []*Node
	for id := range t.movedOut[dirID] {
		out = append(out, t.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tree) reindex(n *Node) {
	for p, set := range t.movedOut {
		if _, ok := set[n.ID]; ok {
			delete(set, n.ID)
			if len(set) == 0 {
				delete(t.movedOut, p)
			}
		}
	}
	if n.IsMoved() && n.BaselineParent != "" {
		set := t.movedOut[n.BaselineParent]
		if set == nil {
			set = map[ID]struct{}{}
			t.movedOut[n.BaselineParent] = set
		}
		set[n.ID] = struct{}{}
	}
}

// AddChild attaches child under parent and registers it. An id can be
// active only once in the tree.
func (t *Tree) AddChild(parentID ID, child *Node) error {
	parent := t.mustDir(parentID)
	if err := t.LoadChildren(parentID); err != nil {
		return err
	}
	if existing, ok := t.nodes[child.ID]; ok && existing != child {
		return fmt.Errorf("tree: id %s is already active", child.ID)
	}
	if child.Parent != "" && child.Parent != parentID {
		if old, ok := t.nodes[child.Parent]; ok && old.children != nil {
			delete(old.children, child.ID)
		}
	}
	child.Parent = parentID
	if child.IsDir() && child.children == nil {
		child.children = map[ID]struct{}{}
		if child.Baseline == nil {
			child.loaded = true
		}
	}
	t.nodes[child.ID] = child
	parent.children[child.ID] = struct{}{}
	t.reindex(child)
	return nil
}

// RemoveChild detaches id from parent without dropping it or its subtree.
func (t *Tree) RemoveChild(parentID, id ID) {
	parent := t.mustDir(parentID)
	delete(parent.children, id)
	if n, ok := t.nodes[id]; ok && n.Parent == parentID {
		n.Parent = ""
	}
}

// Move reattaches a loaded node under a new parent.
func (t *Tree) Move(id, newParent ID) error {
	n, ok := t.nodes[id]
	if !ok {
		return wcerr.New(wcerr.KindNotFound, id, "node not loaded")
	}
	if n.Parent != "" {
		t.RemoveChild(n.Parent, id)
	}
	return t.AddChild(newParent, n)
}

// Drop removes a node and its loaded subtree from the tree.
func (t *Tree) Drop(id ID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if n.Parent != "" {
		if p, ok := t.nodes[n.Parent]; ok && p.children != nil {
			delete(p.children, id)
		}
	}
	t.dropSubtree(n)
}

func (t *Tree) dropSubtree(n *Node) {
	for cid := range n.children {
		if c, ok := t.nodes[cid]; ok && c.Parent == n.ID {
			t.dropSubtree(c)
		}
	}
	delete(t.nodes, n.ID)
	n.Parent = ""
	t.reindex(n)
	delete(t.movedOut, n.ID)
}

// SetBaseline replaces the baseline descriptor and parent of a node, for
// use after the working copy has been rebound to another snapshot.
func (t *Tree) SetBaseline(id ID, d *Descriptor, baselineParent ID) {
	n := t.nodes[id]
	cur := n.Current()
	n.Baseline = d
	if d == nil {
		n.BaselineParent = ""
	} else {
		n.BaselineParent = baselineParent
	}
	n.setCurrent(cur)
	t.reindex(n)
}

// MarkLoaded records that dir's children are complete without reading
// the store. Used for directories whose listing was rebuilt in memory.
func (t *Tree) MarkLoaded(dirID ID) {
	dir := t.mustDir(dirID)
	if dir.children == nil {
		dir.children = map[ID]struct{}{}
	}
	dir.loaded = true
}

// FindByID returns the active node for id, loading directories depth
// first until it is found.
func (t *Tree) FindByID(id ID) (*Node, error) {
	if n, ok := t.nodes[id]; ok {
		return n, nil
	}
	var walk func(dirID ID) (*Node, error)
	walk = func(dirID ID) (*Node, error) {
		kids, err := t.Children(dirID)
		if err != nil {
			return nil, err
		}
		if n, ok := t.nodes[id]; ok {
			return n, nil
		}
		for _, k := range kids {
			if !k.IsDir() {
				continue
			}
			if n, err := walk(k.ID); n != nil || err != nil {
				return n, err
			}
		}
		return nil, nil
	}
	n, err := walk(t.rootID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, wcerr.New(wcerr.KindNotFound, id, "no such id in the working tree")
	}
	return n, nil
}

// Locate is FindByID with a hint: when id is not loaded yet but its
// baseline parent is, only that directory is loaded.
func (t *Tree) Locate(id, parentHint ID) (*Node, error) {
	if n, ok := t.nodes[id]; ok {
		return n, nil
	}
	if p, ok := t.nodes[parentHint]; ok && p.IsDir() {
		if err := t.LoadChildren(parentHint); err != nil {
			return nil, err
		}
		if n, ok := t.nodes[id]; ok {
			return n, nil
		}
	}
	return t.FindByID(id)
}

// LoadAll materializes every directory reachable from the root.
func (t *Tree) LoadAll() error {
	var walk func(dirID ID) error
	walk = func(dirID ID) error {
		kids, err := t.Children(dirID)
		if err != nil {
			return err
		}
		for _, k := range kids {
			if k.IsDir() {
				if err := walk(k.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(t.rootID)
}

// Nodes returns every loaded node in id order.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsAncestor reports whether anc is id or one of its current ancestors.
func (t *Tree) IsAncestor(anc, id ID) bool {
	for cur := id; cur != ""; {
		if cur == anc {
			return true
		}
		n, ok := t.nodes[cur]
		if !ok {
			return false
		}
		cur = n.Parent
	}
	return false
}

// Depth returns the number of current ancestors of id.
func (t *Tree) Depth(id ID) int {
	d := 0
	for n, ok := t.nodes[id]; ok && n.Parent != ""; n, ok = t.nodes[n.Parent] {
		d++
	}
	return d
}
