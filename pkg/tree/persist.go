// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package tree

import (
	"encoding/json"
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
)

// nodeState is the persisted form of a node.
type nodeState struct {
	ID             ID            `json:"id"`
	Kind           objstore.Kind `json:"kind"`
	Baseline       *Descriptor   `json:"baseline,omitempty"`
	BaselineParent ID            `json:"baseline_parent,omitempty"`
	Override       *Descriptor   `json:"override,omitempty"`
	Parent         ID            `json:"parent,omitempty"`
	State          State         `json:"state,omitempty"`
	Flags          Flags         `json:"flags,omitempty"`
	Loaded         bool          `json:"loaded,omitempty"`
}

type treeState struct {
	RootID ID          `json:"root_id"`
	Nodes  []nodeState `json:"nodes"`
}

// Unload drops the children of every clean, loaded directory that has a
// baseline. It returns whether the tree as a whole is dirty.
func (t *Tree) Unload() bool {
	return t.unload(t.Root())
}

// unload is a post-order pass: a directory is clean when it is clean
// itself, has no ghosts and all of its children are clean.
func (t *Tree) unload(n *Node) bool {
	dirty := n.IsDirtySelf()
	if !n.IsDir() {
		return dirty
	}
	if len(t.movedOut[n.ID]) > 0 {
		dirty = true
	}
	for cid := range n.children {
		c, ok := t.nodes[cid]
		if !ok {
			continue
		}
		if t.unload(c) {
			dirty = true
		}
	}
	if !dirty && n.loaded && n.Baseline != nil && n.Baseline.Hash != "" {
		for cid := range n.children {
			if c, ok := t.nodes[cid]; ok {
				t.dropSubtree(c)
			}
		}
		n.children = map[ID]struct{}{}
		n.loaded = false
	}
	return dirty
}

// Marshal serializes the loaded nodes, omitting untracked ones.
func (t *Tree) Marshal() ([]byte, error) {
	st := treeState{RootID: t.rootID}
	for _, n := range t.Nodes() {
		if n.State == StateFound {
			continue
		}
		st.Nodes = append(st.Nodes, nodeState{
			ID:             n.ID,
			Kind:           n.Kind,
			Baseline:       n.Baseline,
			BaselineParent: n.BaselineParent,
			Override:       n.Override,
			Parent:         n.Parent,
			State:          n.State,
			Flags:          n.Flags &^ TransientFlags,
			Loaded:         n.loaded,
		})
	}
	return json.Marshal(st)
}

// Unmarshal rebuilds a tree saved by Marshal.
func Unmarshal(store objstore.Store, data []byte) (*Tree, error) {
	var st treeState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode pending tree: %w", err)
	}
	t := newEmpty(store)
	t.rootID = st.RootID
	for _, ns := range st.Nodes {
		n := &Node{
			ID:             ns.ID,
			Kind:           ns.Kind,
			Baseline:       ns.Baseline,
			BaselineParent: ns.BaselineParent,
			Override:       ns.Override,
			Parent:         ns.Parent,
			State:          ns.State,
			Flags:          ns.Flags,
			loaded:         ns.Loaded,
		}
		if n.IsDir() {
			n.children = map[ID]struct{}{}
		}
		if n.Baseline != nil {
			n.Baseline.Name = t.intern(n.Baseline.Name)
		}
		t.nodes[n.ID] = n
	}
	root, ok := t.nodes[t.rootID]
	if !ok || !root.IsDir() {
		return nil, fmt.Errorf("pending tree has no root directory")
	}
	for _, n := range t.nodes {
		if n.ID == t.rootID {
			continue
		}
		p, ok := t.nodes[n.Parent]
		if !ok || !p.IsDir() {
			return nil, fmt.Errorf("pending tree node %s has missing parent %s", n.ID, n.Parent)
		}
		p.children[n.ID] = struct{}{}
		t.reindex(n)
	}
	return t, nil
}
