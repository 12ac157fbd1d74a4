// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package reconcile

import (
	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// Revert plans returning every node flagged Reverting to its baseline.
// Added entries stop being tracked and stay on disk. Two widenings are
// applied to the flagged set: everything currently inside an added
// directory, and every missing directory a restored entry needs.
func Revert(t *tree.Tree, fsys fsservices.FSAdapter, opts Options) (*Plan, error) {
	if opts.ConflictKind == wcerr.KindUnknown {
		opts.ConflictKind = wcerr.KindObjectAlreadyExists
	}
	scope := map[tree.ID]bool{}
	for _, n := range t.Nodes() {
		if n.ID != t.RootID() && n.Flags&tree.FlagReverting != 0 {
			scope[n.ID] = true
		}
	}
	for _, n := range t.Nodes() {
		if !scope[n.ID] || n.State != tree.StateAdded || !n.IsDir() {
			continue
		}
		for _, m := range t.Nodes() {
			if m.ID != n.ID && m.IsTracked() && t.IsAncestor(n.ID, m.ID) {
				scope[m.ID] = true
			}
		}
	}

	recs := map[tree.ID]*record{}
	var queue []tree.ID
	for id := range scope {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := recs[id]; done {
			continue
		}
		n, ok := t.Node(id)
		if !ok {
			continue
		}
		r := revertRecord(n)
		if r == nil {
			continue
		}
		recs[id] = r
		if r.untracked || r.dst == nil {
			continue
		}
		parent := r.dst.Parent
		if parent == t.RootID() {
			continue
		}
		pn, err := t.FindByID(parent)
		if err != nil {
			return nil, err
		}
		if !pn.OnDisk() {
			if _, done := recs[parent]; !done {
				queue = append(queue, parent)
			}
		}
	}

	list := make([]*record, 0, len(recs))
	for _, r := range recs {
		list = append(list, r)
	}
	return build(t, fsys, "revert", list, opts)
}

func revertRecord(n *tree.Node) *record {
	if n.State == tree.StateFound {
		return nil
	}
	cur := diff.CurrentItem(n)
	r := &record{id: n.ID, kind: n.Kind, base: diff.BaselineItem(n)}
	if n.State == tree.StateAdded {
		dst := cur
		r.src = &cur
		r.dst = &dst
		r.untracked = true
		r.fin = &final{id: n.ID, kind: n.Kind, drop: true}
		return r
	}
	if r.base == nil {
		return nil
	}
	if n.State == tree.StateNormal && n.Override == nil && !n.IsMoved() {
		return nil
	}
	if n.OnDisk() {
		r.src = &cur
	}
	dst := *r.base
	r.dst = &dst
	r.fin = &final{id: n.ID, kind: n.Kind, baseline: r.base, current: r.base, state: tree.StateNormal}
	return r
}
