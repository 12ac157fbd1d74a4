// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package reconcile

import (
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// Update plans moving the working copy onto the new side of goal, a diff
// from the current baseline. Local changes are carried forward aspect by
// aspect; an aspect changed differently on both sides is a conflict.
// goalRoot is the tree hash of the new root directory.
func Update(t *tree.Tree, fsys fsservices.FSAdapter, goal *diff.Result, goalRoot objstore.Hash, opts Options) (*Plan, error) {
	if opts.ConflictKind == wcerr.KindUnknown {
		opts.ConflictKind = wcerr.KindUpdateConflict
	}
	for id := range goal.Entries {
		if err := ensureLoaded(t, goal, id); err != nil {
			return nil, err
		}
		if it, _ := goal.Lookup(id); it != nil {
			if _, known := goal.Old[it.Parent]; known {
				if err := ensureLoaded(t, goal, it.Parent); err != nil {
					return nil, err
				}
			}
		}
	}

	comps := diff.Compose(t, goal)
	var recs []*record
	var issues []string
	for _, id := range diff.SortedIDs(comps) {
		c := comps[id]
		r, issue := updateRecord(t, c)
		if issue != "" {
			issues = append(issues, fmt.Sprintf("%s: %s", describe(t, c), issue))
			continue
		}
		if r != nil {
			recs = append(recs, r)
		}
	}
	if len(issues) > 0 {
		return nil, wcerr.WithIssues(opts.ConflictKind, fmt.Sprintf("%d conflicting entries", len(issues)), issues)
	}

	plan, err := build(t, fsys, "update", recs, opts)
	if err != nil {
		return nil, err
	}
	plan.post = func(t *tree.Tree) error {
		for _, n := range t.Nodes() {
			if n.ID == t.RootID() {
				continue
			}
			if it, ok := goal.New[n.ID]; ok {
				t.SetBaseline(n.ID, it.Descriptor(), it.Parent)
			}
		}
		t.SetBaseline(t.RootID(), &tree.Descriptor{Hash: goalRoot}, "")
		return nil
	}
	return plan, nil
}

// ensureLoaded materializes id using the old side of goal as a map of
// baseline parents.
func ensureLoaded(t *tree.Tree, goal *diff.Result, id tree.ID) error {
	if _, ok := t.Node(id); ok || id == t.RootID() {
		return nil
	}
	it, ok := goal.Old[id]
	if !ok {
		return nil
	}
	if err := ensureLoaded(t, goal, it.Parent); err != nil {
		return err
	}
	_, err := t.Locate(id, it.Parent)
	return err
}

func describe(t *tree.Tree, c *diff.Composite) string {
	if n, ok := t.Node(c.ID); ok {
		if p, err := t.CurrentPath(n.ID); err == nil {
			return p
		}
	}
	switch {
	case c.Goal != nil:
		return c.Goal.Name
	case c.Base != nil:
		return c.Base.Name
	}
	return c.ID
}

// merge takes each aspect from the goal unless the working copy changed
// it. Directory hashes always come from the goal.
func merge(base, goal, work diff.Item) diff.Item {
	out := work
	if work.Name == base.Name {
		out.Name = goal.Name
	}
	if work.Parent == base.Parent {
		out.Parent = goal.Parent
	}
	if work.Hash == base.Hash || work.Kind == objstore.KindDirectory {
		out.Hash = goal.Hash
	}
	if work.Attrs == base.Attrs {
		out.Attrs = goal.Attrs
	}
	if work.XAttrHash == base.XAttrHash {
		out.XAttrHash = goal.XAttrHash
	}
	return out
}

// updateRecord classifies one id; a non-empty string is a conflict.
func updateRecord(t *tree.Tree, c *diff.Composite) (*record, string) {
	r := &record{id: c.ID, kind: c.Kind, base: c.Base}
	var flags tree.Flags
	onDisk := c.Work != nil
	if n, ok := t.Node(c.ID); ok {
		flags = n.Flags
		onDisk = onDisk && n.OnDisk()
	}
	fin := func(baseline, current *diff.Item, state tree.State) *final {
		return &final{id: c.ID, kind: c.Kind, baseline: baseline, current: current, state: state, flags: flags}
	}

	switch {
	case c.Base == nil && c.Goal == nil:
		if c.Work == nil {
			return nil, ""
		}
		w := *c.Work
		r.src, r.dst = c.Work, &w
		r.fin = fin(nil, c.Work, c.WorkState)
		return r, ""

	case c.Base == nil:
		r.dst = c.Goal
		r.fin = fin(c.Goal, c.Goal, tree.StateNormal)
		return r, ""

	case c.Goal == nil:
		switch {
		case c.WorkState == tree.StateDeleted || c.WorkState == tree.StateLost:
		case c.Local != 0:
			return nil, fmt.Sprintf("removed in the goal but %s locally", c.Local)
		default:
			r.src = c.Work
		}
		r.fin = &final{id: c.ID, kind: c.Kind, drop: true}
		return r, ""
	}

	if c.Divergent != 0 {
		return nil, fmt.Sprintf("%s differently on both sides", c.Divergent)
	}
	if c.Incoming == 0 && c.Local == 0 && c.WorkState == tree.StateNormal {
		return nil, ""
	}
	merged := merge(*c.Base, *c.Goal, *c.Work)
	switch c.WorkState {
	case tree.StateDeleted:
		if c.Incoming != 0 {
			return nil, fmt.Sprintf("%s in the goal but removed locally", c.Incoming)
		}
		r.fin = fin(c.Goal, c.Work, tree.StateDeleted)
		return r, ""
	case tree.StateLost:
		merged.Hash = c.Goal.Hash
		r.dst = &merged
		r.fin = fin(c.Goal, &merged, tree.StateNormal)
		return r, ""
	}
	if onDisk {
		r.src = c.Work
	}
	r.dst = &merged
	r.fin = fin(c.Goal, &merged, tree.StateNormal)
	return r, ""
}
