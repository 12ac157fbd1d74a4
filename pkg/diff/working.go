// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package diff

import (
	"sort"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
)

// CurrentItem returns the working-tree side of a node.
func CurrentItem(n *tree.Node) Item {
	d := n.Current()
	return Item{Parent: n.Parent, Name: d.Name, Kind: n.Kind, Hash: d.Hash, Attrs: d.Attrs, XAttrHash: d.XAttrHash}
}

// BaselineItem returns the baseline side of a node, or nil.
func BaselineItem(n *tree.Node) *Item {
	if n.Baseline == nil {
		return nil
	}
	d := n.Baseline
	return &Item{Parent: n.BaselineParent, Name: d.Name, Kind: n.Kind, Hash: d.Hash, Attrs: d.Attrs, XAttrHash: d.XAttrHash}
}

// WorkingCopy diffs the loaded working tree against its baseline. Only
// loaded nodes can differ; the result is ordered by id.
func WorkingCopy(t *tree.Tree) []*Entry {
	var out []*Entry
	for _, n := range t.Nodes() {
		if n.ID == t.RootID() || !n.IsDirtySelf() {
			continue
		}
		e := &Entry{ID: n.ID, Kind: n.Kind, Old: BaselineItem(n)}
		cur := CurrentItem(n)
		switch n.State {
		case tree.StateAdded:
			e.Class = ClassAdded
		case tree.StateFound:
			e.Class = ClassFound
		case tree.StateDeleted:
			e.Class = ClassDeleted
		case tree.StateLost:
			e.Class = ClassLost
		}
		if n.OnDisk() {
			e.New = &cur
		}
		if e.Old != nil {
			e.Mods = Compare(*e.Old, cur)
		}
		if e.Changed() {
			out = append(out, e)
		}
	}
	return out
}

// Composite is the three-way view of one id used by update.
type Composite struct {
	ID        tree.ID
	Kind      objstore.Kind
	Base      *Item // nil when absent from the baseline
	Goal      *Item // nil when absent from the goal
	Work      *Item // nil when the working tree does not track it
	WorkState tree.State

	Incoming  Mods // goal vs baseline
	Local     Mods // working copy vs baseline
	Same      Mods // aspects both sides changed to the same value
	Divergent Mods // aspects both sides changed to different values
}

// Combined is the logical composition of both sides.
func (c *Composite) Combined() Mods {
	return c.Incoming | c.Local
}

// GoalOnly are the incoming aspects the working copy did not touch.
func (c *Composite) GoalOnly() Mods {
	return c.Incoming &^ c.Local
}

// LocalOnly are the local aspects the goal did not touch.
func (c *Composite) LocalOnly() Mods {
	return c.Local &^ c.Incoming
}

func sameAspect(m Mods, a, b *Item) bool {
	switch m {
	case ModRenamed:
		return a.Name == b.Name
	case ModMoved:
		return a.Parent == b.Parent
	case ModModified:
		return a.Hash == b.Hash
	case ModAttrs:
		return a.Attrs == b.Attrs
	case ModXAttrs:
		return a.XAttrHash == b.XAttrHash
	}
	return true
}

// Compose joins the goal diff with the working tree. Every id changed on
// either side is returned.
func Compose(t *tree.Tree, goal *Result) map[tree.ID]*Composite {
	ids := map[tree.ID]bool{}
	for id := range goal.Entries {
		ids[id] = true
	}
	for _, n := range t.Nodes() {
		if n.ID != t.RootID() && n.IsTracked() && n.IsDirtySelf() {
			ids[n.ID] = true
		}
	}

	out := make(map[tree.ID]*Composite, len(ids))
	for id := range ids {
		c := &Composite{ID: id}
		n, loaded := t.Node(id)
		if loaded && !n.IsTracked() {
			loaded = false
		}
		switch {
		case loaded:
			c.Kind = n.Kind
			c.Base = BaselineItem(n)
			cur := CurrentItem(n)
			c.Work = &cur
			c.WorkState = n.State
		default:
			if it, ok := goal.Old[id]; ok {
				it := it
				c.Base = &it
				w := it
				c.Work = &w
				c.Kind = it.Kind
			}
		}
		if it, absent := goal.Lookup(id); it != nil {
			c.Goal = it
			c.Kind = it.Kind
		} else if !absent && c.Base != nil {
			g := *c.Base
			c.Goal = &g
		}

		if c.Base != nil && c.Goal != nil {
			c.Incoming = Compare(*c.Base, *c.Goal)
		}
		if c.Base != nil && c.Work != nil && c.WorkState != tree.StateAdded {
			c.Local = Compare(*c.Base, *c.Work)
		}
		for _, mn := range modNames {
			if c.Incoming&c.Local&mn.m == 0 {
				continue
			}
			if sameAspect(mn.m, c.Goal, c.Work) {
				c.Same |= mn.m
			} else {
				c.Divergent |= mn.m
			}
		}
		out[id] = c
	}
	return out
}

// SortedIDs returns the keys of a composite map in order.
func SortedIDs(m map[tree.ID]*Composite) []tree.ID {
	ids := make([]tree.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
