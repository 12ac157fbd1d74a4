// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"fmt"
	"sort"

	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/google/uuid"
)

// view is where an entry sits in the snapshot being committed.
type view struct {
	parent tree.ID
	desc   tree.Descriptor
	kind   objstore.Kind
}

// Commit stores the selected changes as a new changeset whose parents are
// the working copy's parents, and makes it the new baseline. Changes
// outside the selection stay pending.
func (w *WorkingCopy) Commit(sel Selection, message string) (cs *objstore.Changeset, err error) {
	s, err := w.begin("commit")
	if err != nil {
		return nil, err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeRefresh); err != nil {
		return nil, err
	}
	f, err := w.filterFor(sel)
	if err != nil {
		return nil, err
	}
	if len(s.state.Parents) > 1 && !f.IsAll() {
		return nil, wcerr.New(wcerr.KindCannotPartialCommitAfterMerge, "", "")
	}
	scope, err := s.markScope(f, tree.FlagCommitting)
	if err != nil {
		return nil, err
	}
	s.includeAddedAncestors(scope)

	changed := false
	for id := range scope {
		n, _ := s.t.Node(id)
		if n.State != tree.StateLost && (n.State != tree.StateNormal || n.Override != nil || n.IsMoved()) {
			changed = true
			break
		}
	}
	if !changed && len(s.state.Parents) == 1 {
		return nil, wcerr.New(wcerr.KindNothingToCommit, "", "")
	}

	views, err := s.committedViews(scope)
	if err != nil {
		return nil, err
	}
	rootHash, dirHashes, err := s.storeTrees(views)
	if err != nil {
		return nil, err
	}

	cs = &objstore.Changeset{
		ID:       uuid.NewString(),
		Parents:  append([]string(nil), s.state.Parents...),
		RootID:   s.t.RootID(),
		RootHash: rootHash,
		Message:  message,
		Created:  w.now().UTC(),
	}
	if err := w.store.PutChangeset(cs); err != nil {
		return nil, fmt.Errorf("failed to store changeset: %w", err)
	}

	s.rebind(scope, views, dirHashes, rootHash)
	s.state.Parents = []string{cs.ID}
	s.state.Issues = nil
	if err := s.save(); err != nil {
		return nil, err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Committed %d entries", len(scope)), "workingcopy", cs.ID)
	}
	return cs, nil
}

// includeAddedAncestors selects the added directories a selected entry
// lives in; the entry cannot be committed without them.
func (s *session) includeAddedAncestors(scope map[tree.ID]bool) {
	var ids []tree.ID
	for id := range scope {
		ids = append(ids, id)
	}
	for _, id := range ids {
		n, _ := s.t.Node(id)
		for p, ok := s.t.Node(n.Parent); ok && p.State == tree.StateAdded && !scope[p.ID]; p, ok = s.t.Node(p.Parent) {
			scope[p.ID] = true
			p.Flags |= tree.FlagCommitting
		}
	}
}

// committedViews places every node in the new snapshot: selected nodes at
// their current position with their current content, everything else
// where the baseline has it. Deleted selected nodes and untracked nodes
// are left out; lost ones keep their baseline. Content of selected files
// is stored as it is read from disk.
func (s *session) committedViews(scope map[tree.ID]bool) (map[tree.ID]*view, error) {
	views := map[tree.ID]*view{}
	for _, n := range s.t.Nodes() {
		if n.ID == s.t.RootID() || !n.IsTracked() {
			continue
		}
		useCurrent := scope[n.ID] && n.State != tree.StateLost
		if scope[n.ID] && n.State == tree.StateDeleted {
			continue
		}
		if !useCurrent {
			if n.Baseline == nil {
				continue
			}
			views[n.ID] = &view{parent: n.BaselineParent, desc: *n.Baseline, kind: n.Kind}
			continue
		}
		v := &view{parent: n.Parent, desc: n.Current(), kind: n.Kind}
		if !n.IsDir() {
			if err := s.storeContent(n, v); err != nil {
				return nil, err
			}
		}
		views[n.ID] = v
	}

	// Every entry must hang below the root without cycles and without
	// sharing a name with a sibling.
	root := s.t.RootID()
	names := map[tree.ID]map[string]tree.ID{}
	for id, v := range views {
		if other, dup := names[v.parent][v.desc.Name]; dup {
			p, _ := s.t.CurrentPath(id)
			return nil, wcerr.Newf(wcerr.KindObjectAlreadyExists, p, "collides with %s in the committed tree", other)
		}
		if names[v.parent] == nil {
			names[v.parent] = map[string]tree.ID{}
		}
		names[v.parent][v.desc.Name] = id

		steps := 0
		for cur := v.parent; cur != root; steps++ {
			pv, ok := views[cur]
			if !ok {
				p, _ := s.t.CurrentPath(id)
				return nil, wcerr.New(wcerr.KindInvalidObjectType, p, "selection leaves the entry without its parent directory")
			}
			if steps > len(views) {
				p, _ := s.t.CurrentPath(id)
				return nil, wcerr.New(wcerr.KindSplitMoveDetected, p, "selection would commit a directory cycle")
			}
			cur = pv.parent
		}
	}
	return views, nil
}

// storeContent puts the blob and xattrs of a selected entry that differ
// from its baseline.
func (s *session) storeContent(n *tree.Node, v *view) error {
	rel, err := s.t.CurrentPath(n.ID)
	if err != nil {
		return err
	}
	abs := s.w.fs.Abs(rel)
	if n.Baseline == nil || v.desc.Hash != n.Baseline.Hash {
		data, err := s.w.fs.ReadFile(abs, n.Kind)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if v.desc.Hash, err = s.w.store.PutBlob(data); err != nil {
			return fmt.Errorf("failed to store %s: %w", rel, err)
		}
	}
	if v.desc.XAttrHash != "" && (n.Baseline == nil || v.desc.XAttrHash != n.Baseline.XAttrHash) {
		_, xs, err := s.w.attrs.Read(abs, n.Kind)
		if err != nil {
			return err
		}
		if v.desc.XAttrHash, err = objstore.PutXAttrs(s.w.store, xs); err != nil {
			return fmt.Errorf("failed to store xattrs of %s: %w", rel, err)
		}
	}
	return nil
}

// storeTrees writes the directory listings of the committed views bottom
// up. Directories whose children were never loaded are unchanged and keep
// their baseline hash.
func (s *session) storeTrees(views map[tree.ID]*view) (objstore.Hash, map[tree.ID]objstore.Hash, error) {
	children := map[tree.ID][]tree.ID{}
	for id, v := range views {
		children[v.parent] = append(children[v.parent], id)
	}
	hashes := map[tree.ID]objstore.Hash{}
	var put func(dir tree.ID) (objstore.Hash, error)
	put = func(dir tree.ID) (objstore.Hash, error) {
		if dir != s.t.RootID() && !s.t.IsLoaded(dir) {
			return views[dir].desc.Hash, nil
		}
		kids := children[dir]
		sort.Strings(kids)
		entries := make([]objstore.TreeEntry, 0, len(kids))
		for _, id := range kids {
			v := views[id]
			if v.kind == objstore.KindDirectory {
				h, err := put(id)
				if err != nil {
					return "", err
				}
				v.desc.Hash = h
			}
			entries = append(entries, objstore.TreeEntry{
				ID:        id,
				Name:      v.desc.Name,
				Kind:      v.kind,
				Hash:      v.desc.Hash,
				Attrs:     v.desc.Attrs,
				XAttrHash: v.desc.XAttrHash,
			})
		}
		h, err := s.w.store.PutTree(entries)
		if err != nil {
			return "", fmt.Errorf("failed to store directory %s: %w", dir, err)
		}
		hashes[dir] = h
		return h, nil
	}
	rootHash, err := put(s.t.RootID())
	return rootHash, hashes, err
}

// rebind makes the committed snapshot the baseline of the tree.
func (s *session) rebind(scope map[tree.ID]bool, views map[tree.ID]*view, dirHashes map[tree.ID]objstore.Hash, rootHash objstore.Hash) {
	var drop []tree.ID
	for _, n := range s.t.Nodes() {
		if n.ID == s.t.RootID() {
			continue
		}
		v, ok := views[n.ID]
		switch {
		case scope[n.ID] && n.State == tree.StateDeleted:
			drop = append(drop, n.ID)
		case !ok:
		case scope[n.ID] && n.State != tree.StateLost:
			d := v.desc
			s.t.SetBaseline(n.ID, &d, v.parent)
			n.State = tree.StateNormal
			n.Flags &^= tree.FlagImplicitAdd
		default:
			if h, loaded := dirHashes[n.ID]; loaded {
				d := *n.Baseline
				d.Hash = h
				s.t.SetBaseline(n.ID, &d, n.BaselineParent)
			}
		}
	}
	for _, id := range drop {
		s.t.Drop(id)
	}
	s.t.SetBaseline(s.t.RootID(), &tree.Descriptor{Hash: rootHash}, "")
}
