// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"errors"
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// Log returns up to limit changesets starting at the first parent and
// following first parents. A limit of zero or less means no limit.
func (w *WorkingCopy) Log(limit int) ([]*objstore.Changeset, error) {
	parents, err := w.Parents()
	if err != nil {
		return nil, err
	}
	var out []*objstore.Changeset
	seen := map[string]bool{}
	for id := parents[0]; id != "" && !seen[id]; {
		if limit > 0 && len(out) == limit {
			break
		}
		seen[id] = true
		cs, err := w.store.GetChangeset(id)
		if err != nil {
			return out, fmt.Errorf("failed to load changeset %s: %w", id, err)
		}
		out = append(out, cs)
		id = ""
		if len(cs.Parents) > 0 {
			id = cs.Parents[0]
		}
	}
	return out, nil
}

// SetMergeParent records id as the second parent of the working copy,
// together with the issues the merge left unresolved. The next commit
// must include everything and will have both parents.
func (w *WorkingCopy) SetMergeParent(id string, issues []db.MergeIssue) (err error) {
	s, err := w.begin("merge")
	if err != nil {
		return err
	}
	defer s.release(&err)

	if len(s.state.Parents) > 1 {
		return wcerr.New(wcerr.KindNotImplemented, id, "working copy already has a pending merge")
	}
	if id == s.state.Parents[0] {
		return wcerr.New(wcerr.KindInvalidObjectType, id, "cannot merge a changeset with itself")
	}
	cs, err := w.store.GetChangeset(id)
	if err != nil {
		if errors.Is(err, objstore.ErrObjectNotFound) {
			return wcerr.New(wcerr.KindNotFound, id, "no such changeset")
		}
		return err
	}
	if cs.RootID != s.t.RootID() {
		return wcerr.New(wcerr.KindInvalidObjectType, id, "changeset belongs to another repository")
	}
	s.state.Parents = append(s.state.Parents, id)
	s.state.Issues = append(s.state.Issues, issues...)
	if err := s.save(); err != nil {
		return err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Recorded merge parent with %d issues", len(issues)), "workingcopy", id)
	}
	return nil
}

// Issues returns the unresolved merge issues of the working copy.
func (w *WorkingCopy) Issues() ([]db.MergeIssue, error) {
	state, err := db.ReadState(StatePath(w.root))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, wcerr.New(wcerr.KindNotFound, w.root, "not a working copy")
	}
	var open []db.MergeIssue
	for _, is := range state.Issues {
		if !is.Resolved {
			open = append(open, is)
		}
	}
	return open, nil
}
