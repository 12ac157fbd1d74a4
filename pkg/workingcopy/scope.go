// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// markScope flags every tracked node the filter selects and returns the
// selected set. A moved or renamed node is selected on its destination
// side through its current path and on its source side through its
// baseline path; naming either path exactly selects both. Selecting only
// one side is a split move.
func (s *session) markScope(f *filter.Filter, flag tree.Flags) (map[tree.ID]bool, error) {
	scope := map[tree.ID]bool{}
	exact := map[string]bool{}
	for _, it := range f.Items() {
		exact[it] = true
	}
	var split []string
	for _, n := range s.t.Nodes() {
		if n.ID == s.t.RootID() || !n.IsTracked() {
			continue
		}
		if f.IsAll() {
			scope[n.ID] = true
			continue
		}
		cur, err := s.t.CurrentPath(n.ID)
		if err != nil {
			return nil, err
		}
		in := covered(f, cur, n.Kind)
		if n.IsMoved() || n.IsRenamed() {
			orig, err := s.t.OriginalPath(n.ID)
			if err != nil {
				return nil, err
			}
			inOrig := covered(f, orig, n.Kind)
			switch {
			case exact[cur] || exact[orig]:
				in = true
			case in != inOrig:
				split = append(split, fmt.Sprintf("%s (was %s)", cur, orig))
				continue
			}
		}
		if in {
			scope[n.ID] = true
		}
	}
	if len(split) > 0 {
		return nil, wcerr.WithIssues(wcerr.KindSplitMoveDetected, "only one side of a move is selected", split)
	}
	for id := range scope {
		n, _ := s.t.Node(id)
		n.Flags |= flag
	}
	return scope, nil
}
