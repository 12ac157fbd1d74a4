// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"errors"
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/reconcile"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// UpdateOptions controls UpdateTo.
type UpdateOptions struct {
	// Force discards local changes instead of carrying them forward.
	// Not implemented for a dirty working copy.
	Force          bool
	DryRun         bool
	IgnoreWarnings bool
}

// UpdateTo moves the working copy onto the changeset goal. Local changes
// are carried forward; a change that collides with the goal fails the
// update before the disk is touched. When the goal holds the same tree as
// the baseline only the baseline pointer moves and the plan is empty.
func (w *WorkingCopy) UpdateTo(goal string, opts UpdateOptions) (plan *reconcile.Plan, err error) {
	s, err := w.begin("update")
	if err != nil {
		return nil, err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeReportFound); err != nil {
		return nil, err
	}
	if len(s.state.Parents) > 1 {
		return nil, wcerr.New(wcerr.KindNotImplemented, "", "update with a pending merge")
	}
	if opts.Force && dirty(s) {
		return nil, wcerr.New(wcerr.KindNotImplemented, "", "forced update of a working copy with local changes")
	}

	base, err := w.store.GetChangeset(s.state.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline changeset: %w", err)
	}
	target, err := w.store.GetChangeset(goal)
	if err != nil {
		if errors.Is(err, objstore.ErrObjectNotFound) {
			return nil, wcerr.New(wcerr.KindNotFound, goal, "no such changeset")
		}
		return nil, err
	}
	if target.RootID != base.RootID {
		return nil, wcerr.New(wcerr.KindInvalidObjectType, goal, "changeset belongs to another repository")
	}

	if target.ID == base.ID || target.RootHash == base.RootHash {
		s.state.Parents = []string{target.ID}
		if err := s.save(); err != nil {
			return nil, err
		}
		return &reconcile.Plan{Operation: "update"}, nil
	}

	goalDiff, err := diff.Trees(w.store, s.t.RootID(), base.RootHash, target.RootHash)
	if err != nil {
		return nil, err
	}
	plan, err = reconcile.Update(s.t, w.fs, goalDiff, target.RootHash, s.reconcileOptions(opts.IgnoreWarnings || w.cfg.Portability.IgnoreWarnings))
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return plan, nil
	}
	if err := s.apply(plan, target.ID); err != nil {
		if serr := s.save(); serr != nil {
			return plan, errors.Join(err, serr)
		}
		return plan, err
	}
	s.state.Parents = []string{target.ID}
	s.state.Issues = nil
	if err := s.save(); err != nil {
		return plan, err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Updated to %s with %d actions", target.ID, len(plan.Actions)), "workingcopy", target.ID)
	}
	return plan, nil
}

// dirty reports whether anything tracked differs from the baseline.
func dirty(s *session) bool {
	for _, e := range diff.WorkingCopy(s.t) {
		if e.Class != diff.ClassFound {
			return true
		}
	}
	return false
}
