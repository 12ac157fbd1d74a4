// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"errors"
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/reconcile"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// RevertOptions controls Revert.
type RevertOptions struct {
	Selection
	// DryRun returns the plan without touching the disk or the pending
	// state.
	DryRun bool
}

// Revert returns the selected entries to their baseline. Added entries
// stop being tracked and stay on disk. Reverting everything in a working
// copy with a pending merge forgets the merge.
func (w *WorkingCopy) Revert(opts RevertOptions) (plan *reconcile.Plan, err error) {
	s, err := w.begin("revert")
	if err != nil {
		return nil, err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeReportFound); err != nil {
		return nil, err
	}
	f, err := w.filterFor(opts.Selection)
	if err != nil {
		return nil, err
	}
	all := f.IsAll()
	if len(s.state.Parents) > 1 && !all {
		return nil, wcerr.New(wcerr.KindCannotPartialRevertAfterMerge, "", "")
	}
	if _, err := s.markScope(f, tree.FlagReverting); err != nil {
		return nil, err
	}
	plan, err = reconcile.Revert(s.t, w.fs, s.reconcileOptions(w.ignoreWarnings(opts.Selection)))
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return plan, nil
	}

	if err := s.apply(plan, ""); err != nil {
		// The tree still describes the pre-revert layout; the next scan
		// picks up whatever was applied.
		if serr := s.save(); serr != nil {
			return plan, errors.Join(err, serr)
		}
		return plan, err
	}
	if all && len(s.state.Parents) > 1 {
		s.state.Parents = s.state.Parents[:1]
	}
	s.state.Issues = nil
	if err := s.save(); err != nil {
		return plan, err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Reverted with %d actions", len(plan.Actions)), "workingcopy", "revert")
	}
	return plan, nil
}
