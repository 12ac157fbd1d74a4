// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/configs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/journal"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/metrics"
	"github.com/Project-Sylos/Sylos-VC/pkg/reconcile"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/google/uuid"
)

// session is one locked operation: load, mutate, then save or abort.
type session struct {
	w     *WorkingCopy
	op    string
	start time.Time
	h     *db.Handle
	state *db.PendingState
	t     *tree.Tree
	done  bool
}

func (w *WorkingCopy) begin(op string) (*session, error) {
	h, state, err := db.Begin(StatePath(w.root), 0)
	if err != nil {
		return nil, err
	}
	if state == nil || len(state.Parents) == 0 {
		h.Abort()
		return nil, wcerr.New(wcerr.KindNotFound, w.root, "not a working copy")
	}
	s := &session{w: w, op: op, start: time.Now(), h: h, state: state}
	if logservice.LS != nil {
		logservice.LS.Attach(h.DB(), op)
	}
	if s.t, err = w.loadTree(state); err != nil {
		s.abort()
		return nil, err
	}
	return s, nil
}

// loadTree restores the pending tree, or synthesizes a clean one from the
// first parent when nothing is pending.
func (w *WorkingCopy) loadTree(state *db.PendingState) (*tree.Tree, error) {
	if len(state.Tree) > 0 {
		return tree.Unmarshal(w.store, state.Tree)
	}
	cs, err := w.store.GetChangeset(state.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline changeset %s: %w", state.Parents[0], err)
	}
	return tree.New(w.store, cs.RootID, cs.RootHash), nil
}

// save strips transient markers, evicts clean subtrees and writes the
// pending state back, releasing the lock.
func (s *session) save() error {
	for _, n := range s.t.Nodes() {
		if n.State == tree.StateFound {
			s.t.Drop(n.ID)
			continue
		}
		n.Flags &^= tree.TransientFlags
	}
	s.state.Tree = nil
	if s.t.Unload() {
		data, err := s.t.Marshal()
		if err != nil {
			s.abort()
			return err
		}
		s.state.Tree = data
	}
	s.detach()
	s.done = true
	return s.h.Save(s.state)
}

// abort releases the lock leaving the stored state as it was.
func (s *session) abort() {
	if s.done {
		return
	}
	s.detach()
	s.done = true
	s.h.Abort()
}

func (s *session) detach() {
	if logservice.LS != nil {
		logservice.LS.Detach()
	}
}

// release is deferred by every operation. It aborts a session that was
// not saved and records the outcome.
func (s *session) release(errp *error) {
	s.abort()
	metrics.RecordOperation(s.op, time.Since(s.start), *errp)
	if path := s.w.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(configs.Resolve(s.w.root, path)); err != nil && logservice.LS != nil {
			_ = logservice.LS.Log("warning", fmt.Sprintf("Failed to write metrics textfile: %v", err), "workingcopy", s.op)
		}
	}
}

func (s *session) scan(mode scan.Mode, f *filter.Filter) (scan.Stats, error) {
	sc := scan.New(s.w.fs, s.w.attrs, s.h.Timestamps(), scan.Options{
		Mode:         mode,
		Filter:       f,
		Analyzer:     s.w.analyzer,
		WarnSymlinks: s.w.cfg.Scan.WarnSymlinks,
		Now:          s.w.Now,
		OnHash:       s.w.OnHash,
	})
	return sc.Scan(s.t)
}

// scanAll refreshes the whole tree, honoring only the ignore patterns.
func (s *session) scanAll(mode scan.Mode) error {
	f, err := s.w.filterFor(Selection{})
	if err != nil {
		return err
	}
	_, err = s.scan(mode, f)
	return err
}

func (s *session) reconcileOptions(ignoreWarnings bool) reconcile.Options {
	cfg := s.w.cfg
	return reconcile.Options{
		Analyzer:        s.w.analyzer,
		IgnoreWarnings:  ignoreWarnings,
		Backups:         cfg.Backups.Enabled,
		MaxBackups:      cfg.Backups.MaxAttempts,
		CaseInsensitive: s.w.caseInsensitive,
		Parking:         filepath.Join(s.w.root, configs.ControlDir, "tmp", "parking-"+uuid.NewString()),
	}
}

// apply executes plan, journaling every action when the journal is
// enabled. A journal that cannot be opened is logged and skipped.
func (s *session) apply(plan *reconcile.Plan, target string) error {
	opts := reconcile.ApplyOptions{Attrs: s.w.attrs, Stamps: s.h.Timestamps()}
	var rec *journal.Recorder
	if s.w.cfg.Journal.Enabled {
		j, err := journal.Open(configs.Resolve(s.w.root, s.w.cfg.Journal.Path))
		if err == nil {
			defer j.Close()
			rec, err = j.Begin(plan, s.w.root, s.state.Parents, target)
		}
		if err != nil {
			rec = nil
			if logservice.LS != nil {
				_ = logservice.LS.Log("warning", fmt.Sprintf("Journal unavailable: %v", err), "workingcopy", s.op)
			}
		}
	}
	if rec != nil {
		opts.Recorder = rec
	}
	err := plan.Apply(opts)
	if rec != nil {
		if ferr := rec.Finish(err); ferr != nil && logservice.LS != nil {
			_ = logservice.LS.Log("warning", fmt.Sprintf("Failed to close journal entry: %v", ferr), "workingcopy", rec.ID())
		}
	}
	return err
}
