// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// lookupTracked resolves rel to a tracked entry that exists on disk.
func (s *session) lookupTracked(rel string) (*tree.Node, error) {
	n, err := s.t.Lookup(rel)
	if err != nil {
		return nil, err
	}
	if !n.IsTracked() || !n.OnDisk() {
		return nil, wcerr.New(wcerr.KindNotFound, rel, "not a tracked entry")
	}
	return n, nil
}

// Add schedules the untracked entries of the selection for addition. The
// parent directories of an item are added implicitly. It returns the
// number of entries added.
func (w *WorkingCopy) Add(sel Selection) (added int, err error) {
	s, err := w.begin("add")
	if err != nil {
		return 0, err
	}
	defer s.release(&err)

	for _, it := range sel.Items {
		rel, err := filter.CleanPath(it)
		if err != nil {
			return 0, err
		}
		if !w.fs.Exists(w.fs.Abs(rel)) {
			return 0, wcerr.New(wcerr.KindNotFound, rel, "no such file or directory")
		}
		if rel == "" {
			continue
		}
		n, err := s.t.Lookup(rel)
		if err != nil && wcerr.KindOf(err) != wcerr.KindNotFound {
			return 0, err
		}
		if n != nil && n.IsTracked() && n.OnDisk() && !n.IsDir() {
			return 0, wcerr.New(wcerr.KindAlreadyUnderVersionControl, rel, "")
		}
	}

	f, err := w.filterFor(sel)
	if err != nil {
		return 0, err
	}
	stats, err := s.scan(scan.ModeAdd, f)
	if err != nil {
		return 0, err
	}
	if ws := s.t.Warnings(); len(ws) > 0 && !w.ignoreWarnings(sel) {
		return 0, wcerr.WithIssues(wcerr.KindPortabilityWarning, fmt.Sprintf("%d names are not portable", len(ws)), warningIssues(ws))
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Added %d entries", stats.Added), "workingcopy", "add")
	}
	return stats.Added, nil
}

// Remove deletes the selected entries from disk and schedules tracked
// ones for removal. Removing an added entry forgets it. Entries below a
// directory item follow the selection filter: a directory stays, still
// tracked, while anything the filter keeps is left inside it. Without
// recursion a non-empty directory is refused.
func (w *WorkingCopy) Remove(sel Selection) (err error) {
	if len(sel.Items) == 0 {
		return wcerr.New(wcerr.KindNotFound, "", "nothing to remove")
	}
	s, err := w.begin("remove")
	if err != nil {
		return err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeRefresh); err != nil {
		return err
	}
	f, err := w.filterFor(sel)
	if err != nil {
		return err
	}
	var targets []*tree.Node
	for _, it := range sel.Items {
		rel, err := filter.CleanPath(it)
		if err != nil {
			return err
		}
		if rel == "" {
			return wcerr.New(wcerr.KindInvalidObjectType, rel, "cannot remove the working-copy root")
		}
		n, err := s.lookupTracked(rel)
		if err != nil {
			return err
		}
		if n.IsDir() && sel.NoRecurse {
			list, err := w.fs.ListChildren(w.fs.Abs(rel))
			if err != nil {
				return err
			}
			if len(list.Entries) > 0 {
				return wcerr.New(wcerr.KindInvalidObjectType, rel, "directory is not empty")
			}
		}
		targets = append(targets, n)
	}

	for _, n := range targets {
		if cur, ok := s.t.Node(n.ID); !ok || !cur.OnDisk() {
			// Already gone with an enclosing item.
			continue
		}
		rel, err := s.t.CurrentPath(n.ID)
		if err != nil {
			return err
		}
		if _, err := s.removeSelected(f, n, rel); err != nil {
			if serr := s.save(); serr != nil {
				return errors.Join(err, serr)
			}
			return err
		}
	}
	return s.save()
}

// removeSelected removes n, at rel, together with the entries below it
// that f covers, deepest first. It reports whether n itself is gone.
func (s *session) removeSelected(f *filter.Filter, n *tree.Node, rel string) (bool, error) {
	abs := s.w.fs.Abs(rel)
	if !n.IsDir() {
		if err := s.w.fs.Remove(abs); err != nil {
			return false, fmt.Errorf("failed to remove %s: %w", rel, err)
		}
		return true, s.markRemoved(n)
	}

	kids, err := s.t.Children(n.ID)
	if err != nil {
		return false, err
	}
	tracked := map[string]bool{}
	for _, c := range kids {
		p := join(rel, c.Name())
		if !c.OnDisk() {
			if c.State == tree.StateLost && covered(f, p, c.Kind) {
				if err := s.markRemoved(c); err != nil {
					return false, err
				}
			}
			continue
		}
		tracked[c.Name()] = true
		if !covered(f, p, c.Kind) {
			continue
		}
		if _, err := s.removeSelected(f, c, p); err != nil {
			return false, err
		}
	}

	list, err := s.w.fs.ListChildren(abs)
	if err != nil {
		return false, err
	}
	kept := 0
	for _, e := range list.Entries {
		p := join(rel, e.Name)
		if tracked[e.Name] || !covered(f, p, e.Kind) {
			kept++
			continue
		}
		if err := s.w.fs.RemoveAll(s.w.fs.Abs(p)); err != nil {
			return false, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	if kept > 0 {
		return false, nil
	}
	if err := s.w.fs.Remove(abs); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return true, s.markRemoved(n)
}

// markRemoved records that n and everything below it are gone from disk.
// Entries without a baseline are forgotten; tracked entries that had
// been moved into a forgotten directory go back to their baseline parent
// so they can still be restored.
func (s *session) markRemoved(n *tree.Node) error {
	if n.IsDir() {
		kids, err := s.t.Children(n.ID)
		if err != nil {
			return err
		}
		for _, c := range kids {
			if err := s.markRemoved(c); err != nil {
				return err
			}
		}
	}
	s.h.Timestamps().Delete(n.ID)
	if n.Baseline != nil {
		n.State = tree.StateDeleted
		n.Flags &^= tree.FlagImplicitDelete | tree.FlagImplicitAdd
		return nil
	}
	if n.IsDir() {
		kids, err := s.t.Children(n.ID)
		if err != nil {
			return err
		}
		for _, c := range kids {
			if _, ok := s.t.Node(c.BaselineParent); ok {
				if err := s.t.Move(c.ID, c.BaselineParent); err != nil {
					return err
				}
			}
		}
	}
	s.t.Drop(n.ID)
	return nil
}

// Move moves every source into the directory dst, on disk and in the
// tree. The checks run in a fixed order before anything is moved.
func (w *WorkingCopy) Move(srcs []string, dst string, ignoreWarnings bool) (err error) {
	s, err := w.begin("move")
	if err != nil {
		return err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeRefresh); err != nil {
		return err
	}
	var nodes []*tree.Node
	for _, it := range srcs {
		rel, err := filter.CleanPath(it)
		if err != nil {
			return err
		}
		n, err := s.lookupTracked(rel)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	dstRel, err := filter.CleanPath(dst)
	if err != nil {
		return err
	}
	d, err := s.lookupTracked(dstRel)
	if err != nil {
		return err
	}
	if !d.IsDir() {
		return wcerr.New(wcerr.KindNotADirectory, dstRel, "")
	}
	for i, n := range nodes {
		if n.Parent == d.ID {
			return wcerr.New(wcerr.KindCannotMoveIntoCurrentParent, srcs[i], "")
		}
		if s.t.IsAncestor(n.ID, d.ID) {
			return wcerr.New(wcerr.KindCannotMoveIntoOwnSubtree, srcs[i], "")
		}
	}
	seen := map[string]bool{}
	var candidates []string
	for _, n := range nodes {
		name := n.Name()
		target := join(dstRel, name)
		if seen[name] {
			return wcerr.New(wcerr.KindObjectAlreadyExists, target, "two sources share a name")
		}
		seen[name] = true
		sib, err := s.t.ChildNamed(d.ID, name)
		if err != nil {
			return err
		}
		if (sib != nil && sib.OnDisk()) || w.fs.Exists(w.fs.Abs(target)) {
			return wcerr.New(wcerr.KindObjectAlreadyExists, target, "")
		}
		candidates = append(candidates, name)
	}
	existing, err := s.siblingNames(d.ID, "")
	if err != nil {
		return err
	}
	if ws := w.analyzer.CheckDir(dstRel, existing, candidates); len(ws) > 0 && !(ignoreWarnings || w.cfg.Portability.IgnoreWarnings) {
		return wcerr.WithIssues(wcerr.KindPortabilityWarning, fmt.Sprintf("%d names are not portable", len(ws)), warningIssues(ws))
	}

	for _, n := range nodes {
		from, err := s.t.CurrentPath(n.ID)
		if err != nil {
			return err
		}
		to := join(dstRel, n.Name())
		if err := w.fs.Rename(w.fs.Abs(from), w.fs.Abs(to)); err != nil {
			if serr := s.save(); serr != nil {
				return errors.Join(err, serr)
			}
			return fmt.Errorf("failed to move %s: %w", from, err)
		}
		if err := s.t.Move(n.ID, d.ID); err != nil {
			return err
		}
	}
	return s.save()
}

// Rename gives the entry at item a new name in the same directory.
func (w *WorkingCopy) Rename(item, newName string, ignoreWarnings bool) (err error) {
	s, err := w.begin("rename")
	if err != nil {
		return err
	}
	defer s.release(&err)

	if err := s.scanAll(scan.ModeRefresh); err != nil {
		return err
	}
	rel, err := filter.CleanPath(item)
	if err != nil {
		return err
	}
	n, err := s.lookupTracked(rel)
	if err != nil {
		return err
	}
	if n.ID == s.t.RootID() {
		return wcerr.New(wcerr.KindInvalidObjectType, rel, "cannot rename the working-copy root")
	}
	if newName == "" || newName == "." || newName == ".." || strings.ContainsAny(newName, `/\`) {
		return wcerr.Newf(wcerr.KindInvalidObjectType, rel, "invalid name %q", newName)
	}
	if newName == n.Name() {
		return nil
	}
	dirRel, err := s.t.CurrentPath(n.Parent)
	if err != nil {
		return err
	}
	target := join(dirRel, newName)
	sib, err := s.t.ChildNamed(n.Parent, newName)
	if err != nil {
		return err
	}
	if sib != nil && sib != n && sib.OnDisk() {
		return wcerr.New(wcerr.KindObjectAlreadyExists, target, "")
	}
	existing, err := s.siblingNames(n.Parent, n.ID)
	if err != nil {
		return err
	}
	if w.caseInsensitive {
		for _, name := range existing {
			if strings.EqualFold(name, newName) {
				return wcerr.Newf(wcerr.KindNotImplemented, target, "differs from %q only by case on a case-insensitive filesystem", name)
			}
		}
	}
	caseOnly := strings.EqualFold(newName, n.Name())
	if w.fs.Exists(w.fs.Abs(target)) && !(w.caseInsensitive && caseOnly) {
		return wcerr.New(wcerr.KindObjectAlreadyExists, target, "")
	}
	if ws := w.analyzer.CheckDir(dirRel, existing, []string{newName}); len(ws) > 0 && !(ignoreWarnings || w.cfg.Portability.IgnoreWarnings) {
		return wcerr.WithIssues(wcerr.KindPortabilityWarning, fmt.Sprintf("%d names are not portable", len(ws)), warningIssues(ws))
	}

	if err := w.fs.Rename(w.fs.Abs(rel), w.fs.Abs(target)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", rel, err)
	}
	n.SetName(newName)
	return s.save()
}

// siblingNames lists the tracked, present children of dir except skip.
func (s *session) siblingNames(dir tree.ID, skip tree.ID) ([]string, error) {
	kids, err := s.t.Children(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range kids {
		if c.ID != skip && c.IsTracked() && c.OnDisk() {
			out = append(out, c.Name())
		}
	}
	return out, nil
}
