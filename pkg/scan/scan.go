// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package scan brings the working tree into agreement with the disk.
package scan

import (
	"fmt"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/attrs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/metrics"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
)

// Mode selects what happens to untracked entries.
type Mode int

const (
	// ModeRefresh only refreshes tracked entries.
	ModeRefresh Mode = iota
	// ModeReportFound records untracked entries as Found.
	ModeReportFound
	// ModeAdd schedules in-scope untracked entries for addition.
	ModeAdd
)

// StampCache is the persisted per-id timestamp side table.
type StampCache interface {
	Get(id string) (db.Stamp, bool)
	Put(id string, s db.Stamp)
	Delete(id string)
}

// Options configures one scan.
type Options struct {
	Mode            Mode
	Filter          *filter.Filter
	ImplicitDeletes bool
	Analyzer        portability.Analyzer
	WarnSymlinks    bool

	// Now is the clock used for the timestamp cache rule.
	Now func() time.Time
	// OnHash is called for every content hash actually computed.
	OnHash func(relPath string)
}

// Stats summarizes a scan.
type Stats struct {
	Visited   int
	Hashed    int
	CacheHits int
	Added     int
	Found     int
	Missing   int
}

// Scanner reconciles a tree with one working directory.
type Scanner struct {
	fs    fsservices.FSAdapter
	attrs attrs.Store
	cache StampCache
	opts  Options
	now   time.Time
	stats Stats
}

// New returns a scanner. attrStore and cache may be nil.
func New(fs fsservices.FSAdapter, attrStore attrs.Store, cache StampCache, opts Options) *Scanner {
	if opts.Filter == nil {
		opts.Filter = filter.Everything()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{fs: fs, attrs: attrStore, cache: cache, opts: opts}
}

// Scan walks the working directory from the root.
func (s *Scanner) Scan(t *tree.Tree) (Stats, error) {
	start := time.Now()
	s.now = s.opts.Now()
	s.stats = Stats{}
	if _, err := s.scanDir(t, t.Root(), ""); err != nil {
		return s.stats, err
	}
	metrics.RecordScan(time.Since(start))
	if logservice.LS != nil {
		_ = logservice.LS.Log(
			"debug",
			fmt.Sprintf("Scan visited %d entries, hashed %d, cache hits %d", s.stats.Visited, s.stats.Hashed, s.stats.CacheHits),
			"scan",
			t.RootID(),
		)
	}
	return s.stats, nil
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// verdict applies the filter; ignore patterns only concern untracked
// entries.
func (s *Scanner) verdict(rel string, isDir, tracked bool) filter.Verdict {
	v := s.opts.Filter.ShouldInclude(rel, isDir)
	if v == filter.ExplicitlyIgnored && tracked {
		return filter.ImplicitlyIncluded
	}
	return v
}

// scanDir reconciles the children of dir and reports whether any child
// ends up scheduled for addition.
func (s *Scanner) scanDir(t *tree.Tree, dir *tree.Node, rel string) (bool, error) {
	listing, err := s.fs.ListChildren(s.fs.Abs(rel))
	if err != nil {
		return false, fmt.Errorf("failed to list %q: %w", rel, err)
	}
	disk := listing.ByName()
	claimed := make(map[string]bool, len(disk))

	kids, err := t.Children(dir.ID)
	if err != nil {
		return false, err
	}
	for _, n := range kids {
		s.stats.Visited++
		name := n.Name()
		childRel := join(rel, name)
		e, present := disk[name]
		match := present && e.Kind == n.Kind && n.State != tree.StateDeleted
		if match {
			claimed[name] = true
		}

		v := s.verdict(childRel, n.IsDir(), n.IsTracked())
		switch {
		case v == filter.ExplicitlyExcluded:
			continue
		case v == filter.ExplicitlyIgnored:
			// Untracked and ignored.
			t.Drop(n.ID)
			continue
		case v == filter.Maybe:
			if !match || !n.IsDir() {
				continue
			}
			if n.State == tree.StateFound {
				if s.opts.Mode != ModeAdd {
					continue
				}
				n.State = tree.StateAdded
				n.Flags |= tree.FlagImplicitAdd
				s.stats.Added++
			}
			if err := s.descend(t, n, childRel); err != nil {
				return false, err
			}
			continue
		}

		switch n.State {
		case tree.StateDeleted:
			continue
		case tree.StateFound:
			if !match {
				t.Drop(n.ID)
				continue
			}
			if s.opts.Mode != ModeAdd {
				continue
			}
			n.State = tree.StateAdded
			s.stats.Added++
		default:
			if !match {
				if err := s.markMissing(t, n); err != nil {
					return false, err
				}
				continue
			}
			if n.State == tree.StateLost {
				n.State = tree.StateNormal
			}
		}
		if err := s.refresh(n, childRel, e); err != nil {
			return false, err
		}
		if n.IsDir() {
			if err := s.descend(t, n, childRel); err != nil {
				return false, err
			}
		}
	}

	var fresh []string
	if s.opts.Mode != ModeRefresh {
		for _, e := range listing.Entries {
			if claimed[e.Name] {
				continue
			}
			childRel := join(rel, e.Name)
			isDir := e.Kind == objstore.KindDirectory
			v := s.verdict(childRel, isDir, false)
			if v == filter.ExplicitlyExcluded || v == filter.ExplicitlyIgnored {
				continue
			}
			if v == filter.Maybe && (s.opts.Mode != ModeAdd || !isDir) {
				continue
			}
			n := &tree.Node{
				ID:       tree.NewID(),
				Kind:     e.Kind,
				Override: &tree.Descriptor{Name: e.Name},
				State:    tree.StateFound,
			}
			if s.opts.Mode == ModeAdd {
				n.State = tree.StateAdded
				if v == filter.Maybe {
					n.Flags |= tree.FlagImplicitAdd
				}
			}
			if err := t.AddChild(dir.ID, n); err != nil {
				return false, err
			}
			s.stats.Visited++
			if n.State == tree.StateFound {
				s.stats.Found++
				continue
			}
			s.stats.Added++
			fresh = append(fresh, e.Name)
			if err := s.refresh(n, childRel, e); err != nil {
				return false, err
			}
			if isDir {
				if err := s.descend(t, n, childRel); err != nil {
					return false, err
				}
			}
		}
	}
	if len(fresh) > 0 {
		if err := s.checkNames(t, dir, rel, fresh); err != nil {
			return false, err
		}
	}

	kids, err = t.Children(dir.ID)
	if err != nil {
		return false, err
	}
	for _, n := range kids {
		if n.State == tree.StateAdded {
			return true, nil
		}
	}
	return false, nil
}

// descend scans a present directory and downgrades an implicitly added
// directory that ended up adding nothing.
func (s *Scanner) descend(t *tree.Tree, n *tree.Node, rel string) error {
	added, err := s.scanDir(t, n, rel)
	if err != nil {
		return err
	}
	if n.Flags&tree.FlagImplicitAdd != 0 && !added {
		n.State = tree.StateFound
		n.Flags &^= tree.FlagImplicitAdd
		s.stats.Added--
	}
	return nil
}

// markMissing records that n and, for directories, everything below it
// is gone from disk.
func (s *Scanner) markMissing(t *tree.Tree, n *tree.Node) error {
	switch n.State {
	case tree.StateAdded, tree.StateFound:
		t.Drop(n.ID)
		if s.cache != nil {
			s.cache.Delete(n.ID)
		}
		return nil
	case tree.StateDeleted:
		return nil
	}
	s.stats.Missing++
	if s.opts.ImplicitDeletes {
		n.State = tree.StateDeleted
		n.Flags |= tree.FlagImplicitDelete
	} else {
		n.State = tree.StateLost
	}
	if !n.IsDir() {
		return nil
	}
	kids, err := t.Children(n.ID)
	if err != nil {
		return err
	}
	for _, c := range kids {
		if err := s.markMissing(t, c); err != nil {
			return err
		}
	}
	return nil
}

// refresh recomputes the observable fields of a present entry.
func (s *Scanner) refresh(n *tree.Node, rel string, e fsservices.Entry) error {
	abs := s.fs.Abs(rel)
	if s.attrs != nil {
		bits, xs, err := s.attrs.Read(abs, n.Kind)
		if err != nil {
			return err
		}
		xh, err := objstore.HashXAttrs(xs)
		if err != nil {
			return err
		}
		n.SetAttrs(bits)
		n.SetXAttrHash(xh)
	}
	switch n.Kind {
	case objstore.KindFile:
		h, err := s.contentHash(n, abs, rel, e)
		if err != nil {
			return err
		}
		n.SetContent(h)
	case objstore.KindSymlink:
		target, err := s.fs.ReadFile(abs, objstore.KindSymlink)
		if err != nil {
			return fmt.Errorf("failed to read link %q: %w", rel, err)
		}
		n.SetContent(objstore.ComputeHash(target))
	}
	return nil
}

// contentHash trusts the cached hash only when the observed modification
// time equals the cached one and the cache entry is at least one whole
// second old.
func (s *Scanner) contentHash(n *tree.Node, abs, rel string, e fsservices.Entry) (objstore.Hash, error) {
	mtime := e.ModTime.UnixNano()
	if s.cache != nil && n.Hash() != "" {
		if st, ok := s.cache.Get(n.ID); ok &&
			st.MTime == mtime && st.Size == e.Size &&
			s.now.Sub(time.Unix(0, st.Written)) >= time.Second {
			s.stats.CacheHits++
			metrics.RecordHashCacheHit()
			return n.Hash(), nil
		}
	}
	data, err := s.fs.ReadFile(abs, objstore.KindFile)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", rel, err)
	}
	h := objstore.ComputeHash(data)
	if s.cache != nil {
		s.cache.Put(n.ID, db.Stamp{MTime: mtime, Written: s.now.UnixNano(), Size: e.Size})
	}
	s.stats.Hashed++
	metrics.RecordHashComputation()
	if s.opts.OnHash != nil {
		s.opts.OnHash(rel)
	}
	return h, nil
}

// checkNames runs the name-safety analyzer over newly added names.
func (s *Scanner) checkNames(t *tree.Tree, dir *tree.Node, rel string, fresh []string) error {
	isFresh := make(map[string]bool, len(fresh))
	for _, n := range fresh {
		isFresh[n] = true
	}
	kids, err := t.Children(dir.ID)
	if err != nil {
		return err
	}
	var existing, candidates []string
	for _, c := range kids {
		switch {
		case isFresh[c.Name()] && c.State == tree.StateAdded:
			candidates = append(candidates, c.Name())
		case c.IsTracked() && c.OnDisk():
			existing = append(existing, c.Name())
		}
	}
	ws := s.opts.Analyzer.CheckDir(rel, existing, candidates)
	if s.opts.WarnSymlinks {
		for _, c := range kids {
			if isFresh[c.Name()] && c.State == tree.StateAdded && c.Kind == objstore.KindSymlink {
				ws = append(ws, s.opts.Analyzer.CheckSymlink(rel, c.Name())...)
			}
		}
	}
	for _, w := range ws {
		metrics.RecordPortabilityWarning(w.Flags.Names())
	}
	t.Warn(ws...)
	return nil
}
