// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/db/etl"
	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
)

// Entry is one changed item of a status report.
type Entry struct {
	ID      tree.ID
	Path    string
	OldPath string // baseline path when moved or renamed
	Kind    objstore.Kind
	Class   diff.Class
	Mods    diff.Mods
	Hash    objstore.Hash
	OldHash objstore.Hash
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Class.String())
	if e.Mods != 0 {
		b.WriteString("+")
		b.WriteString(e.Mods.String())
	}
	b.WriteString(" ")
	b.WriteString(e.Path)
	if e.OldPath != "" {
		b.WriteString(" (was ")
		b.WriteString(e.OldPath)
		b.WriteString(")")
	}
	return b.String()
}

// Report is the result of Status.
type Report struct {
	Parents  []string
	Entries  []Entry // sorted by path
	Warnings []portability.Warning
	Stats    scan.Stats
}

// Clean reports whether nothing tracked differs from the baseline.
func (r *Report) Clean() bool {
	for _, e := range r.Entries {
		if e.Class != diff.ClassFound {
			return false
		}
	}
	return true
}

// Rows converts the report for export.
func (r *Report) Rows() []etl.StatusRow {
	warned := map[string][]string{}
	for _, w := range r.Warnings {
		warned[w.Path()] = append(warned[w.Path()], w.Flags.String())
	}
	rows := make([]etl.StatusRow, len(r.Entries))
	for i, e := range r.Entries {
		rows[i] = etl.StatusRow{
			ID:       e.ID,
			Path:     e.Path,
			OldPath:  e.OldPath,
			Kind:     e.Kind.String(),
			Class:    e.Class.String(),
			Mods:     e.Mods.String(),
			Hash:     string(e.Hash),
			OldHash:  string(e.OldHash),
			Warnings: strings.Join(warned[e.Path], ";"),
		}
	}
	return rows
}

// Status scans the selection and reports how it differs from the
// baseline. Untracked entries are reported as found. Refreshed
// timestamps are persisted.
func (w *WorkingCopy) Status(sel Selection) (rep *Report, err error) {
	s, err := w.begin("status")
	if err != nil {
		return nil, err
	}
	defer s.release(&err)

	f, err := w.filterFor(sel)
	if err != nil {
		return nil, err
	}
	stats, err := s.scan(scan.ModeReportFound, f)
	if err != nil {
		return nil, err
	}
	entries, err := s.report(f)
	if err != nil {
		return nil, err
	}
	rep = &Report{
		Parents:  append([]string(nil), s.state.Parents...),
		Entries:  entries,
		Warnings: s.t.Warnings(),
		Stats:    stats,
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return rep, nil
}

// report lists the changed entries of the tree that f covers on either
// their current or their baseline path.
func (s *session) report(f *filter.Filter) ([]Entry, error) {
	var out []Entry
	for _, de := range diff.WorkingCopy(s.t) {
		p, err := s.t.CurrentPath(de.ID)
		if err != nil {
			return nil, err
		}
		e := Entry{ID: de.ID, Path: p, Kind: de.Kind, Class: de.Class, Mods: de.Mods}
		if de.New != nil {
			e.Hash = de.New.Hash
		}
		if de.Old != nil {
			e.OldHash = de.Old.Hash
			if de.Mods&diff.Structural != 0 {
				if e.OldPath, err = s.t.OriginalPath(de.ID); err != nil {
					return nil, err
				}
			}
		}
		if !f.IsAll() && !covered(f, e.Path, de.Kind) && (e.OldPath == "" || !covered(f, e.OldPath, de.Kind)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// covered reports whether a tracked entry at p is in scope. Ignore
// patterns never apply to tracked entries.
func covered(f *filter.Filter, p string, kind objstore.Kind) bool {
	v := f.ShouldInclude(p, kind == objstore.KindDirectory)
	return v.InScope() || v == filter.ExplicitlyIgnored
}

// Summary is a one-line count of the report by class.
func (r *Report) Summary() string {
	counts := map[diff.Class]int{}
	for _, e := range r.Entries {
		counts[e.Class]++
	}
	return fmt.Sprintf("%d changed, %d added, %d deleted, %d lost, %d untracked",
		counts[diff.ClassNone], counts[diff.ClassAdded], counts[diff.ClassDeleted], counts[diff.ClassLost], counts[diff.ClassFound])
}
