// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package portability

import (
	"fmt"
	"sort"
	"strings"
)

// Collision records that a name is unsafe next to another name.
type Collision struct {
	With    string
	Reasons Flags
}

// Result is the finding for one name added to a Checker.
type Result struct {
	Name       string
	Flags      Flags // per-name flags plus every collision reason
	Collisions []Collision
}

func (r Result) String() string {
	if len(r.Collisions) == 0 {
		return fmt.Sprintf("%q: %s", r.Name, r.Flags)
	}
	parts := make([]string, 0, len(r.Collisions))
	for _, c := range r.Collisions {
		parts = append(parts, fmt.Sprintf("%q (%s)", c.With, c.Reasons))
	}
	return fmt.Sprintf("%q: %s; collides with %s", r.Name, r.Flags, strings.Join(parts, ", "))
}

type checkEntry struct {
	seq        int
	name       string
	interested bool
	flags      Flags
	collisions []Collision
}

// Checker is a per-directory collision index. Names added with
// interested=false only serve as collision partners and are never
// reported themselves.
type Checker struct {
	entries []*checkEntry
	index   [levelCount]map[string]*checkEntry
	reasons map[*checkEntry][levelCount]Flags
	paired  map[[2]int]bool
}

// NewChecker returns an empty directory checker.
func NewChecker() *Checker {
	c := &Checker{
		reasons: make(map[*checkEntry][levelCount]Flags),
		paired:  make(map[[2]int]bool),
	}
	for i := range c.index {
		c.index[i] = make(map[string]*checkEntry)
	}
	return c
}

// Add inserts name into every key index of the directory.
func (c *Checker) Add(name string, interested bool) {
	e := &checkEntry{seq: len(c.entries), name: name, interested: interested}
	if interested {
		e.flags = CheckName(name)
	}
	c.entries = append(c.entries, e)

	keys, reasons, ok := reduce(name)
	c.reasons[e] = reasons
	for lvl := levelExact; lvl < levelCount; lvl++ {
		if !ok[lvl] {
			continue
		}
		first, taken := c.index[lvl][keys[lvl]]
		if !taken {
			c.index[lvl][keys[lvl]] = e
			continue
		}
		pair := [2]int{first.seq, e.seq}
		if c.paired[pair] {
			continue
		}
		c.paired[pair] = true

		why := reasons[lvl] | c.reasons[first][lvl]
		if lvl == levelExact {
			why = FlagCollisionExact
		}
		if why == 0 {
			// Same key reached without any transformation means an
			// identical name at a deeper level; report it as exact.
			why = FlagCollisionExact
		}
		e.collisions = append(e.collisions, Collision{With: first.name, Reasons: why})
		e.flags |= why
		first.collisions = append(first.collisions, Collision{With: name, Reasons: why})
		first.flags |= why
	}
}

// Results returns findings for interested names that raised any flag
// outside ignore, in insertion order.
func (c *Checker) Results(ignore Flags) []Result {
	var out []Result
	for _, e := range c.entries {
		if !e.interested {
			continue
		}
		flags := e.flags &^ ignore
		if flags == 0 {
			continue
		}
		res := Result{Name: e.name, Flags: flags}
		for _, col := range e.collisions {
			if col.Reasons&^ignore == 0 {
				continue
			}
			res.Collisions = append(res.Collisions, Collision{With: col.With, Reasons: col.Reasons &^ ignore})
		}
		out = append(out, res)
	}
	return out
}

// Warning is a Result located in a directory.
type Warning struct {
	Dir string // repo-relative directory, "" for the root
	Result
}

// Path joins the directory and the name.
func (w Warning) Path() string {
	if w.Dir == "" {
		return w.Result.Name
	}
	return w.Dir + "/" + w.Result.Name
}

func (w Warning) String() string {
	if w.Dir == "" {
		return w.Result.String()
	}
	return w.Dir + "/" + w.Result.String()
}

// Analyzer applies a configured ignore mask to directory-level checks.
type Analyzer struct {
	Ignore Flags
}

// CheckDir checks the names that will coexist in one directory. existing
// names are collision partners only; candidates are reported.
func (a Analyzer) CheckDir(dir string, existing, candidates []string) []Warning {
	c := NewChecker()
	for _, n := range existing {
		c.Add(n, false)
	}
	for _, n := range candidates {
		c.Add(n, true)
	}
	var out []Warning
	for _, r := range c.Results(a.Ignore) {
		out = append(out, Warning{Dir: dir, Result: r})
	}
	if a.Ignore&FlagPathTooLong == 0 {
		for _, n := range candidates {
			rel := n
			if dir != "" {
				rel = dir + "/" + n
			}
			if CheckPath(rel) != 0 {
				out = appendFlag(out, dir, n, FlagPathTooLong)
			}
		}
	}
	return out
}

// CheckSymlink reports the portability hazard of a symlink at relPath.
func (a Analyzer) CheckSymlink(dir, name string) []Warning {
	if a.Ignore&FlagSymlink != 0 {
		return nil
	}
	return []Warning{{Dir: dir, Result: Result{Name: name, Flags: FlagSymlink}}}
}

func appendFlag(ws []Warning, dir, name string, f Flags) []Warning {
	for i := range ws {
		if ws[i].Dir == dir && ws[i].Name == name {
			ws[i].Flags |= f
			return ws
		}
	}
	return append(ws, Warning{Dir: dir, Result: Result{Name: name, Flags: f}})
}

// SortWarnings orders warnings by path for stable reporting.
func SortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		return ws[i].Path() < ws[j].Path()
	})
}
