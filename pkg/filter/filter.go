// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package filter decides which working-copy paths an operation applies to.
package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// IgnoreFileName is the per-working-copy ignore file at the root.
const IgnoreFileName = ".sylosignore"

// Verdict is the answer of ShouldInclude.
type Verdict int

const (
	// Maybe: the path itself is out of scope but a descendant may not be.
	Maybe Verdict = iota
	ExplicitlyIncluded
	ImplicitlyIncluded
	ExplicitlyExcluded
	ExplicitlyIgnored
)

func (v Verdict) String() string {
	switch v {
	case Maybe:
		return "maybe"
	case ExplicitlyIncluded:
		return "explicitly-included"
	case ImplicitlyIncluded:
		return "implicitly-included"
	case ExplicitlyExcluded:
		return "explicitly-excluded"
	case ExplicitlyIgnored:
		return "explicitly-ignored"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// InScope reports whether the operation applies to the path itself.
func (v Verdict) InScope() bool {
	return v == ExplicitlyIncluded || v == ImplicitlyIncluded
}

// Descend reports whether a walker should look below the path.
func (v Verdict) Descend() bool {
	return v == ExplicitlyIncluded || v == ImplicitlyIncluded || v == Maybe
}

// Options configures a Filter. An empty Items list means the whole tree.
type Options struct {
	Items     []string
	Recursive bool
	Include   []string
	Exclude   []string
	Ignore    []string
}

// Filter is the name-filter predicate shared by the scanner and the
// scope marking of commit, revert and update.
type Filter struct {
	items     []string
	all       bool
	recursive bool
	include   []pattern
	exclude   []pattern
	ignore    []pattern
}

// New compiles the options into a Filter.
func New(opts Options) (*Filter, error) {
	f := &Filter{recursive: opts.Recursive}
	if len(opts.Items) == 0 {
		f.all = true
	}
	for _, it := range opts.Items {
		clean, err := CleanPath(it)
		if err != nil {
			return nil, err
		}
		if clean == "" {
			f.all = true
			continue
		}
		f.items = append(f.items, clean)
	}
	var err error
	if f.include, err = compileAll(opts.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compileAll(opts.Exclude); err != nil {
		return nil, err
	}
	if f.ignore, err = compileAll(opts.Ignore); err != nil {
		return nil, err
	}
	return f, nil
}

// Everything returns a recursive filter over the whole tree.
func Everything() *Filter {
	return &Filter{all: true, recursive: true}
}

// Items returns the cleaned item list.
func (f *Filter) Items() []string {
	return f.items
}

// IsAll reports whether the filter names the whole tree recursively and
// has no patterns.
func (f *Filter) IsAll() bool {
	return f.all && f.recursive && len(f.items) == 0 && len(f.include) == 0 && len(f.exclude) == 0
}

// CleanPath turns a user supplied relative path into the slash separated
// form used throughout, "" being the root.
func CleanPath(p string) (string, error) {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if p == "." || p == "/" {
		return "", nil
	}
	p = strings.TrimPrefix(p, "/")
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q is outside the working copy", p)
	}
	return p, nil
}

// ShouldInclude classifies a repo-relative path.
func (f *Filter) ShouldInclude(relPath string, isDir bool) Verdict {
	v := f.itemVerdict(relPath)
	switch v {
	case ExplicitlyIncluded, Maybe:
		return v
	case ExplicitlyExcluded:
		return v
	}
	if matchAny(f.exclude, relPath, isDir) {
		return ExplicitlyExcluded
	}
	if len(f.include) > 0 && !isDir && !matchAny(f.include, relPath, isDir) {
		return ExplicitlyExcluded
	}
	if matchAny(f.ignore, relPath, isDir) {
		return ExplicitlyIgnored
	}
	return v
}

// Ignored reports whether an untracked path matches the ignore patterns.
func (f *Filter) Ignored(relPath string, isDir bool) bool {
	return matchAny(f.ignore, relPath, isDir)
}

func (f *Filter) itemVerdict(p string) Verdict {
	if f.all {
		if p == "" {
			return ExplicitlyIncluded
		}
		if f.recursive || !strings.Contains(p, "/") {
			return ImplicitlyIncluded
		}
		return ExplicitlyExcluded
	}
	v := ExplicitlyExcluded
	for _, it := range f.items {
		switch {
		case p == it:
			return ExplicitlyIncluded
		case isUnder(p, it):
			if f.recursive {
				v = ImplicitlyIncluded
			}
		case p == "" || isUnder(it, p):
			if v == ExplicitlyExcluded {
				v = Maybe
			}
		}
	}
	return v
}

func isUnder(p, dir string) bool {
	return dir == "" || strings.HasPrefix(p, dir+"/")
}

// Covers reports whether relPath is one of the items or lies below one
// when the filter is recursive.
func (f *Filter) Covers(relPath string) bool {
	return f.itemVerdict(relPath).InScope()
}

// ---------------- ignore patterns ----------------

type pattern struct {
	neg     bool
	dirOnly bool
	rx      *regexp.Regexp
}

func compileAll(globs []string) ([]pattern, error) {
	var out []pattern
	for _, g := range globs {
		p, ok, err := compile(g)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// compile translates one gitignore style line. Supported: '!' negation,
// leading '/' anchoring, trailing '/' for directories, '**', '*' and '?'.
func compile(line string) (pattern, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return pattern{}, false, nil
	}
	var p pattern
	if strings.HasPrefix(line, "!") {
		p.neg = true
		line = strings.TrimSpace(line[1:])
		if line == "" {
			return pattern{}, false, nil
		}
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	anchored := strings.HasPrefix(line, "/") || strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")

	esc := regexp.QuoteMeta(line)
	esc = strings.ReplaceAll(esc, `\*\*/`, "(.*/)?")
	esc = strings.ReplaceAll(esc, `\*\*`, ".*")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	expr := "(^|.*/)" + esc + "$"
	if anchored {
		expr = "^" + esc + "$"
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return pattern{}, false, fmt.Errorf("invalid pattern %q: %w", line, err)
	}
	p.rx = rx
	return p, true, nil
}

// matchAny applies the patterns in order; the last match wins.
func matchAny(pats []pattern, relPath string, isDir bool) bool {
	matched := false
	for _, p := range pats {
		if p.dirOnly && !isDir {
			continue
		}
		if p.rx.MatchString(relPath) {
			matched = !p.neg
		}
	}
	return matched
}

// LoadIgnoreFile reads patterns from an ignore file. A missing file yields
// no patterns.
func LoadIgnoreFile(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer f.Close()
	var out []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	return out, nil
}
