// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package tree

import (
	"fmt"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
)

// CurrentPath composes the repo-relative path of id from current names
// and parents. The root is "".
func (t *Tree) CurrentPath(id ID) (string, error) {
	var parts []string
	for cur := id; cur != t.rootID; {
		n, ok := t.nodes[cur]
		if !ok {
			return "", fmt.Errorf("tree: ancestor %s of %s is not loaded", cur, id)
		}
		if n.Parent == "" {
			return "", fmt.Errorf("tree: node %s is detached", cur)
		}
		parts = append(parts, n.Name())
		cur = n.Parent
	}
	reverse(parts)
	return strings.Join(parts, "/"), nil
}

// OriginalPath composes the baseline path of id from baseline names and
// baseline parents.
func (t *Tree) OriginalPath(id ID) (string, error) {
	var parts []string
	for cur := id; cur != t.rootID; {
		n, ok := t.nodes[cur]
		if !ok {
			// A baseline parent that cannot be resolved means the pending
			// tree is corrupt.
			panic(fmt.Sprintf("tree: dangling baseline parent %s while resolving %s", cur, id))
		}
		if n.Baseline == nil {
			return "", wcerr.New(wcerr.KindNotFound, id, "entry has no baseline")
		}
		parts = append(parts, n.Baseline.Name)
		cur = n.BaselineParent
	}
	reverse(parts)
	return strings.Join(parts, "/"), nil
}

// Lookup resolves a repo-relative path through current names.
func (t *Tree) Lookup(relPath string) (*Node, error) {
	relPath = strings.Trim(relPath, "/")
	cur := t.Root()
	if relPath == "" || relPath == "." {
		return cur, nil
	}
	for _, part := range strings.Split(relPath, "/") {
		if !cur.IsDir() {
			return nil, wcerr.New(wcerr.KindNotADirectory, relPath, "path crosses a non-directory")
		}
		next, err := t.ChildNamed(cur.ID, part)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, wcerr.New(wcerr.KindNotFound, relPath, "")
		}
		cur = next
	}
	return cur, nil
}

// LookupOriginal resolves a repo-relative path through baseline names. It
// finds entries that have since been moved or renamed away.
func (t *Tree) LookupOriginal(relPath string) (*Node, error) {
	relPath = strings.Trim(relPath, "/")
	cur := t.Root()
	if relPath == "" || relPath == "." {
		return cur, nil
	}
	for _, part := range strings.Split(relPath, "/") {
		if !cur.IsDir() {
			return nil, wcerr.New(wcerr.KindNotADirectory, relPath, "path crosses a non-directory")
		}
		if err := t.LoadChildren(cur.ID); err != nil {
			return nil, err
		}
		var next *Node
		for _, n := range t.nodes {
			if n.Baseline != nil && n.BaselineParent == cur.ID && n.Baseline.Name == part {
				next = n
				break
			}
		}
		if next == nil {
			return nil, wcerr.New(wcerr.KindNotFound, relPath, "")
		}
		cur = next
	}
	return cur, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
