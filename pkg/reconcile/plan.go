// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package reconcile moves a working copy from its current layout to a
// target layout: back onto its baseline (revert) or onto another
// snapshot (update). Planning never touches the disk; Apply executes the
// planned actions in order.
package reconcile

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/pmezard/go-difflib/difflib"
)

// ActionKind is the type of one disk mutation.
type ActionKind uint8

const (
	ActPark     ActionKind = iota + 1 // move an entry into the parking lot
	ActDisplace                       // rename an untracked occupant to a backup name
	ActMkdir                          // create a directory
	ActMove                           // rename or move an entry, possibly out of the parking lot
	ActBackup                         // move a user edit aside before overwriting it
	ActWrite                          // write file or symlink content from the object store
	ActAttrs                          // apply attribute bits and extended attributes
	ActDelete                         // remove a file or symlink
	ActRmdir                          // remove an empty directory
)

var actionNames = map[ActionKind]string{
	ActPark:     "park",
	ActDisplace: "displace",
	ActMkdir:    "mkdir",
	ActMove:     "move",
	ActBackup:   "backup",
	ActWrite:    "write",
	ActAttrs:    "attrs",
	ActDelete:   "delete",
	ActRmdir:    "rmdir",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// Action is one step of a plan. Paths are absolute; From is empty for
// creations and To is empty for removals.
type Action struct {
	Kind      ActionKind
	ID        tree.ID
	EntryKind objstore.Kind
	From      string
	To        string
	Hash      objstore.Hash
	Attrs     objstore.AttrBits
	XAttrHash objstore.Hash

	// Before is where the overwritten content lives while the plan is
	// unapplied; used for content previews.
	Before string
}

// final is the tree state of one id once every action has run.
type final struct {
	id       tree.ID
	kind     objstore.Kind
	drop     bool
	baseline *diff.Item // nil: the node has no baseline
	current  *diff.Item // position and content after the operation
	state    tree.State
	flags    tree.Flags
}

// Plan is the ordered list of actions of one reconciliation.
type Plan struct {
	Operation string
	Actions   []Action
	Warnings  []portability.Warning

	parking string
	finals  []final
	fs      fsservices.FSAdapter
	store   objstore.Store
	t       *tree.Tree
	post    func(t *tree.Tree) error
}

// Empty reports whether applying the plan would touch the disk.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Parking returns the scratch directory the plan parks entries in.
func (p *Plan) Parking() string {
	return p.parking
}

// Count returns the number of actions of kind k.
func (p *Plan) Count(k ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// RenderOptions controls Render.
type RenderOptions struct {
	// Previews adds a unified diff for every write that replaces existing
	// text content.
	Previews bool
	// MaxPreviewBytes skips previews of larger files; 0 means 64 KiB.
	MaxPreviewBytes int
}

// Display turns an absolute path into the form shown to users.
func (p *Plan) Display(abs string) string {
	if abs == "" {
		return ""
	}
	if p.parking != "" {
		if rel, err := relUnder(p.parking, abs); err == nil {
			return "<parking>/" + rel
		}
	}
	if p.fs == nil {
		return abs
	}
	rel, err := p.fs.Rel(abs)
	if err != nil {
		return abs
	}
	if rel == "" {
		return "."
	}
	return rel
}

// Lines returns one human-readable line per action.
func (p *Plan) Lines() []string {
	out := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		switch {
		case a.From != "" && a.To != "":
			out = append(out, fmt.Sprintf("%-8s %s -> %s", a.Kind, p.Display(a.From), p.Display(a.To)))
		case a.To != "":
			out = append(out, fmt.Sprintf("%-8s %s", a.Kind, p.Display(a.To)))
		default:
			out = append(out, fmt.Sprintf("%-8s %s", a.Kind, p.Display(a.From)))
		}
	}
	return out
}

// Render writes the action list, and optionally content previews, to w.
// The plan is not modified.
func (p *Plan) Render(w io.Writer, opts RenderOptions) error {
	if opts.MaxPreviewBytes <= 0 {
		opts.MaxPreviewBytes = 64 << 10
	}
	for _, w2 := range p.Warnings {
		if _, err := fmt.Fprintf(w, "warning  %s\n", w2); err != nil {
			return err
		}
	}
	lines := p.Lines()
	for i, a := range p.Actions {
		if _, err := fmt.Fprintln(w, lines[i]); err != nil {
			return err
		}
		if !opts.Previews || a.Kind != ActWrite || a.Before == "" || a.EntryKind != objstore.KindFile {
			continue
		}
		preview, err := p.preview(a, opts.MaxPreviewBytes)
		if err != nil || preview == "" {
			continue
		}
		if _, err := io.WriteString(w, preview); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) preview(a Action, limit int) (string, error) {
	before, err := p.fs.ReadFile(a.Before, objstore.KindFile)
	if err != nil {
		return "", err
	}
	after, err := p.store.FetchBlob(a.Hash)
	if err != nil {
		return "", err
	}
	if len(before) > limit || len(after) > limit || !isText(before) || !isText(after) {
		return "", nil
	}
	name := p.Display(a.To)
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: name + " (working)",
		ToFile:   name + " (" + p.Operation + ")",
		Context:  3,
	})
}

func isText(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0) < 0
}
