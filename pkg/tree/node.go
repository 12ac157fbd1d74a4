// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package tree

import (
	"fmt"

	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/google/uuid"
)

// ID identifies an entry across every snapshot it appears in.
type ID = string

// NewID generates an id for an entry that has never been tracked.
func NewID() ID {
	return uuid.New().String()
}

// Descriptor is the part of an entry that can differ between the
// baseline and the working copy.
type Descriptor struct {
	Name      string            `json:"name"`
	Hash      objstore.Hash     `json:"hash,omitempty"`
	Attrs     objstore.AttrBits `json:"attrs,omitempty"`
	XAttrHash objstore.Hash     `json:"xattr_hash,omitempty"`
}

// State is the primary classification of a node. Exactly one applies.
type State uint8

const (
	StateNormal  State = iota // tracked and present (possibly modified)
	StateAdded                // scheduled for addition
	StateFound                // untracked entry seen on disk
	StateDeleted              // scheduled for removal, gone from disk
	StateLost                 // tracked but missing from disk
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateAdded:
		return "added"
	case StateFound:
		return "found"
	case StateDeleted:
		return "deleted"
	case StateLost:
		return "lost"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Flags are transient markers that modify traversal and scope.
type Flags uint8

const (
	FlagCommitting Flags = 1 << iota
	FlagReverting
	FlagImplicitDelete
	FlagImplicitAdd
	FlagParkedForCycle
)

// TransientFlags are stripped when an operation finalizes.
const TransientFlags = FlagCommitting | FlagReverting | FlagParkedForCycle

// Node is one entry of the working tree.
type Node struct {
	ID             ID
	Kind           objstore.Kind
	Baseline       *Descriptor // nil for entries created since the baseline
	BaselineParent ID          // parent in the baseline; set whenever Baseline is
	Override       *Descriptor // nil means identical to Baseline
	Parent         ID          // current parent; "" only for the root
	State          State
	Flags          Flags

	children map[ID]struct{}
	loaded   bool
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == objstore.KindDirectory
}

// Current returns the effective descriptor.
func (n *Node) Current() Descriptor {
	if n.Override != nil {
		return *n.Override
	}
	if n.Baseline != nil {
		return *n.Baseline
	}
	return Descriptor{}
}

// Name returns the current name.
func (n *Node) Name() string {
	return n.Current().Name
}

// Hash returns the current content hash.
func (n *Node) Hash() objstore.Hash {
	return n.Current().Hash
}

// IsTracked reports whether the node takes part in commits.
func (n *Node) IsTracked() bool {
	return n.State != StateFound
}

// OnDisk reports whether the entry is expected to exist on disk.
func (n *Node) OnDisk() bool {
	return n.State != StateDeleted && n.State != StateLost
}

// IsMoved reports whether the node's current parent differs from its
// baseline parent.
func (n *Node) IsMoved() bool {
	return n.Baseline != nil && n.Parent != n.BaselineParent
}

// IsRenamed reports whether the current name differs from the baseline name.
func (n *Node) IsRenamed() bool {
	return n.Baseline != nil && n.Override != nil && n.Override.Name != n.Baseline.Name
}

// IsModified reports whether the content hash differs from the baseline.
// Directory hashes are derived and never count.
func (n *Node) IsModified() bool {
	return n.Baseline != nil && n.Override != nil && !n.IsDir() && n.Override.Hash != n.Baseline.Hash
}

// AttrsChanged reports whether the attribute bits differ from the baseline.
func (n *Node) AttrsChanged() bool {
	return n.Baseline != nil && n.Override != nil && n.Override.Attrs != n.Baseline.Attrs
}

// XAttrsChanged reports whether the xattr hash differs from the baseline.
func (n *Node) XAttrsChanged() bool {
	return n.Baseline != nil && n.Override != nil && n.Override.XAttrHash != n.Baseline.XAttrHash
}

// IsDirtySelf reports whether the node itself (not its subtree) differs
// from the baseline.
func (n *Node) IsDirtySelf() bool {
	return n.State != StateNormal || n.Override != nil || n.IsMoved() || n.Flags != 0
}

// setCurrent installs d as the current descriptor, dropping the override
// when it equals the baseline.
func (n *Node) setCurrent(d Descriptor) {
	if n.Baseline == nil {
		n.Override = &d
		return
	}
	cmp := d
	if n.IsDir() {
		cmp.Hash = n.Baseline.Hash
	}
	if cmp == *n.Baseline {
		n.Override = nil
		return
	}
	n.Override = &d
}

// SetCurrent replaces every current field at once.
func (n *Node) SetCurrent(d Descriptor) {
	n.setCurrent(d)
}

// SetName changes the current name.
func (n *Node) SetName(name string) {
	d := n.Current()
	d.Name = name
	n.setCurrent(d)
}

// SetContent records a freshly observed content hash.
func (n *Node) SetContent(h objstore.Hash) {
	d := n.Current()
	d.Hash = h
	n.setCurrent(d)
}

// SetAttrs records freshly observed attribute bits.
func (n *Node) SetAttrs(a objstore.AttrBits) {
	d := n.Current()
	d.Attrs = a
	n.setCurrent(d)
}

// SetXAttrHash records a freshly observed xattr hash.
func (n *Node) SetXAttrHash(h objstore.Hash) {
	d := n.Current()
	d.XAttrHash = h
	n.setCurrent(d)
}

// ClearOverride reverts every current field to the baseline.
func (n *Node) ClearOverride() {
	n.Override = nil
}
