// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package reconcile

import (
	"fmt"
	"os"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/attrs"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/metrics"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"go.uber.org/zap"
)

// Recorder receives every executed action together with its outcome.
type Recorder interface {
	Record(seq int, a Action, outcome error) error
}

// StampInvalidator drops cached content stamps of rewritten files.
type StampInvalidator interface {
	Delete(id string)
}

// ApplyOptions are the collaborators used while executing a plan. All of
// them may be nil.
type ApplyOptions struct {
	Attrs    attrs.Store
	Stamps   StampInvalidator
	Recorder Recorder
}

// Apply executes the actions in order and then brings the tree in line
// with the new layout. Execution stops at the first failing action; the
// tree is left untouched in that case and parked entries stay parked.
func (p *Plan) Apply(opts ApplyOptions) error {
	start := time.Now()
	for i, a := range p.Actions {
		err := p.execute(a, opts)
		metrics.RecordPlanAction(a.Kind.String(), err == nil)
		if opts.Recorder != nil {
			if rerr := opts.Recorder.Record(i, a, err); rerr != nil && logservice.LS != nil {
				_ = logservice.LS.Log("warning", fmt.Sprintf("Failed to journal action %d: %v", i, rerr), "reconcile", p.Operation)
			}
		}
		if err != nil {
			if logservice.LS != nil {
				_ = logservice.LS.Log(
					"error",
					fmt.Sprintf("Action %d (%s) failed: %v", i, a.Kind, err),
					"reconcile",
					p.Operation,
					zap.String("from", a.From),
					zap.String("to", a.To),
				)
			}
			return fmt.Errorf("failed to %s %s: %w", a.Kind, p.Display(firstNonEmpty(a.From, a.To)), err)
		}
	}
	p.clearParking()
	if err := p.finalize(); err != nil {
		return err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log(
			"info",
			fmt.Sprintf("Applied %d actions in %s", len(p.Actions), time.Since(start).Round(time.Millisecond)),
			"reconcile",
			p.Operation,
		)
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (p *Plan) execute(a Action, opts ApplyOptions) error {
	switch a.Kind {
	case ActPark:
		if err := os.MkdirAll(p.parking, 0o755); err != nil {
			return err
		}
		if err := p.fs.Rename(a.From, a.To); err != nil {
			return err
		}
		metrics.RecordParked()
		return nil
	case ActDisplace, ActMove, ActBackup:
		return p.fs.Rename(a.From, a.To)
	case ActMkdir:
		return p.fs.CreateFolder(a.To)
	case ActWrite:
		data, err := p.store.FetchBlob(a.Hash)
		if err != nil {
			return err
		}
		if err := p.fs.WriteFile(a.To, a.EntryKind, data); err != nil {
			return err
		}
		if opts.Stamps != nil {
			opts.Stamps.Delete(a.ID)
		}
		return nil
	case ActAttrs:
		if opts.Attrs == nil {
			return nil
		}
		xattrs, err := objstore.FetchXAttrs(p.store, a.XAttrHash)
		if err != nil {
			return err
		}
		return opts.Attrs.Apply(a.To, a.EntryKind, a.Attrs, xattrs)
	case ActDelete:
		if err := p.fs.Remove(a.From); err != nil {
			return err
		}
		if opts.Stamps != nil {
			opts.Stamps.Delete(a.ID)
		}
		return nil
	case ActRmdir:
		err := p.fs.Remove(a.From)
		if err == nil {
			return nil
		}
		if left, lerr := os.ReadDir(a.From); lerr == nil && len(left) > 0 {
			// Only ignored content can remain; it is left on disk.
			if logservice.LS != nil {
				_ = logservice.LS.Log(
					"warning",
					fmt.Sprintf("Left %s in place: it still holds %d untracked entries", p.Display(a.From), len(left)),
					"reconcile",
					p.Operation,
				)
			}
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown action kind %s", a.Kind)
}

func (p *Plan) clearParking() {
	if p.parking == "" {
		return
	}
	if err := os.Remove(p.parking); err != nil && !os.IsNotExist(err) && logservice.LS != nil {
		_ = logservice.LS.Log("warning", fmt.Sprintf("Parking area %s not empty: %v", p.parking, err), "reconcile", p.Operation)
	}
}

// finalize records the new layout in the tree: nodes are attached to
// their target parents first, then given their new baselines, and
// dropped nodes go last. Transient flags are cleared everywhere.
func (p *Plan) finalize() error {
	t := p.t
	for _, f := range p.finals {
		if f.drop {
			continue
		}
		parent := f.current.Parent
		n, ok := t.Node(f.id)
		if !ok {
			n = &tree.Node{ID: f.id, Kind: f.kind}
			if f.baseline != nil {
				n.Baseline = f.baseline.Descriptor()
				n.BaselineParent = f.baseline.Parent
			}
			if err := t.AddChild(parent, n); err != nil {
				return err
			}
			if n.IsDir() {
				// Every child of a new directory is itself part of the plan.
				t.MarkLoaded(f.id)
			}
			continue
		}
		if n.Parent != parent {
			if err := t.Move(f.id, parent); err != nil {
				return err
			}
		}
	}
	for _, f := range p.finals {
		if f.drop {
			continue
		}
		n, _ := t.Node(f.id)
		if f.baseline != nil {
			t.SetBaseline(f.id, f.baseline.Descriptor(), f.baseline.Parent)
		} else {
			t.SetBaseline(f.id, nil, "")
		}
		n.SetCurrent(*f.current.Descriptor())
		n.State = f.state
		n.Flags = f.flags &^ tree.TransientFlags
	}
	for _, f := range p.finals {
		if f.drop {
			t.Drop(f.id)
		}
	}
	for _, n := range t.Nodes() {
		n.Flags &^= tree.TransientFlags
	}
	if p.post != nil {
		return p.post(t)
	}
	return nil
}
