// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package workingcopy implements the user-facing operations on a working
// copy: init, status, add, remove, move, rename, commit, revert, update
// and log. Every operation holds the pending-state lock from load to save.
package workingcopy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/attrs"
	"github.com/Project-Sylos/Sylos-VC/pkg/configs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/filter"
	"github.com/Project-Sylos/Sylos-VC/pkg/fsservices"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/portability"
	"github.com/Project-Sylos/Sylos-VC/pkg/tree"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/google/uuid"
)

// StateFile is the pending-state database inside the control directory.
const StateFile = "wc.db"

// WorkingCopy is an open working copy. It is not safe for concurrent use;
// separate processes are serialized by the pending-state lock.
type WorkingCopy struct {
	root            string
	cfg             *configs.Config
	store           objstore.Store
	fs              fsservices.FSAdapter
	attrs           attrs.Store
	analyzer        portability.Analyzer
	caseInsensitive bool

	// Now is the clock used by scans and changeset timestamps.
	Now func() time.Time
	// OnHash is called for every file whose content hash is recomputed.
	OnHash func(relPath string)
}

// Selection narrows an operation to part of the tree. The zero value
// selects everything.
type Selection struct {
	Items     []string // repo-relative paths; empty means the whole tree
	NoRecurse bool
	Include   []string
	Exclude   []string

	// IgnoreWarnings keeps portability warnings from failing the operation.
	IgnoreWarnings bool
}

// StatePath returns the pending-state database of the working copy at root.
func StatePath(root string) string {
	return filepath.Join(root, configs.ControlDir, StateFile)
}

// Init turns root into an empty working copy: the control directory, the
// default configuration and a first changeset holding an empty root
// directory.
func Init(root string) (*WorkingCopy, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(StatePath(abs)); err == nil {
		return nil, wcerr.New(wcerr.KindAlreadyUnderVersionControl, abs, "already a working copy")
	}
	if err := configs.Save(abs, configs.Default()); err != nil {
		return nil, err
	}
	w, err := open(abs)
	if err != nil {
		return nil, err
	}

	h, _, err := db.Begin(StatePath(abs), 0)
	if err != nil {
		w.Close()
		return nil, err
	}
	rootHash, err := w.store.PutTree(nil)
	if err != nil {
		h.Abort()
		w.Close()
		return nil, fmt.Errorf("failed to store empty root: %w", err)
	}
	cs := &objstore.Changeset{
		ID:       uuid.NewString(),
		RootID:   tree.NewID(),
		RootHash: rootHash,
		Message:  "initial",
		Created:  w.now().UTC(),
	}
	if err := w.store.PutChangeset(cs); err != nil {
		h.Abort()
		w.Close()
		return nil, fmt.Errorf("failed to store initial changeset: %w", err)
	}
	if err := h.Save(&db.PendingState{Parents: []string{cs.ID}}); err != nil {
		w.Close()
		return nil, err
	}
	if logservice.LS != nil {
		_ = logservice.LS.Log("info", fmt.Sprintf("Initialized working copy at %s", abs), "workingcopy", cs.ID)
	}
	return w, nil
}

// Open opens the working copy rooted at root.
func Open(root string) (*WorkingCopy, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(StatePath(abs)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, wcerr.New(wcerr.KindNotFound, abs, "not a working copy")
		}
		return nil, err
	}
	return open(abs)
}

// Find walks up from dir to the nearest working copy root.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for cur := abs; ; {
		if _, err := os.Stat(StatePath(cur)); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", wcerr.New(wcerr.KindNotFound, abs, "not inside a working copy")
		}
		cur = parent
	}
}

func open(abs string) (*WorkingCopy, error) {
	cfg, err := configs.Load(abs)
	if err != nil {
		return nil, err
	}
	analyzer, err := cfg.Portability.Analyzer()
	if err != nil {
		return nil, err
	}
	lfs, err := fsservices.NewLocalFS(abs, configs.ControlDir)
	if err != nil {
		return nil, err
	}
	store, err := objstore.Open(cfg.Objects.Backend, configs.Resolve(abs, cfg.Objects.Path))
	if err != nil {
		return nil, err
	}
	ci, err := fsservices.CaseInsensitive(filepath.Join(abs, configs.ControlDir))
	if err != nil && logservice.LS != nil {
		_ = logservice.LS.Log("warning", fmt.Sprintf("Case sensitivity probe failed: %v", err), "workingcopy", abs)
	}
	return &WorkingCopy{
		root:            abs,
		cfg:             cfg,
		store:           store,
		fs:              lfs,
		attrs:           attrs.NewLocal(cfg.Scan.XAttrs),
		analyzer:        analyzer,
		caseInsensitive: ci,
	}, nil
}

// Root returns the absolute root directory.
func (w *WorkingCopy) Root() string {
	return w.root
}

// Config returns the loaded configuration.
func (w *WorkingCopy) Config() *configs.Config {
	return w.cfg
}

// Store returns the object store.
func (w *WorkingCopy) Store() objstore.Store {
	return w.store
}

// Close releases the object store.
func (w *WorkingCopy) Close() error {
	return w.store.Close()
}

// Rel converts a path given on the command line (absolute or relative to
// the process working directory) into a repo-relative one.
func (w *WorkingCopy) Rel(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return w.fs.Rel(abs)
}

// Parents returns the parent changesets of the working copy.
func (w *WorkingCopy) Parents() ([]string, error) {
	state, err := db.ReadState(StatePath(w.root))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, wcerr.New(wcerr.KindNotFound, w.root, "not a working copy")
	}
	return state.Parents, nil
}

func (w *WorkingCopy) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *WorkingCopy) ignorePatterns() ([]string, error) {
	fromFile, err := filter.LoadIgnoreFile(filepath.Join(w.root, filter.IgnoreFileName))
	if err != nil {
		return nil, err
	}
	out := append([]string{}, w.cfg.Scan.Ignore...)
	return append(out, fromFile...), nil
}

// filterFor compiles a selection together with the ignore patterns.
func (w *WorkingCopy) filterFor(sel Selection) (*filter.Filter, error) {
	ignore, err := w.ignorePatterns()
	if err != nil {
		return nil, err
	}
	return filter.New(filter.Options{
		Items:     sel.Items,
		Recursive: !sel.NoRecurse,
		Include:   sel.Include,
		Exclude:   sel.Exclude,
		Ignore:    ignore,
	})
}

func (w *WorkingCopy) ignoreWarnings(sel Selection) bool {
	return sel.IgnoreWarnings || w.cfg.Portability.IgnoreWarnings
}

func warningIssues(ws []portability.Warning) []string {
	portability.SortWarnings(ws)
	out := make([]string, len(ws))
	for i, x := range ws {
		out[i] = x.String()
	}
	return out
}
