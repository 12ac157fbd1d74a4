// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// inspect_db dumps what a working copy keeps in its control directory:
// the pending state, the timestamp cache, persisted logs, object counts
// and the action journal. Everything is opened read-only except the
// object store, which bbolt and badger lock exclusively.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Project-Sylos/Sylos-VC/pkg/configs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/journal"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/workingcopy"
)

type objectCounter interface {
	CountObjects() (blobs, trees, changesets int, err error)
}

func main() {
	dir := "."
	if len(os.Args) >= 2 {
		dir = os.Args[1]
	}
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [working-copy-dir]\n", os.Args[0])
		os.Exit(1)
	}

	root, err := workingcopy.Find(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := configs.Load(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	report, err := db.Inspect(workingcopy.StatePath(root))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error inspecting database: %v\n", err)
		os.Exit(1)
	}
	printReport(report)

	fmt.Println()
	if err := printObjects(cfg.Objects.Backend, configs.Resolve(root, cfg.Objects.Path)); err != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: failed to count objects: %v\n", err)
	}

	if cfg.Journal.Enabled {
		fmt.Println()
		if err := printJournal(configs.Resolve(root, cfg.Journal.Path)); err != nil {
			fmt.Fprintf(os.Stderr, "\nWarning: failed to read journal: %v\n", err)
		}
	}
	fmt.Println(strings.Repeat("=", 80))
}

func printReport(r *db.Report) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Pending-State Report: %s\n", r.Path)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	if r.State == nil {
		fmt.Println("No pending state saved (working copy not initialized?)")
	} else {
		fmt.Printf("Parents:             %s\n", strings.Join(r.State.Parents, ", "))
		fmt.Printf("Saved:               %s\n", r.State.Saved.Local().Format("2006-01-02 15:04:05"))
		if r.TreeBytes == 0 {
			fmt.Printf("Pending Tree:        none (clean)\n")
		} else {
			fmt.Printf("Pending Tree:        %d bytes\n", r.TreeBytes)
		}
		open := 0
		for _, is := range r.State.Issues {
			if !is.Resolved {
				open++
			}
		}
		fmt.Printf("Merge Issues:        %d (%d unresolved)\n", len(r.State.Issues), open)
		for _, is := range r.State.Issues {
			mark := " "
			if is.Resolved {
				mark = "✓"
			}
			fmt.Printf("  [%s] %s: %s\n", mark, is.Path, is.Description)
		}
	}
	fmt.Printf("Timestamp Cache:     %d entries\n", r.Stamps)

	fmt.Println()
	fmt.Println("LOGS BY LEVEL:")
	fmt.Println(strings.Repeat("-", 80))
	if len(r.LogsByLevel) == 0 {
		fmt.Println("  (none)")
	}
	for _, l := range r.Levels() {
		fmt.Printf("  %-10s %d\n", l, r.LogsByLevel[l])
	}
}

func printObjects(backend, path string) error {
	fmt.Println("OBJECT STORE:")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Backend:             %s\n", backend)
	fmt.Printf("Path:                %s\n", path)
	if _, err := os.Stat(path); err != nil {
		return err
	}
	store, err := objstore.Open(backend, path)
	if err != nil {
		return err
	}
	defer store.Close()
	c, ok := store.(objectCounter)
	if !ok {
		return fmt.Errorf("backend %q cannot count objects", backend)
	}
	blobs, trees, changesets, err := c.CountObjects()
	if err != nil {
		return err
	}
	fmt.Printf("Blobs:               %d\n", blobs)
	fmt.Printf("Trees:               %d\n", trees)
	fmt.Printf("Changesets:          %d\n", changesets)
	return nil
}

func printJournal(path string) error {
	fmt.Println("JOURNAL:")
	fmt.Println(strings.Repeat("-", 80))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("  no journal at %s\n", filepath.Base(path))
		return nil
	}
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	ops, err := j.Operations(10)
	if err != nil {
		return err
	}
	unfinished, err := j.Unfinished()
	if err != nil {
		return err
	}
	fmt.Printf("Recent Operations:   %d shown\n", len(ops))
	for _, op := range ops {
		fmt.Printf("  %s  %-7s %-9s %3d actions  %s\n", op.Started.Local().Format("2006-01-02 15:04:05"), op.Kind, op.Status, op.Planned, op.ID)
	}
	if len(unfinished) == 0 {
		fmt.Printf("✓ No unfinished operations\n")
		return nil
	}
	fmt.Printf("✗ %d unfinished operations; entries may remain in %s\n", len(unfinished), filepath.Join(configs.ControlDir, "tmp"))
	for _, op := range unfinished {
		fmt.Printf("  - %s (%s, started %s)\n", op.ID, op.Kind, op.Started.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
