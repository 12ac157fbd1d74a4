// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Project-Sylos/Sylos-VC/pkg/configs"
	"github.com/Project-Sylos/Sylos-VC/pkg/db"
	"github.com/Project-Sylos/Sylos-VC/pkg/db/etl"
	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/journal"
	"github.com/Project-Sylos/Sylos-VC/pkg/reconcile"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/Project-Sylos/Sylos-VC/pkg/workingcopy"
	"github.com/spf13/cobra"
)

// selectionFlags are shared by every command that takes an item list.
type selectionFlags struct {
	include        []string
	exclude        []string
	noRecurse      bool
	ignoreWarnings bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "Only consider paths matching these patterns")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Skip paths matching these patterns")
	cmd.Flags().BoolVarP(&f.noRecurse, "no-recurse", "N", false, "Do not descend into the given directories")
	cmd.Flags().BoolVar(&f.ignoreWarnings, "ignore-warnings", false, "Do not fail on portability warnings")
}

func (f *selectionFlags) selection(w *workingcopy.WorkingCopy, args []string) (workingcopy.Selection, error) {
	items, err := relPaths(w, args)
	if err != nil {
		return workingcopy.Selection{}, err
	}
	return workingcopy.Selection{
		Items:          items,
		NoRecurse:      f.noRecurse,
		Include:        f.include,
		Exclude:        f.exclude,
		IgnoreWarnings: f.ignoreWarnings,
	}, nil
}

// relPaths turns command-line paths, relative to --dir, into
// repo-relative ones.
func relPaths(w *workingcopy.WorkingCopy, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		p := a
		if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		rel, err := w.Rel(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

type planFlags struct {
	dryRun   bool
	previews bool
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "Print the planned actions without touching the disk")
	cmd.Flags().BoolVar(&f.previews, "previews", false, "Show content diffs of overwritten files in a dry run")
}

func (f *planFlags) report(cmd *cobra.Command, plan *reconcile.Plan) error {
	if plan == nil {
		return nil
	}
	out := cmd.OutOrStdout()
	if f.dryRun {
		return plan.Render(out, reconcile.RenderOptions{Previews: f.previews})
	}
	for _, l := range plan.Lines() {
		fmt.Fprintln(out, l)
	}
	return nil
}

func registerCommands() {
	rootCmd.AddCommand(
		initCommand(),
		statusCommand(),
		addCommand(),
		removeCommand(),
		moveCommand(),
		renameCommand(),
		commitCommand(),
		revertCommand(),
		updateCommand(),
		logCommand(),
		diffCommand(),
		mergeParentCommand(),
		exportStatusCommand(),
		journalCommand(),
	)
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [directory]",
		Short: "Create an empty working copy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := workDir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := initLogger(configs.Default()); err != nil {
				return err
			}
			w, err := workingcopy.Init(dir)
			if err != nil {
				return err
			}
			defer w.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty working copy in %s\n", w.Root())
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	var sf selectionFlags
	var quiet bool
	cmd := &cobra.Command{
		Use:     "status [path...]",
		Aliases: []string{"st"},
		Short:   "Show how the working copy differs from its baseline",
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			rep, err := w.Status(sel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "On %s\n", strings.Join(rep.Parents, " + "))
			for _, e := range rep.Entries {
				if quiet && e.Class == diff.ClassFound {
					continue
				}
				fmt.Fprintln(out, e.String())
			}
			for _, wr := range rep.Warnings {
				fmt.Fprintf(out, "warning: %s\n", wr)
			}
			fmt.Fprintln(out, rep.Summary())
			return nil
		}),
	}
	sf.register(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide untracked entries")
	return cmd
}

func addCommand() *cobra.Command {
	var sf selectionFlags
	cmd := &cobra.Command{
		Use:   "add [path...]",
		Short: "Schedule untracked entries for addition",
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			n, err := w.Add(sel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d entries\n", n)
			return nil
		}),
	}
	sf.register(cmd)
	return cmd
}

func removeCommand() *cobra.Command {
	var sf selectionFlags
	cmd := &cobra.Command{
		Use:     "remove path...",
		Aliases: []string{"rm"},
		Short:   "Delete entries from disk and schedule them for removal",
		Args:    cobra.MinimumNArgs(1),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			return w.Remove(sel)
		}),
	}
	sf.register(cmd)
	return cmd
}

func moveCommand() *cobra.Command {
	var ignoreWarnings bool
	cmd := &cobra.Command{
		Use:     "move source... directory",
		Aliases: []string{"mv"},
		Short:   "Move entries into another directory",
		Args:    cobra.MinimumNArgs(2),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			paths, err := relPaths(w, args)
			if err != nil {
				return err
			}
			return w.Move(paths[:len(paths)-1], paths[len(paths)-1], ignoreWarnings)
		}),
	}
	cmd.Flags().BoolVar(&ignoreWarnings, "ignore-warnings", false, "Do not fail on portability warnings")
	return cmd
}

func renameCommand() *cobra.Command {
	var ignoreWarnings bool
	cmd := &cobra.Command{
		Use:   "rename path new-name",
		Short: "Rename an entry within its directory",
		Args:  cobra.ExactArgs(2),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			paths, err := relPaths(w, args[:1])
			if err != nil {
				return err
			}
			return w.Rename(paths[0], args[1], ignoreWarnings)
		}),
	}
	cmd.Flags().BoolVar(&ignoreWarnings, "ignore-warnings", false, "Do not fail on portability warnings")
	return cmd
}

func commitCommand() *cobra.Command {
	var sf selectionFlags
	var message string
	cmd := &cobra.Command{
		Use:     "commit [path...]",
		Aliases: []string{"ci"},
		Short:   "Record the selected changes as a new changeset",
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			cs, err := w.Commit(sel, message)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Committed %s\n", cs.ID)
			return nil
		}),
	}
	sf.register(cmd)
	cmd.Flags().StringVarP(&message, "message", "m", "", "Changeset message")
	return cmd
}

func revertCommand() *cobra.Command {
	var sf selectionFlags
	var pf planFlags
	cmd := &cobra.Command{
		Use:   "revert [path...]",
		Short: "Return the selected entries to their baseline",
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			plan, err := w.Revert(workingcopy.RevertOptions{Selection: sel, DryRun: pf.dryRun})
			if rerr := pf.report(cmd, plan); rerr != nil && err == nil {
				err = rerr
			}
			return err
		}),
	}
	sf.register(cmd)
	pf.register(cmd)
	return cmd
}

func updateCommand() *cobra.Command {
	var pf planFlags
	var force, ignoreWarnings bool
	cmd := &cobra.Command{
		Use:   "update changeset",
		Short: "Move the working copy onto another changeset",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			plan, err := w.UpdateTo(args[0], workingcopy.UpdateOptions{
				Force:          force,
				DryRun:         pf.dryRun,
				IgnoreWarnings: ignoreWarnings,
			})
			if rerr := pf.report(cmd, plan); rerr != nil && err == nil {
				err = rerr
			}
			return err
		}),
	}
	pf.register(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Discard local changes")
	cmd.Flags().BoolVar(&ignoreWarnings, "ignore-warnings", false, "Do not fail on portability warnings")
	return cmd
}

func logCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List changesets from the baseline back through first parents",
		Args:  cobra.NoArgs,
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			list, err := w.Log(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, cs := range list {
				fmt.Fprintf(out, "changeset %s\n", cs.ID)
				if len(cs.Parents) > 1 {
					fmt.Fprintf(out, "merge     %s\n", strings.Join(cs.Parents, " "))
				}
				fmt.Fprintf(out, "date      %s\n\n    %s\n\n", cs.Created.Local().Format(time.RFC1123), cs.Message)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Show at most this many changesets")
	return cmd
}

func diffCommand() *cobra.Command {
	var sf selectionFlags
	cmd := &cobra.Command{
		Use:   "diff [path...]",
		Short: "Show content changes of modified files",
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args)
			if err != nil {
				return err
			}
			return w.Diff(cmd.OutOrStdout(), sel)
		}),
	}
	sf.register(cmd)
	return cmd
}

func mergeParentCommand() *cobra.Command {
	var issues []string
	cmd := &cobra.Command{
		Use:   "merge-parent changeset",
		Short: "Record a second parent left behind by an external merge",
		Args:  cobra.ExactArgs(1),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			var list []db.MergeIssue
			for i, is := range issues {
				path, desc, _ := strings.Cut(is, ":")
				list = append(list, db.MergeIssue{ID: fmt.Sprint(i + 1), Path: path, Description: strings.TrimSpace(desc)})
			}
			return w.SetMergeParent(args[0], list)
		}),
	}
	cmd.Flags().StringArrayVar(&issues, "issue", nil, "Unresolved issue as path:description (repeatable)")
	return cmd
}

func exportStatusCommand() *cobra.Command {
	var sf selectionFlags
	var overwrite, logs bool
	cmd := &cobra.Command{
		Use:   "export-status output.duckdb [path...]",
		Short: "Export a status report to a DuckDB file",
		Args:  cobra.MinimumNArgs(1),
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			sel, err := sf.selection(w, args[1:])
			if err != nil {
				return err
			}
			rep, err := w.Status(sel)
			if err != nil {
				return err
			}
			cfg := etl.ExportConfig{
				DuckDBPath: args[0],
				Overwrite:  overwrite,
				Snapshot:   strings.Join(rep.Parents, "+"),
				Rows:       rep.Rows(),
			}
			if logs {
				opts := db.DefaultOptions()
				opts.Path = workingcopy.StatePath(w.Root())
				opts.ReadOnly = true
				src, err := db.Open(opts)
				if err != nil {
					return err
				}
				defer src.Close()
				cfg.LogsDB = src
			}
			stats, err := etl.RunExport(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows and %d log entries to %s\n", stats.Rows, stats.Logs, args[0])
			return nil
		}),
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing output file")
	cmd.Flags().BoolVar(&logs, "logs", false, "Also export the persisted operation logs")
	return cmd
}

func journalCommand() *cobra.Command {
	var limit int
	var opID string
	var unfinished bool
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the journal of applied revert and update actions",
		Args:  cobra.NoArgs,
		RunE: withWorkingCopy(func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error {
			cfg := w.Config().Journal
			if !cfg.Enabled {
				return wcerr.New(wcerr.KindNotFound, "", "the journal is disabled")
			}
			path := configs.Resolve(w.Root(), cfg.Path)
			if _, err := os.Stat(path); err != nil {
				return wcerr.New(wcerr.KindNotFound, path, "no journal yet")
			}
			j, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer j.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if opID != "" {
				entries, err := j.Actions(opID)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "SEQ\tKIND\tFROM\tTO\tOUTCOME\tERROR")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Seq, e.Kind, e.From, e.To, e.Outcome, e.Error)
				}
				return nil
			}
			var ops []journal.Operation
			if unfinished {
				ops, err = j.Unfinished()
			} else {
				ops, err = j.Operations(limit)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tKIND\tSTARTED\tACTIONS\tSTATUS\tERROR")
			for _, op := range ops {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", op.ID, op.Kind, op.Started.Local().Format(time.DateTime), op.Planned, op.Status, op.Error)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Show at most this many operations")
	cmd.Flags().StringVar(&opID, "op", "", "Show the actions of one operation")
	cmd.Flags().BoolVar(&unfinished, "unfinished", false, "Only show operations that never finished")
	return cmd
}
