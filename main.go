// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Project-Sylos/Sylos-VC/pkg/configs"
	"github.com/Project-Sylos/Sylos-VC/pkg/logservice"
	"github.com/Project-Sylos/Sylos-VC/pkg/wcerr"
	"github.com/Project-Sylos/Sylos-VC/pkg/workingcopy"
	"github.com/spf13/cobra"
)

var (
	workDir  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:           "sylos",
		Short:         "Working-copy operations for Sylos version control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Run as if started in this directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured console log level")
	registerCommands()

	err := rootCmd.Execute()
	if logservice.LS != nil {
		_ = logservice.LS.Close()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

// printError writes err and, for working-copy errors, the issues that
// were collected before it failed.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var we *wcerr.Error
	if errors.As(err, &we) {
		for _, is := range we.Issues {
			fmt.Fprintf(os.Stderr, "  %s\n", is)
		}
	}
}

// initLogger starts the global log service from the working-copy
// configuration.
func initLogger(cfg *configs.Config) error {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	return logservice.InitGlobalLogger(logservice.Config{
		Level:         level,
		Encoding:      cfg.Logging.Encoding,
		BatchSize:     cfg.LogBuffer.BatchSize,
		FlushInterval: cfg.LogBuffer.FlushInterval(),
	})
}

// openWorkingCopy finds and opens the working copy enclosing workDir.
func openWorkingCopy() (*workingcopy.WorkingCopy, error) {
	root, err := workingcopy.Find(workDir)
	if err != nil {
		return nil, err
	}
	w, err := workingcopy.Open(root)
	if err != nil {
		return nil, err
	}
	if err := initLogger(w.Config()); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// withWorkingCopy adapts fn into a cobra RunE that opens the working copy
// first and closes it afterwards.
func withWorkingCopy(fn func(w *workingcopy.WorkingCopy, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		w, err := openWorkingCopy()
		if err != nil {
			return err
		}
		defer w.Close()
		return fn(w, cmd, args)
	}
}
