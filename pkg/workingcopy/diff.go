// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package workingcopy

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/Project-Sylos/Sylos-VC/pkg/diff"
	"github.com/Project-Sylos/Sylos-VC/pkg/objstore"
	"github.com/Project-Sylos/Sylos-VC/pkg/scan"
	"github.com/pmezard/go-difflib/difflib"
)

// Diff writes a unified diff of every modified text file in the selection
// against its baseline content. Binary files get a one-line notice.
func (w *WorkingCopy) Diff(out io.Writer, sel Selection) (err error) {
	s, err := w.begin("diff")
	if err != nil {
		return err
	}
	defer s.release(&err)

	f, err := w.filterFor(sel)
	if err != nil {
		return err
	}
	if _, err := s.scan(scan.ModeRefresh, f); err != nil {
		return err
	}
	entries, err := s.report(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Kind != objstore.KindFile || e.Class != diff.ClassNone || e.Mods&diff.ModModified == 0 {
			continue
		}
		before, err := w.store.FetchBlob(e.OldHash)
		if err != nil {
			return fmt.Errorf("failed to load baseline of %s: %w", e.Path, err)
		}
		after, err := w.fs.ReadFile(w.fs.Abs(e.Path), objstore.KindFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", e.Path, err)
		}
		if !isText(before) || !isText(after) {
			if _, err := fmt.Fprintf(out, "Binary files %s differ\n", e.Path); err != nil {
				return err
			}
			continue
		}
		from := e.Path
		if e.OldPath != "" {
			from = e.OldPath
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(before)),
			B:        difflib.SplitLines(string(after)),
			FromFile: "a/" + from,
			ToFile:   "b/" + e.Path,
			Context:  3,
		})
		if err != nil {
			return err
		}
		if _, err := io.WriteString(out, text); err != nil {
			return err
		}
	}
	return s.save()
}

func isText(b []byte) bool {
	return utf8.Valid(b) && bytes.IndexByte(b, 0) < 0
}
