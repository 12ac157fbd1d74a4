// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package wcerr defines the error kinds surfaced by working-copy operations.
package wcerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error independently of its concrete detail.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyUnderVersionControl
	KindObjectAlreadyExists
	KindNotADirectory
	KindInvalidObjectType
	KindCannotMoveIntoOwnSubtree
	KindCannotMoveIntoCurrentParent
	KindSplitMoveDetected
	KindPortabilityWarning
	KindUpdateConflict
	KindCannotPartialCommitAfterMerge
	KindCannotPartialRevertAfterMerge
	KindNothingToCommit
	KindTooManyBackupNames
	KindNotImplemented
)

var kindNames = map[Kind]string{
	KindUnknown:                       "unknown error",
	KindNotFound:                      "not found",
	KindAlreadyUnderVersionControl:    "already under version control",
	KindObjectAlreadyExists:           "object already exists",
	KindNotADirectory:                 "not a directory",
	KindInvalidObjectType:             "invalid object type",
	KindCannotMoveIntoOwnSubtree:      "cannot move into own subtree",
	KindCannotMoveIntoCurrentParent:   "cannot move into current parent",
	KindSplitMoveDetected:             "split move detected",
	KindPortabilityWarning:            "portability warning",
	KindUpdateConflict:                "update conflict",
	KindCannotPartialCommitAfterMerge: "cannot partially commit after a merge",
	KindCannotPartialRevertAfterMerge: "cannot partially revert after a merge",
	KindNothingToCommit:               "nothing to commit",
	KindTooManyBackupNames:            "too many backup names",
	KindNotImplemented:                "not implemented",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrNotFound                      = &Error{Kind: KindNotFound}
	ErrAlreadyUnderVersionControl    = &Error{Kind: KindAlreadyUnderVersionControl}
	ErrObjectAlreadyExists           = &Error{Kind: KindObjectAlreadyExists}
	ErrNotADirectory                 = &Error{Kind: KindNotADirectory}
	ErrInvalidObjectType             = &Error{Kind: KindInvalidObjectType}
	ErrCannotMoveIntoOwnSubtree      = &Error{Kind: KindCannotMoveIntoOwnSubtree}
	ErrCannotMoveIntoCurrentParent   = &Error{Kind: KindCannotMoveIntoCurrentParent}
	ErrSplitMove                     = &Error{Kind: KindSplitMoveDetected}
	ErrPortabilityWarning            = &Error{Kind: KindPortabilityWarning}
	ErrUpdateConflict                = &Error{Kind: KindUpdateConflict}
	ErrCannotPartialCommitAfterMerge = &Error{Kind: KindCannotPartialCommitAfterMerge}
	ErrCannotPartialRevertAfterMerge = &Error{Kind: KindCannotPartialRevertAfterMerge}
	ErrNothingToCommit               = &Error{Kind: KindNothingToCommit}
	ErrTooManyBackupNames            = &Error{Kind: KindTooManyBackupNames}
	ErrNotImplemented                = &Error{Kind: KindNotImplemented}
)

// Error is the typed error returned by working-copy operations.
type Error struct {
	Kind   Kind
	Path   string   // repo-relative path the error is about, if any
	Detail string   // free-form explanation
	Issues []string // individual conflicts or warnings collected before failing
	Err    error    // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind for path.
func New(kind Kind, path, detail string) *Error {
	return &Error{Kind: kind, Path: path, Detail: detail}
}

// Newf builds an error with a formatted detail.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// WithIssues builds an error carrying a list of individual problems.
func WithIssues(kind Kind, detail string, issues []string) *Error {
	return &Error{Kind: kind, Detail: detail, Issues: issues}
}

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
