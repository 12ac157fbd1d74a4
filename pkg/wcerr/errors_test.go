// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package wcerr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(KindSplitMoveDetected, "b/f", "source half out of scope")
	wrapped := fmt.Errorf("commit failed: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSplitMove))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindSplitMoveDetected, KindOf(wrapped))
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := Wrap(KindNotFound, "a.txt", os.ErrNotExist)

	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "a.txt")
}

func TestErrorMessageListsIssues(t *testing.T) {
	err := WithIssues(KindUpdateConflict, "2 conflicts", []string{"a renamed twice", "b edited twice"})

	assert.Equal(t, "update conflict (2 conflicts): a renamed twice; b edited twice", err.Error())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
