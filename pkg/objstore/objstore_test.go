// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package objstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBolt(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	g, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		g.Close()
	})
	return map[string]Store{"bolt": b, "badger": g}
}

func TestStoreBlobsAndTrees(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			h, err := s.PutBlob([]byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, s.ComputeHash([]byte("hello")), h)

			data, err := s.FetchBlob(h)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))

			_, err = s.FetchBlob("missing")
			assert.True(t, errors.Is(err, ErrObjectNotFound))

			entries := []TreeEntry{
				{ID: "b", Name: "zeta", Kind: KindFile, Hash: h},
				{ID: "a", Name: "alpha", Kind: KindDirectory, Hash: "t1"},
			}
			th, err := s.PutTree(entries)
			require.NoError(t, err)

			loaded, err := s.LoadTree(th)
			require.NoError(t, err)
			require.Len(t, loaded, 2)
			assert.Equal(t, "alpha", loaded[0].Name)
			assert.Equal(t, "zeta", loaded[1].Name)

			reversed := []TreeEntry{entries[1], entries[0]}
			th2, err := s.PutTree(reversed)
			require.NoError(t, err)
			assert.Equal(t, th, th2, "tree hash must not depend on input order")
		})
	}
}

func TestStoreChangesets(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			cs := &Changeset{ID: "c1", Parents: []string{"c0"}, RootID: "root", RootHash: "h", Message: "m", Created: time.Unix(100, 0).UTC()}
			require.NoError(t, s.PutChangeset(cs))

			got, err := s.GetChangeset("c1")
			require.NoError(t, err)
			assert.Equal(t, cs, got)

			_, err = s.GetChangeset("nope")
			assert.ErrorIs(t, err, ErrObjectNotFound)
		})
	}
}

func TestDuplicateNamesRejected(t *testing.T) {
	_, err := EncodeTree([]TreeEntry{{ID: "1", Name: "a"}, {ID: "2", Name: "a"}})
	assert.Error(t, err)
}

func TestXAttrsRoundTrip(t *testing.T) {
	s := openStores(t)["bolt"]
	h, err := PutXAttrs(s, map[string][]byte{"user.b": []byte("2"), "user.a": []byte("1")})
	require.NoError(t, err)

	want, err := HashXAttrs(map[string][]byte{"user.a": []byte("1"), "user.b": []byte("2")})
	require.NoError(t, err)
	assert.Equal(t, want, h)

	got, err := FetchXAttrs(s, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got["user.a"])

	empty, err := HashXAttrs(nil)
	require.NoError(t, err)
	assert.Equal(t, Hash(""), empty)
}
