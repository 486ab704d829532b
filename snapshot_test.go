// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"testing"

	"github.com/kvforge/lsmdb/vfs"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsolation(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem()})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("k"), []byte("before")))

	snap := db.NewSnapshot()
	defer snap.Close()

	require.NoError(t, db.Set([]byte("k"), []byte("after")))
	require.NoError(t, db.Delete([]byte("k2")))

	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("before"), v)

	v, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("after"), v)
}

func TestSnapshotDoesNotSeeKeyWrittenAfterward(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem()})
	require.NoError(t, err)
	defer db.Close()

	snap := db.NewSnapshot()
	defer snap.Close()

	require.NoError(t, db.Set([]byte("new-key"), []byte("v")))

	_, err = snap.Get([]byte("new-key"))
	require.ErrorIs(t, err, ErrNotFound)
}
