// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"testing"

	"github.com/kvforge/lsmdb/vfs"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingWithoutCreateIfMissing(t *testing.T) {
	_, err := Open("/test", &Options{FS: vfs.NewMem()})
	require.Error(t, err)
}

func TestOpenExistingWithErrorIfExists(t *testing.T) {
	fs := vfs.NewMem()
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: fs})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open("/test", &Options{ErrorIfExists: true, FS: fs})
	require.Error(t, err)
}

func TestCloseAndReopenRecoversData(t *testing.T) {
	fs := vfs.NewMem()
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: fs})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, db.Set(key, key))
	}
	require.NoError(t, db.Delete([]byte("k010")))
	require.NoError(t, db.Close())

	db2, err := Open("/test", &Options{FS: fs})
	require.NoError(t, err)
	defer db2.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		v, err := db2.Get(key)
		if i == 10 {
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, key, v)
	}
}

func TestReopenReplaysUnflushedWAL(t *testing.T) {
	fs := vfs.NewMem()
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: fs, WriteBufferSize: 64 << 20})
	require.NoError(t, err)

	require.NoError(t, db.Set([]byte("only-in-wal"), []byte("v")))
	require.NoError(t, db.Close())

	db2, err := Open("/test", &Options{FS: fs})
	require.NoError(t, err)
	defer db2.Close()

	v, err := db2.Get([]byte("only-in-wal"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
