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

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, db.Set([]byte("a"), []byte("2")))
	v, err = db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissingKey(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get([]byte("nope"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyAtomicBatch(t *testing.T) {
	db := openTestDB(t)

	b := NewBatch()
	defer b.Close()
	require.NoError(t, b.Set([]byte("x"), []byte("1")))
	require.NoError(t, b.Set([]byte("y"), []byte("2")))
	require.NoError(t, b.Delete([]byte("z")))
	require.NoError(t, db.Apply(b))

	vx, err := db.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), vx)
	vy, err := db.Get([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), vy)
}

func TestMakeRoomForWriteFlushesAcrossMemtables(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 4 << 10})
	require.NoError(t, err)
	defer db.Close()

	value := make([]byte, 256)
	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, db.Set(key, value))
	}

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, err := db.Get(key)
		require.NoError(t, err, "key %s", key)
		require.Equal(t, value, v)
	}
}

func TestUseAfterCloseReturnsErrClosed(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, db.Set([]byte("a"), []byte("1")), ErrClosed)
}
