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

func TestIteratorOrdersAndSkipsTombstones(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem()})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("c"), []byte("3")))
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))
	require.NoError(t, db.Set([]byte("d"), []byte("4")))
	require.NoError(t, db.Delete([]byte("b")))

	it := db.NewIter()
	defer it.Close()

	var gotKeys []string
	var gotVals []string
	for ok := it.First(); ok; ok = it.Next() {
		gotKeys = append(gotKeys, string(it.Key()))
		gotVals = append(gotVals, string(it.Value()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"a", "c", "d"}, gotKeys)
	require.Equal(t, []string{"1", "3", "4"}, gotVals)
}

func TestIteratorSeekGE(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem()})
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"a", "c", "e", "g"} {
		require.NoError(t, db.Set([]byte(k), []byte(k)))
	}

	it := db.NewIter()
	defer it.Close()

	require.True(t, it.SeekGE([]byte("d")))
	require.Equal(t, "e", string(it.Key()))
}

func TestIteratorReflectsOnlyNewestVersionAcrossMemtableFlush(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 4 << 10})
	require.NoError(t, err)
	defer db.Close()

	value := make([]byte, 256)
	for i := 0; i < 100; i++ {
		require.NoError(t, db.Set([]byte(fmt.Sprintf("key-%04d", i)), value))
	}
	require.NoError(t, db.Set([]byte("key-0050"), []byte("updated")))

	it := db.NewIter()
	defer it.Close()

	found := false
	for ok := it.First(); ok; ok = it.Next() {
		if string(it.Key()) == "key-0050" {
			found = true
			require.Equal(t, []byte("updated"), it.Value())
		}
	}
	require.True(t, found)
}
