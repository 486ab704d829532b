// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"testing"

	"github.com/kvforge/lsmdb/internal/manifest"
	"github.com/kvforge/lsmdb/vfs"
	"github.com/stretchr/testify/require"
)

func writeManyKeys(t *testing.T, db *DB, n int) {
	t.Helper()
	value := make([]byte, 512)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		require.NoError(t, db.Set(key, value))
	}
}

func levelFileCounts(db *DB) [manifest.NumLevels]int {
	db.mu.Lock()
	v := db.mu.versions.Current()
	db.mu.Unlock()
	defer v.Unref()

	var counts [manifest.NumLevels]int
	for l := 0; l < manifest.NumLevels; l++ {
		counts[l] = len(v.Files[l])
	}
	return counts
}

func TestCompactRangeProducesNonOverlappingOutputAndPreservesData(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 4 << 10})
	require.NoError(t, err)
	defer db.Close()

	writeManyKeys(t, db, 500)
	require.NoError(t, db.Delete([]byte("key-000250")))

	require.NoError(t, db.CompactRange(nil, []byte("\xff\xff\xff\xff")))

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key-%06d", i))
		_, err := db.Get(key)
		if i == 250 {
			require.ErrorIs(t, err, ErrNotFound)
			continue
		}
		require.NoError(t, err, "key %s", key)
	}
}

func TestCompactRangeIsIdempotent(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 4 << 10})
	require.NoError(t, err)
	defer db.Close()

	writeManyKeys(t, db, 300)
	require.NoError(t, db.CompactRange(nil, []byte("\xff\xff\xff\xff")))
	before := levelFileCounts(db)

	require.NoError(t, db.CompactRange(nil, []byte("\xff\xff\xff\xff")))
	after := levelFileCounts(db)

	require.Equal(t, before, after)
}

func TestEstimateDiskUsageGrowsWithData(t *testing.T) {
	db, err := Open("/test", &Options{CreateIfMissing: true, FS: vfs.NewMem(), WriteBufferSize: 4 << 10})
	require.NoError(t, err)
	defer db.Close()

	empty, err := db.EstimateDiskUsage(nil, []byte("\xff\xff\xff\xff"))
	require.NoError(t, err)
	require.Zero(t, empty)

	writeManyKeys(t, db, 500)
	require.NoError(t, db.CompactRange(nil, []byte("\xff\xff\xff\xff")))

	used, err := db.EstimateDiskUsage(nil, []byte("\xff\xff\xff\xff"))
	require.NoError(t, err)
	require.Greater(t, used, uint64(0))
}
