// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func ikeyRaw(userKey string, seq base.SeqNum) []byte {
	k := base.MakeInternalKey([]byte(userKey), seq, base.InternalKeyKindSet)
	return encodeInternalKey(k)
}

func rawCmp(a, b []byte) int {
	return base.InternalCompare(bytes.Compare, base.DecodeInternalKey(a), base.DecodeInternalKey(b))
}

func buildTestBlock(restartInterval int, n int) ([]byte, []string) {
	w := newBlockWriter(restartInterval)
	var keys []string
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key%03d", i)
		keys = append(keys, k)
		w.add(ikeyRaw(k, base.SeqNum(i+1)), []byte(fmt.Sprintf("val%03d", i)))
	}
	return w.finish(), keys
}

func TestBlockRoundTripForward(t *testing.T) {
	data, keys := buildTestBlock(4, 50)
	it, err := newBlockIter(rawCmp, data)
	require.NoError(t, err)

	require.True(t, it.First())
	for i, want := range keys {
		gotKey := base.DecodeInternalKey(it.Key())
		require.Equal(t, want, string(gotKey.UserKey), "entry %d", i)
		require.Equal(t, fmt.Sprintf("val%03d", i), string(it.Value()))
		if i < len(keys)-1 {
			require.True(t, it.Next())
		} else {
			require.False(t, it.Next())
		}
	}
}

func TestBlockRoundTripBackward(t *testing.T) {
	data, keys := buildTestBlock(3, 37)
	it, err := newBlockIter(rawCmp, data)
	require.NoError(t, err)

	require.True(t, it.Last())
	for i := len(keys) - 1; i >= 0; i-- {
		gotKey := base.DecodeInternalKey(it.Key())
		require.Equal(t, keys[i], string(gotKey.UserKey), "entry %d", i)
		if i > 0 {
			require.True(t, it.Prev())
		} else {
			require.False(t, it.Prev())
		}
	}
}

func TestBlockSeek(t *testing.T) {
	data, _ := buildTestBlock(16, 100)
	it, err := newBlockIter(rawCmp, data)
	require.NoError(t, err)

	target := base.InternalKey{UserKey: []byte("key050"), Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
	require.True(t, it.Seek(encodeInternalKey(target)))
	gotKey := base.DecodeInternalKey(it.Key())
	require.Equal(t, "key050", string(gotKey.UserKey))

	// Seeking past the end finds nothing.
	target = base.InternalKey{UserKey: []byte("zzz"), Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
	require.False(t, it.Seek(encodeInternalKey(target)))
}

func TestBlockSingleRestartEveryEntry(t *testing.T) {
	// restartInterval=1 forces every entry to be its own restart point,
	// exercising the no-shared-prefix path.
	data, keys := buildTestBlock(1, 10)
	it, err := newBlockIter(rawCmp, data)
	require.NoError(t, err)
	require.True(t, it.First())
	n := 0
	for it.Valid() {
		n++
		if !it.Next() {
			break
		}
	}
	require.Equal(t, len(keys), n)
}
