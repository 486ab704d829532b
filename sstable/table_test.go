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

// memReaderAt adapts an in-memory byte slice to the ReaderAt interface
// tables are read through.
type memReaderAt struct {
	data []byte
}

func (m *memReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, fmt.Errorf("sstable: read past EOF")
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("sstable: short read")
	}
	return n, nil
}

func (m *memReaderAt) Size() (int64, error) { return int64(len(m.data)), nil }

func buildTestTable(t *testing.T, n int, compression Compression, filter bool) (*Reader, []string) {
	var buf bytes.Buffer
	w := NewWriter(&buf, &WriterOptions{
		BlockSize:            256, // force several data blocks
		BlockRestartInterval: 4,
		Compression:          compression,
		FilterKeys:           filter,
	})
	var keys []string
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("tkey-%04d", i)
		keys = append(keys, k)
		ikey := base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(fmt.Sprintf("value-%04d", i))))
	}
	props, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, uint64(n), props.NumEntries)

	r, err := NewReader(&memReaderAt{data: buf.Bytes()}, &ReaderOptions{})
	require.NoError(t, err)
	return r, keys
}

func TestTableGetPresentAndAbsent(t *testing.T) {
	for _, compression := range []Compression{NoCompression, SnappyCompression} {
		r, keys := buildTestTable(t, 300, compression, true)
		for i, k := range keys {
			got, value, err := r.Get(base.LookupKey{UserKey: []byte(k), Seq: base.SeqNumMax})
			require.NoError(t, err)
			require.Equal(t, base.SeqNum(i+1), got.SeqNum())
			require.Equal(t, fmt.Sprintf("value-%04d", i), string(value))
		}

		_, _, err := r.Get(base.LookupKey{UserKey: []byte("zzz-absent"), Seq: base.SeqNumMax})
		require.ErrorIs(t, err, base.ErrNotFound)
	}
}

func TestTableIterFullScan(t *testing.T) {
	r, keys := buildTestTable(t, 250, NoCompression, false)
	it, err := r.NewIter()
	require.NoError(t, err)
	defer it.Close()

	i := 0
	for k, v := it.First(); k != nil; k, v = it.Next() {
		require.Equal(t, keys[i], string(k.UserKey), "entry %d", i)
		require.Equal(t, fmt.Sprintf("value-%04d", i), string(v))
		i++
	}
	require.Equal(t, len(keys), i)
}

func TestTableIterSeekGEAndPrev(t *testing.T) {
	r, keys := buildTestTable(t, 200, NoCompression, false)
	it, err := r.NewIter()
	require.NoError(t, err)
	defer it.Close()

	mid := keys[100]
	k, _ := it.SeekGE([]byte(mid))
	require.NotNil(t, k)
	require.Equal(t, mid, string(k.UserKey))

	k, _ = it.Prev()
	require.NotNil(t, k)
	require.Equal(t, keys[99], string(k.UserKey))
}

func TestTableIterLast(t *testing.T) {
	r, keys := buildTestTable(t, 120, NoCompression, false)
	it, err := r.NewIter()
	require.NoError(t, err)
	defer it.Close()

	k, v := it.Last()
	require.NotNil(t, k)
	require.Equal(t, keys[len(keys)-1], string(k.UserKey))
	require.Equal(t, fmt.Sprintf("value-%04d", len(keys)-1), string(v))
}
