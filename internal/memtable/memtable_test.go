// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package memtable

import (
	"bytes"
	"testing"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestMemtableOverwrite(t *testing.T) {
	m := New(bytes.Compare)
	m.Add(1, base.InternalKeyKindSet, []byte("a"), []byte("1"))
	m.Add(2, base.InternalKeyKindSet, []byte("a"), []byte("2"))

	v, res := m.Get(base.LookupKey{UserKey: []byte("a"), Seq: base.SeqNumMax})
	require.Equal(t, LookupFound, res)
	require.Equal(t, "2", string(v))
}

func TestMemtableDeleteHidesOlderPut(t *testing.T) {
	m := New(bytes.Compare)
	m.Add(1, base.InternalKeyKindSet, []byte("k"), []byte("v"))
	m.Add(2, base.InternalKeyKindDelete, []byte("k"), nil)

	_, res := m.Get(base.LookupKey{UserKey: []byte("k"), Seq: base.SeqNumMax})
	require.Equal(t, LookupDeleted, res)

	// A read at the snapshot taken between the two writes still sees "v".
	v, res := m.Get(base.LookupKey{UserKey: []byte("k"), Seq: 1})
	require.Equal(t, LookupFound, res)
	require.Equal(t, "v", string(v))
}

func TestMemtableMiss(t *testing.T) {
	m := New(bytes.Compare)
	m.Add(1, base.InternalKeyKindSet, []byte("a"), []byte("1"))
	_, res := m.Get(base.LookupKey{UserKey: []byte("z"), Seq: base.SeqNumMax})
	require.Equal(t, LookupMiss, res)
}

func TestMemtableIterator(t *testing.T) {
	m := New(bytes.Compare)
	m.Add(1, base.InternalKeyKindSet, []byte("b"), []byte("2"))
	m.Add(1, base.InternalKeyKindSet, []byte("a"), []byte("1"))
	m.Add(1, base.InternalKeyKindSet, []byte("c"), []byte("3"))

	it := m.NewIter()
	defer it.Close()

	var got []string
	for k, v := it.First(); k != nil; k, v = it.Next() {
		got = append(got, string(k.UserKey)+"="+string(v))
	}
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, got)
}

func TestMemtableRefcount(t *testing.T) {
	m := New(bytes.Compare)
	m.Ref()
	m.Unref()
	m.Unref()
	require.Panics(t, func() { m.Unref() })
}
