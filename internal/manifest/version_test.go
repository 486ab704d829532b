// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"sync"
	"testing"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func ikey(s string, seq base.SeqNum) base.InternalKey {
	return base.MakeInternalKey([]byte(s), seq, base.InternalKeyKindSet)
}

func meta(num base.FileNum, smallest, largest string) *FileMetaData {
	return &FileMetaData{
		FileNum:  num,
		Size:     1024,
		Smallest: ikey(smallest, 10),
		Largest:  ikey(largest, 20),
	}
}

func TestVersionOverlapsLevel0(t *testing.T) {
	v := &Version{}
	v.Files[0] = []*FileMetaData{
		meta(1, "a", "f"),
		meta(2, "e", "j"), // overlaps file 1's range
		meta(3, "z", "zz"),
	}
	got := v.Overlaps(0, bytes.Compare, []byte("c"), []byte("d"))
	require.Len(t, got, 2)
}

func TestVersionOverlapsLeveledBinarySearch(t *testing.T) {
	v := &Version{}
	v.Files[1] = []*FileMetaData{
		meta(1, "a", "c"),
		meta(2, "d", "f"),
		meta(3, "g", "i"),
	}
	got := v.Overlaps(1, bytes.Compare, []byte("e"), []byte("h"))
	require.Len(t, got, 2)
	require.Equal(t, base.FileNum(2), got[0].FileNum)
	require.Equal(t, base.FileNum(3), got[1].FileNum)
}

func TestVersionCheckOrderingLevel0RejectsOutOfOrderFileNum(t *testing.T) {
	v := &Version{}
	v.Files[0] = []*FileMetaData{meta(2, "a", "b"), meta(1, "c", "d")}
	require.Error(t, v.CheckOrdering(bytes.Compare))
}

func TestVersionCheckOrderingLevelNRejectsOverlap(t *testing.T) {
	v := &Version{}
	v.Files[1] = []*FileMetaData{meta(1, "a", "f"), meta(2, "e", "j")}
	require.Error(t, v.CheckOrdering(bytes.Compare))
}

func TestVersionCheckOrderingAccepts(t *testing.T) {
	v := &Version{}
	v.Files[1] = []*FileMetaData{meta(1, "a", "c"), meta(2, "d", "f")}
	require.NoError(t, v.CheckOrdering(bytes.Compare))
}

func TestVersionListRefcounting(t *testing.T) {
	var mu sync.Mutex
	var list VersionList
	list.Init(&mu)
	require.True(t, list.Empty())

	v := &Version{}
	v.Ref()
	list.PushBack(v)
	require.False(t, list.Empty())
	require.Equal(t, v, list.Front())
	require.Equal(t, v, list.Back())

	v.Unref()
	require.True(t, list.Empty())
}

func TestFileMetaDataRefcount(t *testing.T) {
	f := &FileMetaData{}
	f.Ref()
	f.Ref()
	require.EqualValues(t, 1, f.Unref())
	require.EqualValues(t, 0, f.Unref())
}

func TestKeyRange(t *testing.T) {
	f0 := []*FileMetaData{meta(1, "b", "d")}
	f1 := []*FileMetaData{meta(2, "a", "c")}
	smallest, largest := KeyRange(bytes.Compare, f0, f1)
	require.Equal(t, "a", string(smallest.UserKey))
	require.Equal(t, "d", string(largest.UserKey))
}
