// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package arenaskl

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkiplistInsertAndIterate(t *testing.T) {
	a := NewArena()
	s := NewSkiplist(a, bytes.Compare)

	keys := []string{"d", "b", "a", "c", "e"}
	for _, k := range keys {
		b := a.Alloc(len(k))
		copy(b, k)
		s.Insert(b)
	}

	it := s.NewIterator()
	it.SeekToFirst()
	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestSkiplistSeekAndPrev(t *testing.T) {
	a := NewArena()
	s := NewSkiplist(a, bytes.Compare)
	for i := 0; i < 100; i += 2 {
		k := []byte(fmt.Sprintf("%03d", i))
		b := a.Alloc(len(k))
		copy(b, k)
		s.Insert(b)
	}

	it := s.NewIterator()
	it.Seek([]byte("051"))
	require.True(t, it.Valid())
	require.Equal(t, "052", string(it.Key()))

	it.Prev()
	require.True(t, it.Valid())
	require.Equal(t, "050", string(it.Key()))

	it.SeekToLast()
	require.Equal(t, "098", string(it.Key()))
	it.Next()
	require.False(t, it.Valid())
}

func TestSkiplistContains(t *testing.T) {
	a := NewArena()
	s := NewSkiplist(a, bytes.Compare)
	b := a.Alloc(3)
	copy(b, "abc")
	s.Insert(b)
	require.True(t, s.Contains([]byte("abc")))
	require.False(t, s.Contains([]byte("abd")))
}

func TestSkiplistRandomInsertOrder(t *testing.T) {
	a := NewArena()
	s := NewSkiplist(a, bytes.Compare)

	const n = 2000
	perm := rand.Perm(n)
	for _, v := range perm {
		k := []byte(fmt.Sprintf("%05d", v))
		b := a.Alloc(len(k))
		copy(b, k)
		s.Insert(b)
	}

	it := s.NewIterator()
	it.SeekToFirst()
	count := 0
	for prev := -1; it.Valid(); it.Next() {
		var v int
		fmt.Sscanf(string(it.Key()), "%d", &v)
		require.Greater(t, v, prev)
		prev = v
		count++
	}
	require.Equal(t, n, count)
}
