// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package arenaskl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocGrows(t *testing.T) {
	a := NewArena()
	require.EqualValues(t, 0, a.Size())

	b1 := a.Alloc(100)
	require.Len(t, b1, 100)
	require.EqualValues(t, blockSize, a.Size())

	b2 := a.Alloc(100)
	require.Len(t, b2, 100)
	require.EqualValues(t, blockSize, a.Size())

	// Writes to b1 must not bleed into b2.
	for i := range b1 {
		b1[i] = 0xAA
	}
	for _, v := range b2 {
		require.NotEqual(t, byte(0xAA), v)
	}
}

func TestArenaLargeAllocGetsOwnSlab(t *testing.T) {
	a := NewArena()
	a.Alloc(10)
	before := a.Size()

	big := a.Alloc(2000)
	require.Len(t, big, 2000)
	require.EqualValues(t, before+2000, a.Size())
}

func TestArenaAlignedAlloc(t *testing.T) {
	a := NewArena()
	a.Alloc(1) // misalign the cursor
	b := a.AllocAligned(8)
	require.Len(t, b, 8)
}
