// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	fw := newFilterWriter()
	var keys [][]byte
	var nextOffset uint64
	for i := 0; i < 2000; i++ {
		k := []byte(fmt.Sprintf("filter-key-%05d", i))
		keys = append(keys, k)
		fw.addKey(k)
		// Emit exactly one filter partition per 100 keys, simulating one
		// data block ending every 2 KiB as the real writer does.
		if i%100 == 99 {
			nextOffset += 1 << filterBaseLg
			fw.startBlock(nextOffset)
		}
	}
	data := fw.finish()
	fr := newFilterReader(data)
	require.NotNil(t, fr)

	for i, k := range keys {
		offset := uint64(i/100) << filterBaseLg
		require.True(t, fr.mayContain(offset, k), "key %d (%s) reported absent", i, k)
	}
}

func TestFilterRejectsMostAbsentKeys(t *testing.T) {
	fw := newFilterWriter()
	for i := 0; i < 1000; i++ {
		fw.addKey([]byte(fmt.Sprintf("present-%05d", i)))
	}
	fw.startBlock(1 << filterBaseLg)
	data := fw.finish()
	fr := newFilterReader(data)
	require.NotNil(t, fr)

	falsePositives := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		absent := []byte(fmt.Sprintf("absent-%05d", i))
		if fr.mayContain(0, absent) {
			falsePositives++
		}
	}
	// ~1% false positive rate expected at 10 bits/key; allow generous slack.
	require.Less(t, falsePositives, trials/5)
}

func TestFilterReaderNilIsPermissive(t *testing.T) {
	var fr *filterReader
	require.True(t, fr.mayContain(0, []byte("anything")))
}
