// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	n int
}

func (c *countingReporter) Corruption(bytesDropped int, reason error) { c.n++ }

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	payloads := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte("x"), 100000), // spans many blocks
		[]byte("world"),
	}
	for _, p := range payloads {
		require.NoError(t, w.AddRecord(p))
	}

	r := NewReader(bytes.NewReader(buf.Bytes()), &countingReporter{})
	var got [][]byte
	for {
		p, ok := r.Next()
		if !ok {
			break
		}
		got = append(got, append([]byte{}, p...))
	}
	require.Len(t, got, len(payloads))
	for i, p := range payloads {
		require.Equal(t, p, got[i], "record %d", i)
	}
}

func TestRecordCorruptionSkipped(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.AddRecord([]byte("good1")))
	require.NoError(t, w.AddRecord([]byte("good2")))

	data := buf.Bytes()
	// Flip a byte inside the payload of the first record to break its CRC.
	corrupt := append([]byte(nil), data...)
	corrupt[headerSize] ^= 0xff

	rep := &countingReporter{}
	r := NewReader(bytes.NewReader(corrupt), rep)
	p, ok := r.Next()
	require.True(t, ok)
	require.Equal(t, "good2", string(p))
	require.Equal(t, 1, rep.n)
}

func TestRecordManyBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, w.AddRecord([]byte(fmt.Sprintf("record-%d", i))))
	}
	r := NewReader(bytes.NewReader(buf.Bytes()), &countingReporter{})
	for i := 0; i < n; i++ {
		p, ok := r.Next()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("record-%d", i), string(p))
	}
	_, ok := r.Next()
	require.False(t, ok)
}
