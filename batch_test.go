// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/memtable"
	"github.com/stretchr/testify/require"
)

func TestBatchSetDelete(t *testing.T) {
	b := NewBatch()
	defer b.Close()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Delete([]byte("b")))
	require.EqualValues(t, 2, b.Count())

	var got []string
	err := b.Iterate(func(kind base.InternalKeyKind, key, value []byte) error {
		got = append(got, fmt.Sprintf("%s:%s=%s", kind, key, value))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"SET:a=1", "DEL:b="}, got)
}

func TestBatchApplyAssignsConsecutiveSeqNums(t *testing.T) {
	b := NewBatch()
	defer b.Close()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	b.setSeqNum(10)

	mem := memtable.New(base.DefaultComparer.Compare)
	require.NoError(t, b.applyTo(mem))

	v, res := mem.Get(base.LookupKey{UserKey: []byte("a"), Seq: 10})
	require.Equal(t, memtable.LookupFound, res)
	require.Equal(t, "1", string(v))

	v, res = mem.Get(base.LookupKey{UserKey: []byte("b"), Seq: 11})
	require.Equal(t, memtable.LookupFound, res)
	require.Equal(t, "2", string(v))
}

func TestBatchAppend(t *testing.T) {
	a := NewBatch()
	defer a.Close()
	require.NoError(t, a.Set([]byte("x"), []byte("1")))

	b := NewBatch()
	defer b.Close()
	require.NoError(t, b.Delete([]byte("y")))

	require.NoError(t, a.Append(b))
	require.EqualValues(t, 2, a.Count())
}

func TestBatchRoundTripThroughDecodeBatch(t *testing.T) {
	b := NewBatch()
	defer b.Close()
	require.NoError(t, b.Set([]byte("k"), []byte("v")))
	b.setSeqNum(5)

	got, err := decodeBatch(b.Data())
	require.NoError(t, err)
	require.Equal(t, base.SeqNum(5), got.seqNum())
	require.EqualValues(t, 1, got.Count())
}

// TestDataDrivenBatch exercises the wire encoding directly against golden
// files, matching how the teacher's own sstable package is tested.
func TestDataDrivenBatch(t *testing.T) {
	datadriven.RunTest(t, "testdata/batch/ops", func(d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			b := NewBatch()
			defer b.Close()
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				fields := strings.Fields(line)
				switch fields[0] {
				case "set":
					b.Set([]byte(fields[1]), []byte(fields[2]))
				case "del":
					b.Delete([]byte(fields[1]))
				}
			}
			var buf strings.Builder
			b.Iterate(func(kind base.InternalKeyKind, key, value []byte) error {
				if kind == base.InternalKeyKindSet {
					fmt.Fprintf(&buf, "set %s=%s\n", key, value)
				} else {
					fmt.Fprintf(&buf, "del %s\n", key)
				}
				return nil
			})
			fmt.Fprintf(&buf, "count=%d size=%d\n", b.Count(), b.ApproximateSize())
			return buf.String()
		}
		return fmt.Sprintf("unknown command: %s", d.Cmd)
	})
}
