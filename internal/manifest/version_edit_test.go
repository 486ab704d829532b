// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestVersionEditRoundTrip(t *testing.T) {
	ve := &VersionEdit{
		ComparerName:          "lsmdb.BytewiseComparator",
		hasMinUnflushedLogNum: true,
		MinUnflushedLogNum:    7,
		hasNextFileNum:        true,
		NextFileNum:           42,
		hasLastSeqNum:         true,
		LastSeqNum:            99,
		DeletedFiles: map[DeletedFileEntry]bool{
			{Level: 0, FileNum: 3}: true,
		},
		NewFiles: []NewFileEntry{
			{Level: 1, Meta: &FileMetaData{
				FileNum:        9,
				Size:           2048,
				Smallest:       ikey("a", 1),
				Largest:        ikey("z", 5),
				SmallestSeqNum: 1,
				LargestSeqNum:  5,
			}},
		},
	}

	buf := ve.Encode(nil)
	got, err := Decode(bytes.NewReader(buf))
	require.NoError(t, err)

	require.Equal(t, ve.ComparerName, got.ComparerName)
	require.Equal(t, ve.MinUnflushedLogNum, got.MinUnflushedLogNum)
	require.Equal(t, ve.NextFileNum, got.NextFileNum)
	require.Equal(t, ve.LastSeqNum, got.LastSeqNum)
	require.Equal(t, ve.DeletedFiles, got.DeletedFiles)
	require.Len(t, got.NewFiles, 1)
	require.Equal(t, ve.NewFiles[0].Level, got.NewFiles[0].Level)
	require.Equal(t, ve.NewFiles[0].Meta.FileNum, got.NewFiles[0].Meta.FileNum)
	require.Equal(t, ve.NewFiles[0].Meta.Size, got.NewFiles[0].Meta.Size)
	require.Equal(t, ve.NewFiles[0].Meta.Smallest, got.NewFiles[0].Meta.Smallest)
	require.Equal(t, ve.NewFiles[0].Meta.Largest, got.NewFiles[0].Meta.Largest)
}

func TestVersionEditDecodeRejectsUnknownTag(t *testing.T) {
	buf := base.PutUvarint(nil, 250)
	_, err := Decode(bytes.NewReader(buf))
	require.Error(t, err)
}

// TestDataDrivenVersionEdit exercises bulkVersionEdit.apply over a sequence
// of add commands, printing the resulting Version as a per-level file
// listing, matching the teacher's own Version dump format. This is the code
// path Recover uses to fold an entire MANIFEST into the initial Version.
func TestDataDrivenVersionEdit(t *testing.T) {
	datadriven.RunTest(t, "testdata/version_edit", func(d *datadriven.TestData) string {
		switch d.Cmd {
		case "apply":
			var bve bulkVersionEdit
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				fields := strings.Fields(line)
				level := atoi(fields[1])
				num := atoi(fields[2])
				ve := &VersionEdit{NewFiles: []NewFileEntry{{
					Level: level,
					Meta: &FileMetaData{
						FileNum:  base.FileNum(num),
						Size:     100,
						Smallest: ikey(fields[3], base.SeqNum(num)),
						Largest:  ikey(fields[4], base.SeqNum(num)),
					},
				}}}
				bve.accumulate(ve)
			}
			v := &Version{}
			bve.apply(v)
			return dumpVersion(v)
		}
		return fmt.Sprintf("unknown command: %s", d.Cmd)
	})
}

func TestBulkVersionEditApplyFromDeletesAndAdds(t *testing.T) {
	base0 := &Version{}
	base0.Files[1] = []*FileMetaData{meta(1, "a", "c"), meta(2, "d", "f")}

	var bve bulkVersionEdit
	bve.accumulate(&VersionEdit{
		DeletedFiles: map[DeletedFileEntry]bool{{Level: 1, FileNum: 1}: true},
		NewFiles:     []NewFileEntry{{Level: 1, Meta: meta(3, "g", "i")}},
	})

	nv := &Version{}
	bve.applyFrom(base0, nv)
	require.Len(t, nv.Files[1], 2)
	require.Equal(t, base.FileNum(2), nv.Files[1][0].FileNum)
	require.Equal(t, base.FileNum(3), nv.Files[1][1].FileNum)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func dumpVersion(v *Version) string {
	var levels []int
	for level := 0; level < NumLevels; level++ {
		if len(v.Files[level]) > 0 {
			levels = append(levels, level)
		}
	}
	sort.Ints(levels)
	var buf strings.Builder
	for _, level := range levels {
		fmt.Fprintf(&buf, "%d:", level)
		for _, f := range v.Files[level] {
			fmt.Fprintf(&buf, " %d:[%s-%s]", f.FileNum, f.Smallest.UserKey, f.Largest.UserKey)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
