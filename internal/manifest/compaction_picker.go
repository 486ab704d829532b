// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import "github.com/kvforge/lsmdb/internal/base"

// L0CompactionTrigger is the level-0 file count above which a compaction is
// scored, grounded on original_source/db/dbformat.h's kL0_CompactionTrigger.
const L0CompactionTrigger = 4

// L0SlowdownWritesTrigger and L0StopWritesTrigger gate MakeRoomForWrite's
// write-path backpressure (spec.md §4.11): at or above the slowdown
// threshold a writer sleeps once before proceeding; at or above the stop
// threshold it blocks until compaction drains level 0. Grounded on
// original_source/db/dbformat.h's kL0_SlowdownWritesTrigger /
// kL0_StopWritesTrigger.
const (
	L0SlowdownWritesTrigger = 8
	L0StopWritesTrigger     = 12
)

// MaxBytesForLevel returns the byte budget for level (level 0 is unscored
// by bytes; see Pick). Level 1's budget is 10 MiB, growing by a factor of
// 10 per level below it (level 2 is 100 MiB), grounded on
// original_source/db/version_set.cc's MaxBytesForLevel.
func MaxBytesForLevel(level int) float64 {
	result := 10.0 * 1048576.0
	for level > 1 {
		result *= 10
		level--
	}
	return result
}

// MaxGrandparentOverlapBytes bounds how much of level+2 a single
// level/level+1 compaction output file may overlap before it is cut short,
// grounded on MaxGrandParentOverlapBytes (10x the target file size).
func MaxGrandparentOverlapBytes(targetFileSize int64) int64 {
	return 10 * targetFileSize
}

// CompactionInfo names the level Pick chose and that level's score.
type CompactionInfo struct {
	Level int
	Score float64
}

// Pick scores every level but the last (the last level has nothing below it
// to compact into) and returns the one with the highest score, ties broken
// by the lowest level number since the loop keeps the first max it sees.
// Level 0 is scored by file count against L0CompactionTrigger rather than
// by bytes, since many small level-0 files each cost a seek on every read
// regardless of their total size (spec.md §4.9, Finalize in
// original_source/db/version_set.cc).
func Pick(v *Version) CompactionInfo {
	best := CompactionInfo{Level: -1, Score: -1}
	for level := 0; level < NumLevels-1; level++ {
		var score float64
		if level == 0 {
			score = float64(len(v.Files[0])) / float64(L0CompactionTrigger)
		} else {
			score = float64(TotalSize(v.Files[level])) / MaxBytesForLevel(level)
		}
		if score > best.Score {
			best = CompactionInfo{Level: level, Score: score}
		}
	}
	return best
}

// PickSeedFile chooses which file within level to start a compaction from:
// the first file whose largest key is greater than the level's recorded
// compact pointer, wrapping around to the first file if the pointer is
// past every file (round-robin over successive compactions of the same
// level, per spec.md §4.9).
func PickSeedFile(cmp base.Compare, files []*FileMetaData, compactPointer base.InternalKey) *FileMetaData {
	if len(files) == 0 {
		return nil
	}
	if compactPointer.UserKey == nil {
		return files[0]
	}
	for _, f := range files {
		if base.InternalCompare(cmp, f.Largest, compactPointer) > 0 {
			return f
		}
	}
	return files[0]
}
