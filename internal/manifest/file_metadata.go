// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest implements component C9 (spec.md §4.9): the VersionEdit
// log format, the in-memory Version/VersionSet it replays into, and the
// compaction picker that scores levels for background compaction.
package manifest

import "github.com/kvforge/lsmdb/internal/base"

// NumLevels is the fixed number of levels in the LSM tree (spec.md §3).
const NumLevels = 7

// FileMetaData describes one on-disk table (spec.md §3's "file metadata").
type FileMetaData struct {
	FileNum        base.FileNum
	Size           uint64
	Smallest       base.InternalKey
	Largest        base.InternalKey
	SmallestSeqNum base.SeqNum
	LargestSeqNum  base.SeqNum

	// MarkedForCompaction flags the file for compaction. Nothing in the
	// engine sets it, and Pick does not consult it.
	MarkedForCompaction bool

	// AllowedSeeks is a seek budget for the file. The engine neither seeds
	// nor decrements it, and no compaction is scheduled from it: Pick
	// chooses levels by file count (level 0) and bytes only.
	AllowedSeeks int64

	refs int32
}

// Ref increments the file's reference count. Neither Version installation
// nor the table cache calls it, so the count reflects explicit Ref/Unref
// calls only.
func (f *FileMetaData) Ref() { f.refs++ }

// Unref decrements the file's reference count and returns the new count.
// Obsolete-file deletion does not consult it.
func (f *FileMetaData) Unref() int32 {
	f.refs--
	return f.refs
}

// TotalSize returns the summed size of all files in files.
func TotalSize(files []*FileMetaData) uint64 {
	var size uint64
	for _, f := range files {
		size += f.Size
	}
	return size
}

// KeyRange returns the smallest and largest internal keys spanning f0∪f1.
func KeyRange(cmp base.Compare, f0, f1 []*FileMetaData) (smallest, largest base.InternalKey) {
	first := true
	for _, files := range [2][]*FileMetaData{f0, f1} {
		for _, f := range files {
			if first {
				first = false
				smallest, largest = f.Smallest, f.Largest
				continue
			}
			if base.InternalCompare(cmp, f.Smallest, smallest) < 0 {
				smallest = f.Smallest
			}
			if base.InternalCompare(cmp, f.Largest, largest) > 0 {
				largest = f.Largest
			}
		}
	}
	return smallest, largest
}
