// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"
)

// FileNum is an identifier from the engine's single monotonically
// increasing allocator, shared across WAL files, SSTs, and MANIFEST files
// (spec.md §3, "File-number space").
type FileNum uint64

func (fn FileNum) String() string { return strconv.FormatUint(uint64(fn), 10) }

// FileType identifies the kind of file a FileNum names.
type FileType int

// The recognized file types (spec.md §6).
const (
	FileTypeLog FileType = iota
	FileTypeManifest
	FileTypeTable
	FileTypeCurrent
	FileTypeLock
	FileTypeLogInfo // LOG/LOG.old
	FileTypeTemp
)

// MakeFilename builds the conventional on-disk name for fileNum of type ft
// inside dirname.
func MakeFilename(dirname string, ft FileType, fileNum FileNum) string {
	base := MakeFilenameBase(ft, fileNum)
	if dirname == "" {
		return base
	}
	return strings.TrimSuffix(dirname, "/") + "/" + base
}

// MakeFilenameBase returns just the basename (no directory) for fileNum of
// type ft.
func MakeFilenameBase(ft FileType, fileNum FileNum) string {
	switch ft {
	case FileTypeLog:
		return fmt.Sprintf("%06d.log", fileNum)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%06d", fileNum)
	case FileTypeTable:
		return fmt.Sprintf("%06d.ldb", fileNum)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeLock:
		return "LOCK"
	case FileTypeLogInfo:
		return "LOG"
	case FileTypeTemp:
		return fmt.Sprintf("%06d.dbtmp", fileNum)
	default:
		panic("lsmdb: unknown file type")
	}
}

// ParseFilename parses name (a basename, no directory) and reports its type
// and file number. SST files are recognized under both the modern ".ldb"
// extension and the legacy ".sst" extension (spec.md §6, "File-number
// parser accepts either .ldb or .sst for SSTs").
func ParseFilename(name string) (ft FileType, fn FileNum, ok bool) {
	switch {
	case name == "CURRENT":
		return FileTypeCurrent, 0, true
	case name == "LOCK":
		return FileTypeLock, 0, true
	case name == "LOG" || name == "LOG.old":
		return FileTypeLogInfo, 0, true
	case strings.HasPrefix(name, "MANIFEST-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeManifest, FileNum(n), true
	case strings.HasSuffix(name, ".log"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeLog, FileNum(n), true
	case strings.HasSuffix(name, ".ldb"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".ldb"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeTable, FileNum(n), true
	case strings.HasSuffix(name, ".sst"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".sst"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeTable, FileNum(n), true
	case strings.HasSuffix(name, ".dbtmp"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".dbtmp"), 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeTemp, FileNum(n), true
	default:
		return 0, 0, false
	}
}
