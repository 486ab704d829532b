// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"io"

	"github.com/kvforge/lsmdb/internal/base"
)

// Tag numbers for the VersionEdit wire format. The numbering follows
// LevelDB's original MANIFEST tags (spec.md §4.9, "MANIFEST record format");
// this engine has no column families, so the RocksDB-era tags for those are
// not emitted and are rejected on read.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

// DeletedFileEntry identifies a file removed from a level by an edit.
type DeletedFileEntry struct {
	Level   int
	FileNum base.FileNum
}

// NewFileEntry adds a file to a level.
type NewFileEntry struct {
	Level int
	Meta  *FileMetaData
}

// VersionEdit describes a batch of changes to apply to the current Version
// to produce the next one: it is both the in-memory representation of one
// MANIFEST record and the unit of atomicity for LogAndApply (spec.md §4.9).
type VersionEdit struct {
	ComparerName string

	// MinUnflushedLogNum is the smallest log file number whose writes might
	// not yet be reflected in an on-disk table. Logs below it are safe to
	// delete once the edit is applied.
	MinUnflushedLogNum base.FileNum
	ObsoletePrevLogNum  base.FileNum
	NextFileNum         base.FileNum
	LastSeqNum          base.SeqNum

	CompactPointers []struct {
		Level int
		Key   base.InternalKey
	}
	DeletedFiles map[DeletedFileEntry]bool
	NewFiles     []NewFileEntry

	hasComparator         bool
	hasMinUnflushedLogNum bool
	hasObsoletePrevLogNum bool
	hasNextFileNum        bool
	hasLastSeqNum         bool
}

// SetMinUnflushedLogNum records that logs below n are fully reflected in an
// on-disk table and may be deleted once this edit is applied.
func (v *VersionEdit) SetMinUnflushedLogNum(n base.FileNum) {
	v.MinUnflushedLogNum = n
	v.hasMinUnflushedLogNum = true
}

// Encode appends the edit's tagged wire encoding to dst and returns it.
func (v *VersionEdit) Encode(dst []byte) []byte {
	if v.ComparerName != "" {
		dst = base.PutUvarint(dst, tagComparator)
		dst = base.PutVarstring(dst, []byte(v.ComparerName))
	}
	if v.hasMinUnflushedLogNum {
		dst = base.PutUvarint(dst, tagLogNumber)
		dst = base.PutUvarint(dst, uint64(v.MinUnflushedLogNum))
	}
	if v.hasObsoletePrevLogNum {
		dst = base.PutUvarint(dst, tagPrevLogNumber)
		dst = base.PutUvarint(dst, uint64(v.ObsoletePrevLogNum))
	}
	if v.hasNextFileNum {
		dst = base.PutUvarint(dst, tagNextFileNumber)
		dst = base.PutUvarint(dst, uint64(v.NextFileNum))
	}
	if v.hasLastSeqNum {
		dst = base.PutUvarint(dst, tagLastSequence)
		dst = base.PutUvarint(dst, uint64(v.LastSeqNum))
	}
	for _, cp := range v.CompactPointers {
		dst = base.PutUvarint(dst, tagCompactPointer)
		dst = base.PutUvarint(dst, uint64(cp.Level))
		dst = base.PutVarstring(dst, encodeKey(cp.Key))
	}
	for de := range v.DeletedFiles {
		dst = base.PutUvarint(dst, tagDeletedFile)
		dst = base.PutUvarint(dst, uint64(de.Level))
		dst = base.PutUvarint(dst, uint64(de.FileNum))
	}
	for _, nf := range v.NewFiles {
		dst = base.PutUvarint(dst, tagNewFile)
		dst = base.PutUvarint(dst, uint64(nf.Level))
		dst = base.PutUvarint(dst, uint64(nf.Meta.FileNum))
		dst = base.PutUvarint(dst, nf.Meta.Size)
		dst = base.PutVarstring(dst, encodeKey(nf.Meta.Smallest))
		dst = base.PutVarstring(dst, encodeKey(nf.Meta.Largest))
		dst = base.PutUvarint(dst, uint64(nf.Meta.SmallestSeqNum))
		dst = base.PutUvarint(dst, uint64(nf.Meta.LargestSeqNum))
	}
	return dst
}

// encodeKey appends an internal key's user key and trailer, matching the
// representation sstable block entries use (spec.md §4.5).
func encodeKey(k base.InternalKey) []byte {
	buf := append([]byte(nil), k.UserKey...)
	return k.Encode(buf)
}

func decodeKey(b []byte) (base.InternalKey, error) {
	if len(b) < 8 {
		return base.InternalKey{}, base.CorruptionErrorf("manifest: corrupt internal key")
	}
	return base.DecodeInternalKey(b), nil
}

// Decode parses a single VersionEdit record from r.
func Decode(r io.Reader) (*VersionEdit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	v := &VersionEdit{DeletedFiles: make(map[DeletedFileEntry]bool)}
	buf := data
	for len(buf) > 0 {
		tag, rest, ok := base.GetUvarint(buf)
		if !ok {
			return nil, base.CorruptionErrorf("manifest: corrupt version edit: bad tag")
		}
		buf = rest
		var err error
		switch tag {
		case tagComparator:
			var name []byte
			if name, buf, ok = base.GetVarstring(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt comparator name")
				break
			}
			v.ComparerName = string(name)
			v.hasComparator = true

		case tagLogNumber:
			var n uint64
			if n, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt log number")
				break
			}
			v.MinUnflushedLogNum = base.FileNum(n)
			v.hasMinUnflushedLogNum = true

		case tagPrevLogNumber:
			var n uint64
			if n, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt prev log number")
				break
			}
			v.ObsoletePrevLogNum = base.FileNum(n)
			v.hasObsoletePrevLogNum = true

		case tagNextFileNumber:
			var n uint64
			if n, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt next file number")
				break
			}
			v.NextFileNum = base.FileNum(n)
			v.hasNextFileNum = true

		case tagLastSequence:
			var n uint64
			if n, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt last sequence")
				break
			}
			v.LastSeqNum = base.SeqNum(n)
			v.hasLastSeqNum = true

		case tagCompactPointer:
			var level uint64
			var keyBuf []byte
			if level, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt compact pointer level")
				break
			}
			if keyBuf, buf, ok = base.GetVarstring(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt compact pointer key")
				break
			}
			key, derr := decodeKey(keyBuf)
			if derr != nil {
				err = derr
				break
			}
			v.CompactPointers = append(v.CompactPointers, struct {
				Level int
				Key   base.InternalKey
			}{int(level), key})

		case tagDeletedFile:
			var level, fileNum uint64
			if level, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt deleted file level")
				break
			}
			if fileNum, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt deleted file number")
				break
			}
			v.DeletedFiles[DeletedFileEntry{int(level), base.FileNum(fileNum)}] = true

		case tagNewFile:
			m := &FileMetaData{}
			var level, fileNum, size, smallestSeq, largestSeq uint64
			var smallestBuf, largestBuf []byte
			if level, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file level")
				break
			}
			if fileNum, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file number")
				break
			}
			if size, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file size")
				break
			}
			if smallestBuf, buf, ok = base.GetVarstring(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file smallest key")
				break
			}
			if largestBuf, buf, ok = base.GetVarstring(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file largest key")
				break
			}
			if smallestSeq, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file smallest seqnum")
				break
			}
			if largestSeq, buf, ok = base.GetUvarint(buf); !ok {
				err = base.CorruptionErrorf("manifest: corrupt new file largest seqnum")
				break
			}
			m.FileNum = base.FileNum(fileNum)
			m.Size = size
			if m.Smallest, err = decodeKey(smallestBuf); err != nil {
				break
			}
			if m.Largest, err = decodeKey(largestBuf); err != nil {
				break
			}
			m.SmallestSeqNum = base.SeqNum(smallestSeq)
			m.LargestSeqNum = base.SeqNum(largestSeq)
			v.NewFiles = append(v.NewFiles, NewFileEntry{int(level), m})

		default:
			err = base.CorruptionErrorf("manifest: unknown version edit tag %d", tag)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}
