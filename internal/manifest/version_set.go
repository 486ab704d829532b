// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/record"
	"github.com/kvforge/lsmdb/vfs"
	"golang.org/x/exp/slices"
)

// VersionSet owns the single mutable "current Version" plus everything
// needed to extend it with new VersionEdits: the MANIFEST log writer, the
// file-number and sequence-number allocators, and the list of live
// Versions (spec.md §4.9).
type VersionSet struct {
	mu  *sync.Mutex
	dir string
	fs  vfs.FS
	cmp base.Compare

	versions VersionList

	nextFileNum base.FileNum
	lastSeqNum  base.SeqNum
	logNum      base.FileNum
	manifestNum base.FileNum

	manifestWriter *record.Writer
	manifestFD     vfs.File

	comparerName string
}

// Create initializes a brand-new VersionSet (no prior MANIFEST) with an
// empty Version, and writes the first MANIFEST file plus CURRENT pointer.
func Create(mu *sync.Mutex, dir string, fs vfs.FS, cmp base.Compare, comparerName string) (*VersionSet, error) {
	vs := &VersionSet{
		mu:           mu,
		dir:          dir,
		fs:           fs,
		cmp:          cmp,
		comparerName: comparerName,
		nextFileNum:  1,
	}
	vs.versions.Init(mu)
	v := &Version{}
	v.Ref()
	vs.versions.PushBack(v)

	vs.manifestNum = vs.getNextFileNum()
	if err := vs.createManifest(); err != nil {
		return nil, err
	}
	if err := vs.writeCurrent(); err != nil {
		return nil, err
	}
	return vs, nil
}

// Recover replays an existing MANIFEST (found via the CURRENT file) to
// reconstruct the current Version and allocator state (spec.md §4.9's
// recovery sequencing, step 1).
func Recover(mu *sync.Mutex, dir string, fs vfs.FS, cmp base.Compare, comparerName string) (*VersionSet, error) {
	vs := &VersionSet{mu: mu, dir: dir, fs: fs, cmp: cmp, comparerName: comparerName}
	vs.versions.Init(mu)

	current, err := fs.Open(base.MakeFilename(dir, base.FileTypeCurrent, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "manifest: open CURRENT")
	}
	data, err := readAll(current)
	current.Close()
	if err != nil {
		return nil, err
	}
	manifestName := trimNewline(string(data))
	if manifestName == "" {
		return nil, base.CorruptionErrorf("manifest: empty CURRENT file")
	}
	_, manifestFileNum, ok := base.ParseFilename(manifestName)
	if !ok {
		return nil, base.CorruptionErrorf("manifest: CURRENT names unparseable file %q", manifestName)
	}
	vs.manifestNum = manifestFileNum

	f, err := fs.Open(dir + "/" + manifestName)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest: open %s", manifestName)
	}

	var bve bulkVersionEdit
	rr := record.NewReader(f, nil)
	for {
		payload, ok := rr.Next()
		if !ok {
			break
		}
		ve, err := Decode(bytes.NewReader(payload))
		if err != nil {
			f.Close()
			return nil, err
		}
		if ve.ComparerName != "" && ve.ComparerName != comparerName {
			f.Close()
			return nil, errors.Mark(errors.Newf("manifest: comparer %q does not match %q recorded in %s",
				comparerName, ve.ComparerName, manifestName), base.ErrNotSupported)
		}
		bve.accumulate(ve)
		if ve.hasNextFileNum {
			vs.nextFileNum = ve.NextFileNum
		}
		if ve.hasLastSeqNum {
			vs.lastSeqNum = ve.LastSeqNum
		}
		if ve.hasMinUnflushedLogNum {
			vs.logNum = ve.MinUnflushedLogNum
		}
	}
	f.Close()

	v := &Version{}
	bve.apply(v)
	if err := v.CheckOrdering(cmp); err != nil {
		return nil, err
	}
	v.Ref()
	vs.versions.PushBack(v)

	if vs.nextFileNum <= vs.manifestNum {
		vs.nextFileNum = vs.manifestNum + 1
	}

	manifestFD, err := fs.OpenForAppend(dir + "/" + manifestName)
	if err != nil {
		return nil, err
	}
	fi, err := manifestFD.Stat()
	if err != nil {
		manifestFD.Close()
		return nil, err
	}
	vs.manifestFD = manifestFD
	vs.manifestWriter = record.NewWriterAt(manifestFD, int(fi.Size()))
	return vs, nil
}

// Current returns the live Version, already Ref'd for the caller.
func (vs *VersionSet) Current() *Version {
	v := vs.versions.Back()
	v.Ref()
	return v
}

// NumLevelFiles returns the number of files at level in the current
// Version. Callers hold the DB mutex across VersionSet mutation, so this
// needs no refcounting of its own (grounded on
// original_source/db/version_set.cc's VersionSet::NumLevelFiles, used by
// MakeRoomForWrite's slowdown/stall thresholds).
func (vs *VersionSet) NumLevelFiles(level int) int {
	return len(vs.versions.Back().Files[level])
}

// NextFileNum allocates and returns the next file number.
func (vs *VersionSet) NextFileNum() base.FileNum { return vs.getNextFileNum() }

func (vs *VersionSet) getNextFileNum() base.FileNum {
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

// LastSeqNum returns the most recently persisted sequence number.
func (vs *VersionSet) LastSeqNum() base.SeqNum { return vs.lastSeqNum }

// SetLastSeqNum records the highest sequence number assigned so far.
func (vs *VersionSet) SetLastSeqNum(seq base.SeqNum) { vs.lastSeqNum = seq }

// MinUnflushedLogNum returns the smallest log file that might still hold
// data not yet durable in an SST.
func (vs *VersionSet) MinUnflushedLogNum() base.FileNum { return vs.logNum }

// LogAndApply appends edit to the MANIFEST, builds the next Version from
// the current one plus the edit, installs it as current, and unrefs the
// prior Version (spec.md §4.9's atomic-install protocol). The caller must
// hold vs.mu.
func (vs *VersionSet) LogAndApply(edit *VersionEdit) (*Version, error) {
	edit.NextFileNum = vs.nextFileNum
	edit.hasNextFileNum = true
	edit.LastSeqNum = vs.lastSeqNum
	edit.hasLastSeqNum = true

	var bve bulkVersionEdit
	bve.accumulate(edit)

	baseVersion := vs.versions.Back()
	nv := &Version{}
	bve.applyFrom(baseVersion, nv)
	if err := nv.CheckOrdering(vs.cmp); err != nil {
		return nil, errors.Wrapf(err, "manifest: new version fails ordering check")
	}

	if err := vs.manifestWriter.AddRecord(edit.Encode(nil)); err != nil {
		return nil, err
	}
	if err := vs.manifestFD.Sync(); err != nil {
		return nil, err
	}
	if edit.hasMinUnflushedLogNum {
		vs.logNum = edit.MinUnflushedLogNum
	}

	nv.Ref()
	vs.versions.PushBack(nv)
	// The caller already holds vs.mu, which Version.Unref would take again.
	if baseVersion.refs.Add(-1) == 0 {
		vs.versions.remove(baseVersion)
	}
	return nv, nil
}

// createManifest writes the initial bootstrap record (comparer name, file
// numbers, sequence number) for a fresh database.
func (vs *VersionSet) createManifest() error {
	name := base.MakeFilename(vs.dir, base.FileTypeManifest, vs.manifestNum)
	f, err := vs.fs.Create(name)
	if err != nil {
		return err
	}
	vs.manifestFD = f
	vs.manifestWriter = record.NewWriter(f)

	ve := &VersionEdit{
		ComparerName:          vs.comparerName,
		NextFileNum:           vs.nextFileNum,
		hasNextFileNum:        true,
		LastSeqNum:            0,
		hasLastSeqNum:         true,
		MinUnflushedLogNum:    0,
		hasMinUnflushedLogNum: true,
	}
	if err := vs.manifestWriter.AddRecord(ve.Encode(nil)); err != nil {
		return err
	}
	return f.Sync()
}

// writeCurrent atomically points CURRENT at vs.manifestNum via a
// write-temp-then-rename (spec.md §4.9's CURRENT-file protocol, grounded on
// original_source/db/version_set.cc's SetCurrentFile).
func (vs *VersionSet) writeCurrent() error {
	manifestBase := base.MakeFilenameBase(base.FileTypeManifest, vs.manifestNum)
	tmpName := base.MakeFilename(vs.dir, base.FileTypeTemp, vs.manifestNum)
	f, err := vs.fs.Create(tmpName)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(manifestBase + "\n")); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return vs.fs.Rename(tmpName, base.MakeFilename(vs.dir, base.FileTypeCurrent, 0))
}

// bulkVersionEdit accumulates the deleted/added files across a sequence of
// edits (used by both Recover, which folds an entire MANIFEST, and
// LogAndApply, which folds a single edit) before applying them to a
// Version in one pass, mirroring the teacher's VersionSet::Builder.
type bulkVersionEdit struct {
	deleted [NumLevels]map[base.FileNum]bool
	added   [NumLevels][]*FileMetaData
}

func (b *bulkVersionEdit) accumulate(ve *VersionEdit) {
	for de := range ve.DeletedFiles {
		if b.deleted[de.Level] == nil {
			b.deleted[de.Level] = map[base.FileNum]bool{}
		}
		b.deleted[de.Level][de.FileNum] = true
	}
	for _, nf := range ve.NewFiles {
		b.added[nf.Level] = append(b.added[nf.Level], nf.Meta)
	}
}

// apply builds v from scratch (used during Recover, where there is no
// preceding base Version): every added file not later deleted at the same
// level.
func (b *bulkVersionEdit) apply(v *Version) {
	for level := 0; level < NumLevels; level++ {
		for _, f := range b.added[level] {
			if b.deleted[level] != nil && b.deleted[level][f.FileNum] {
				continue
			}
			v.Files[level] = append(v.Files[level], f)
		}
		sortFiles(level, v.Files[level])
	}
}

// applyFrom builds nv as base's file lists with b's deletions removed and
// b's additions inserted (used by LogAndApply).
func (b *bulkVersionEdit) applyFrom(baseVersion *Version, nv *Version) {
	for level := 0; level < NumLevels; level++ {
		var kept []*FileMetaData
		for _, f := range baseVersion.Files[level] {
			if b.deleted[level] != nil && b.deleted[level][f.FileNum] {
				continue
			}
			kept = append(kept, f)
		}
		kept = append(kept, b.added[level]...)
		sortFiles(level, kept)
		nv.Files[level] = kept
	}
}

func sortFiles(level int, files []*FileMetaData) {
	if level == 0 {
		slices.SortFunc(files, func(a, b *FileMetaData) bool { return a.FileNum < b.FileNum })
		return
	}
	slices.SortFunc(files, func(a, b *FileMetaData) bool {
		return base.InternalCompare(base.DefaultComparer.Compare, a.Smallest, b.Smallest) < 0
	})
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func readAll(f vfs.File) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}
