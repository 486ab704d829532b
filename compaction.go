// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"container/heap"
	"time"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/manifest"
	"github.com/kvforge/lsmdb/internal/memtable"
	"github.com/kvforge/lsmdb/sstable"
	"github.com/kvforge/lsmdb/vfs"
)

// maybeScheduleCompaction locks d.mu and delegates to
// maybeScheduleCompactionLocked; used by callers (Open) that have not
// already taken the lock.
func (d *DB) maybeScheduleCompaction() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeScheduleCompactionLocked()
}

// maybeScheduleCompactionLocked wakes the background worker if there is
// work to do and it is not already busy (spec.md §4.9's compaction
// trigger). The caller must hold d.mu.
func (d *DB) maybeScheduleCompactionLocked() {
	if d.mu.closed || d.mu.compact.inProgress || d.mu.bgErr != nil {
		return
	}
	hasImmutable := len(d.mu.mem.queue) > 1
	hasScoredLevel := false
	if !hasImmutable {
		v := d.mu.versions.Current()
		hasScoredLevel = manifest.Pick(v).Score >= 1
		v.Unref()
	}
	if !hasImmutable && !hasScoredLevel {
		return
	}
	d.mu.compact.inProgress = true
	select {
	case d.compactionSignal <- struct{}{}:
	default:
	}
}

// backgroundWorker runs until Close closes d.compactionSignal, performing
// one flush or compaction step per signal (spec.md §4.9's single background
// worker).
func (d *DB) backgroundWorker() {
	for range d.compactionSignal {
		d.doWork()
	}
	close(d.workerDone)
}

func (d *DB) doWork() {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.compact.inProgress = false
		d.mu.Unlock()
		return
	}
	if len(d.mu.mem.queue) > 1 {
		mem := d.mu.mem.queue[0]
		d.mu.Unlock()

		start := time.Now()
		output, err := d.flushMemtable(mem)
		if err == nil {
			d.metrics.recordFlush()
		}
		d.events.flushEnd(FlushInfo{LogNum: mem.LogNum, Output: output, Duration: time.Since(start).Nanoseconds(), Err: err})

		d.mu.Lock()
		d.latchBgErrLocked(err)
		d.mu.compact.inProgress = false
		d.maybeScheduleCompactionLocked()
		d.bgDoneCond.Broadcast()
		d.mu.Unlock()
		return
	}

	v := d.mu.versions.Current()
	info := manifest.Pick(v)
	if info.Level < 0 || info.Score < 1 {
		v.Unref()
		d.mu.compact.inProgress = false
		d.bgDoneCond.Broadcast()
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.events.compactionBegin(info.Level)
	start := time.Now()
	err := d.doCompaction(v, info.Level)
	v.Unref()
	if err == nil {
		d.metrics.recordCompaction()
	}
	d.events.compactionEnd(CompactionInfo{Level: info.Level, Duration: time.Since(start).Nanoseconds(), Err: err})

	d.mu.Lock()
	d.latchBgErrLocked(err)
	d.mu.compact.inProgress = false
	d.maybeScheduleCompactionLocked()
	d.bgDoneCond.Broadcast()
	d.mu.Unlock()
}

// latchBgErrLocked records err as the DB's background error if one is not
// already latched (first error wins, spec.md §7). The caller must hold
// d.mu.
func (d *DB) latchBgErrLocked(err error) {
	if err != nil && d.mu.bgErr == nil {
		d.mu.bgErr = err
	}
}

// writeLevel0Table drains mem's entries into a fresh level-0 SST and
// returns its metadata (the caller installs it into a Version via
// LogAndApply; no reference count is taken on the metadata).
func (d *DB) writeLevel0Table(mem *memtable.Memtable) (*manifest.FileMetaData, error) {
	d.mu.Lock()
	num := d.mu.versions.NextFileNum()
	d.mu.compact.pendingOutputs[num] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.mu.compact.pendingOutputs, num)
		d.mu.Unlock()
	}()

	d.events.flushBegin(mem.LogNum)
	meta, err := d.buildTable(num, mem.NewIter())
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// buildTable reads every entry src yields (already in increasing internal
// key order) into a new table file numbered num.
func (d *DB) buildTable(num base.FileNum, src base.InternalIterator) (*manifest.FileMetaData, error) {
	name := base.MakeFilename(d.dirname, base.FileTypeTable, num)
	f, err := d.fs.Create(name)
	if err != nil {
		return nil, err
	}

	w := sstable.NewWriter(f, d.opts.writerOptions())
	meta := &manifest.FileMetaData{FileNum: num}
	first := true
	for k, v := src.First(); k != nil; k, v = src.Next() {
		if first {
			meta.Smallest = k.Clone()
			meta.SmallestSeqNum = k.SeqNum()
			meta.LargestSeqNum = k.SeqNum()
			first = false
		}
		if k.SeqNum() < meta.SmallestSeqNum {
			meta.SmallestSeqNum = k.SeqNum()
		}
		if k.SeqNum() > meta.LargestSeqNum {
			meta.LargestSeqNum = k.SeqNum()
		}
		meta.Largest = k.Clone()
		if err := w.Add(*k, v); err != nil {
			f.Close()
			return nil, err
		}
	}
	if cerr := src.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := w.Close(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	meta.Size = uint64(fi.Size())
	if err := f.Close(); err != nil {
		return nil, err
	}
	d.metrics.recordBytesWritten(fi.Size())
	return meta, nil
}

// flushMemtable writes mem to a level-0 SST, installs it via a VersionEdit,
// drops mem from the queue, and removes its now-redundant WAL file (spec.md
// §4.9's flush path).
func (d *DB) flushMemtable(mem *memtable.Memtable) (base.FileNum, error) {
	meta, err := d.writeLevel0Table(mem)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	ve := &manifest.VersionEdit{NewFiles: []manifest.NewFileEntry{{Level: 0, Meta: meta}}}
	d.mu.mem.queue = d.mu.mem.queue[1:]
	minLog := d.mu.log.number
	if len(d.mu.mem.queue) > 0 {
		minLog = d.mu.mem.queue[0].LogNum
	}
	ve.SetMinUnflushedLogNum(minLog)
	_, err = d.mu.versions.LogAndApply(ve)
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}

	return meta.FileNum, d.fs.Remove(base.MakeFilename(d.dirname, base.FileTypeLog, mem.LogNum))
}

// doCompaction picks this level's input files and merges them one level
// deeper (spec.md §4.9). Level 0's files may overlap each other, so every
// level-0 file participates; every other level contributes a single seed
// file chosen round-robin via the level's compact pointer.
func (d *DB) doCompaction(v *manifest.Version, level int) error {
	var inputs0 []*manifest.FileMetaData
	if level == 0 {
		// Newest FileNum first, so that when two level-0 files' ranges
		// overlap at the same user key, mergeAndWrite's tie-break (by
		// source priority: lower index wins) prefers the newer file.
		files := v.Files[0]
		for i := len(files) - 1; i >= 0; i-- {
			inputs0 = append(inputs0, files[i])
		}
	} else {
		d.mu.Lock()
		seed := manifest.PickSeedFile(d.cmp, v.Files[level], d.mu.compact.compactPointer[level])
		d.mu.Unlock()
		if seed == nil {
			return nil
		}
		inputs0 = []*manifest.FileMetaData{seed}
	}
	return d.runCompaction(v, level, inputs0)
}

// runCompaction merges inputs0 (drawn from level) with whatever in level+1
// overlaps their combined key range, writing the result as new level+1
// files, and atomically installs the change. A trivial move (a single input
// from a level above 0, no level+1 overlap) skips rewriting entirely.
func (d *DB) runCompaction(v *manifest.Version, level int, inputs0 []*manifest.FileMetaData) error {
	smallest, largest := manifest.KeyRange(d.cmp, inputs0, nil)
	inputs1 := v.Overlaps(level+1, d.cmp, smallest.UserKey, largest.UserKey)

	if level > 0 && len(inputs0) == 1 && len(inputs1) == 0 {
		return d.moveFile(inputs0[0], level)
	}

	sources, err := d.openInputIters(inputs0, inputs1)
	if err != nil {
		return err
	}

	outputs, err := d.mergeAndWrite(v, level, sources)
	if err != nil {
		return err
	}

	d.mu.Lock()
	ve := &manifest.VersionEdit{DeletedFiles: make(map[manifest.DeletedFileEntry]bool)}
	for _, f := range inputs0 {
		ve.DeletedFiles[manifest.DeletedFileEntry{Level: level, FileNum: f.FileNum}] = true
	}
	for _, f := range inputs1 {
		ve.DeletedFiles[manifest.DeletedFileEntry{Level: level + 1, FileNum: f.FileNum}] = true
	}
	for _, meta := range outputs {
		ve.NewFiles = append(ve.NewFiles, manifest.NewFileEntry{Level: level + 1, Meta: meta})
	}
	if len(largest.UserKey) > 0 {
		d.mu.compact.compactPointer[level] = largest
	}
	_, err = d.mu.versions.LogAndApply(ve)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.removeObsoleteFiles(append(append([]*manifest.FileMetaData(nil), inputs0...), inputs1...))
	return nil
}

// moveFile relocates a file one level deeper without rewriting it, used
// when its key range cannot overlap anything already in level+1 (spec.md
// §4.9's trivial-move optimization).
func (d *DB) moveFile(f *manifest.FileMetaData, level int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ve := &manifest.VersionEdit{
		DeletedFiles: map[manifest.DeletedFileEntry]bool{{Level: level, FileNum: f.FileNum}: true},
		NewFiles:     []manifest.NewFileEntry{{Level: level + 1, Meta: f}},
	}
	_, err := d.mu.versions.LogAndApply(ve)
	return err
}

func (d *DB) openInputIters(inputSets ...[]*manifest.FileMetaData) ([]base.InternalIterator, error) {
	var sources []base.InternalIterator
	for _, files := range inputSets {
		for _, f := range files {
			it, err := d.tableCache.newIter(f.FileNum)
			if err != nil {
				for _, s := range sources {
					s.Close()
				}
				return nil, err
			}
			sources = append(sources, it)
		}
	}
	return sources, nil
}

// mergeAndWrite k-way merges sources (newest input first: inputs0 elements
// precede inputs1 elements, matching the priority order runCompaction built
// them in) and writes the result as one or more level+1 tables, dropping
// versions no live snapshot can still observe (spec.md §4.9's compaction
// semantics, grounded on the same container/heap pattern as Iterator).
func (d *DB) mergeAndWrite(v *manifest.Version, level int, sources []base.InternalIterator) ([]*manifest.FileMetaData, error) {
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()

	d.mu.Lock()
	oldestSnapshot := d.mu.snapshots.smallestSnapshot(d.mu.versions.LastSeqNum())
	d.mu.Unlock()

	h := mergeHeap{cmp: d.cmp}
	for i, src := range sources {
		if k, val := src.First(); k != nil {
			heap.Push(&h, cloneMergeItem(k, val, i, i))
		}
	}

	var outputs []*manifest.FileMetaData
	var w *sstable.Writer
	var curFile vfs.File
	var curMeta *manifest.FileMetaData

	closeCurrent := func() error {
		if w == nil {
			return nil
		}
		if _, err := w.Close(); err != nil {
			curFile.Close()
			return err
		}
		if err := curFile.Sync(); err != nil {
			curFile.Close()
			return err
		}
		fi, err := curFile.Stat()
		if err != nil {
			curFile.Close()
			return err
		}
		curMeta.Size = uint64(fi.Size())
		d.metrics.recordBytesWritten(fi.Size())
		if err := curFile.Close(); err != nil {
			return err
		}
		outputs = append(outputs, curMeta)
		w, curFile, curMeta = nil, nil, nil
		return nil
	}

	var hasCurrentKey bool
	var lastUserKey []byte
	var lastSeqForKey base.SeqNum

	for h.Len() > 0 {
		top := heap.Pop(&h).(mergeItem)
		if k, val := sources[top.src].Next(); k != nil {
			heap.Push(&h, cloneMergeItem(k, val, top.src, top.priority))
		}

		drop := false
		sameKey := hasCurrentKey && d.cmp(top.userKey, lastUserKey) == 0
		if !sameKey {
			hasCurrentKey = true
			lastUserKey = top.userKey
		} else if lastSeqForKey <= oldestSnapshot {
			// A newer version <= every live snapshot has already been seen
			// for this key (kept, or a tombstone elided below); nothing
			// older can still be observed.
			drop = true
		}
		if !drop && top.kind() == base.InternalKeyKindDelete &&
			top.seqNum() <= oldestSnapshot && d.isBaseLevelForKey(v, level+2, top.userKey) {
			drop = true
		}
		lastSeqForKey = top.seqNum()
		if drop {
			continue
		}

		if w == nil {
			d.mu.Lock()
			num := d.mu.versions.NextFileNum()
			d.mu.compact.pendingOutputs[num] = true
			d.mu.Unlock()
			name := base.MakeFilename(d.dirname, base.FileTypeTable, num)
			cf, err := d.fs.Create(name)
			if err != nil {
				return nil, err
			}
			curFile = cf
			w = sstable.NewWriter(cf, d.opts.writerOptions())
			curMeta = &manifest.FileMetaData{FileNum: num, Smallest: base.InternalKey{UserKey: top.userKey, Trailer: top.trailer}, SmallestSeqNum: top.seqNum(), LargestSeqNum: top.seqNum()}
		}
		ikey := base.InternalKey{UserKey: top.userKey, Trailer: top.trailer}
		if err := w.Add(ikey, top.value); err != nil {
			return nil, err
		}
		curMeta.Largest = ikey.Clone()
		if top.seqNum() < curMeta.SmallestSeqNum {
			curMeta.SmallestSeqNum = top.seqNum()
		}
		if top.seqNum() > curMeta.LargestSeqNum {
			curMeta.LargestSeqNum = top.seqNum()
		}

		if w.EstimatedSize() >= uint64(d.opts.MaxFileSize) {
			if err := closeCurrent(); err != nil {
				return nil, err
			}
		}
	}
	if err := closeCurrent(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	for _, meta := range outputs {
		delete(d.mu.compact.pendingOutputs, meta.FileNum)
	}
	d.mu.Unlock()

	return outputs, nil
}

// isBaseLevelForKey reports whether no file at level or any deeper level
// can contain userKey, meaning a tombstone for
// userKey being compacted into level no longer needs to shadow anything
// (spec.md §4.9's "is this the base level for the key" check).
func (d *DB) isBaseLevelForKey(v *manifest.Version, level int, userKey []byte) bool {
	for l := level; l < manifest.NumLevels; l++ {
		for _, f := range v.Files[l] {
			if d.cmp(userKey, f.Smallest.UserKey) >= 0 && d.cmp(userKey, f.Largest.UserKey) <= 0 {
				return false
			}
		}
	}
	return true
}

// removeObsoleteFiles drops fileNums from the table cache and deletes their
// backing files now that no Version references them (spec.md §4.9's
// obsolete-file GC). It is safe to call even if another open iterator still
// holds the table cache's reference; the delete is deferred by the
// operating system until every handle closes.
func (d *DB) removeObsoleteFiles(files []*manifest.FileMetaData) {
	for _, f := range files {
		d.tableCache.evict(f.FileNum)
		d.fs.Remove(base.MakeFilename(d.dirname, base.FileTypeTable, f.FileNum))
		d.events.tableDeleted(f.FileNum)
	}
}

// CompactRange forces every file overlapping [start, end] down through the
// tree one level at a time until no level but the last holds an overlapping
// file (SPEC_FULL.md §5's supplemented manual-compaction operation). A nil
// end leaves the range unbounded above; a nil start already sorts first.
func (d *DB) CompactRange(start, end []byte) error {
	for level := 0; level < manifest.NumLevels-1; level++ {
		for {
			d.mu.Lock()
			if d.mu.closed {
				d.mu.Unlock()
				return ErrClosed
			}
			v := d.mu.versions.Current()
			hi := end
			if hi == nil {
				for _, f := range v.Files[level] {
					if hi == nil || d.cmp(f.Largest.UserKey, hi) > 0 {
						hi = f.Largest.UserKey
					}
				}
			}
			inputs0 := v.Overlaps(level, d.cmp, start, hi)
			d.mu.Unlock()
			if len(inputs0) == 0 {
				v.Unref()
				break
			}
			if level > 0 {
				inputs0 = inputs0[:1]
			}
			err := d.runCompaction(v, level, inputs0)
			v.Unref()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// EstimateDiskUsage sums the size of every SST whose key range overlaps
// [start, end] across all levels (SPEC_FULL.md §5's supplemented read-only
// size estimate; an upper bound, since it does not account for a key range
// narrower than a file's full span).
func (d *DB) EstimateDiskUsage(start, end []byte) (uint64, error) {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	v := d.mu.versions.Current()
	d.mu.Unlock()
	defer v.Unref()

	var total uint64
	for level := 0; level < manifest.NumLevels; level++ {
		for _, f := range v.Overlaps(level, d.cmp, start, end) {
			total += f.Size
		}
	}
	return total, nil
}
