// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package lsmdb implements an embedded, single-writer, ordered key-value
// store on an LSM tree: a write-ahead log and memtable absorb writes,
// background compaction merges them down through levelled SSTs, and a
// MANIFEST records which SSTs make up the live Version (spec.md §1).
package lsmdb

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/manifest"
	"github.com/kvforge/lsmdb/internal/memtable"
	"github.com/kvforge/lsmdb/internal/record"
	"github.com/kvforge/lsmdb/vfs"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = base.ErrNotFound

// ErrClosed is returned by any operation performed on a closed DB.
var ErrClosed = base.ErrClosed

// DB is an open database. The zero DB is not usable; construct one with
// Open. A DB is safe for concurrent readers, but writes (Set, Delete,
// Apply) are serialized internally onto a single mutex, matching spec.md
// §1's single-writer scope.
type DB struct {
	dirname string
	opts    *Options
	cmp     base.Compare

	fs         vfs.FS
	tableCache *tableCache
	fileLock   vfs.Lock
	metrics    *Metrics
	events     *EventListener

	// compactionSignal wakes the background worker; it is buffered so a
	// maybeScheduleXxx call never blocks the caller holding d.mu.
	compactionSignal chan struct{}
	workerDone       chan struct{}

	// writerCond wakes a queued writer when it reaches the head of
	// d.mu.writers or is completed by coalescing into another leader's
	// batch; bgDoneCond wakes a writer blocked in makeRoomForWrite on the
	// immutable-memtable slot or the level-0 stop-writes threshold
	// whenever the background worker finishes a unit of work (spec.md
	// §4.11, §5's suspension points). Both share d.mu's Locker.
	writerCond *sync.Cond
	bgDoneCond *sync.Cond

	mu struct {
		sync.Mutex

		closed bool

		versions *manifest.VersionSet

		// writers is the FIFO of pending Apply calls (spec.md §4.11's
		// writer queue); writers[0] is the leader currently coalescing
		// and committing a batch.
		writers []*writer
		// bgErr latches the first background compaction/flush/WAL-sync
		// failure; once set, every subsequent write fails with it and no
		// further compaction is scheduled (spec.md §7).
		bgErr error

		mem struct {
			// mutable is the memtable new writes go to; it is also
			// queue[len(queue)-1].
			mutable *memtable.Memtable
			// queue holds mutable plus every immutable memtable not yet
			// flushed, oldest first.
			queue []*memtable.Memtable
		}

		log struct {
			number base.FileNum
			file   vfs.File
			writer *record.Writer
		}

		compact struct {
			// inProgress is true while the background worker holds an
			// active flush or compaction; maybeScheduleXxx is a no-op
			// while it is set.
			inProgress bool
			// pendingOutputs names SSTs a flush or compaction is actively
			// writing, before any Version references them. Nothing reads
			// it: removeObsoleteFiles deletes only the input files it is
			// handed.
			pendingOutputs map[base.FileNum]bool
			// compactPointer records, per level, the largest key
			// consumed by the last compaction out of that level, for
			// PickSeedFile's round-robin file choice.
			compactPointer [manifest.NumLevels]base.InternalKey
		}

		snapshots snapshotList
	}
}

// writer is one Apply call queued on the DB's writer FIFO. The writer at
// the head of the queue is the leader: it runs makeRoomForWrite, then
// coalesces and commits its own batch plus any batches immediately behind
// it in the queue, marking each as done (spec.md §4.11).
type writer struct {
	batch *Batch
	err   error
	done  bool
}

// Get returns the value most recently Set for key, or ErrNotFound if key
// has been deleted or never existed (spec.md §4.11's read path: memtable
// first, then levels 0..N in order, newest write wins).
func (d *DB) Get(key []byte) ([]byte, error) {
	return d.getAt(key, d.visibleSeqNum())
}

func (d *DB) getAt(key []byte, seq base.SeqNum) ([]byte, error) {
	start := time.Now()
	defer func() { d.metrics.recordGetLatency(time.Since(start).Microseconds()) }()

	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	memQueue := append([]*memtable.Memtable(nil), d.mu.mem.queue...)
	for _, m := range memQueue {
		m.Ref()
	}
	v := d.mu.versions.Current()
	d.mu.Unlock()
	defer v.Unref()
	defer func() {
		for _, m := range memQueue {
			m.Unref()
		}
	}()

	lookup := base.LookupKey{UserKey: key, Seq: seq}

	// Newest memtable first: queue is oldest-to-newest, so walk backwards.
	for i := len(memQueue) - 1; i >= 0; i-- {
		value, result := memQueue[i].Get(lookup)
		switch result {
		case memtable.LookupFound:
			return value, nil
		case memtable.LookupDeleted:
			return nil, ErrNotFound
		}
	}

	for level := 0; level < manifest.NumLevels; level++ {
		files := v.Files[level]
		if len(files) == 0 {
			continue
		}
		if level == 0 {
			// Level-0 files may overlap; newest file (highest FileNum) must
			// be consulted first.
			for i := len(files) - 1; i >= 0; i-- {
				value, deleted, found, err := d.getFromTable(files[i].FileNum, lookup)
				if err != nil {
					return nil, err
				}
				if found {
					if deleted {
						return nil, ErrNotFound
					}
					return value, nil
				}
			}
			continue
		}
		f := findFileInLevel(d.cmp, files, key)
		if f == nil {
			continue
		}
		value, deleted, found, err := d.getFromTable(f.FileNum, lookup)
		if err != nil {
			return nil, err
		}
		if found {
			if deleted {
				return nil, ErrNotFound
			}
			return value, nil
		}
	}
	return nil, ErrNotFound
}

func findFileInLevel(cmp base.Compare, files []*manifest.FileMetaData, key []byte) *manifest.FileMetaData {
	// files is sorted and non-overlapping for level >= 1; binary search
	// for the file whose range could contain key.
	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(files[mid].Largest.UserKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(files) && cmp(files[lo].Smallest.UserKey, key) <= 0 {
		return files[lo]
	}
	return nil
}

// getFromTable looks up key in fileNum's table. found is false when the
// key is simply absent from this table (not an error: the caller should
// keep searching older levels); deleted is true when the newest entry
// found was a tombstone.
func (d *DB) getFromTable(fileNum base.FileNum, lookup base.LookupKey) (value []byte, deleted, found bool, err error) {
	cr, err := d.tableCache.get(fileNum)
	if err != nil {
		return nil, false, false, err
	}
	defer d.tableCache.unref(fileNum)
	ikey, v, err := cr.reader.Get(lookup)
	if err != nil {
		if errors.Is(err, base.ErrNotFound) {
			return nil, false, false, nil
		}
		return nil, false, false, err
	}
	if ikey.Kind() == base.InternalKeyKindDelete {
		return nil, true, true, nil
	}
	return v, false, true, nil
}

// Set applies a single Put as an immediate one-entry batch.
func (d *DB) Set(key, value []byte) error {
	b := NewBatch()
	defer b.Close()
	if err := b.Set(key, value); err != nil {
		return err
	}
	return d.Apply(b)
}

// Delete applies a single tombstone as an immediate one-entry batch.
func (d *DB) Delete(key []byte) error {
	b := NewBatch()
	defer b.Close()
	if err := b.Delete(key); err != nil {
		return err
	}
	return d.Apply(b)
}

// maxBatchGroupSize and smallBatchGroupSlack bound how much a leader
// coalesces behind its own batch before committing (spec.md §4.11: up to
// 1 MiB, or 128 KiB plus its own size if its own batch is small).
const (
	maxBatchGroupSize    = 1 << 20
	smallBatchGroupSlack = 128 << 10
)

// Apply commits every operation in b atomically: b is enqueued on the
// writer FIFO and, once it reaches the head, becomes the leader for a
// group of one or more queued batches that are coalesced into a single WAL
// record and applied under consecutive sequence numbers (spec.md §4.8,
// §4.11). Apply does not take ownership of b; the caller may reuse or
// Close it afterward.
func (d *DB) Apply(b *Batch) error {
	if b.Count() == 0 {
		return nil
	}
	start := time.Now()
	defer func() { d.metrics.recordWriteLatency(time.Since(start).Microseconds()) }()

	w := &writer{batch: b}

	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.mu.writers = append(d.mu.writers, w)
	for !w.done && d.mu.writers[0] != w {
		d.writerCond.Wait()
	}
	if w.done {
		err := w.err
		d.mu.Unlock()
		return err
	}
	if d.mu.closed {
		d.mu.writers = d.mu.writers[1:]
		d.writerCond.Broadcast()
		d.mu.Unlock()
		return ErrClosed
	}

	// w is now the leader: run backpressure, then commit.
	if err := d.makeRoomForWrite(false); err != nil {
		d.mu.writers = d.mu.writers[1:]
		d.writerCond.Broadcast()
		d.mu.Unlock()
		return err
	}

	group := []*writer{w}
	size := b.ApproximateSize()
	limit := maxBatchGroupSize
	if size < smallBatchGroupSlack {
		limit = size + smallBatchGroupSlack
	}
	for len(d.mu.writers) > len(group) {
		next := d.mu.writers[len(group)]
		if size+next.batch.ApproximateSize() > limit {
			break
		}
		size += next.batch.ApproximateSize()
		group = append(group, next)
	}

	merged := b
	if len(group) > 1 {
		merged = NewBatch()
		defer merged.Close()
		for _, gw := range group {
			if err := merged.Append(gw.batch); err != nil {
				d.mu.writers = d.mu.writers[len(group):]
				for _, gw := range group {
					gw.err, gw.done = err, true
				}
				d.writerCond.Broadcast()
				d.mu.Unlock()
				return err
			}
		}
	}

	seq := d.mu.versions.LastSeqNum() + 1
	merged.setSeqNum(seq)
	d.mu.versions.SetLastSeqNum(seq + base.SeqNum(merged.Count()) - 1)

	logWriter := d.mu.log.writer
	logFile := d.mu.log.file
	mem := d.mu.mem.mutable
	d.mu.Unlock()

	var err error
	if err = logWriter.AddRecord(merged.Data()); err == nil {
		d.metrics.recordBytesWritten(int64(merged.ApproximateSize()))
		err = logFile.Sync()
	}
	if err == nil {
		err = merged.applyTo(mem)
	}

	d.mu.Lock()
	if err != nil && d.mu.bgErr == nil {
		d.mu.bgErr = err
	}
	d.mu.writers = d.mu.writers[len(group):]
	for _, gw := range group {
		gw.err, gw.done = err, true
	}
	d.writerCond.Broadcast()
	d.mu.Unlock()

	return err
}

// makeRoomForWrite freezes the active memtable and rolls a new WAL once the
// active memtable has grown past Options.WriteBufferSize, applying
// spec.md §4.11's level-0 slowdown/stall backpressure and the
// immutable-slot-occupied wait first. The caller must hold d.mu; it is
// released and reacquired across the slowdown sleep and any stall wait.
func (d *DB) makeRoomForWrite(force bool) error {
	allowDelay := !force
	for {
		if d.mu.closed {
			return ErrClosed
		}
		if d.mu.bgErr != nil {
			return d.mu.bgErr
		}
		if allowDelay && d.mu.versions.NumLevelFiles(0) >= manifest.L0SlowdownWritesTrigger {
			// Delay a single write by 1ms rather than letting writes stall
			// for seconds once the hard limit is hit; also cedes the CPU
			// to the compaction goroutine on a single-core machine.
			d.mu.Unlock()
			time.Sleep(time.Millisecond)
			allowDelay = false
			d.mu.Lock()
			continue
		}
		if !force && d.mu.mem.mutable.ApproximateMemoryUsage() <= uint64(d.opts.WriteBufferSize) {
			return nil
		}
		if len(d.mu.mem.queue) > 1 {
			// The immutable slot is occupied; wait for it to flush.
			d.bgDoneCond.Wait()
			continue
		}
		if d.mu.versions.NumLevelFiles(0) >= manifest.L0StopWritesTrigger {
			// Too many level-0 files; wait for compaction to drain them.
			d.bgDoneCond.Wait()
			continue
		}
		return d.rotateMemtableLocked()
	}
}

// rotateMemtableLocked allocates a new WAL, freezes the active memtable as
// immutable, and schedules its flush. The caller must hold d.mu.
func (d *DB) rotateMemtableLocked() error {
	newLogNum := d.mu.versions.NextFileNum()
	newLogFile, err := d.fs.Create(base.MakeFilename(d.dirname, base.FileTypeLog, newLogNum))
	if err != nil {
		return err
	}
	d.events.walCreated(newLogNum)

	if err := d.mu.log.file.Close(); err != nil {
		newLogFile.Close()
		return err
	}

	d.mu.log.number = newLogNum
	d.mu.log.file = newLogFile
	d.mu.log.writer = record.NewWriter(newLogFile)

	newMem := memtable.New(d.cmp)
	newMem.LogNum = newLogNum
	d.mu.mem.mutable = newMem
	d.mu.mem.queue = append(d.mu.mem.queue, newMem)

	d.maybeScheduleCompactionLocked()
	return nil
}

// visibleSeqNum returns the sequence number a read with no explicit
// snapshot should use: every mutation committed so far.
func (d *DB) visibleSeqNum() base.SeqNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.versions.LastSeqNum()
}

// Close waits for any in-progress background work to finish, then releases
// the table cache, WAL, and the directory lock. The MANIFEST file handle is
// not closed.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return nil
	}
	d.mu.closed = true
	d.writerCond.Broadcast()
	d.bgDoneCond.Broadcast()
	d.mu.Unlock()

	close(d.compactionSignal)
	<-d.workerDone

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tableCache.close()
	var err error
	if d.mu.log.file != nil {
		err = d.mu.log.file.Close()
	}
	if d.fileLock != nil {
		if lerr := d.fileLock.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// Metrics returns a snapshot-friendly handle on the DB's counters and
// latency histograms (SPEC_FULL.md's Ambient Stack metrics section).
func (d *DB) Metrics() *Metrics { return d.metrics }

// DebugVersion renders the current Version's file catalog, one line per
// populated level (SPEC_FULL.md §4's `manifest dump` operator tooling).
func (d *DB) DebugVersion() string {
	d.mu.Lock()
	v := d.mu.versions.Current()
	d.mu.Unlock()
	defer v.Unref()
	return v.String()
}
