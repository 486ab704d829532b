// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/manifest"
	"github.com/kvforge/lsmdb/internal/memtable"
	"github.com/kvforge/lsmdb/internal/record"
)

// Open opens (and, per Options.CreateIfMissing, creates) the database in
// dirname, replaying its WAL and MANIFEST and starting the background
// compaction worker (spec.md §4.9's recovery sequencing, grounded on
// ariesdevil-pebble/open.go).
func Open(dirname string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts = opts.EnsureDefaults()

	d := &DB{
		dirname:          dirname,
		opts:             opts,
		cmp:              opts.Comparer.Compare,
		fs:               opts.FS,
		metrics:          opts.Metrics,
		events:           opts.EventListener,
		compactionSignal: make(chan struct{}, 1),
		workerDone:       make(chan struct{}),
	}
	d.mu.compact.pendingOutputs = make(map[base.FileNum]bool)
	d.writerCond = sync.NewCond(&d.mu.Mutex)
	d.bgDoneCond = sync.NewCond(&d.mu.Mutex)

	if err := d.fs.MkdirAll(dirname, 0755); err != nil {
		return nil, err
	}
	lock, err := d.fs.Lock(base.MakeFilename(dirname, base.FileTypeLock, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "lsmdb: could not acquire lock on %s", dirname)
	}
	d.fileLock = lock
	closeLockOnErr := true
	defer func() {
		if closeLockOnErr {
			lock.Close()
		}
	}()

	currentName := base.MakeFilename(dirname, base.FileTypeCurrent, 0)
	_, statErr := d.fs.Stat(currentName)
	exists := statErr == nil
	if !exists {
		if !opts.CreateIfMissing {
			return nil, base.InvalidArgumentErrorf("lsmdb: database %q does not exist", dirname)
		}
		vs, err := manifest.Create(&d.mu.Mutex, dirname, d.fs, d.cmp, opts.Comparer.Name)
		if err != nil {
			return nil, err
		}
		d.mu.versions = vs
		d.events.manifestCreated(0)
	} else if opts.ErrorIfExists {
		return nil, errors.Newf("lsmdb: database %q already exists", dirname)
	} else {
		vs, err := manifest.Recover(&d.mu.Mutex, dirname, d.fs, d.cmp, opts.Comparer.Name)
		if err != nil {
			return nil, err
		}
		d.mu.versions = vs
	}

	d.tableCache = newTableCache(dirname, d.fs, opts.readerOptions(), opts.MaxOpenFiles)

	reused, err := d.replayLogs()
	if err != nil {
		return nil, err
	}

	if !reused {
		newLogNum := d.mu.versions.NextFileNum()
		logFile, err := d.fs.Create(base.MakeFilename(dirname, base.FileTypeLog, newLogNum))
		if err != nil {
			return nil, err
		}
		d.events.walCreated(newLogNum)
		d.mu.log.number = newLogNum
		d.mu.log.file = logFile
		d.mu.log.writer = record.NewWriter(logFile)

		mem := memtable.New(d.cmp)
		mem.LogNum = newLogNum
		d.mu.mem.mutable = mem
		d.mu.mem.queue = append(d.mu.mem.queue, mem)
	}

	ve := &manifest.VersionEdit{}
	ve.SetMinUnflushedLogNum(d.mu.log.number)
	if _, err := d.mu.versions.LogAndApply(ve); err != nil {
		return nil, err
	}

	go d.backgroundWorker()
	d.maybeScheduleCompaction()

	closeLockOnErr = false
	return d, nil
}

// replayLogs finds every WAL file at or after the MANIFEST's recorded
// MinUnflushedLogNum and replays it into a fresh memtable, flushing to a
// level-0 SST if the replayed memtable is non-empty (spec.md §4.9: "replay
// any WAL files whose numbers are >= log_number recorded in the
// MANIFEST... flushing to level-0 SSTs when full"). The trailing log is
// instead kept live — reopened in append mode, its memtable installed as
// the mutable one rather than flushed — when Options.ReuseLogs is set and
// the reopen succeeds; replayLogs then reports reused=true so Open skips
// allocating a fresh WAL and memtable (spec.md §5's reuse_logs, grounded
// on original_source/db/db_impl.cc:513-539's `reuse_logs && last_log &&
// compactions == 0` branch — every replayed log here is flushed in one
// piece rather than mid-file, so that branch's compactions==0 condition
// always holds and reduces to "is this the last log").
func (d *DB) replayLogs() (reused bool, err error) {
	names, err := d.fs.List(d.dirname)
	if err != nil {
		return false, err
	}
	minLogNum := d.mu.versions.MinUnflushedLogNum()

	var logNums []base.FileNum
	for _, name := range names {
		ft, fn, ok := base.ParseFilename(name)
		if ok && ft == base.FileTypeLog && fn >= minLogNum {
			logNums = append(logNums, fn)
		}
	}
	sort.Slice(logNums, func(i, j int) bool { return logNums[i] < logNums[j] })

	for i, num := range logNums {
		if d.opts.ReuseLogs && i == len(logNums)-1 {
			ok, err := d.reuseLog(num)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		if err := d.replayLog(num); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (d *DB) replayLog(num base.FileNum) error {
	mem, err := d.replayLogInto(num)
	if err != nil {
		return err
	}
	if mem == nil || mem.Empty() {
		return nil
	}
	meta, err := d.writeLevel0Table(mem)
	if err != nil {
		return err
	}
	ve := &manifest.VersionEdit{NewFiles: []manifest.NewFileEntry{{Level: 0, Meta: meta}}}
	_, err = d.mu.versions.LogAndApply(ve)
	return err
}

// replayLogInto reads num's WAL and applies every record it contains to a
// fresh memtable, advancing the VersionSet's last sequence number as it
// goes. It returns a nil memtable if the log file does not exist (already
// deleted after an earlier clean shutdown).
func (d *DB) replayLogInto(num base.FileNum) (*memtable.Memtable, error) {
	name := base.MakeFilename(d.dirname, base.FileTypeLog, num)
	f, err := d.fs.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	mem := memtable.New(d.cmp)
	mem.LogNum = num

	rr := record.NewReader(f, nil)
	for {
		payload, ok := rr.Next()
		if !ok {
			break
		}
		b, err := decodeBatch(append([]byte(nil), payload...))
		if err != nil {
			if d.opts.ParanoidChecks {
				return nil, err
			}
			continue
		}
		if err := b.applyTo(mem); err != nil {
			if d.opts.ParanoidChecks {
				return nil, err
			}
			continue
		}
		seq := b.seqNum() + base.SeqNum(b.Count()) - 1
		if seq > d.mu.versions.LastSeqNum() {
			d.mu.versions.SetLastSeqNum(seq)
		}
	}
	return mem, nil
}

// reuseLog replays num's WAL exactly like replayLog, but instead of
// flushing a non-empty result to a level-0 SST it reopens the file in
// append mode and installs the replayed memtable as the live mutable one.
// It reports ok=false (falling back to the normal flush-and-roll path in
// replayLog) if the log cannot be found or reopened for append.
func (d *DB) reuseLog(num base.FileNum) (ok bool, err error) {
	mem, err := d.replayLogInto(num)
	if err != nil {
		return false, err
	}
	if mem == nil {
		return false, nil
	}

	name := base.MakeFilename(d.dirname, base.FileTypeLog, num)
	fi, err := d.fs.Stat(name)
	if err != nil {
		return false, nil
	}
	logFile, err := d.fs.OpenForAppend(name)
	if err != nil {
		return false, nil
	}
	d.events.walCreated(num)
	d.mu.log.number = num
	d.mu.log.file = logFile
	d.mu.log.writer = record.NewWriterAt(logFile, int(fi.Size()))
	d.mu.mem.mutable = mem
	d.mu.mem.queue = append(d.mu.mem.queue, mem)
	return true, nil
}
