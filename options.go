// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"log"
	"os"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/sstable"
	"github.com/kvforge/lsmdb/vfs"
)

// Compression re-exports the sstable package's compression enum so callers
// need only import lsmdb (spec.md §6's `compression` option).
type Compression = sstable.Compression

const (
	NoCompression     = sstable.NoCompression
	SnappyCompression = sstable.SnappyCompression
)

// Default tunables (spec.md §6's recognized ranges).
const (
	DefaultWriteBufferSize = 4 << 20  // 4 MiB
	DefaultMaxOpenFiles    = 1000
	DefaultMaxFileSize     = 2 << 20  // 2 MiB
	DefaultBlockSize       = 4 << 10  // 4 KiB
	DefaultBlockRestart    = 16
	MinMaxOpenFiles        = 74 // 64 + 10 non-table-cache files
)

// Options configures Open. A zero-valued Options is filled in by
// EnsureDefaults, mirroring sstable.WriterOptions.EnsureDefaults.
type Options struct {
	// CreateIfMissing creates the database if dirname does not exist.
	CreateIfMissing bool
	// ErrorIfExists fails Open if dirname already contains a database.
	ErrorIfExists bool
	// ParanoidChecks makes WAL replay fail on a record that does not decode
	// or apply as a batch, instead of skipping it (spec.md §7). Physical
	// records the WAL reader drops (a checksum mismatch, a torn fragment)
	// are skipped whether or not it is set; an SST block checksum mismatch
	// is an error either way.
	ParanoidChecks bool
	// ReuseLogs reopens the trailing WAL in append mode on recovery
	// instead of always rolling a fresh one (spec.md §5's supplemented
	// `reuse_logs` semantics).
	ReuseLogs bool

	// WriteBufferSize bounds a memtable's arena before it is frozen and
	// flushed (64 KiB .. 1 GiB).
	WriteBufferSize int
	// MaxOpenFiles bounds the table cache; the cache itself holds
	// MaxOpenFiles-10 table readers (64+10 .. 50k).
	MaxOpenFiles int
	// MaxFileSize is the target size of a compaction output SST (1 MiB ..
	// 1 GiB).
	MaxFileSize int64
	// BlockSize is the target size of an uncompressed data block (1 KiB ..
	// 4 MiB).
	BlockSize int
	// BlockRestartInterval is the number of entries between index
	// restart points within a data block.
	BlockRestartInterval int
	// Compression selects the per-block codec.
	Compression Compression
	// FilterKeys enables the Bloom filter block.
	FilterKeys bool

	// Comparer is the total order over user keys. Recovery fails if the
	// name recorded in the MANIFEST does not match.
	Comparer *base.Comparer

	// FS is the filesystem collaborator; defaults to vfs.Default.
	FS vfs.FS

	// Logger receives structured diagnostic events (spec.md §3's
	// ambient logging concern); defaults to one writing to standard error.
	Logger *log.Logger
	// EventListener receives structured lifecycle callbacks (flush,
	// compaction, WAL/MANIFEST creation) in addition to Logger text.
	EventListener *EventListener

	// Metrics, if non-nil, is used instead of a freshly constructed one;
	// set by tests that want to inspect counters across multiple Opens
	// of the same registry.
	Metrics *Metrics
}

// EnsureDefaults fills zero fields with their defaults, and returns o for
// chaining, mirroring sstable.WriterOptions.EnsureDefaults.
func (o *Options) EnsureDefaults() *Options {
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = DefaultWriteBufferSize
	}
	if o.MaxOpenFiles < MinMaxOpenFiles {
		o.MaxOpenFiles = DefaultMaxOpenFiles
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = DefaultBlockRestart
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if o.EventListener == nil {
		o.EventListener = NewLoggingEventListener(o.Logger)
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	return o
}

func (o *Options) writerOptions() *sstable.WriterOptions {
	return &sstable.WriterOptions{
		Comparer:             o.Comparer,
		BlockSize:            o.BlockSize,
		BlockRestartInterval: o.BlockRestartInterval,
		Compression:          o.Compression,
		FilterKeys:           o.FilterKeys,
	}
}

func (o *Options) readerOptions() *sstable.ReaderOptions {
	return &sstable.ReaderOptions{Comparer: o.Comparer}
}
