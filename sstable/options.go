// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/kvforge/lsmdb/internal/base"

// Compression identifies the per-block compression codec (spec.md §6's
// `compression` option).
type Compression int

const (
	NoCompression Compression = iota
	SnappyCompression
)

// WriterOptions configures a table Writer.
type WriterOptions struct {
	Comparer        *base.Comparer
	BlockSize       int
	BlockRestartInterval int
	Compression     Compression
	// FilterKeys, when true, builds a Bloom filter block (spec.md §4.6). It
	// defaults to false, as does the root Options.FilterKeys.
	FilterKeys bool
}

// EnsureDefaults fills zero fields with their defaults, mirroring
// Options.EnsureDefaults in the root package.
func (o *WriterOptions) EnsureDefaults() *WriterOptions {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.BlockRestartInterval == 0 {
		o.BlockRestartInterval = DefaultBlockRestartInterval
	}
	return o
}

// ReaderOptions configures a table Reader.
type ReaderOptions struct {
	Comparer *base.Comparer
}

func (o *ReaderOptions) EnsureDefaults() *ReaderOptions {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	return o
}
