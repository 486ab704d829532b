// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/sstable"
	"github.com/kvforge/lsmdb/vfs"
	"golang.org/x/sync/semaphore"
)

// numNonTableCacheFiles accounts for the WAL, MANIFEST, CURRENT, and LOCK
// file descriptors that Options.MaxOpenFiles must also cover (spec.md §6:
// "max_open_files (64+10 .. 50k): table cache size = value - 10").
const numNonTableCacheFiles = 10

// tableCache opens and caches sstable.Reader handles, bounding the number
// of concurrently open table files to Options.MaxOpenFiles-10 via a
// weighted semaphore (SPEC_FULL.md's domain-stack wiring of
// golang.org/x/sync/semaphore).
type tableCache struct {
	dirname string
	fs      vfs.FS
	opts    *sstable.ReaderOptions
	sem     *semaphore.Weighted
	cacheID string

	mu      sync.Mutex
	readers map[base.FileNum]*cachedReader
}

// readerAtFile adapts a vfs.File to sstable.ReaderAt, which additionally
// wants a cheap Size() since Reader.NewReader reads the footer from the
// end of the file before anything else.
type readerAtFile struct {
	vfs.File
	size int64
}

func (r readerAtFile) Size() (int64, error) { return r.size, nil }

type cachedReader struct {
	reader *sstable.Reader
	file   vfs.File
	refs   int
}

func newTableCache(dirname string, fs vfs.FS, opts *sstable.ReaderOptions, maxOpenFiles int) *tableCache {
	capacity := maxOpenFiles - numNonTableCacheFiles
	if capacity < 1 {
		capacity = 1
	}
	return &tableCache{
		dirname: dirname,
		fs:      fs,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(capacity)),
		cacheID: uuid.NewString(),
		readers: make(map[base.FileNum]*cachedReader),
	}
}

// newIter opens (or reuses) the reader for fileNum and returns a fresh
// table iterator over it. The iterator's Close releases the cache's
// reference, but does not necessarily close the underlying file, since
// other iterators may still be using it.
func (c *tableCache) newIter(fileNum base.FileNum) (base.InternalIterator, error) {
	cr, err := c.get(fileNum)
	if err != nil {
		return nil, err
	}
	it, err := cr.reader.NewIter()
	if err != nil {
		c.unref(fileNum)
		return nil, err
	}
	return &cacheTrackedIter{InternalIterator: it, cache: c, fileNum: fileNum}, nil
}

// get returns the cached reader for fileNum, opening it (and acquiring a
// semaphore slot) on a cache miss.
func (c *tableCache) get(fileNum base.FileNum) (*cachedReader, error) {
	c.mu.Lock()
	if cr, ok := c.readers[fileNum]; ok {
		cr.refs++
		c.mu.Unlock()
		return cr, nil
	}
	c.mu.Unlock()

	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return nil, err
	}
	name := base.MakeFilename(c.dirname, base.FileTypeTable, fileNum)
	f, err := c.fs.Open(name)
	if err != nil {
		c.sem.Release(1)
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		c.sem.Release(1)
		return nil, err
	}
	reader, err := sstable.NewReader(readerAtFile{f, fi.Size()}, c.opts)
	if err != nil {
		f.Close()
		c.sem.Release(1)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cr, ok := c.readers[fileNum]; ok {
		// Lost the race to open this file; use the winner's reader.
		cr.refs++
		f.Close()
		c.sem.Release(1)
		return cr, nil
	}
	cr := &cachedReader{reader: reader, file: f, refs: 1}
	c.readers[fileNum] = cr
	return cr, nil
}

func (c *tableCache) unref(fileNum base.FileNum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cr, ok := c.readers[fileNum]
	if !ok {
		return
	}
	cr.refs--
	if cr.refs <= 0 {
		delete(c.readers, fileNum)
		cr.file.Close()
		c.sem.Release(1)
	}
}

// evict drops fileNum from the cache immediately, used once a compaction
// makes the underlying SST obsolete.
func (c *tableCache) evict(fileNum base.FileNum) {
	c.mu.Lock()
	cr, ok := c.readers[fileNum]
	if ok {
		delete(c.readers, fileNum)
	}
	c.mu.Unlock()
	if ok {
		cr.file.Close()
		c.sem.Release(1)
	}
}

func (c *tableCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for num, cr := range c.readers {
		cr.file.Close()
		delete(c.readers, num)
	}
}

type cacheTrackedIter struct {
	base.InternalIterator
	cache   *tableCache
	fileNum base.FileNum
	closed  bool
}

func (i *cacheTrackedIter) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	err := i.InternalIterator.Close()
	i.cache.unref(i.fileNum)
	return err
}
