// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable implements components C5 (block format), C6 (filter
// block) and C7 (the SST/table format itself): footer, index, data blocks,
// an optional per-table Bloom filter, and the builder/reader pair
// (spec.md §4.5-4.7).
package sstable

import (
	"encoding/binary"

	"github.com/kvforge/lsmdb/internal/base"
)

// DefaultBlockRestartInterval is the default number of entries between
// restart points (spec.md §4.5).
const DefaultBlockRestartInterval = 16

// DefaultBlockSize is the default target size of a data block before it is
// flushed (spec.md §4.7).
const DefaultBlockSize = 4096

// rawCompare orders the opaque byte keys a block stores. Data blocks and
// the index block both store internal-key-encoded byte strings as their
// "key", so a single comparator (internal-key order over the user
// comparator) suffices for both.
type rawCompare func(a, b []byte) int

// blockWriter appends entries in strictly increasing key order, emitting a
// restart point every restartInterval entries (spec.md §4.5).
type blockWriter struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	prevKey         []byte
}

func newBlockWriter(restartInterval int) *blockWriter {
	return &blockWriter{restartInterval: restartInterval, counter: restartInterval}
}

// add appends one (key, value) entry. Keys must be added in strictly
// increasing order.
func (w *blockWriter) add(key, value []byte) {
	shared := 0
	if w.counter < w.restartInterval {
		shared = sharedPrefixLen(w.prevKey, key)
	} else {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
		w.counter = 0
	}
	unshared := len(key) - shared

	w.buf = base.PutUvarint(w.buf, uint64(shared))
	w.buf = base.PutUvarint(w.buf, uint64(unshared))
	w.buf = base.PutUvarint(w.buf, uint64(len(value)))
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)

	w.prevKey = append(w.prevKey[:0], key...)
	w.counter++
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// estimatedSize returns the block's size if finished right now.
func (w *blockWriter) estimatedSize() int {
	return len(w.buf) + 4*len(w.restarts) + 4
}

// empty reports whether any entries have been added.
func (w *blockWriter) empty() bool {
	return len(w.buf) == 0
}

// finish appends the restart array and count, and returns the frozen block
// bytes. The writer must not be reused afterwards.
func (w *blockWriter) finish() []byte {
	if w.counter >= w.restartInterval || len(w.restarts) == 0 {
		// Nothing is added here: the constructor's counter pre-seed
		// already made add record the very first entry as a restart point.
	}
	buf := w.buf
	for _, r := range w.restarts {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], r)
		buf = append(buf, b[:]...)
	}
	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], uint32(len(w.restarts)))
	buf = append(buf, cnt[:]...)
	return buf
}

// blockIter reads a frozen block (as produced by blockWriter, sans its
// on-disk compression/CRC trailer). It supports SeekToFirst/Last/Seek/
// Next/Prev per spec.md §4.5.
type blockIter struct {
	data       []byte
	restartsOff int
	numRestarts int
	cmp         rawCompare

	restartIndex int
	entryOffset  int
	nextOffset   int
	key          []byte
	value        []byte
	valid        bool
}

func newBlockIter(cmp rawCompare, data []byte) (*blockIter, error) {
	if len(data) < 4 {
		return nil, base.CorruptionErrorf("sstable: block too short")
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	restartsOff := len(data) - 4 - 4*numRestarts
	if restartsOff < 0 {
		return nil, base.CorruptionErrorf("sstable: invalid restart count")
	}
	return &blockIter{data: data, restartsOff: restartsOff, numRestarts: numRestarts, cmp: cmp}, nil
}

func (i *blockIter) restartPoint(idx int) int {
	return int(binary.LittleEndian.Uint32(i.data[i.restartsOff+4*idx:]))
}

func (i *blockIter) clear() {
	i.valid = false
	i.key = nil
	i.value = nil
}

// decodeAt decodes the entry starting at offset, which must either be 0,
// a restart point, or i.nextOffset from a previous decode (so that the
// shared-prefix reconstruction from i.key is valid).
func (i *blockIter) decodeAt(offset int) bool {
	if offset < 0 || offset >= i.restartsOff {
		i.clear()
		return false
	}
	p := i.data[offset:i.restartsOff]
	shared, n1 := binary.Uvarint(p)
	if n1 <= 0 {
		i.clear()
		return false
	}
	p = p[n1:]
	unshared, n2 := binary.Uvarint(p)
	if n2 <= 0 {
		i.clear()
		return false
	}
	p = p[n2:]
	vlen, n3 := binary.Uvarint(p)
	if n3 <= 0 {
		i.clear()
		return false
	}
	p = p[n3:]
	if int(shared) > len(i.key) || int(unshared)+int(vlen) > len(p) {
		i.clear()
		return false
	}
	newKey := make([]byte, 0, int(shared)+int(unshared))
	newKey = append(newKey, i.key[:shared]...)
	newKey = append(newKey, p[:unshared]...)
	i.key = newKey
	i.value = p[unshared : unshared+vlen]
	i.entryOffset = offset
	i.nextOffset = offset + (n1 + n2 + n3) + int(unshared) + int(vlen)
	i.valid = true
	for i.restartIndex+1 < i.numRestarts && offset >= i.restartPoint(i.restartIndex+1) {
		i.restartIndex++
	}
	return true
}

func (i *blockIter) seekToRestart(idx int) bool {
	i.restartIndex = idx
	i.key = i.key[:0]
	offset := i.restartsOff
	if idx < i.numRestarts {
		offset = i.restartPoint(idx)
	}
	return i.decodeAt(offset)
}

func (i *blockIter) First() bool {
	if i.numRestarts == 0 {
		i.clear()
		return false
	}
	return i.seekToRestart(0)
}

func (i *blockIter) Last() bool {
	if i.numRestarts == 0 {
		i.clear()
		return false
	}
	if !i.seekToRestart(i.numRestarts - 1) {
		return false
	}
	for i.nextOffset < i.restartsOff {
		if !i.decodeAt(i.nextOffset) {
			break
		}
	}
	return i.valid
}

func (i *blockIter) Next() bool {
	if !i.valid {
		return false
	}
	return i.decodeAt(i.nextOffset)
}

// restartKey returns the (shared==0) key stored at a restart point, without
// mutating iterator state; used by Seek's binary search.
func restartKey(data []byte, restartsOff, offset int) []byte {
	p := data[offset:restartsOff]
	_, n1 := binary.Uvarint(p)
	p = p[n1:]
	unshared, n2 := binary.Uvarint(p)
	p = p[n2:]
	_, n3 := binary.Uvarint(p)
	p = p[n3:]
	return p[:unshared]
}

// Seek positions the iterator at the first entry whose key is >= target.
func (i *blockIter) Seek(target []byte) bool {
	lo, hi := 0, i.numRestarts
	for lo < hi {
		mid := (lo + hi) / 2
		k := restartKey(i.data, i.restartsOff, i.restartPoint(mid))
		if i.cmp(k, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	start := lo
	if start > 0 {
		start--
	}
	if !i.seekToRestart(start) {
		return false
	}
	for i.valid && i.cmp(i.key, target) < 0 {
		if !i.decodeAt(i.nextOffset) {
			break
		}
	}
	return i.valid
}

// Prev retreats to the entry immediately before the current one, by
// rescanning forward from the preceding restart point (spec.md §4.5: no
// back pointers are stored).
func (i *blockIter) Prev() bool {
	if !i.valid {
		return false
	}
	target := i.entryOffset
	idx := i.restartIndex
	for idx > 0 && i.restartPoint(idx) >= target {
		idx--
	}
	if !i.seekToRestart(idx) {
		return false
	}
	if i.entryOffset == target {
		i.clear()
		return false
	}
	for i.nextOffset < target {
		if !i.decodeAt(i.nextOffset) {
			break
		}
	}
	return i.valid
}

func (i *blockIter) Valid() bool  { return i.valid }
func (i *blockIter) Key() []byte  { return i.key }
func (i *blockIter) Value() []byte { return i.value }
