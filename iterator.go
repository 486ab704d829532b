// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"container/heap"

	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/manifest"
	"github.com/kvforge/lsmdb/internal/memtable"
)

// Iterator walks the database's entries in ascending user-key order,
// merging the active/immutable memtables and every level's SSTs, and
// collapsing each user key down to its newest version visible at the
// iterator's sequence number, skipping tombstones (spec.md §4.11's
// two-level/merging iterator, generalized across memtable + level sources;
// adapted from the container/heap k-way merge pattern used by the
// pack's other LSM implementations).
type Iterator struct {
	sources      []base.InternalIterator
	priorities   []int
	closeVersion func()
	h            mergeHeap
	cmp          base.Compare
	seq          base.SeqNum

	key   []byte
	value []byte
	valid bool
	err   error
}

// mergeItem owns a copy of its key and value: the underlying source
// iterators reuse their key/value buffers on every positioning call, so
// anything placed in the heap must be cloned at push time rather than
// referenced by pointer.
type mergeItem struct {
	userKey  []byte
	trailer  uint64
	value    []byte
	src      int
	priority int
}

func (m mergeItem) seqNum() base.SeqNum       { return m.trailer >> 8 }
func (m mergeItem) kind() base.InternalKeyKind { return base.InternalKeyKind(m.trailer & 0xff) }

func cloneMergeItem(k *base.InternalKey, v []byte, src, priority int) mergeItem {
	return mergeItem{
		userKey:  append([]byte(nil), k.UserKey...),
		trailer:  k.Trailer,
		value:    append([]byte(nil), v...),
		src:      src,
		priority: priority,
	}
}

// mergeHeap orders entries by user key, then (for equal user keys) by
// priority ascending so the newest source's version of a key is popped
// first: memtables get priority 0 (newest memtable lowest), then level 0
// (newest file lowest), then levels 1..N in level order.
type mergeHeap struct {
	items []mergeItem
	cmp   base.Compare
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if c := h.cmp(a.userKey, b.userKey); c != 0 {
		return c < 0
	}
	return a.priority < b.priority
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// NewIter returns an Iterator reading as of the database's current
// sequence number. The caller must call Close when done.
func (d *DB) NewIter() *Iterator {
	return d.newIterAt(d.visibleSeqNum())
}

// newIterAt builds an Iterator whose sources are Ref'd/opened under d.mu
// and released on Close; it underlies both NewIter and Snapshot-scoped
// iteration.
func (d *DB) newIterAt(seq base.SeqNum) *Iterator {
	d.mu.Lock()
	memQueue := append([]*memtable.Memtable(nil), d.mu.mem.queue...)
	for _, m := range memQueue {
		m.Ref()
	}
	v := d.mu.versions.Current()
	d.mu.Unlock()

	it := &Iterator{cmp: d.cmp, seq: seq}
	it.h.cmp = d.cmp

	// Newest memtable (end of queue) gets the lowest priority number, set
	// below once every source has been appended in priority order.
	for i := len(memQueue) - 1; i >= 0; i-- {
		it.sources = append(it.sources, &refReleasingIter{InternalIterator: memQueue[i].NewIter(), release: memQueue[i].Unref})
	}
	for level := 0; level < manifest.NumLevels; level++ {
		files := v.Files[level]
		if level == 0 {
			for i := len(files) - 1; i >= 0; i-- {
				it.addTableSource(d, files[i].FileNum)
			}
			continue
		}
		for _, f := range files {
			it.addTableSource(d, f.FileNum)
		}
	}
	it.closeVersion = v.Unref
	it.priorities = make([]int, len(it.sources))
	for i := range it.priorities {
		it.priorities[i] = i
	}
	return it
}

func (it *Iterator) addTableSource(d *DB, fileNum base.FileNum) {
	srcIter, err := d.tableCache.newIter(fileNum)
	if err != nil {
		it.err = err
		return
	}
	it.sources = append(it.sources, srcIter)
}

// refReleasingIter wraps a memtable iterator so Close also drops the
// memtable reference taken when the Iterator was built.
type refReleasingIter struct {
	base.InternalIterator
	release func()
	closed  bool
}

func (r *refReleasingIter) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.InternalIterator.Close()
	r.release()
	return err
}

// First positions the iterator at the smallest visible key.
func (it *Iterator) First() bool {
	it.h.items = it.h.items[:0]
	for i, src := range it.sources {
		if k, v := src.First(); k != nil {
			heap.Push(&it.h, cloneMergeItem(k, v, i, it.priorities[i]))
		}
	}
	return it.advance()
}

// SeekGE positions the iterator at the smallest visible key >= key.
func (it *Iterator) SeekGE(key []byte) bool {
	it.h.items = it.h.items[:0]
	for i, src := range it.sources {
		if k, v := src.SeekGE(key); k != nil {
			heap.Push(&it.h, cloneMergeItem(k, v, i, it.priorities[i]))
		}
	}
	return it.advance()
}

// Next advances to the next visible key.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	// Drop every heap entry still sitting on the key we just returned,
	// advancing each of their sources past it first.
	for it.h.Len() > 0 && it.cmp(it.h.items[0].userKey, it.key) == 0 {
		it.popAndAdvance()
	}
	return it.advance()
}

func (it *Iterator) popAndAdvance() {
	top := heap.Pop(&it.h).(mergeItem)
	if k, v := it.sources[top.src].Next(); k != nil {
		heap.Push(&it.h, cloneMergeItem(k, v, top.src, top.priority))
	}
}

// advance pops entries off the heap until it finds a user key with a
// visible (seq <= it.seq), non-tombstone version, or the heap empties.
func (it *Iterator) advance() bool {
	for it.h.Len() > 0 {
		userKey := it.h.items[0].userKey
		// Among all entries sharing top's user key, pick the newest one
		// visible at it.seq by scanning priority order (heap ties break
		// on priority, so the first visible entry for this key is the
		// newest visible version).
		var winner *mergeItem
		for it.h.Len() > 0 && it.cmp(it.h.items[0].userKey, userKey) == 0 {
			cand := it.h.items[0]
			if winner == nil && cand.seqNum() <= it.seq {
				w := cand
				winner = &w
			}
			it.popAndAdvance()
		}
		if winner == nil {
			continue
		}
		if winner.kind() == base.InternalKeyKindDelete {
			continue
		}
		it.key = winner.userKey
		it.value = winner.value
		it.valid = true
		return true
	}
	it.valid = false
	return false
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current user key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current value.
func (it *Iterator) Value() []byte { return it.value }

// Error returns any error accumulated while opening sources.
func (it *Iterator) Error() error { return it.err }

// Close releases every source iterator and the pinned Version.
func (it *Iterator) Close() error {
	var err error
	for _, src := range it.sources {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if it.closeVersion != nil {
		it.closeVersion()
	}
	return err
}
