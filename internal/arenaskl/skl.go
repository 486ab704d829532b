// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package arenaskl implements the ordered, concurrent-read/single-write map
// backing the memtable (spec.md §4.1-4.2, components C1/C2): a bump
// allocator (Arena) and a skiplist whose keys are opaque byte slices drawn
// from it.
package arenaskl

import (
	"math/rand"
	"sync/atomic"
	"time"
)

const (
	maxHeight = 12
	// branching factor 4: each additional level has probability 1/4.
	branching = 4
)

// KeyCompare orders the skiplist's opaque keys. The memtable supplies a
// comparator that decodes the internal key prefix of each encoded entry
// before delegating to the user comparator (spec.md §3's internal-key
// order).
type KeyCompare func(a, b []byte) int

type node struct {
	key    []byte
	height int
	tower  [maxHeight]atomic.Pointer[node]
}

func (n *node) next(level int) *node {
	return n.tower[level].Load()
}

func (n *node) setNext(level int, v *node) {
	n.tower[level].Store(v)
}

// Skiplist is an ordered multi-level linked list. Exactly one goroutine may
// call Insert at a time; any number of goroutines may call Contains or run
// an Iterator concurrently with that writer (spec.md §4.2's concurrency
// contract). Correctness rests on publication order: a node is fully
// initialized before any predecessor's next pointer is made to reference
// it, and that publish is an atomic store observed by an atomic load on
// the read side — the release/acquire pair spec.md requires.
type Skiplist struct {
	arena  *Arena
	cmp    KeyCompare
	head   *node
	height atomic.Int32
	rnd    *rand.Rand
}

// NewSkiplist returns an empty Skiplist ordering keys with cmp. The arena is
// retained only for bookkeeping parity with the memtable that owns it —
// node towers are ordinary Go-allocated objects (not suballocated from the
// arena) so that tower pointers can be published with the Go memory
// model's atomic.Pointer guarantees without fighting the garbage
// collector's assumptions about byte-slice contents; the entries the keys
// point into do live in the arena.
func NewSkiplist(arena *Arena, cmp KeyCompare) *Skiplist {
	s := &Skiplist{
		arena: arena,
		cmp:   cmp,
		head:  &node{height: maxHeight},
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.height.Store(1)
	return s
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// Insert adds key to the list. The caller guarantees no equal key is
// already present (spec.md §4.2).
func (s *Skiplist) Insert(key []byte) {
	height := s.randomHeight()
	listHeight := int(s.height.Load())

	var preds [maxHeight]*node
	x := s.head
	for i := maxHeight - 1; i >= 0; i-- {
		if i >= listHeight {
			preds[i] = s.head
			continue
		}
		for {
			next := x.next(i)
			if next == nil || s.cmp(next.key, key) >= 0 {
				break
			}
			x = next
		}
		preds[i] = x
	}

	n := &node{key: key, height: height}
	for i := 0; i < height; i++ {
		n.tower[i].Store(preds[i].next(i))
	}
	for i := 0; i < height; i++ {
		preds[i].setNext(i, n)
	}
	if height > listHeight {
		// Readers who observe the old, shorter height simply start lower
		// and still find every key (spec.md §4.2); it is safe to publish
		// the new height only after the node is linked at every level.
		s.height.Store(int32(height))
	}
}

// Contains reports whether key is present in the list.
func (s *Skiplist) Contains(key []byte) bool {
	x := s.seekGE(key)
	return x != nil && s.cmp(x.key, key) == 0
}

// seekGE returns the first node with key >= target, or nil.
func (s *Skiplist) seekGE(target []byte) *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for level >= 0 {
		next := x.next(level)
		if next != nil && s.cmp(next.key, target) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return next
		}
		level--
	}
	return nil
}

// findLast returns the last node in the list, or nil if empty.
func (s *Skiplist) findLast() *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for level >= 0 {
		next := x.next(level)
		if next != nil {
			x = next
			continue
		}
		level--
	}
	if x == s.head {
		return nil
	}
	return x
}

// findLessThan returns the last node with key < target, or nil.
func (s *Skiplist) findLessThan(target []byte) *node {
	x := s.head
	level := int(s.height.Load()) - 1
	for level >= 0 {
		next := x.next(level)
		if next != nil && s.cmp(next.key, target) < 0 {
			x = next
			continue
		}
		if level == 0 {
			break
		}
		level--
	}
	if x == s.head {
		return nil
	}
	return x
}

// Iterator supports bidirectional traversal of a Skiplist. It is safe to
// use concurrently with a single writer calling Insert, but a single
// Iterator value is not safe for concurrent use by multiple goroutines.
type Iterator struct {
	list *Skiplist
	nd   *node
}

// NewIterator returns an Iterator over list.
func (s *Skiplist) NewIterator() *Iterator {
	return &Iterator{list: s}
}

// SeekToFirst positions the iterator at the first key.
func (it *Iterator) SeekToFirst() {
	it.nd = it.list.head.next(0)
}

// SeekToLast positions the iterator at the last key.
func (it *Iterator) SeekToLast() {
	it.nd = it.list.findLast()
}

// Seek positions the iterator at the first key >= target.
func (it *Iterator) Seek(target []byte) {
	it.nd = it.list.seekGE(target)
}

// Next advances to the next key. Valid() reports false once the iterator
// runs past the last key.
func (it *Iterator) Next() {
	it.nd = it.nd.next(0)
}

// Prev retreats to the previous key. Implemented as a forward search from
// head (spec.md §4.2: "acceptable because memtable iteration is rare").
func (it *Iterator) Prev() {
	if it.nd == nil {
		it.SeekToLast()
		return
	}
	it.nd = it.list.findLessThan(it.nd.key)
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.nd != nil }

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() []byte { return it.nd.key }
