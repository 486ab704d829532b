// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package memtable implements component C3: a skiplist wrapper storing
// encoded internal keys mapped to values (spec.md §4.3).
package memtable

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/arenaskl"
	"github.com/kvforge/lsmdb/internal/base"
)

// Memtable is a reference-counted, ordered set of entries backed by an
// Arena and a Skiplist. It grows until flushed, then is discarded.
type Memtable struct {
	arena   *arenaskl.Arena
	skl     *arenaskl.Skiplist
	userCmp base.Compare
	refs    atomic.Int32

	// LogNum is the WAL file number whose mutations are (at least
	// partially) represented in this memtable, used during recovery to
	// decide which WALs to replay (spec.md §4.9).
	LogNum base.FileNum
}

// New returns a new, empty, reference count 1 Memtable ordering user keys
// with cmp.
func New(cmp base.Compare) *Memtable {
	m := &Memtable{
		arena:   arenaskl.NewArena(),
		userCmp: cmp,
	}
	m.skl = arenaskl.NewSkiplist(m.arena, m.entryCompare)
	m.refs.Store(1)
	return m
}

// entryCompare orders two encoded entries (varint(key_len) || internal_key
// || varint(value_len) || value) by decoding their internal-key prefixes.
func (m *Memtable) entryCompare(a, b []byte) int {
	ak, _ := decodeEntryKey(a)
	bk, _ := decodeEntryKey(b)
	return base.InternalCompare(m.userCmp, ak, bk)
}

func decodeEntryKey(entry []byte) (base.InternalKey, []byte) {
	klen, rest, ok := base.GetUvarint(entry)
	if !ok || uint64(len(rest)) < klen {
		return base.InternalKey{Trailer: uint64(base.InternalKeyKindInvalid)}, nil
	}
	return base.DecodeInternalKey(rest[:klen]), rest[klen:]
}

func decodeEntry(entry []byte) (base.InternalKey, []byte) {
	ikey, rest := decodeEntryKey(entry)
	vlen, rest, ok := base.GetUvarint(rest)
	if !ok || uint64(len(rest)) < vlen {
		return ikey, nil
	}
	return ikey, rest[:vlen]
}

// encodeSearchKey builds the entry-shaped byte string used to seek the
// skiplist to the first entry whose internal key is >= ikey; only the key
// portion need be present since the comparator never reads the value.
func encodeSearchKey(ikey base.InternalKey) []byte {
	klen := ikey.Size()
	buf := make([]byte, 0, 10+klen)
	buf = base.PutUvarint(buf, uint64(klen))
	buf = append(buf, ikey.UserKey...)
	buf = ikey.Encode(buf)
	return buf
}

// Add encodes (seq, kind, userKey, value) as one entry and inserts it. The
// caller must ensure no prior Add used the same (userKey, seq) pair.
func (m *Memtable) Add(seq base.SeqNum, kind base.InternalKeyKind, userKey, value []byte) {
	ikey := base.MakeInternalKey(userKey, seq, kind)
	klen := ikey.Size()

	scratch := make([]byte, 0, 10+klen+10+len(value))
	scratch = base.PutUvarint(scratch, uint64(klen))
	scratch = append(scratch, userKey...)
	scratch = ikey.Encode(scratch)
	scratch = base.PutUvarint(scratch, uint64(len(value)))
	scratch = append(scratch, value...)

	entry := m.arena.Alloc(len(scratch))
	copy(entry, scratch)
	m.skl.Insert(entry)
}

// LookupResult is the outcome of a Get.
type LookupResult int

// The possible outcomes of Get.
const (
	LookupMiss LookupResult = iota
	LookupFound
	LookupDeleted
)

// Get seeks to the first entry with internal key >= (key.UserKey, key.Seq)
// and inspects it: if the user key matches, the entry's kind decides the
// verdict (spec.md §4.3).
func (m *Memtable) Get(key base.LookupKey) (value []byte, result LookupResult) {
	target := base.MakeSearchKey(key.UserKey, key.Seq)
	it := m.skl.NewIterator()
	it.Seek(encodeSearchKey(target))
	if !it.Valid() {
		return nil, LookupMiss
	}
	ikey, v := decodeEntry(it.Key())
	if m.userCmp(ikey.UserKey, key.UserKey) != 0 {
		return nil, LookupMiss
	}
	if ikey.Kind() == base.InternalKeyKindDelete {
		return nil, LookupDeleted
	}
	return v, LookupFound
}

// Empty reports whether the memtable has no entries.
func (m *Memtable) Empty() bool {
	it := m.skl.NewIterator()
	it.SeekToFirst()
	return !it.Valid()
}

// ApproximateMemoryUsage returns the arena's live byte counter.
func (m *Memtable) ApproximateMemoryUsage() uint64 {
	return m.arena.Size()
}

// Ref increments the reference count; it must be paired with Unref.
func (m *Memtable) Ref() { m.refs.Add(1) }

// Unref decrements the reference count; the memtable is eligible for
// garbage collection once it reaches zero (the caller must not use it
// again).
func (m *Memtable) Unref() {
	if m.refs.Add(-1) < 0 {
		panic(errors.AssertionFailedf("memtable: negative reference count"))
	}
}

// NewIter returns an internal iterator over the memtable's entries.
func (m *Memtable) NewIter() base.InternalIterator {
	return &iterator{m: m, it: m.skl.NewIterator()}
}

type iterator struct {
	m     *Memtable
	it    *arenaskl.Iterator
	ikey  base.InternalKey
	value []byte
}

func (i *iterator) decode() (*base.InternalKey, []byte) {
	if !i.it.Valid() {
		return nil, nil
	}
	i.ikey, i.value = decodeEntry(i.it.Key())
	return &i.ikey, i.value
}

func (i *iterator) First() (*base.InternalKey, []byte) {
	i.it.SeekToFirst()
	return i.decode()
}

func (i *iterator) Last() (*base.InternalKey, []byte) {
	i.it.SeekToLast()
	return i.decode()
}

func (i *iterator) SeekGE(key []byte) (*base.InternalKey, []byte) {
	target := base.InternalKey{UserKey: key, Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
	i.it.Seek(encodeSearchKey(target))
	return i.decode()
}

func (i *iterator) SeekLT(key []byte) (*base.InternalKey, []byte) {
	target := base.InternalKey{UserKey: key, Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
	i.it.Seek(encodeSearchKey(target))
	i.it.Prev()
	return i.decode()
}

func (i *iterator) Next() (*base.InternalKey, []byte) {
	i.it.Next()
	return i.decode()
}

func (i *iterator) Prev() (*base.InternalKey, []byte) {
	i.it.Prev()
	return i.decode()
}

func (i *iterator) Key() *base.InternalKey { return &i.ikey }
func (i *iterator) Value() []byte          { return i.value }
func (i *iterator) Valid() bool            { return i.it.Valid() }
func (i *iterator) Error() error           { return nil }
func (i *iterator) Close() error           { return nil }
