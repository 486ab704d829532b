// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
	"github.com/kvforge/lsmdb/internal/memtable"
)

// batchHeaderLen is the size of a Batch's fixed header: an 8-byte
// little-endian sequence number followed by a 4-byte little-endian count
// (spec.md §4.8, bit-exact).
const batchHeaderLen = 12

// Batch is a set of Put/Delete operations applied to a DB atomically: they
// are assigned consecutive sequence numbers and become visible together
// (spec.md §4.8). A Batch is not safe for concurrent use, mirroring
// ariesdevil-pebble/batch.go's Batch, simplified here to the PUT/DELETE
// kind set spec.md defines (no Merge).
type Batch struct {
	data  []byte
	count uint32
}

var batchPool = sync.Pool{
	New: func() interface{} { return &Batch{} },
}

// NewBatch returns an empty Batch drawn from a pool; Close returns it.
func NewBatch() *Batch {
	b := batchPool.Get().(*Batch)
	b.Reset()
	return b
}

// Close returns the Batch to the pool. The Batch must not be used again.
func (b *Batch) Close() error {
	batchPool.Put(b)
	return nil
}

// Reset clears b to the empty batch, reusing its underlying buffer.
func (b *Batch) Reset() {
	if cap(b.data) < batchHeaderLen {
		b.data = make([]byte, batchHeaderLen)
	} else {
		b.data = b.data[:batchHeaderLen]
		for i := range b.data {
			b.data[i] = 0
		}
	}
	b.count = 0
}

// seqNum returns the batch's base sequence number (header bytes 0..8).
func (b *Batch) seqNum() base.SeqNum {
	return base.SeqNum(leUint64(b.data[0:8]))
}

// setSeqNum installs the batch's base sequence number; the writer assigns
// consecutive sequence numbers starting here (spec.md §4.8).
func (b *Batch) setSeqNum(seq base.SeqNum) {
	putLeUint64(b.data[0:8], uint64(seq))
}

// Count returns the number of operations recorded in the batch.
func (b *Batch) Count() uint32 { return b.count }

func (b *Batch) setCount(n uint32) {
	b.count = n
	putLeUint32(b.data[8:12], n)
}

// ApproximateSize returns the batch's encoded size in bytes.
func (b *Batch) ApproximateSize() int { return len(b.data) }

// Data returns the batch's wire encoding: the WAL stores this verbatim as
// one record's payload.
func (b *Batch) Data() []byte { return b.data }

// Set records a Put of key -> value.
func (b *Batch) Set(key, value []byte) error {
	b.prepare(base.InternalKeyKindSet, key, value)
	return nil
}

// Delete records a tombstone for key.
func (b *Batch) Delete(key []byte) error {
	b.prepare(base.InternalKeyKindDelete, key, nil)
	return nil
}

func (b *Batch) prepare(kind base.InternalKeyKind, key, value []byte) {
	b.data = append(b.data, byte(kind))
	b.data = base.PutUvarint(b.data, uint64(len(key)))
	b.data = append(b.data, key...)
	if kind == base.InternalKeyKindSet {
		b.data = base.PutUvarint(b.data, uint64(len(value)))
		b.data = append(b.data, value...)
	}
	b.setCount(b.count + 1)
}

// Append adds every operation in other to b, preserving order. Used to
// build up a batch from smaller pieces before a single atomic Apply.
func (b *Batch) Append(other *Batch) error {
	return other.Iterate(func(kind base.InternalKeyKind, key, value []byte) error {
		switch kind {
		case base.InternalKeyKindSet:
			return b.Set(key, value)
		case base.InternalKeyKindDelete:
			return b.Delete(key)
		default:
			return errors.Newf("lsmdb: batch: unknown entry kind %d", kind)
		}
	})
}

// Iterate calls fn for every operation in the batch, in order.
func (b *Batch) Iterate(fn func(kind base.InternalKeyKind, key, value []byte) error) error {
	data := b.data[batchHeaderLen:]
	for i := uint32(0); i < b.count; i++ {
		if len(data) == 0 {
			return base.CorruptionErrorf("lsmdb: batch: truncated entry %d of %d", i, b.count)
		}
		kind := base.InternalKeyKind(data[0])
		data = data[1:]
		klen, rest, ok := base.GetUvarint(data)
		if !ok || uint64(len(rest)) < klen {
			return base.CorruptionErrorf("lsmdb: batch: truncated key")
		}
		key := rest[:klen]
		data = rest[klen:]

		var value []byte
		if kind == base.InternalKeyKindSet {
			vlen, rest, ok := base.GetUvarint(data)
			if !ok || uint64(len(rest)) < vlen {
				return base.CorruptionErrorf("lsmdb: batch: truncated value")
			}
			value = rest[:vlen]
			data = rest[vlen:]
		} else if kind != base.InternalKeyKindDelete {
			return base.CorruptionErrorf("lsmdb: batch: unknown entry kind %d", kind)
		}
		if err := fn(kind, key, value); err != nil {
			return err
		}
	}
	return nil
}

// applyTo inserts every operation into mem, assigning consecutive sequence
// numbers starting at the batch's base sequence number (spec.md §4.8: "the
// writer assigns consecutive sequence numbers starting at the batch
// sequence"). It is used both when committing a live write and when
// replaying a WAL record during recovery.
func (b *Batch) applyTo(mem *memtable.Memtable) error {
	seq := b.seqNum()
	return b.Iterate(func(kind base.InternalKeyKind, key, value []byte) error {
		mem.Add(seq, kind, key, value)
		seq++
		return nil
	})
}

// decodeBatch wraps a raw WAL record payload (as produced by Data) back
// into a Batch, used during recovery.
func decodeBatch(payload []byte) (*Batch, error) {
	if len(payload) < batchHeaderLen {
		return nil, base.CorruptionErrorf("lsmdb: corrupt batch: record shorter than header")
	}
	b := &Batch{data: payload, count: leUint32(payload[8:12])}
	return b, nil
}

func leUint64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func putLeUint64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

func leUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
