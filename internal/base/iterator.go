// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// InternalIterator iterates over (InternalKey, value) pairs in internal-key
// order. It is the shape shared by memtable iterators, SST block/table
// iterators, and the merging iterator built on top of them (spec.md §4.11).
//
// Positioning methods return (nil, nil) once the iterator runs off either
// end; callers test the returned key for nil (or call Valid()).
type InternalIterator interface {
	// First positions the iterator at the first key.
	First() (*InternalKey, []byte)
	// Last positions the iterator at the last key.
	Last() (*InternalKey, []byte)
	// SeekGE positions the iterator at the first entry whose user key is
	// >= key (landing on that key's newest version, since entries for a
	// single user key sort newest-first).
	SeekGE(key []byte) (*InternalKey, []byte)
	// SeekLT positions the iterator at the last entry whose user key is <
	// key.
	SeekLT(key []byte) (*InternalKey, []byte)
	// Next advances the iterator and returns the new current entry.
	Next() (*InternalKey, []byte)
	// Prev retreats the iterator and returns the new current entry.
	Prev() (*InternalKey, []byte)
	// Key returns the current key; valid only if Valid() and the previous
	// positioning call returned a non-nil key.
	Key() *InternalKey
	// Value returns the current value.
	Value() []byte
	// Valid reports whether the iterator is positioned at a valid entry.
	Valid() bool
	// Error returns any accumulated error.
	Error() error
	// Close releases resources (e.g. a reference on a sstable reader or a
	// memtable). It must be called exactly once.
	Close() error
}

// LookupKey is the composite (user_key, snapshot_seq) used for reads,
// encoded once and shared between memtable and SST lookups (spec.md §3).
type LookupKey struct {
	UserKey []byte
	// Seq bounds the visible sequence number: an entry with a larger
	// sequence number is invisible to this lookup.
	Seq SeqNum
}

// MakeSearchKey builds the internal key memtable/SST searches seek to: the
// first entry with internal key >= (userKey, seq), which places the search
// cursor immediately before the newest visible version of userKey.
func MakeSearchKey(userKey []byte, seq SeqNum) InternalKey {
	// A value-type byte of InternalKeyKindMax-or-higher sorts before any
	// real kind at the same sequence number, and (userKey, seq, max-kind)
	// sorts before any entry with a smaller sequence number for the same
	// user key (and after any with a larger one). Using seq directly with the maximum kind byte achieves the
	// "first entry >= (user_key, snapshot_seq)" search target directly,
	// because internal-key order is descending by trailer for equal user
	// keys.
	return InternalKey{UserKey: userKey, Trailer: MakeTrailer(seq, InternalKeyKindMax)}
}
