// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"container/list"

	"github.com/kvforge/lsmdb/internal/base"
)

// Snapshot pins a point-in-time view of the database: reads through it
// never observe a mutation committed after the snapshot was taken, even as
// later writes and compactions proceed (spec.md §8's snapshot-isolation
// property). Close releases the snapshot; until every snapshot at or below
// a sequence number is closed, compaction must keep the versions of a key
// that snapshot can still see.
type Snapshot struct {
	db   *DB
	seq  base.SeqNum
	elem *list.Element
}

// snapshotList is the set of outstanding snapshots, oldest first.
type snapshotList struct {
	l list.List
}

func (s *snapshotList) insert(seq base.SeqNum) *list.Element {
	return s.l.PushBack(seq)
}

func (s *snapshotList) remove(e *list.Element) {
	s.l.Remove(e)
}

// smallestSnapshot returns min(active snapshot sequence numbers ∪ {last}),
// spec.md §4.10's smallest_snapshot: with no snapshot outstanding, every
// sequence number up to last is safe to collapse, so it reduces to last
// itself rather than the sentinel 0 a truly empty list would otherwise
// suggest. The compaction path uses this to decide which superseded
// versions of a key are still reachable by a live snapshot and so must
// not be dropped.
func (s *snapshotList) smallestSnapshot(last base.SeqNum) base.SeqNum {
	if e := s.l.Front(); e != nil {
		if seq := e.Value.(base.SeqNum); seq < last {
			return seq
		}
	}
	return last
}

// NewSnapshot returns a Snapshot fixed at the database's current sequence
// number. The caller must Close it when done.
func (d *DB) NewSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.mu.versions.LastSeqNum()
	return &Snapshot{db: d, seq: seq, elem: d.mu.snapshots.insert(seq)}
}

// Get reads key as of the snapshot's sequence number.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return s.db.getAt(key, s.seq)
}

// Close releases the snapshot, allowing compaction to reclaim any key
// versions only it was keeping alive.
func (s *Snapshot) Close() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.mu.snapshots.remove(s.elem)
	return nil
}
