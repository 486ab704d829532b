// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
)

// Version is an immutable snapshot of the file catalog: which tables exist
// at each of the NumLevels levels (spec.md §3, §4.9). Level 0 files may
// overlap each other; every other level's files are sorted and disjoint.
type Version struct {
	Files [NumLevels][]*FileMetaData

	refs atomic.Int32

	list       *VersionList
	prev, next *Version
}

// Ref increments the version's reference count.
func (v *Version) Ref() { v.refs.Add(1) }

// Unref decrements the version's reference count, unlinking it from its
// VersionList once the count reaches zero.
func (v *Version) Unref() {
	if v.refs.Add(-1) == 0 {
		l := v.list
		l.mu.Lock()
		l.remove(v)
		l.mu.Unlock()
	}
}

func (v *Version) String() string {
	s := ""
	for level := 0; level < NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		s += fmt.Sprintf("%d:", level)
		for _, f := range v.Files[level] {
			s += fmt.Sprintf(" %s-%s", f.Smallest.UserKey, f.Largest.UserKey)
		}
		s += "\n"
	}
	return s
}

// Overlaps returns the files in level whose user key range intersects
// [start, end]. For level 0, whose files may overlap each other, the
// search range is iteratively expanded to the union of every match found
// so far until it stabilizes (spec.md §4.9).
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetaData {
	if level == 0 {
		var ret []*FileMetaData
	loop:
		for {
			for _, f := range v.Files[0] {
				if cmp(f.Largest.UserKey, start) < 0 || cmp(f.Smallest.UserKey, end) > 0 {
					continue
				}
				ret = append(ret, f)
				restart := false
				if cmp(f.Smallest.UserKey, start) < 0 {
					start = f.Smallest.UserKey
					restart = true
				}
				if cmp(f.Largest.UserKey, end) > 0 {
					end = f.Largest.UserKey
					restart = true
				}
				if restart {
					ret = ret[:0]
					continue loop
				}
			}
			return ret
		}
	}

	files := v.Files[level]
	lower := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Largest.UserKey, start) >= 0
	})
	upper := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Smallest.UserKey, end) > 0
	})
	return files[lower:upper]
}

// CheckOrdering validates the level-0-by-file-number, level-N-by-disjoint-
// range invariants spec.md §3 states for a Version.
func (v *Version) CheckOrdering(cmp base.Compare) error {
	for level, files := range v.Files {
		if level == 0 {
			var prev base.FileNum
			for i, f := range files {
				if i != 0 && prev >= f.FileNum {
					return errors.Newf("manifest: level 0 files not in increasing fileNum order: %d, %d", prev, f.FileNum)
				}
				prev = f.FileNum
			}
			continue
		}
		var prevLargest base.InternalKey
		for i, f := range files {
			if i != 0 && base.InternalCompare(cmp, prevLargest, f.Smallest) >= 0 {
				return errors.Newf("manifest: level %d files not in increasing order: %s, %s", level, prevLargest, f.Smallest)
			}
			if base.InternalCompare(cmp, f.Smallest, f.Largest) > 0 {
				return errors.Newf("manifest: level %d file has inverted bounds: %s, %s", level, f.Smallest, f.Largest)
			}
			prevLargest = f.Largest
		}
	}
	return nil
}

// VersionList is a circular doubly-linked list of live Versions, used so
// VersionSet can always find the oldest Version still referenced by some
// iterator or snapshot when deciding which files are obsolete (spec.md
// §4.9's file garbage collection).
type VersionList struct {
	mu   *sync.Mutex
	root Version
}

// Init must be called once before use.
func (l *VersionList) Init(mu *sync.Mutex) {
	l.mu = mu
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *VersionList) Empty() bool   { return l.root.next == &l.root }
func (l *VersionList) Front() *Version { return l.root.next }
func (l *VersionList) Back() *Version  { return l.root.prev }

// PushBack links v in as the newest version.
func (l *VersionList) PushBack(v *Version) {
	if v.list != nil || v.prev != nil || v.next != nil {
		panic("manifest: version already linked")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

func (l *VersionList) remove(v *Version) {
	if v == &l.root {
		panic("manifest: cannot remove version list root")
	}
	if v.list != l {
		panic("manifest: version list inconsistent")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next, v.prev, v.list = nil, nil, nil
}
