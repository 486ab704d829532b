// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmdb

import (
	"log"

	"github.com/kvforge/lsmdb/internal/base"
)

// FlushInfo describes one completed memtable flush.
type FlushInfo struct {
	LogNum   base.FileNum
	Output   base.FileNum
	Duration int64 // nanoseconds
	Err      error
}

// CompactionInfo describes one completed compaction.
type CompactionInfo struct {
	Level     int
	Inputs    int
	Outputs   int
	IsTrivial bool
	Duration  int64 // nanoseconds
	Err       error
}

// EventListener is a set of callbacks invoked at points in the database's
// lifecycle the operator may want to observe (spec.md §3's ambient logging
// concern, generalized to a pluggable hook struct the way the wider pack's
// server components report lifecycle events). Any field left nil is
// skipped.
type EventListener struct {
	WALCreated      func(num base.FileNum)
	ManifestCreated func(num base.FileNum)
	FlushBegin      func(logNum base.FileNum)
	FlushEnd        func(FlushInfo)
	CompactionBegin func(level int)
	CompactionEnd   func(CompactionInfo)
	TableDeleted    func(num base.FileNum)
}

// NewLoggingEventListener returns an EventListener that formats every event
// as a line written through lg, the default for Options.EventListener.
func NewLoggingEventListener(lg *log.Logger) *EventListener {
	return &EventListener{
		WALCreated:      func(num base.FileNum) { lg.Printf("WAL created: %s.log", num) },
		ManifestCreated: func(num base.FileNum) { lg.Printf("MANIFEST created: MANIFEST-%06d", num) },
		FlushBegin:      func(logNum base.FileNum) { lg.Printf("flush begin: log=%s", logNum) },
		FlushEnd: func(info FlushInfo) {
			if info.Err != nil {
				lg.Printf("flush failed: log=%s err=%v", info.LogNum, info.Err)
				return
			}
			lg.Printf("flush end: log=%s output=%s duration=%dns", info.LogNum, info.Output, info.Duration)
		},
		CompactionBegin: func(level int) { lg.Printf("compaction begin: level=%d", level) },
		CompactionEnd: func(info CompactionInfo) {
			if info.Err != nil {
				lg.Printf("compaction failed: level=%d err=%v", info.Level, info.Err)
				return
			}
			lg.Printf("compaction end: level=%d inputs=%d outputs=%d trivial=%v duration=%dns",
				info.Level, info.Inputs, info.Outputs, info.IsTrivial, info.Duration)
		},
		TableDeleted: func(num base.FileNum) { lg.Printf("table deleted: %s.ldb", num) },
	}
}

func (l *EventListener) walCreated(num base.FileNum) {
	if l != nil && l.WALCreated != nil {
		l.WALCreated(num)
	}
}

func (l *EventListener) manifestCreated(num base.FileNum) {
	if l != nil && l.ManifestCreated != nil {
		l.ManifestCreated(num)
	}
}

func (l *EventListener) flushBegin(logNum base.FileNum) {
	if l != nil && l.FlushBegin != nil {
		l.FlushBegin(logNum)
	}
}

func (l *EventListener) flushEnd(info FlushInfo) {
	if l != nil && l.FlushEnd != nil {
		l.FlushEnd(info)
	}
}

func (l *EventListener) compactionBegin(level int) {
	if l != nil && l.CompactionBegin != nil {
		l.CompactionBegin(level)
	}
}

func (l *EventListener) compactionEnd(info CompactionInfo) {
	if l != nil && l.CompactionEnd != nil {
		l.CompactionEnd(info)
	}
}

func (l *EventListener) tableDeleted(num base.FileNum) {
	if l != nil && l.TableDeleted != nil {
		l.TableDeleted(num)
	}
}
