// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vfs implements the filesystem collaborator (spec.md §4.10): the
// seam the engine reads and writes through, grounded on
// original_source/include/leveldb/env.h's Env interface. A concrete FS lets
// the WAL, SST, and MANIFEST code paths run unmodified against either the
// real operating system or an in-memory filesystem used by tests.
package vfs

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// File is the subset of *os.File operations the engine needs from an open
// file handle.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Closer
	Stat() (os.FileInfo, error)
	Sync() error
}

// Lock represents a held advisory file lock (spec.md §4.10's single-process
// guard via the LOCK file), released by calling Close.
type Lock interface {
	io.Closer
}

// FS abstracts the directory operations the engine performs against a
// database directory: opening, creating, and renaming files, listing and
// removing directory entries, and taking the exclusive LOCK.
type FS interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	// OpenForAppend opens an existing file positioned at its end, for the
	// MANIFEST and WAL recovery paths that resume writing a file another
	// process (or an earlier open) already started.
	OpenForAppend(name string) (File, error)
	OpenDir(name string) (File, error)
	Remove(name string) error
	Rename(oldname, newname string) error
	MkdirAll(dir string, perm os.FileMode) error
	List(dir string) ([]string, error)
	Stat(name string) (os.FileInfo, error)
	Lock(name string) (Lock, error)
}

// Default is the real, disk-backed filesystem.
var Default FS = defaultFS{}

type defaultFS struct{}

func (defaultFS) Create(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
}

func (defaultFS) Open(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) OpenForAppend(name string) (File, error) {
	return os.OpenFile(name, os.O_RDWR|os.O_APPEND, 0644)
}

func (defaultFS) OpenDir(name string) (File, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

func (defaultFS) Remove(name string) error { return os.Remove(name) }

func (defaultFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (defaultFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (defaultFS) Lock(name string) (Lock, error) {
	return lockFile(name)
}

// GetDiskUsage is a best-effort helper that sums the sizes of the regular
// files listed in dir; nothing in the engine calls it. It is not part of
// the FS interface because not every implementation (the in-memory one)
// can answer it meaningfully.
func GetDiskUsage(fs FS, dir string) (used uint64, err error) {
	names, err := fs.List(dir)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		fi, err := fs.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if !fi.IsDir() {
			used += uint64(fi.Size())
		}
	}
	return used, nil
}
