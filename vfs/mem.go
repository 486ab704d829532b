// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// NewMem returns an in-memory FS, used by tests that need deterministic,
// toolchain-independent filesystem behavior (spec.md §8's crash-recovery
// scenarios simulate a killed process by never calling Sync, not by killing
// a real OS process).
func NewMem() FS {
	return &memFS{dirs: map[string]bool{"": true}, files: map[string]*memFile{}}
}

type memFS struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]*memFile
	locks map[string]bool
}

type memFile struct {
	mu   sync.Mutex
	name string
	buf  bytes.Buffer
}

func clean(name string) string { return filepath.Clean(name) }

func (fs *memFS) Create(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name = clean(name)
	f := &memFile{name: name}
	fs.files[name] = f
	return &memFileHandle{f: f}, nil
}

func (fs *memFS) Open(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name = clean(name)
	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFileHandle{f: f}, nil
}

func (fs *memFS) OpenForAppend(name string) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name = clean(name)
	f, ok := fs.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return &memFileHandle{f: f, off: int64(f.buf.Len())}, nil
}

func (fs *memFS) OpenDir(name string) (File, error) { return fs.Open(name) }

func (fs *memFS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name = clean(name)
	if _, ok := fs.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(fs.files, name)
	return nil
}

func (fs *memFS) Rename(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	oldname, newname = clean(oldname), clean(newname)
	f, ok := fs.files[oldname]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	delete(fs.files, oldname)
	f.name = newname
	fs.files[newname] = f
	return nil
}

func (fs *memFS) MkdirAll(dir string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[clean(dir)] = true
	return nil
}

func (fs *memFS) List(dir string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir = clean(dir)
	var names []string
	for name := range fs.files {
		d, base := filepath.Split(name)
		if clean(d) == dir {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (fs *memFS) Stat(name string) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name = clean(name)
	f, ok := fs.files[name]
	if !ok {
		if fs.dirs[name] {
			return memFileInfo{name: name, isDir: true}, nil
		}
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return memFileInfo{name: name, size: int64(f.buf.Len())}, nil
}

func (fs *memFS) Lock(name string) (Lock, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.locks == nil {
		fs.locks = map[string]bool{}
	}
	name = clean(name)
	if fs.locks[name] {
		return nil, errors.Newf("vfs: %s already locked", name)
	}
	fs.locks[name] = true
	return &memLock{fs: fs, name: name}, nil
}

type memLock struct {
	fs   *memFS
	name string
}

func (l *memLock) Close() error {
	l.fs.mu.Lock()
	defer l.fs.mu.Unlock()
	delete(l.fs.locks, l.name)
	return nil
}

type memFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i memFileInfo) Name() string       { return filepath.Base(i.name) }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() os.FileMode  { return 0644 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return i.isDir }
func (i memFileInfo) Sys() interface{}   { return nil }

// memFileHandle gives each Open/Create call its own read offset over a
// shared memFile, mirroring the independent-cursor semantics of *os.File.
type memFileHandle struct {
	f   *memFile
	off int64
}

func (h *memFileHandle) Read(p []byte) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	data := h.f.buf.Bytes()
	if h.off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[h.off:])
	h.off += int64(n)
	return n, nil
}

func (h *memFileHandle) ReadAt(p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	data := h.f.buf.Bytes()
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (h *memFileHandle) Write(p []byte) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return h.f.buf.Write(p)
}

func (h *memFileHandle) Close() error { return nil }

func (h *memFileHandle) Stat() (os.FileInfo, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return memFileInfo{name: h.f.name, size: int64(h.f.buf.Len())}, nil
}

func (h *memFileHandle) Sync() error { return nil }
