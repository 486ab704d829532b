// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build linux || darwin

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock holds an exclusive advisory flock(2) on a file, released by
// Close. Grounded on original_source/util/env_posix.cc's PosixEnv::LockFile,
// which uses the same non-blocking exclusive lock to guard against two
// processes opening the same database directory.
type fileLock struct {
	f *os.File
}

func lockFile(name string) (Lock, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Close() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
