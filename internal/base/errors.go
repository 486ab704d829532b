// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrNotFound means that a get or delete call did not find the requested
// key.
var ErrNotFound = errors.New("lsmdb: not found")

// ErrCorruption indicates on-disk state (a WAL record, a block, a MANIFEST
// edit) failed a checksum or structural sanity check.
var ErrCorruption = errors.New("lsmdb: corruption")

// ErrNotSupported is returned for unimplemented or disabled functionality
// (e.g. a MANIFEST recorded under a different comparer name on open).
var ErrNotSupported = errors.New("lsmdb: not supported")

// ErrInvalidArgument is returned for caller errors: Open returns it for a
// missing DB directory when CreateIfMissing is false. Keys and option
// values are not validated against it.
var ErrInvalidArgument = errors.New("lsmdb: invalid argument")

// ErrClosed is returned by any DB method once the DB has been closed.
var ErrClosed = errors.New("lsmdb: closed")

// CorruptionErrorf formats a new error marked as ErrCorruption.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// InvalidArgumentErrorf formats a new error marked as ErrInvalidArgument.
func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

// IsCorruptionError reports whether err is (or wraps) ErrCorruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}
