// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "encoding/binary"

// PutUvarint appends v to dst as a base-128 varint and returns the result.
// Grounded on original_source/util/coding.cc's PutVarint32/PutVarint64,
// generalized over uint64 the way encoding/binary already does.
func PutUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

// PutVarstring appends a length-prefixed byte string to dst: varint(len) ||
// bytes. This is the varstring format used by the write-batch encoding
// (spec.md §4.8).
func PutVarstring(dst []byte, s []byte) []byte {
	dst = PutUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// GetUvarint decodes a varint from the front of buf, returning the value
// and the remaining bytes. ok is false if buf does not contain a complete,
// valid varint.
func GetUvarint(buf []byte) (v uint64, rest []byte, ok bool) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, buf, false
	}
	return v, buf[n:], true
}

// GetVarstring decodes a varstring (varint(len) || bytes) from the front of
// buf.
func GetVarstring(buf []byte) (s []byte, rest []byte, ok bool) {
	n, rest, ok := GetUvarint(buf)
	if !ok || uint64(len(rest)) < n {
		return nil, buf, false
	}
	return rest[:n], rest[n:], true
}
