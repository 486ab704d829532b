// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is less than, equal
// to, or greater than b.
type Compare func(a, b []byte) int

// Equal returns true if a and b are equivalent under the user's ordering.
type Equal func(a, b []byte) bool

// AbbreviatedKey maps a key to a fixed-length prefix usable for a fast,
// approximate comparison. The default comparer supplies one (the key's
// first 8 bytes, big-endian); nothing in the engine calls it.
type AbbreviatedKey func(key []byte) uint64

// Separator appends to dst a key in [a, b) that is short, and, if possible,
// shorter than a. It is used to choose compact SST index-block separators
// (spec.md §4.7).
type Separator func(dst, a, b []byte) []byte

// Successor appends to dst a key >= a that is short. Nothing in the engine
// calls it: the SST writer uses the last key itself as the final
// index-block entry.
type Successor func(dst, a []byte) []byte

// Comparer bundles the user-supplied total order plus the helpers the
// block/index builders need. The default is lexicographic byte order.
type Comparer struct {
	Compare        Compare
	Equal          Equal
	AbbreviatedKey AbbreviatedKey
	Separator      Separator
	Successor      Successor
	Name           string
}

// DefaultComparer orders keys lexicographically by byte value, using
// bytes.Compare.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Equal:   bytes.Equal,
	AbbreviatedKey: func(key []byte) uint64 {
		var v uint64
		for i := 0; i < 8; i++ {
			v <<= 8
			if i < len(key) {
				v |= uint64(key[i])
			}
		}
		return v
	},
	Separator: defaultSeparator,
	Successor: defaultSuccessor,
	Name:      "lsmdb.BytewiseComparator",
}

func defaultSeparator(dst, a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for ; i < n && a[i] == b[i]; i++ {
	}
	if i == n {
		// a is a prefix of b, or vice versa / equal; no shorter separator
		// exists than a itself.
		return append(dst, a...)
	}
	if a[i] < 0xff && a[i]+1 < b[i] {
		dst = append(dst, a[:i+1]...)
		dst[len(dst)-1]++
		return dst
	}
	return append(dst, a...)
}

func defaultSuccessor(dst, a []byte) []byte {
	for i := 0; i < len(a); i++ {
		if a[i] != 0xff {
			dst = append(dst, a[:i+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	return append(dst, a...)
}
