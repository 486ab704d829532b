// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"fmt"
)

// InternalKeyKind is the kind of a key: a set (put) or a tombstone (delete).
// It is the low byte of an internal key's trailer.
type InternalKeyKind uint8

// The kinds recognized by lsmdb. Numeric values are chosen to match the
// LevelDB/Pebble family so that a reader never has to special-case this
// engine's tag layout against the one spec.md §3 describes.
const (
	InternalKeyKindDelete  InternalKeyKind = 0
	InternalKeyKindSet     InternalKeyKind = 1
	InternalKeyKindMax     InternalKeyKind = 1
	InternalKeyKindInvalid InternalKeyKind = 255
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// SeqNum is the 56-bit monotonically increasing mutation counter. Sequence
// number 0 is reserved and never assigned to a mutation.
type SeqNum = uint64

// SeqNumMax is the largest representable sequence number (56 bits of 1s).
// A lookup key built with this sequence number therefore observes every
// committed mutation.
const SeqNumMax SeqNum = 1<<56 - 1

// InternalKeyZeroSeqnum is used to annotate keys that are known to not be
// shadowed by any snapshot (used when rewriting keys at the bottom of the
// level tree in a real compaction; unused by the trivial compactor here,
// kept for API parity with the teacher).
const InternalKeyZeroSeqnum = SeqNum(0)

// MakeTrailer packs a sequence number and kind into the 8-byte tag appended
// to every internal key, as described in spec.md §3 ("tag = (sequence << 8)
// | type").
func MakeTrailer(seqNum SeqNum, kind InternalKeyKind) uint64 {
	return (seqNum << 8) | uint64(kind)
}

// InternalKey is the engine's sort key: a user key plus a trailer packing
// the sequence number and kind.
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey returns a new internal key with the given user key,
// sequence number and kind.
func MakeInternalKey(userKey []byte, seqNum SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: MakeTrailer(seqNum, kind)}
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() SeqNum { return k.Trailer >> 8 }

// Kind returns the key's kind.
func (k InternalKey) Kind() InternalKeyKind { return InternalKeyKind(k.Trailer & 0xff) }

// Visible reports whether the key's sequence number is visible to a read at
// snapshot sequence number snapshot.
func (k InternalKey) Visible(snapshot SeqNum) bool { return k.SeqNum() <= snapshot }

// Size returns the encoded size of the key (user key plus 8-byte trailer).
func (k InternalKey) Size() int { return len(k.UserKey) + 8 }

// Clone returns a deep copy of the key.
func (k InternalKey) Clone() InternalKey {
	if k.UserKey == nil {
		return k
	}
	u := make([]byte, len(k.UserKey))
	copy(u, k.UserKey)
	return InternalKey{UserKey: u, Trailer: k.Trailer}
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%d,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// Encode appends the 8-byte little-endian trailer to buf (which must
// already contain the user key) and returns the result. It mirrors the
// entry layout of spec.md §3: user_key || tag.
func (k InternalKey) Encode(buf []byte) []byte {
	n := len(buf)
	buf = append(buf, make([]byte, 8)...)
	binary.LittleEndian.PutUint64(buf[n:], k.Trailer)
	return buf
}

// EncodeTo writes the internal key (user key + 8-byte trailer) into dst,
// which must be at least k.Size() bytes long, and returns the number of
// bytes written.
func (k InternalKey) EncodeTo(dst []byte) int {
	n := copy(dst, k.UserKey)
	binary.LittleEndian.PutUint64(dst[n:], k.Trailer)
	return n + 8
}

// DecodeInternalKey decodes an internal key from its encoded form
// (user_key || 8-byte trailer). It returns an invalid-kind key if buf is
// too short to contain a trailer; callers treat that as corruption.
func DecodeInternalKey(buf []byte) InternalKey {
	if len(buf) < 8 {
		return InternalKey{UserKey: buf, Trailer: uint64(InternalKeyKindInvalid)}
	}
	n := len(buf) - 8
	return InternalKey{
		UserKey: buf[:n:n],
		Trailer: binary.LittleEndian.Uint64(buf[n:]),
	}
}

// InternalCompare orders internal keys per spec.md §3: ascending by user
// key; for equal user keys, descending by tag (newer sequence first).
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if c := userCmp(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	// Trailers pack (seqNum<<8)|kind, so a larger trailer is a newer
	// mutation (or, for equal sequence numbers, never occurs in practice
	// since sequence numbers are unique per mutation). Newer sorts first,
	// i.e. descending trailer order.
	switch {
	case a.Trailer > b.Trailer:
		return -1
	case a.Trailer < b.Trailer:
		return 1
	default:
		return 0
	}
}
