// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

// Component C6: a per-table Bloom filter, built over each 2 KiB range of
// data-block keys (spec.md §4.6) and consulted before any data block read
// to skip blocks that cannot contain the sought key.

const filterBaseLg = 11 // 2 KiB: one filter per this many bytes of data blocks.

// bloomHash is the standard LevelDB/Pebble Bloom hash: Murmur-inspired,
// seeded with 0xbc9f1d34.
func bloomHash(data []byte) uint32 {
	const (
		seed = uint32(0xbc9f1d34)
		m    = uint32(0xc6a4a793)
	)
	h := seed ^ uint32(len(data))*m
	i := 0
	for ; i+4 <= len(data); i += 4 {
		w := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		h += w
		h *= m
		h ^= h >> 16
	}
	switch len(data) - i {
	case 3:
		h += uint32(data[i+2]) << 16
		fallthrough
	case 2:
		h += uint32(data[i+1]) << 8
		fallthrough
	case 1:
		h += uint32(data[i])
		h *= m
		h ^= h >> 24
	}
	return h
}

// bitsPerKey is fixed at 10, giving a false-positive rate near 1%
// (spec.md §4.6).
const bitsPerKey = 10

func bloomNumProbes() int {
	// k = bits_per_key * ln(2), truncated, clamped to [1,30].
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return k
}

// filterWriter accumulates keys for one filter partition (2 KiB of data
// blocks) at a time, matching LevelDB's FilterBlockBuilder.
type filterWriter struct {
	keys       [][]byte
	result     []byte
	filterOffs []uint32
	// dataBlockOffset tracks how many data-block bytes have been added so
	// far, to decide when the next filter partition starts.
	dataBlockOffset uint64
}

func newFilterWriter() *filterWriter {
	return &filterWriter{}
}

// addKey registers one data-block key for inclusion in the current filter
// partition.
func (f *filterWriter) addKey(key []byte) {
	f.keys = append(f.keys, append([]byte(nil), key...))
}

// startBlock must be called each time a data block is finished, with the
// cumulative byte offset of the end of that block; it generates filters for
// any 2 KiB boundaries newly crossed.
func (f *filterWriter) startBlock(blockOffset uint64) {
	index := blockOffset >> filterBaseLg
	for uint64(len(f.filterOffs)) < index {
		f.generateFilter()
	}
}

func (f *filterWriter) generateFilter() {
	if len(f.keys) == 0 {
		f.filterOffs = append(f.filterOffs, uint32(len(f.result)))
		return
	}
	f.filterOffs = append(f.filterOffs, uint32(len(f.result)))
	f.result = append(f.result, buildBloomFilter(f.keys)...)
	f.keys = f.keys[:0]
}

// buildBloomFilter returns the packed bit array for one filter partition.
func buildBloomFilter(keys [][]byte) []byte {
	numProbes := bloomNumProbes()
	numBits := len(keys) * bitsPerKey
	if numBits < 64 {
		numBits = 64
	}
	numBytes := (numBits + 7) / 8
	numBits = numBytes * 8

	buf := make([]byte, numBytes+1)
	buf[numBytes] = byte(numProbes)
	for _, k := range keys {
		h := bloomHash(k)
		delta := (h >> 17) | (h << 15)
		for i := 0; i < numProbes; i++ {
			bitpos := h % uint32(numBits)
			buf[bitpos/8] |= 1 << (bitpos % 8)
			h += delta
		}
	}
	return buf
}

// finish returns the complete filter block: the concatenated filters,
// followed by the per-filter offset array, its own offset, and the
// base-2-log constant (spec.md §4.6's on-disk layout).
func (f *filterWriter) finish() []byte {
	if len(f.keys) > 0 {
		f.generateFilter()
	}
	offsetArrayStart := uint32(len(f.result))
	buf := f.result
	for _, off := range f.filterOffs {
		buf = appendUint32LE(buf, off)
	}
	buf = appendUint32LE(buf, offsetArrayStart)
	buf = append(buf, filterBaseLg)
	return buf
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// filterReader answers "might key be present in the data block starting at
// blockOffset" queries against a finished filter block.
type filterReader struct {
	data            []byte
	offsetArrayBase uint32
	numFilters      uint32
	baseLg          byte
}

func newFilterReader(data []byte) *filterReader {
	if len(data) < 5 {
		return nil
	}
	baseLg := data[len(data)-1]
	offsetArrayBase := leUint32(data[len(data)-5:])
	if uint32(len(data))-5 < offsetArrayBase {
		return nil
	}
	numFilters := (uint32(len(data)) - 5 - offsetArrayBase) / 4
	return &filterReader{data: data, offsetArrayBase: offsetArrayBase, numFilters: numFilters, baseLg: baseLg}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// mayContain reports whether key might be present in the data block whose
// file offset is blockOffset. A false result is a guarantee of absence.
func (r *filterReader) mayContain(blockOffset uint64, key []byte) bool {
	if r == nil {
		return true
	}
	index := blockOffset >> r.baseLg
	if uint32(index) >= r.numFilters {
		return true
	}
	start := leUint32(r.data[r.offsetArrayBase+4*uint32(index):])
	end := r.offsetArrayBase
	if uint32(index)+1 < r.numFilters {
		end = leUint32(r.data[r.offsetArrayBase+4*(uint32(index)+1):])
	}
	if start > end || end > r.offsetArrayBase {
		return true
	}
	filter := r.data[start:end]
	if len(filter) == 0 {
		return false
	}
	numProbes := int(filter[len(filter)-1])
	bits := filter[:len(filter)-1]
	numBits := uint32(len(bits)) * 8

	h := bloomHash(key)
	delta := (h >> 17) | (h << 15)
	for i := 0; i < numProbes; i++ {
		bitpos := h % numBits
		if bits[bitpos/8]&(1<<(bitpos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
