// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/kvforge/lsmdb/internal/base"
)

// ReaderAt is the random-access file handle a Reader needs; vfs.File
// satisfies it.
type ReaderAt interface {
	io.ReaderAt
	Size() (int64, error)
}

// Reader opens one SST file for point lookups and iteration (spec.md
// §4.7). It holds the index and filter blocks decoded in memory; data
// blocks are read and decompressed on demand.
type Reader struct {
	file   ReaderAt
	opts   *ReaderOptions
	cmp    base.Compare
	index  []byte
	filter *filterReader
}

// NewReader opens a Reader over file, which must contain exactly one
// complete table written by Writer.
func NewReader(file ReaderAt, opts *ReaderOptions) (*Reader, error) {
	opts = opts.EnsureDefaults()
	size, err := file.Size()
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: stat")
	}
	if size < footerLen {
		return nil, base.CorruptionErrorf("sstable: file too short for footer")
	}
	footer := make([]byte, footerLen)
	if _, err := file.ReadAt(footer, size-footerLen); err != nil {
		return nil, errors.Wrapf(err, "sstable: read footer")
	}
	gotMagic := uint64(binary.LittleEndian.Uint32(footer[footerLen-8:footerLen-4])) |
		uint64(binary.LittleEndian.Uint32(footer[footerLen-4:]))<<32
	if gotMagic != tableMagic {
		return nil, base.CorruptionErrorf("sstable: bad magic number")
	}
	metaOff, rest, ok := base.GetUvarint(footer)
	if !ok {
		return nil, base.CorruptionErrorf("sstable: bad metaindex handle")
	}
	metaLen, rest, ok := base.GetUvarint(rest)
	if !ok {
		return nil, base.CorruptionErrorf("sstable: bad metaindex handle")
	}
	metaindexHandle := blockHandle{offset: metaOff, length: metaLen}
	idxOff, rest, ok := base.GetUvarint(rest)
	if !ok {
		return nil, base.CorruptionErrorf("sstable: bad index handle")
	}
	idxLen, _, ok := base.GetUvarint(rest)
	if !ok {
		return nil, base.CorruptionErrorf("sstable: bad index handle")
	}
	indexHandle := blockHandle{offset: idxOff, length: idxLen}

	r := &Reader{file: file, opts: opts, cmp: opts.Comparer.Compare}

	index, err := r.readBlock(indexHandle)
	if err != nil {
		return nil, err
	}
	r.index = index

	metaindex, err := r.readBlock(metaindexHandle)
	if err != nil {
		return nil, err
	}
	if handle, ok := findFilterHandle(metaindex); ok {
		filterBlock, err := r.readRawBlock(handle)
		if err != nil {
			return nil, err
		}
		r.filter = newFilterReader(filterBlock)
	}
	return r, nil
}

func findFilterHandle(metaindexBlock []byte) (blockHandle, bool) {
	it, err := newBlockIter(rawNameCompare, metaindexBlock)
	if err != nil {
		return blockHandle{}, false
	}
	for valid := it.First(); valid; valid = it.Next() {
		if string(it.Key()) == "filter.leveldb.BuiltinBloomFilter2" {
			h, ok := decodeBlockHandle(it.Value())
			return h, ok
		}
	}
	return blockHandle{}, false
}

// rawNameCompare is the raw comparator used only for the metaindex block,
// whose keys are plain filter names rather than encoded internal keys.
func rawNameCompare(a, b []byte) int {
	return base.DefaultComparer.Compare(a, b)
}

// readBlock reads, checksums, and decompresses the block at handle.
func (r *Reader) readBlock(handle blockHandle) ([]byte, error) {
	buf := make([]byte, handle.length+blockTrailerLen)
	if _, err := r.file.ReadAt(buf, int64(handle.offset)); err != nil {
		return nil, errors.Wrapf(err, "sstable: read block")
	}
	contents := buf[:handle.length]
	trailer := buf[handle.length:]

	gotCRC := crc32.Update(crc32.Checksum(contents, crc32cTable), crc32cTable, trailer[:1])
	wantCRC := unmaskCRC(binary.LittleEndian.Uint32(trailer[1:5]))
	if gotCRC != wantCRC {
		return nil, base.CorruptionErrorf("sstable: block checksum mismatch at offset %d", handle.offset)
	}

	switch Compression(trailer[0]) {
	case NoCompression:
		return contents, nil
	case SnappyCompression:
		decoded, err := snappy.Decode(nil, contents)
		if err != nil {
			return nil, errors.Wrapf(err, "sstable: snappy decode")
		}
		return decoded, nil
	default:
		return nil, base.CorruptionErrorf("sstable: unknown compression type %d", trailer[0])
	}
}

// readRawBlock reads handle.length bytes verbatim, with no checksum or
// compression (used for the filter block, written by writeRaw2).
func (r *Reader) readRawBlock(handle blockHandle) ([]byte, error) {
	buf := make([]byte, handle.length)
	if _, err := r.file.ReadAt(buf, int64(handle.offset)); err != nil {
		return nil, errors.Wrapf(err, "sstable: read filter block")
	}
	return buf, nil
}

func (r *Reader) internalRawCompare(a, b []byte) int {
	return base.InternalCompare(r.cmp, base.DecodeInternalKey(a), base.DecodeInternalKey(b))
}

// Get performs a point lookup for the newest entry with key.UserKey visible
// at key.Seq, consulting the Bloom filter first to skip blocks that cannot
// contain it.
func (r *Reader) Get(key base.LookupKey) (base.InternalKey, []byte, error) {
	target := base.MakeSearchKey(key.UserKey, key.Seq)
	targetRaw := encodeInternalKey(target)

	idx, err := newBlockIter(r.internalRawCompare, r.index)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	if !idx.Seek(targetRaw) {
		return base.InternalKey{}, nil, base.ErrNotFound
	}
	handle, ok := decodeBlockHandle(idx.Value())
	if !ok {
		return base.InternalKey{}, nil, base.CorruptionErrorf("sstable: bad index entry")
	}
	if r.filter != nil && !r.filter.mayContain(handle.offset, targetRaw) {
		return base.InternalKey{}, nil, base.ErrNotFound
	}

	data, err := r.readBlock(handle)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	dit, err := newBlockIter(r.internalRawCompare, data)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	if !dit.Seek(targetRaw) {
		return base.InternalKey{}, nil, base.ErrNotFound
	}
	gotKey := base.DecodeInternalKey(dit.Key())
	if r.cmp(gotKey.UserKey, key.UserKey) == 0 {
		return gotKey, append([]byte(nil), dit.Value()...), nil
	}
	return base.InternalKey{}, nil, base.ErrNotFound
}

// NewIter returns an iterator over the whole table in internal-key order,
// satisfying base.InternalIterator via a two-level (index + data block)
// traversal (spec.md §4.11).
func (r *Reader) NewIter() (base.InternalIterator, error) {
	return &tableIter{r: r}, nil
}

// tableIter is the two-level iterator: an index-block iterator selects the
// current data block, whose own blockIter is driven in lockstep.
type tableIter struct {
	r       *Reader
	idx     *blockIter
	data    *blockIter
	ikey    base.InternalKey
	err     error
}

func (t *tableIter) initIdx() bool {
	if t.idx != nil {
		return true
	}
	idx, err := newBlockIter(t.r.internalRawCompare, t.r.index)
	if err != nil {
		t.err = err
		return false
	}
	t.idx = idx
	return true
}

func (t *tableIter) loadData(valid bool) (*base.InternalKey, []byte) {
	if !valid {
		t.data = nil
		return nil, nil
	}
	handle, ok := decodeBlockHandle(t.idx.Value())
	if !ok {
		t.err = base.CorruptionErrorf("sstable: bad index entry")
		return nil, nil
	}
	block, err := t.r.readBlock(handle)
	if err != nil {
		t.err = err
		return nil, nil
	}
	dit, err := newBlockIter(t.r.internalRawCompare, block)
	if err != nil {
		t.err = err
		return nil, nil
	}
	t.data = dit
	return t.decodeFirst()
}

func (t *tableIter) decodeFirst() (*base.InternalKey, []byte) {
	if !t.data.First() {
		return t.advanceIndexForward()
	}
	return t.decode()
}

func (t *tableIter) decodeLast() (*base.InternalKey, []byte) {
	if !t.data.Last() {
		return nil, nil
	}
	return t.decode()
}

func (t *tableIter) decode() (*base.InternalKey, []byte) {
	t.ikey = base.DecodeInternalKey(t.data.Key())
	return &t.ikey, t.data.Value()
}

func (t *tableIter) advanceIndexForward() (*base.InternalKey, []byte) {
	for t.idx.Next() {
		k, v := t.loadData(true)
		if t.data != nil {
			return k, v
		}
	}
	t.data = nil
	return nil, nil
}

func (t *tableIter) First() (*base.InternalKey, []byte) {
	if !t.initIdx() {
		return nil, nil
	}
	return t.loadData(t.idx.First())
}

func (t *tableIter) Last() (*base.InternalKey, []byte) {
	if !t.initIdx() {
		return nil, nil
	}
	if !t.idx.Last() {
		return nil, nil
	}
	handle, ok := decodeBlockHandle(t.idx.Value())
	if !ok {
		t.err = base.CorruptionErrorf("sstable: bad index entry")
		return nil, nil
	}
	block, err := t.r.readBlock(handle)
	if err != nil {
		t.err = err
		return nil, nil
	}
	dit, err := newBlockIter(t.r.internalRawCompare, block)
	if err != nil {
		t.err = err
		return nil, nil
	}
	t.data = dit
	return t.decodeLast()
}

func (t *tableIter) SeekGE(key []byte) (*base.InternalKey, []byte) {
	if !t.initIdx() {
		return nil, nil
	}
	target := base.InternalKey{UserKey: key, Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
	raw := encodeInternalKey(target)
	if !t.idx.Seek(raw) {
		t.data = nil
		return nil, nil
	}
	k, v := t.loadData(true)
	if t.data == nil {
		return nil, nil
	}
	for k != nil && t.r.cmp(k.UserKey, key) < 0 {
		k, v = t.Next()
	}
	return k, v
}

func (t *tableIter) SeekLT(key []byte) (*base.InternalKey, []byte) {
	k, _ := t.SeekGE(key)
	if k == nil {
		return t.Last()
	}
	return t.Prev()
}

func (t *tableIter) Next() (*base.InternalKey, []byte) {
	if t.data == nil {
		return nil, nil
	}
	if t.data.Next() {
		return t.decode()
	}
	return t.advanceIndexForward()
}

func (t *tableIter) Prev() (*base.InternalKey, []byte) {
	if t.data == nil {
		return nil, nil
	}
	if t.data.Prev() {
		return t.decode()
	}
	for t.idx.Prev() {
		handle, ok := decodeBlockHandle(t.idx.Value())
		if !ok {
			t.err = base.CorruptionErrorf("sstable: bad index entry")
			return nil, nil
		}
		block, err := t.r.readBlock(handle)
		if err != nil {
			t.err = err
			return nil, nil
		}
		dit, err := newBlockIter(t.r.internalRawCompare, block)
		if err != nil {
			t.err = err
			return nil, nil
		}
		t.data = dit
		if t.data.Last() {
			return t.decode()
		}
	}
	t.data = nil
	return nil, nil
}

func (t *tableIter) Key() *base.InternalKey { return &t.ikey }
func (t *tableIter) Value() []byte {
	if t.data == nil {
		return nil
	}
	return t.data.Value()
}
func (t *tableIter) Valid() bool { return t.data != nil && t.data.Valid() }
func (t *tableIter) Error() error { return t.err }
func (t *tableIter) Close() error { return t.err }
