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

// Component C7: the on-disk SST ("table") format (spec.md §4.7) — a
// sequence of data blocks, an optional filter block, a metaindex block, an
// index block, and a fixed-size footer.

const (
	blockTrailerLen = 5 // 1-byte compression type + 4-byte masked CRC32C
	footerLen       = 48
	tableMagic      = uint64(0xdb4775248b80fb57)
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

func maskCRC(crc uint32) uint32 { return ((crc >> 15) | (crc << 17)) + crcMaskDelta }
func unmaskCRC(masked uint32) uint32 {
	rot := masked - crcMaskDelta
	return (rot >> 17) | (rot << 15)
}

type blockHandle struct {
	offset, length uint64
}

func (h blockHandle) encode(buf []byte) []byte {
	buf = base.PutUvarint(buf, h.offset)
	buf = base.PutUvarint(buf, h.length)
	return buf
}

func decodeBlockHandle(b []byte) (blockHandle, bool) {
	offset, b, ok := base.GetUvarint(b)
	if !ok {
		return blockHandle{}, false
	}
	length, _, ok := base.GetUvarint(b)
	if !ok {
		return blockHandle{}, false
	}
	return blockHandle{offset, length}, true
}

// Properties summarizes a finished table, returned by Writer.Close.
type Properties struct {
	NumEntries       uint64
	DataSize         uint64
	SmallestKey      base.InternalKey
	LargestKey       base.InternalKey
}

// Writer builds one SST file, written sequentially to w (spec.md §4.7). Keys
// must be added in strictly increasing internal-key order.
type Writer struct {
	w    io.Writer
	opts *WriterOptions
	cmp  base.Compare

	offset     uint64
	dataBlock  *blockWriter
	indexBlock *blockWriter
	filter     *filterWriter

	pendingHandle         blockHandle
	havePendingIndexEntry bool
	lastKey               []byte

	props Properties
	err   error
	closed bool
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer, opts *WriterOptions) *Writer {
	opts = opts.EnsureDefaults()
	tw := &Writer{
		w:          w,
		opts:       opts,
		cmp:        opts.Comparer.Compare,
		dataBlock:  newBlockWriter(opts.BlockRestartInterval),
		indexBlock: newBlockWriter(opts.BlockRestartInterval),
	}
	if opts.FilterKeys {
		tw.filter = newFilterWriter()
	}
	return tw
}

func encodeInternalKey(k base.InternalKey) []byte {
	buf := make([]byte, k.Size())
	k.EncodeTo(buf)
	return buf
}

// Add appends one (key, value) entry. Keys must be added in strictly
// increasing internal-key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	raw := encodeInternalKey(key)
	if w.lastKey != nil && base.InternalCompare(w.cmp, base.DecodeInternalKey(w.lastKey), key) >= 0 {
		return errors.AssertionFailedf("sstable: keys added out of order")
	}
	if w.havePendingIndexEntry {
		lastUserKey := base.DecodeInternalKey(w.lastKey).UserKey
		sepUserKey := w.opts.Comparer.Separator(nil, lastUserKey, key.UserKey)
		// Only a separator strictly above the block's last user key may
		// take the maximal trailer; otherwise the last key itself is used,
		// so the entry never sorts before the block's own last entry.
		indexKey := w.lastKey
		if w.cmp(lastUserKey, sepUserKey) < 0 {
			sepKey := base.InternalKey{UserKey: sepUserKey, Trailer: base.MakeTrailer(base.SeqNumMax, base.InternalKeyKindMax)}
			indexKey = encodeInternalKey(sepKey)
		}
		handle := w.pendingHandle.encode(nil)
		w.indexBlock.add(indexKey, handle)
		w.havePendingIndexEntry = false
	}
	if w.filter != nil {
		w.filter.addKey(raw)
	}

	w.dataBlock.add(raw, value)
	w.lastKey = append(w.lastKey[:0], raw...)

	if w.props.NumEntries == 0 {
		w.props.SmallestKey = key.Clone()
	}
	w.props.LargestKey = key.Clone()
	w.props.NumEntries++

	if w.dataBlock.estimatedSize() >= w.opts.BlockSize {
		return w.flushDataBlock()
	}
	return nil
}

func (w *Writer) flushDataBlock() error {
	if w.dataBlock.empty() {
		return nil
	}
	handle, err := w.writeBlock(w.dataBlock)
	if err != nil {
		return w.fail(err)
	}
	w.pendingHandle = handle
	w.havePendingIndexEntry = true
	w.dataBlock = newBlockWriter(w.opts.BlockRestartInterval)
	if w.filter != nil {
		w.filter.startBlock(w.offset)
	}
	return nil
}

func (w *Writer) writeBlock(b *blockWriter) (blockHandle, error) {
	raw := b.finish()
	contents := raw
	compression := NoCompression
	if w.opts.Compression == SnappyCompression {
		compressed := snappy.Encode(nil, raw)
		if len(compressed) < len(raw)-len(raw)/8 {
			contents = compressed
			compression = SnappyCompression
		}
	}
	handle := blockHandle{offset: w.offset, length: uint64(len(contents))}
	if err := w.writeRaw(contents); err != nil {
		return blockHandle{}, err
	}

	var trailer [blockTrailerLen]byte
	trailer[0] = byte(compression)
	crc := crc32.Update(crc32.Checksum(contents, crc32cTable), crc32cTable, trailer[:1])
	binary.LittleEndian.PutUint32(trailer[1:5], maskCRC(crc))
	if err := w.writeRaw(trailer[:]); err != nil {
		return blockHandle{}, err
	}
	return handle, nil
}

func (w *Writer) writeRaw(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return errors.Wrapf(err, "sstable: write")
	}
	w.offset += uint64(len(p))
	return nil
}

func (w *Writer) fail(err error) error {
	w.err = err
	return err
}

// EstimatedSize returns the number of bytes written plus the buffered,
// not-yet-flushed data block.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(w.dataBlock.estimatedSize())
}

// Close flushes any buffered data, writes the filter/metaindex/index blocks
// and the footer, and returns the resulting table's properties.
func (w *Writer) Close() (Properties, error) {
	if w.closed {
		return w.props, w.err
	}
	w.closed = true
	if w.err != nil {
		return w.props, w.err
	}
	if err := w.flushDataBlock(); err != nil {
		return w.props, err
	}
	if w.havePendingIndexEntry {
		handle := w.pendingHandle.encode(nil)
		w.indexBlock.add(w.lastKey, handle)
		w.havePendingIndexEntry = false
	}

	metaindex := newBlockWriter(w.opts.BlockRestartInterval)
	if w.filter != nil {
		filterContents := w.filter.finish()
		handle, err := w.writeRaw2(filterContents)
		if err != nil {
			return w.props, err
		}
		metaindex.add([]byte("filter.leveldb.BuiltinBloomFilter2"), handle.encode(nil))
	}

	metaindexHandle, err := w.writeBlock(metaindex)
	if err != nil {
		return w.props, err
	}
	indexHandle, err := w.writeBlock(w.indexBlock)
	if err != nil {
		return w.props, err
	}

	footer := make([]byte, 0, footerLen)
	footer = metaindexHandle.encode(footer)
	footer = indexHandle.encode(footer)
	footer = append(footer, make([]byte, footerLen-8-len(footer))...)
	binary.LittleEndian.PutUint32(footer[footerLen-8:], uint32(tableMagic))
	binary.LittleEndian.PutUint32(footer[footerLen-4:], uint32(tableMagic>>32))
	if err := w.writeRaw(footer); err != nil {
		return w.props, err
	}
	w.props.DataSize = w.offset
	return w.props, nil
}

// writeRaw2 writes p verbatim (no compression, no CRC trailer — used for
// the filter block, which is read independent of block-cache decompression)
// and returns its handle.
func (w *Writer) writeRaw2(p []byte) (blockHandle, error) {
	handle := blockHandle{offset: w.offset, length: uint64(len(p))}
	if err := w.writeRaw(p); err != nil {
		return blockHandle{}, err
	}
	return handle, nil
}
