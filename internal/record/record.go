// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the WAL physical/logical record layer (spec.md
// §4.4, component C4): 32 KiB blocks of CRC32C-checked, type-tagged
// records, used both by `<n>.log` write-ahead logs and by the MANIFEST
// edit log.
package record

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/kvforge/lsmdb/internal/base"
)

const (
	// BlockSize is the physical block size records are framed into.
	BlockSize = 32 * 1024
	// headerSize is 4 bytes CRC + 2 bytes length + 1 byte type.
	headerSize = 7
)

type recordType byte

const (
	recordTypeZero   recordType = 0
	recordTypeFull   recordType = 1
	recordTypeFirst  recordType = 2
	recordTypeMiddle recordType = 3
	recordTypeLast   recordType = 4
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

const maskDelta = 0xa282ead8

// maskCRC rotates and offsets a CRC so it differs from the raw CRC of the
// payload alone (spec.md §4.4).
func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

func unmaskCRC(masked uint32) uint32 {
	rot := masked - maskDelta
	return (rot >> 17) | (rot << 15)
}

// Writer fragments logical records into BlockSize-framed physical records
// and writes them to an underlying io.Writer (spec.md §4.4's Writer).
type Writer struct {
	w     io.Writer
	block [BlockSize]byte
	// off is the write offset within the current logical block.
	off int
}

// NewWriter returns a Writer appending to w, which must itself already be
// positioned at the start of a file (the writer does not seek).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NewWriterAt returns a Writer appending to w, which must itself already be
// positioned initialOffset bytes into the file it is writing, so that
// AddRecord fragments correctly around the block boundaries already
// written by an earlier Writer (spec.md §5's reuse_logs, grounded on
// original_source/db/log_writer.cc's Writer(dest, dest_length)
// constructor, which derives its starting block offset the same way).
func NewWriterAt(w io.Writer, initialOffset int) *Writer {
	return &Writer{w: w, off: initialOffset % BlockSize}
}

// AddRecord writes one logical record, fragmenting it across block
// boundaries as needed, flushing each physical record to the underlying
// writer. Sync is a separate call driven by the caller.
func (w *Writer) AddRecord(payload []byte) error {
	begin := true
	for {
		leftover := BlockSize - w.off
		if leftover < headerSize {
			if leftover > 0 {
				// Zero-pad the trailer; it is later silently skipped by
				// the reader (recordTypeZero).
				var zeroes [headerSize]byte
				if err := w.writeRaw(zeroes[:leftover]); err != nil {
					return err
				}
			}
			w.off = 0
		}

		avail := BlockSize - w.off - headerSize
		fragLen := len(payload)
		if fragLen > avail {
			fragLen = avail
		}
		end := fragLen == len(payload)

		var typ recordType
		switch {
		case begin && end:
			typ = recordTypeFull
		case begin:
			typ = recordTypeFirst
		case end:
			typ = recordTypeLast
		default:
			typ = recordTypeMiddle
		}

		if err := w.emit(typ, payload[:fragLen]); err != nil {
			return err
		}
		payload = payload[fragLen:]
		begin = false
		if len(payload) == 0 {
			return nil
		}
	}
}

func (w *Writer) emit(typ recordType, data []byte) error {
	var hdr [headerSize]byte
	crc := crc32.Checksum(append([]byte{byte(typ)}, data...), crc32cTable)
	binary.LittleEndian.PutUint32(hdr[0:4], maskCRC(crc))
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(data)))
	hdr[6] = byte(typ)
	if err := w.writeRaw(hdr[:]); err != nil {
		return err
	}
	return w.writeRaw(data)
}

func (w *Writer) writeRaw(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return errors.Wrapf(err, "record: write")
	}
	w.off += len(p)
	return nil
}

// Reporter receives details about corrupted physical records encountered
// while reading (spec.md §4.4, §7).
type Reporter interface {
	Corruption(bytesDropped int, reason error)
}

// Reader streams logical records from r, reassembling fragments and
// invoking reporter on any corruption encountered.
type Reader struct {
	r        io.Reader
	reporter Reporter
	buf      [BlockSize]byte
	// pending holds unread bytes of the current block.
	pending []byte
	eof      bool
	// resyncing, set by NewReaderAt, means the reader skips the first
	// MIDDLE/LAST fragments it sees (resynchronization, spec.md §4.4).
	inFragmentedRecord bool
	resyncing          bool
}

// NewReader returns a Reader over r, starting at offset 0.
func NewReader(r io.Reader, reporter Reporter) *Reader {
	return &Reader{r: r, reporter: reporter}
}

// NewReaderAt returns a Reader that assumes the underlying stream starts at
// a nonzero offset within a WAL file; the first fragment encountered that
// is not a FULL or FIRST record is silently dropped (resynchronization).
func NewReaderAt(r io.Reader, reporter Reporter) *Reader {
	rd := NewReader(r, reporter)
	rd.resyncing = true
	return rd
}

func (r *Reader) report(n int, err error) {
	if r.reporter != nil {
		r.reporter.Corruption(n, err)
	}
}

func (r *Reader) readPhysicalRecord() (typ recordType, data []byte, ok bool) {
	for {
		if len(r.pending) < headerSize {
			if r.eof {
				if len(r.pending) != 0 {
					// Truncated header at EOF: treated as a clean EOF,
					// assuming a writer crash (spec.md §4.4).
					r.pending = nil
				}
				return 0, nil, false
			}
			n, err := io.ReadFull(r.r, r.buf[:])
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				r.report(n, errors.Wrapf(err, "record: read"))
				return 0, nil, false
			}
			if err == io.EOF && n == 0 {
				return 0, nil, false
			}
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				r.eof = true
			}
			r.pending = append([]byte(nil), r.buf[:n]...)
			continue
		}

		crcField := binary.LittleEndian.Uint32(r.pending[0:4])
		length := binary.LittleEndian.Uint16(r.pending[4:6])
		typ = recordType(r.pending[6])

		if typ == recordTypeZero && crcField == 0 && length == 0 {
			// Preallocated, zero-filled region; skip to the next block.
			r.pending = nil
			continue
		}

		if headerSize+int(length) > len(r.pending) {
			if r.eof {
				// Length exceeds what remains at EOF: clean EOF per
				// spec.md §4.4.
				r.pending = nil
				return 0, nil, false
			}
			r.report(len(r.pending), errors.New("record: partial record at block end"))
			r.pending = nil
			continue
		}

		data = r.pending[headerSize : headerSize+int(length)]
		gotCRC := crc32.Checksum(append([]byte{byte(typ)}, data...), crc32cTable)
		if unmaskCRC(crcField) != gotCRC {
			r.report(len(data)+headerSize, errors.New("record: checksum mismatch"))
			r.pending = r.pending[headerSize+int(length):]
			continue
		}

		r.pending = r.pending[headerSize+int(length):]
		return typ, data, true
	}
}

// Next returns the next logical record's payload, or ok=false at EOF.
func (r *Reader) Next() (payload []byte, ok bool) {
	var buf []byte
	for {
		typ, data, valid := r.readPhysicalRecord()
		if !valid {
			if len(buf) > 0 {
				r.report(len(buf), errors.New("record: truncated record at EOF"))
			}
			return nil, false
		}

		switch typ {
		case recordTypeFull:
			if r.resyncing {
				r.resyncing = false
			}
			return data, true
		case recordTypeFirst:
			r.resyncing = false
			buf = append([]byte(nil), data...)
			r.inFragmentedRecord = true
		case recordTypeMiddle:
			if r.resyncing || !r.inFragmentedRecord {
				// Dropped: resynchronization after a nonzero start
				// offset, or a stray MIDDLE with no FIRST.
				continue
			}
			buf = append(buf, data...)
		case recordTypeLast:
			if r.resyncing || !r.inFragmentedRecord {
				r.resyncing = false
				continue
			}
			buf = append(buf, data...)
			r.inFragmentedRecord = false
			return buf, true
		default:
			r.report(len(data), base.CorruptionErrorf("record: unknown record type %d", typ))
		}
	}
}
