// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/downlink-project/downlink/lib/gini"
)

// Capture file format constants. A capture is the feed's event
// stream recorded verbatim so it can be replayed offline: a fixed
// header followed by framed records, one per transport event.
const (
	// captureVersion is embedded in the file header. Version 1 is
	// the initial format.
	captureVersion = 1

	// maxCaptureRecordBytes bounds a single record's payload. Feed
	// blocks are a few KiB; anything near this limit is a corrupt
	// length field, not data.
	maxCaptureRecordBytes = 16 << 20
)

// captureMagic is the 5-byte capture file signature: "DLRC" plus the
// format version.
var captureMagic = [5]byte{'D', 'L', 'R', 'C', captureVersion}

// RecordKind discriminates capture records.
type RecordKind uint8

const (
	// RecordStart is a product's first block with its geometry.
	RecordStart RecordKind = 1

	// RecordBlock is a data block with its index.
	RecordBlock RecordKind = 2

	// RecordEnd marks end-of-product. No payload.
	RecordEnd RecordKind = 3
)

// Record is one replayed feed event.
type Record struct {
	Kind RecordKind

	// Start holds the geometry of a RecordStart.
	Start Start

	// Index is the block index of a RecordBlock.
	Index int

	// Compressed reports a RecordBlock's encoding.
	Compressed bool

	// Data is the block payload of RecordStart and RecordBlock.
	// Reused between Next calls; callers that retain it must copy.
	Data []byte
}

// CaptureWriter records feed events to a stream.
//
// Record layouts after the 5-byte header, integers big-endian to
// match the feed's own byte order:
//
//	start: kind(1) recLen(2) recsPerBlock(2) compressed(1)
//	       prodType(1) sizeEstimate(4) dataLen(4) data
//	block: kind(1) index(4) compressed(1) dataLen(4) data
//	end:   kind(1)
type CaptureWriter struct {
	w io.Writer
}

// NewCaptureWriter writes the capture header to w and returns a
// writer for appending records.
func NewCaptureWriter(w io.Writer) (*CaptureWriter, error) {
	if _, err := w.Write(captureMagic[:]); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	return &CaptureWriter{w: w}, nil
}

// Start records a product's first block.
func (cw *CaptureWriter) Start(data []byte, start Start) error {
	if start.RecordLength < 1 || start.RecordLength > 65535 {
		return fmt.Errorf("record length %d does not fit the capture format", start.RecordLength)
	}
	if start.RecordsPerBlock < 1 || start.RecordsPerBlock > 65535 {
		return fmt.Errorf("records per block %d does not fit the capture format", start.RecordsPerBlock)
	}
	if start.ProductType < 0 || start.ProductType > 255 {
		return fmt.Errorf("product type %d does not fit the capture format", start.ProductType)
	}
	if start.SizeEstimate < 0 {
		return fmt.Errorf("negative size estimate %d", start.SizeEstimate)
	}

	header := make([]byte, 15)
	header[0] = byte(RecordStart)
	binary.BigEndian.PutUint16(header[1:], uint16(start.RecordLength))
	binary.BigEndian.PutUint16(header[3:], uint16(start.RecordsPerBlock))
	if start.Compressed {
		header[5] = 1
	}
	header[6] = byte(start.ProductType)
	binary.BigEndian.PutUint32(header[7:], uint32(start.SizeEstimate))
	binary.BigEndian.PutUint32(header[11:], uint32(len(data)))

	if _, err := cw.w.Write(header); err != nil {
		return fmt.Errorf("writing start record: %w", err)
	}
	if _, err := cw.w.Write(data); err != nil {
		return fmt.Errorf("writing start record payload: %w", err)
	}
	return nil
}

// Block records a data block.
func (cw *CaptureWriter) Block(index int, data []byte, compressed bool) error {
	if index < 0 {
		return fmt.Errorf("negative block index %d", index)
	}

	header := make([]byte, 10)
	header[0] = byte(RecordBlock)
	binary.BigEndian.PutUint32(header[1:], uint32(index))
	if compressed {
		header[5] = 1
	}
	binary.BigEndian.PutUint32(header[6:], uint32(len(data)))

	if _, err := cw.w.Write(header); err != nil {
		return fmt.Errorf("writing block record: %w", err)
	}
	if _, err := cw.w.Write(data); err != nil {
		return fmt.Errorf("writing block record payload: %w", err)
	}
	return nil
}

// End records end-of-product.
func (cw *CaptureWriter) End() error {
	if _, err := cw.w.Write([]byte{byte(RecordEnd)}); err != nil {
		return fmt.Errorf("writing end record: %w", err)
	}
	return nil
}

// CaptureReader reads feed events from a capture stream.
type CaptureReader struct {
	r       io.Reader
	payload []byte
	record  int
}

// NewCaptureReader validates the capture header and returns a reader
// positioned at the first record.
func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	var magic [5]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if magic != captureMagic {
		if magic[0] == 'D' && magic[1] == 'L' && magic[2] == 'R' && magic[3] == 'C' {
			return nil, fmt.Errorf("capture version %d is not supported (this code supports version %d)",
				magic[4], captureVersion)
		}
		return nil, fmt.Errorf("not a capture file (invalid magic bytes)")
	}
	return &CaptureReader{r: r}, nil
}

// Next returns the next record. io.EOF signals a clean end of the
// capture; a capture truncated mid-record is an error.
func (cr *CaptureReader) Next() (Record, error) {
	var kindByte [1]byte
	if _, err := io.ReadFull(cr.r, kindByte[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("reading record %d kind: %w", cr.record, err)
	}
	cr.record++

	switch RecordKind(kindByte[0]) {
	case RecordStart:
		var header [14]byte
		if _, err := io.ReadFull(cr.r, header[:]); err != nil {
			return Record{}, fmt.Errorf("reading record %d start header: %w", cr.record, err)
		}
		rec := Record{
			Kind: RecordStart,
			Start: Start{
				RecordLength:    int(binary.BigEndian.Uint16(header[0:])),
				RecordsPerBlock: int(binary.BigEndian.Uint16(header[2:])),
				Compressed:      header[4] != 0,
				ProductType:     int(header[5]),
				SizeEstimate:    int(binary.BigEndian.Uint32(header[6:])),
			},
		}
		data, err := cr.readPayload(binary.BigEndian.Uint32(header[10:]))
		if err != nil {
			return Record{}, err
		}
		rec.Data = data
		return rec, nil

	case RecordBlock:
		var header [9]byte
		if _, err := io.ReadFull(cr.r, header[:]); err != nil {
			return Record{}, fmt.Errorf("reading record %d block header: %w", cr.record, err)
		}
		rec := Record{
			Kind:       RecordBlock,
			Index:      int(binary.BigEndian.Uint32(header[0:])),
			Compressed: header[4] != 0,
		}
		data, err := cr.readPayload(binary.BigEndian.Uint32(header[5:]))
		if err != nil {
			return Record{}, err
		}
		rec.Data = data
		return rec, nil

	case RecordEnd:
		return Record{Kind: RecordEnd}, nil
	}
	return Record{}, fmt.Errorf("record %d has unknown kind %d", cr.record, kindByte[0])
}

func (cr *CaptureReader) readPayload(length uint32) ([]byte, error) {
	if length > maxCaptureRecordBytes {
		return nil, fmt.Errorf("record %d payload of %d bytes exceeds the %d-byte limit",
			cr.record, length, maxCaptureRecordBytes)
	}
	if cap(cr.payload) < int(length) {
		cr.payload = make([]byte, length)
	}
	payload := cr.payload[:length]
	if _, err := io.ReadFull(cr.r, payload); err != nil {
		return nil, fmt.Errorf("reading record %d payload: %w", cr.record, err)
	}
	return payload, nil
}

// Replay drives the session from a capture stream. Feed damage
// recorded in the capture (undecodable starts, aborted products) is
// logged and skipped, the same as during live ingest; an error with
// no assembly status class is a sink failure and stops the replay.
func (s *Session) Replay(ctx context.Context, r io.Reader) error {
	reader, err := NewCaptureReader(r)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			// A capture may end without a final end record. Finish
			// the product in progress so a truncated capture still
			// delivers it, padded like any short product.
			if err := s.EndProduct(ctx); err != nil {
				if gini.StatusOf(err) != 0 {
					s.logger.Warn("replay discarding damaged final product", "error", err)
					return nil
				}
				return fmt.Errorf("replay: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}

		switch rec.Kind {
		case RecordStart:
			err = s.StartProduct(rec.Data, rec.Start)
		case RecordBlock:
			err = s.Block(rec.Index, rec.Data, rec.Compressed)
		case RecordEnd:
			err = s.EndProduct(ctx)
		}
		if err != nil {
			if gini.StatusOf(err) != 0 {
				s.logger.Warn("replay skipping damaged product", "error", err)
				continue
			}
			return fmt.Errorf("replay: %w", err)
		}
	}
}
