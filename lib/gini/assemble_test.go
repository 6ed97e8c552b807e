// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/downlink-project/downlink/lib/dynabuf"
)

const testWMO = "TIGE05 KNES 211230"

// buildPDB returns a conventional 512-byte product-definition block
// declaring the given geometry.
func buildPDB(numRecs, recSize int, compressed bool) []byte {
	buf := make([]byte, 512)
	buf[0] = 1 // source
	buf[1] = 9 // creating entity
	buf[2] = 1 // sector
	buf[3] = 4 // physical element
	binary.BigEndian.PutUint16(buf[4:], uint16(numRecs))
	binary.BigEndian.PutUint16(buf[6:], uint16(recSize))
	buf[8] = 26 // year 2026
	buf[9] = 8
	buf[10] = 21
	buf[11] = 12
	buf[12] = 30
	binary.BigEndian.PutUint16(buf[16:], uint16(recSize))
	binary.BigEndian.PutUint16(buf[18:], uint16(numRecs))
	buf[41] = 4 // resolution
	if compressed {
		buf[42] = 1
	}
	buf[43] = 1 // version
	binary.BigEndian.PutUint16(buf[44:], 512)
	return buf
}

// buildStartBlock assembles a header-bearing block 0: the WMO line
// followed by the product-definition block, the whole thing deflated
// as one stream when compressed.
func buildStartBlock(t *testing.T, numRecs, recSize int, compressed bool) []byte {
	t.Helper()
	headers := append([]byte(testWMO+"\r\r\n"), buildPDB(numRecs, recSize, compressed)...)
	if !compressed {
		return headers
	}
	dst := make([]byte, transcodeBound(len(headers)))
	n, err := pack(headers, dst)
	if err != nil {
		t.Fatalf("pack of start block failed: %v", err)
	}
	return dst[:n]
}

// patternRecords returns nrecs records of recLen bytes with a
// non-zero repeating pattern, distinguishable from blank fill.
func patternRecords(nrecs, recLen int) []byte {
	data := make([]byte, nrecs*recLen)
	for i := range data {
		data[i] = byte(i%251 + 1)
	}
	return data
}

func packBlock(t *testing.T, raw []byte) []byte {
	t.Helper()
	dst := make([]byte, transcodeBound(len(raw)))
	n, err := pack(raw, dst)
	if err != nil {
		t.Fatalf("pack of data block failed: %v", err)
	}
	return dst[:n]
}

func newTestImage(t *testing.T, buf *dynabuf.Buffer) *Image {
	t.Helper()
	img, err := NewImage(buf, NewRegistry())
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	t.Cleanup(img.Close)
	return img
}

func TestNewImageValidation(t *testing.T) {
	if _, err := NewImage(nil, NewRegistry()); StatusOf(err) != StatusInval {
		t.Errorf("nil buffer: status %v, want %v", StatusOf(err), StatusInval)
	}
	if _, err := NewImage(dynabuf.New(0), nil); StatusOf(err) != StatusInval {
		t.Errorf("nil registry: status %v, want %v", StatusOf(err), StatusInval)
	}
}

func TestStateMachine(t *testing.T) {
	img := newTestImage(t, dynabuf.New(0))
	start := buildStartBlock(t, 20, 100, false)

	// Every transition except Start is LOGIC while idle.
	if err := img.AddBlock([]byte{1}, false); StatusOf(err) != StatusLogic {
		t.Errorf("AddBlock while idle: status %v, want %v", StatusOf(err), StatusLogic)
	}
	if err := img.AddMissingBlocks(2); StatusOf(err) != StatusLogic {
		t.Errorf("AddMissingBlocks while idle: status %v, want %v", StatusOf(err), StatusLogic)
	}
	if err := img.Finish(); StatusOf(err) != StatusLogic {
		t.Errorf("Finish while idle: status %v, want %v", StatusOf(err), StatusLogic)
	}

	if err := img.Start(start, 100, 10, false, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := img.Start(start, 100, 10, false, ProductGOESEast); StatusOf(err) != StatusLogic {
		t.Errorf("second Start: status %v, want %v", StatusOf(err), StatusLogic)
	}

	if err := img.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	// Idle again: the cycle may restart.
	if err := img.Start(start, 100, 10, false, ProductGOESEast); err != nil {
		t.Errorf("Start after Finish failed: %v", err)
	}
}

func TestAbortDiscardsInProgressImage(t *testing.T) {
	img := newTestImage(t, dynabuf.New(0))
	start := buildStartBlock(t, 20, 100, false)

	// Abort while idle is a no-op.
	img.Abort()

	if err := img.Start(start, 100, 10, false, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	img.Abort()

	if err := img.Finish(); StatusOf(err) != StatusLogic {
		t.Errorf("Finish after Abort: status %v, want %v", StatusOf(err), StatusLogic)
	}
	if err := img.Start(start, 100, 10, false, ProductGOESEast); err != nil {
		t.Errorf("Start after Abort failed: %v", err)
	}
}

func TestStartDecodesHeaders(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		name := "uncompressed"
		if compressed {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			img := newTestImage(t, dynabuf.New(0))
			start := buildStartBlock(t, 1280, 5120, compressed)

			if err := img.Start(start, 5120, 4, compressed, ProductGOESWest); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			if got := img.WMOHeader(); got != testWMO {
				t.Errorf("WMOHeader = %q, want %q", got, testWMO)
			}
			if img.Compressed() != compressed {
				t.Errorf("Compressed = %v, want %v", img.Compressed(), compressed)
			}
			if img.ProductType() != ProductGOESWest {
				t.Errorf("ProductType = %d, want %d", img.ProductType(), ProductGOESWest)
			}
			if img.DeclaredRecords() != 1280 {
				t.Errorf("DeclaredRecords = %d, want 1280", img.DeclaredRecords())
			}
			if img.RecordLength() != 5120 {
				t.Errorf("RecordLength = %d, want 5120", img.RecordLength())
			}
			if img.RecordsPerBlock() != 4 {
				t.Errorf("RecordsPerBlock = %d, want 4", img.RecordsPerBlock())
			}
			if img.Width() != 5120 || img.Height() != 1280 {
				t.Errorf("Width x Height = %dx%d, want 5120x1280", img.Width(), img.Height())
			}
			if img.Year() != 2026 || img.Month() != 8 || img.Day() != 21 {
				t.Errorf("date = %d-%d-%d, want 2026-8-21", img.Year(), img.Month(), img.Day())
			}
			if img.Sector() != 1 || img.CreatingEntity() != 9 || img.PhysicalElement() != 4 {
				t.Errorf("codes = %d/%d/%d, want 1/9/4",
					img.Sector(), img.CreatingEntity(), img.PhysicalElement())
			}
			if img.Resolution() != 4 {
				t.Errorf("Resolution = %d, want 4", img.Resolution())
			}
			if img.DeclaredRecordLength() != 5120 {
				t.Errorf("DeclaredRecordLength = %d, want 5120", img.DeclaredRecordLength())
			}
			if img.MetadataLength() != 512 {
				t.Errorf("MetadataLength = %d, want 512", img.MetadataLength())
			}
			if img.BlockCount() != 1 {
				t.Errorf("BlockCount = %d, want 1", img.BlockCount())
			}
			// The original block lands verbatim, never re-encoded.
			if !bytes.Equal(img.Bytes(), start) {
				t.Error("serialized image does not start with the original block")
			}
		})
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	img := newTestImage(t, dynabuf.New(0))

	tests := []struct {
		name       string
		data       []byte
		recLen     int
		perBlock   int
		compressed bool
		want       Status
	}{
		{"empty block", nil, 100, 10, false, StatusInval},
		{"zero record length", buildStartBlock(t, 10, 100, false), 0, 10, false, StatusInval},
		{"zero records per block", buildStartBlock(t, 10, 100, false), 100, 0, false, StatusInval},
		{"no header terminator", bytes.Repeat([]byte{'A'}, 600), 100, 10, false, StatusInval},
		{"short metadata block", []byte("TIGE05 KNES 211230\r\r\nshort"), 100, 10, false, StatusInval},
		{"corrupt compressed block", bytes.Repeat([]byte{0xff}, 600), 100, 10, true, StatusSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := img.Start(tt.data, tt.recLen, tt.perBlock, tt.compressed, ProductNonGOES)
			if got := StatusOf(err); got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
			// A failed Start leaves the image idle.
			if err := img.Finish(); StatusOf(err) != StatusLogic {
				t.Error("image is not idle after failed Start")
			}
		})
	}
}

// The canonical padding example: 10 records per block, 5000-byte
// records, 25 declared scan lines. After the header block and one
// real data block, Finish must append blank blocks of 10 and 5
// records (15 remaining, capped at records-per-block).
func TestFinishPadsDeclaredRecords(t *testing.T) {
	const (
		recLen   = 5000
		perBlock = 10
		declared = 25
	)
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)
	start := buildStartBlock(t, declared, recLen, false)
	real := patternRecords(perBlock, recLen)

	if err := img.Start(start, recLen, perBlock, false, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := img.AddBlock(real, false); err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}
	if err := img.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// Header block, one real block, then fills of 10 and 5 records.
	wantLen := len(start) + perBlock*recLen + 10*recLen + 5*recLen
	if buf.Len() != wantLen {
		t.Fatalf("serialized image is %d bytes, want %d", buf.Len(), wantLen)
	}
	if img.BlockCount() != 4 {
		t.Errorf("BlockCount = %d, want 4", img.BlockCount())
	}

	got := buf.Bytes()
	if !bytes.Equal(got[:len(start)], start) {
		t.Error("header block altered")
	}
	if !bytes.Equal(got[len(start):len(start)+len(real)], real) {
		t.Error("real data block altered")
	}
	for i, b := range got[len(start)+len(real):] {
		if b != 0 {
			t.Fatalf("padding byte %d = %#x, want zero", i, b)
		}
	}
}

func TestAddMissingBlocks(t *testing.T) {
	const (
		recLen   = 100
		perBlock = 10
		declared = 40
	)
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)
	start := buildStartBlock(t, declared, recLen, false)

	if err := img.Start(start, recLen, perBlock, false, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Equal to the current count: a successful no-op.
	if err := img.AddMissingBlocks(1); err != nil {
		t.Fatalf("AddMissingBlocks(current) failed: %v", err)
	}
	if img.BlockCount() != 1 || buf.Len() != len(start) {
		t.Error("no-op AddMissingBlocks changed state")
	}

	// Going backwards is a caller error.
	if err := img.AddMissingBlocks(0); StatusOf(err) != StatusInval {
		t.Errorf("AddMissingBlocks(0): status %v, want %v", StatusOf(err), StatusInval)
	}

	// Blocks 1 and 2 went missing; the next real block is index 3.
	if err := img.AddMissingBlocks(3); err != nil {
		t.Fatalf("AddMissingBlocks(3) failed: %v", err)
	}
	if img.BlockCount() != 3 {
		t.Errorf("BlockCount = %d, want 3", img.BlockCount())
	}
	if want := len(start) + 2*perBlock*recLen; buf.Len() != want {
		t.Errorf("buffer length = %d, want %d", buf.Len(), want)
	}

	real := patternRecords(perBlock, recLen)
	if err := img.AddBlock(real, false); err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}
	if err := img.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	// 30 of 40 records are covered by the three data blocks; Finish
	// fills the last 10.
	want := len(start) + 4*perBlock*recLen
	if buf.Len() != want {
		t.Errorf("final length = %d, want %d", buf.Len(), want)
	}
	if img.BlockCount() != 5 {
		t.Errorf("BlockCount = %d, want 5", img.BlockCount())
	}
}

func TestAddBlockTranscodesIntoUncompressedImage(t *testing.T) {
	const (
		recLen   = 200
		perBlock = 10
	)
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)
	start := buildStartBlock(t, 30, recLen, false)

	if err := img.Start(start, recLen, perBlock, false, ProductNonGOES); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The broadcast flips to compressed mid-product; the image must
	// stay uncompressed throughout.
	raw := patternRecords(perBlock, recLen)
	if err := img.AddBlock(packBlock(t, raw), true); err != nil {
		t.Fatalf("AddBlock of compressed block failed: %v", err)
	}

	got := buf.Bytes()[len(start):]
	if !bytes.Equal(got, raw) {
		t.Error("transcoded block does not match the original records")
	}
}

func TestAddBlockTranscodesIntoCompressedImage(t *testing.T) {
	const (
		recLen   = 200
		perBlock = 10
	)
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)
	start := buildStartBlock(t, 30, recLen, true)

	if err := img.Start(start, recLen, perBlock, true, ProductNonGOES); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	raw := patternRecords(perBlock, recLen)
	if err := img.AddBlock(raw, false); err != nil {
		t.Fatalf("AddBlock of raw block failed: %v", err)
	}

	// The appended bytes must be one zlib stream that inflates back
	// to the original records.
	stream := buf.Bytes()[len(start):]
	dst := make([]byte, len(raw))
	n, consumed, err := unpack(stream, dst)
	if err != nil {
		t.Fatalf("unpack of transcoded block failed: %v", err)
	}
	if consumed != len(stream) {
		t.Errorf("transcoded stream is %d bytes, appended %d", consumed, len(stream))
	}
	if !bytes.Equal(dst[:n], raw) {
		t.Error("transcoded block does not inflate to the original records")
	}
}

func TestAddBlockOversizeTranscode(t *testing.T) {
	const (
		recLen   = 100
		perBlock = 2
	)
	img := newTestImage(t, dynabuf.New(0))
	start := buildStartBlock(t, 10, recLen, false)

	if err := img.Start(start, recLen, perBlock, false, ProductNonGOES); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A compressed block claiming far more than a block's worth of
	// records overruns the derived transcode bound.
	oversize := packBlock(t, patternRecords(50, recLen))
	err := img.AddBlock(oversize, true)
	if got := StatusOf(err); got != StatusSystem {
		t.Errorf("oversize transcode: status %v, want %v", got, StatusSystem)
	}
}

func TestAddBlockEmpty(t *testing.T) {
	img := newTestImage(t, dynabuf.New(0))
	start := buildStartBlock(t, 10, 100, false)
	if err := img.Start(start, 100, 10, false, ProductNonGOES); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := img.AddBlock(nil, false); StatusOf(err) != StatusInval {
		t.Errorf("empty AddBlock: status %v, want %v", StatusOf(err), StatusInval)
	}
}

func TestCompressedImageEndToEnd(t *testing.T) {
	const (
		recLen   = 200
		perBlock = 10
		declared = 25
	)
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)
	start := buildStartBlock(t, declared, recLen, true)
	raw := patternRecords(perBlock, recLen)

	if err := img.Start(start, recLen, perBlock, true, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := img.AddBlock(packBlock(t, raw), true); err != nil {
		t.Fatalf("AddBlock failed: %v", err)
	}
	if err := img.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if img.BlockCount() != 4 {
		t.Fatalf("BlockCount = %d, want 4", img.BlockCount())
	}

	// Every block of the finished image is an independent zlib
	// stream; the two trailing fills inflate to 10 and 5 records of
	// zeros.
	it := img.Blocks()
	wantRecords := []int{0, perBlock, 10, 5}
	index := 0
	for it.Next() {
		block := it.Block()
		if index == 0 {
			if !bytes.Equal(block, start) {
				t.Error("header block altered")
			}
			index++
			continue
		}
		dst := make([]byte, perBlock*recLen)
		n, consumed, err := unpack(block, dst)
		if err != nil {
			t.Fatalf("block %d does not inflate: %v", index, err)
		}
		if consumed != len(block) {
			t.Errorf("block %d: stream is %d bytes, block has %d", index, consumed, len(block))
		}
		if n != wantRecords[index]*recLen {
			t.Errorf("block %d inflates to %d bytes, want %d", index, n, wantRecords[index]*recLen)
		}
		if index == 1 {
			if !bytes.Equal(dst[:n], raw) {
				t.Error("real block does not round-trip")
			}
		} else {
			for _, b := range dst[:n] {
				if b != 0 {
					t.Fatalf("fill block %d contains nonzero bytes", index)
				}
			}
		}
		index++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if index != 4 {
		t.Errorf("iterated %d blocks, want 4", index)
	}
}

func TestFinishFailureLeavesImageActive(t *testing.T) {
	const (
		recLen   = 1000
		perBlock = 10
		declared = 100
	)
	start := buildStartBlock(t, declared, recLen, false)
	// Room for the header block but not for 100 records of padding.
	buf := dynabuf.NewWithLimit(0, len(start)+recLen)
	img := newTestImage(t, buf)

	if err := img.Start(start, recLen, perBlock, false, ProductNonGOES); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := img.Finish()
	if got := StatusOf(err); got != StatusNoMem {
		t.Fatalf("Finish over buffer limit: status %v, want %v", got, StatusNoMem)
	}
	// Still active: a new Start is refused.
	if err := img.Start(start, recLen, perBlock, false, ProductNonGOES); StatusOf(err) != StatusLogic {
		t.Error("image went idle after failed Finish")
	}
}

func TestStartClearsPreviousImage(t *testing.T) {
	const recLen, perBlock = 100, 5
	buf := dynabuf.New(0)
	img := newTestImage(t, buf)

	first := buildStartBlock(t, 10, recLen, false)
	if err := img.Start(first, recLen, perBlock, false, ProductGOESEast); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := img.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	finishedLen := buf.Len()
	if finishedLen <= len(first) {
		t.Fatal("first image was not padded")
	}

	second := buildStartBlock(t, 20, recLen, false)
	if err := img.Start(second, recLen, perBlock, false, ProductGOESWest); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), second) {
		t.Error("second Start did not clear the previous image")
	}
	if img.DeclaredRecords() != 20 {
		t.Errorf("DeclaredRecords = %d, want 20", img.DeclaredRecords())
	}
}
