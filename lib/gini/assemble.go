// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import "fmt"

// Start begins assembly of a new image from its header-bearing first
// block. LOGIC if an image is already in progress. The scan-line
// geometry comes from the outer protocol layer, not from the block
// itself: recLen is the scan-line size in bytes and recsPerBlock the
// scan lines per data block. compressed reports the block's encoding
// and fixes the compression state of the whole serialized image.
//
// For a compressed product the headers are recovered by inflating the
// leading startWindowSize bytes of the block into the fixed scratch
// buffer; headers that do not fit fail with SYSTEM. The output buffer
// is cleared and the entire original block is appended verbatim. The
// first block is never re-encoded.
//
// A failed Start leaves the Image idle and produces no artifact for
// this cycle.
func (img *Image) Start(data []byte, recLen, recsPerBlock int, compressed bool, prodType int) error {
	if img.started {
		return statusErrorf(StatusLogic, "image already started")
	}
	if len(data) == 0 {
		return statusErrorf(StatusInval, "empty start block")
	}
	if recLen < 1 || recsPerBlock < 1 {
		return statusErrorf(StatusInval,
			"degenerate image geometry: %d-byte records, %d records per block",
			recLen, recsPerBlock)
	}

	headers := data
	if compressed {
		window := data
		if len(window) > startWindowSize {
			window = window[:startWindowSize]
		}
		n, _, err := unpack(window, img.scratch)
		if err != nil {
			return fmt.Errorf("recover headers from compressed start block: %w", err)
		}
		headers = img.scratch[:n]
	}

	wmoHeader, consumed, err := decodeWMOHeader(headers)
	if err != nil {
		return fmt.Errorf("start block: %w", err)
	}
	pdb, err := decodePDB(headers[consumed:])
	if err != nil {
		return fmt.Errorf("start block: %w", err)
	}

	if err := img.filler.configure(img.registry, recLen, recsPerBlock, compressed); err != nil {
		return err
	}

	img.buf.Clear()
	if err := img.buf.Append(data); err != nil {
		return statusErrorf(StatusNoMem, "append start block: %w", err)
	}

	img.wmoHeader = wmoHeader
	img.pdb = pdb
	img.compressed = compressed
	img.prodType = prodType
	img.recLen = recLen
	img.recsPerBlock = recsPerBlock
	img.blockZeroLen = len(data)
	img.blocks = 1
	img.started = true
	return nil
}

// AddBlock appends the next data block in sequence. A block whose
// compression state matches the image goes in verbatim; a mismatched
// block is transcoded so the serialized image stays uniform, since
// the broadcast can flip compression state between blocks of one
// product. INVAL on an empty block, LOGIC when no image is in
// progress. A failure leaves what was already appended intact.
func (img *Image) AddBlock(data []byte, compressed bool) error {
	if len(data) == 0 {
		return statusErrorf(StatusInval, "empty data block")
	}
	if !img.started {
		return statusErrorf(StatusLogic, "image not started")
	}
	if compressed == img.compressed {
		if err := img.buf.Append(data); err != nil {
			return statusErrorf(StatusNoMem,
				"append %d-byte data block: %w", len(data), err)
		}
	} else if err := img.transcodeBlock(data, compressed); err != nil {
		return err
	}
	img.blocks++
	return nil
}

// transcodeBlock rewrites one data block into the image's compression
// state, writing through a reservation in the output buffer. The
// reservation is sized from the configured block geometry rather
// than a guessed constant: a full block of recsPerBlock records plus
// worst-case deflate expansion covers both directions, and a block
// that inflates past it is malformed (SYSTEM, from the codec).
func (img *Image) transcodeBlock(data []byte, compressed bool) error {
	bound := transcodeBound(img.recsPerBlock * img.recLen)
	scratch, err := img.buf.Reserve(bound)
	if err != nil {
		return statusErrorf(StatusNoMem,
			"reserve %d-byte transcode region: %w", bound, err)
	}
	var n int
	if compressed {
		n, _, err = unpack(data, scratch)
	} else {
		n, err = pack(data, scratch)
	}
	if err != nil {
		return fmt.Errorf("transcode %d-byte data block: %w", len(data), err)
	}
	if err := img.buf.Commit(n); err != nil {
		return statusErrorf(StatusLogic, "commit transcoded block: %w", err)
	}
	return nil
}

// AddMissingBlocks synthesizes whole blank blocks so that the next
// real block lands at nextIndex. The upstream dedup/reorder layer
// decides which indices went missing; this call only ever advances.
// INVAL if nextIndex precedes the blocks already appended; equal is a
// no-op. LOGIC when no image is in progress.
func (img *Image) AddMissingBlocks(nextIndex int) error {
	if !img.started {
		return statusErrorf(StatusLogic, "image not started")
	}
	if nextIndex < img.blocks {
		return statusErrorf(StatusInval,
			"next block index %d precedes the %d blocks already appended",
			nextIndex, img.blocks)
	}
	for img.blocks < nextIndex {
		if err := img.filler.fill(img.buf, img.recsPerBlock); err != nil {
			return fmt.Errorf("fill missing block %d: %w", img.blocks, err)
		}
		img.blocks++
	}
	return nil
}

// Finish pads the image out to its declared scan-line count and
// returns the assembler to idle. Scan lines the broadcast never
// delivered by end of product are appended as blank records, a full
// block at a time with a short final block when the declared count
// is not block-aligned. On success the output buffer holds the
// complete serialized image; on failure the Image stays active with
// partial contents intact.
func (img *Image) Finish() error {
	if !img.started {
		return statusErrorf(StatusLogic, "image not started")
	}
	// Scan lines already covered by data blocks, header block excluded.
	delivered := img.recsPerBlock * (img.blocks - 1)
	for remaining := img.pdb.numLogicalRecs - delivered; remaining > 0; {
		n := min(img.recsPerBlock, remaining)
		if err := img.filler.fill(img.buf, n); err != nil {
			return fmt.Errorf("pad trailing block %d: %w", img.blocks, err)
		}
		img.blocks++
		remaining -= n
	}
	img.started = false
	return nil
}

// Abort discards an in-progress image and returns the assembler to
// idle without producing an artifact. The partial contents stay in
// the buffer until the next Start clears them. No-op when idle, so a
// feed layer can abort unconditionally when a product is cut short.
func (img *Image) Abort() {
	img.started = false
}
