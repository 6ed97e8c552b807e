// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import "fmt"

// defaultBlockBytes is the broadcast convention for the scan-line
// payload of one uncompressed data block. A serialized uncompressed
// image records no block boundaries, so geometry recovery falls back
// to this convention.
const defaultBlockBytes = 5120

// maxDeclaredRecords bounds how far a single compressed block may
// inflate during geometry recovery: the record count field is 16
// bits, so no block can legitimately carry more records than that.
const maxDeclaredRecords = 65535

// Deserialize loads a previously serialized image, replacing the
// assembler's current product. The bytes are copied into the output
// buffer, the headers are re-decoded, and the block geometry is
// recovered: compression is probed from the leading bytes, and for a
// compressed image every stream is walked both to validate it and to
// measure the records per block; an uncompressed image is assumed to
// follow the defaultBlockBytes block convention. The Image ends idle
// and complete, with accessors and Blocks valid; ProductType reports
// zero because the serialized form does not record it.
//
// LOGIC if an image is in progress, INVAL for bytes that do not
// parse as a serialized image, SYSTEM for corrupt compressed streams.
func (img *Image) Deserialize(data []byte) error {
	if img.started {
		return statusErrorf(StatusLogic, "image in progress")
	}
	if len(data) == 0 {
		return statusErrorf(StatusInval, "empty serialized image")
	}

	compressed := isZlibHeader(data)
	headers := data
	blockZeroLen := 0
	if compressed {
		n, consumed, err := unpack(data, img.scratch)
		if err != nil {
			return fmt.Errorf("recover headers from serialized image: %w", err)
		}
		headers = img.scratch[:n]
		blockZeroLen = consumed
	}

	wmoHeader, consumed, err := decodeWMOHeader(headers)
	if err != nil {
		return fmt.Errorf("serialized image: %w", err)
	}
	pdb, err := decodePDB(headers[consumed:])
	if err != nil {
		return fmt.Errorf("serialized image: %w", err)
	}
	recLen := pdb.logicalRecSize
	if recLen < 1 {
		return statusErrorf(StatusInval,
			"serialized image declares a zero record size")
	}
	if !compressed {
		blockZeroLen = consumed + pdb.length
		if blockZeroLen > len(data) {
			return statusErrorf(StatusInval,
				"serialized image is %d bytes, headers alone need %d",
				len(data), blockZeroLen)
		}
	}

	recsPerBlock, blocks, err := recoverGeometry(data[blockZeroLen:], recLen, compressed)
	if err != nil {
		return err
	}

	img.buf.Clear()
	if err := img.buf.Append(data); err != nil {
		return statusErrorf(StatusNoMem, "copy serialized image: %w", err)
	}

	img.wmoHeader = wmoHeader
	img.pdb = pdb
	img.compressed = compressed
	img.prodType = 0
	img.recLen = recLen
	img.recsPerBlock = recsPerBlock
	img.blockZeroLen = blockZeroLen
	img.blocks = 1 + blocks
	img.started = false
	return nil
}

// recoverGeometry walks the data blocks following the header block
// and reports the records per data block and the block count.
//
// Compressed payloads self-describe: each block is one zlib stream,
// the first full-size block fixes the records per block, and later
// blocks may only be that size or shorter (a padded tail). Raw
// payloads carry no boundaries, so the block size comes from the
// defaultBlockBytes convention and only whole-record alignment can
// be checked.
func recoverGeometry(payload []byte, recLen int, compressed bool) (recsPerBlock, blocks int, err error) {
	if !compressed {
		if len(payload)%recLen != 0 {
			return 0, 0, statusErrorf(StatusInval,
				"%d payload bytes are not whole %d-byte records",
				len(payload), recLen)
		}
		recsPerBlock = max(defaultBlockBytes/recLen, 1)
		blockBytes := recsPerBlock * recLen
		blocks = (len(payload) + blockBytes - 1) / blockBytes
		return recsPerBlock, blocks, nil
	}

	limit := recLen * maxDeclaredRecords
	for offset := 0; offset < len(payload); {
		inflated, consumed, err := measure(payload[offset:], limit)
		if err != nil {
			return 0, 0, fmt.Errorf("serialized block %d: %w", blocks+1, err)
		}
		if inflated == 0 || inflated%recLen != 0 {
			return 0, 0, statusErrorf(StatusInval,
				"serialized block %d inflates to %d bytes, not whole %d-byte records",
				blocks+1, inflated, recLen)
		}
		if recsPerBlock == 0 {
			// First data block fixes the geometry.
			recsPerBlock = inflated / recLen
			limit = recsPerBlock * recLen
		}
		offset += consumed
		blocks++
	}
	if recsPerBlock == 0 {
		recsPerBlock = max(defaultBlockBytes/recLen, 1)
	}
	return recsPerBlock, blocks, nil
}
