// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import "fmt"

// BlockIter walks the blocks of a serialized image in order without
// copying: Block returns a subslice of the image per block, in the
// image's own encoding, sized for handing to a per-block sender.
//
//	it := img.Blocks()
//	for it.Next() {
//		send(it.Index(), it.Block())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type BlockIter struct {
	data         []byte
	compressed   bool
	recLen       int
	recsPerBlock int
	blockZeroLen int

	offset int
	index  int
	block  []byte
	err    error
}

// Blocks returns an iterator over the serialized image currently
// held. The iterator reads the output buffer in place; assembling or
// starting another product invalidates it.
func (img *Image) Blocks() *BlockIter {
	it := &BlockIter{
		data:         img.buf.Bytes(),
		compressed:   img.compressed,
		recLen:       img.recLen,
		recsPerBlock: img.recsPerBlock,
		blockZeroLen: img.blockZeroLen,
	}
	if img.recLen < 1 || img.blockZeroLen < 1 || img.blockZeroLen > len(it.data) {
		it.err = statusErrorf(StatusLogic, "no serialized image to iterate")
	}
	return it
}

// Next advances to the next block. It returns false at the end of
// the image or on error; Err tells the two apart.
func (it *BlockIter) Next() bool {
	if it.err != nil || it.offset >= len(it.data) {
		return false
	}
	var size int
	switch {
	case it.index == 0:
		size = it.blockZeroLen
	case it.compressed:
		inflated, consumed, err := measure(it.data[it.offset:], it.recsPerBlock*it.recLen)
		if err != nil {
			it.err = fmt.Errorf("block %d: %w", it.index, err)
			return false
		}
		if inflated == 0 || inflated%it.recLen != 0 {
			it.err = statusErrorf(StatusInval,
				"block %d inflates to %d bytes, not whole %d-byte records",
				it.index, inflated, it.recLen)
			return false
		}
		size = consumed
	default:
		size = it.recsPerBlock * it.recLen
		if rest := len(it.data) - it.offset; rest < size {
			// A padded tail block may be short, but never a
			// fraction of a record.
			if rest%it.recLen != 0 {
				it.err = statusErrorf(StatusInval,
					"trailing %d bytes are not whole %d-byte records",
					rest, it.recLen)
				return false
			}
			size = rest
		}
	}
	if it.offset+size > len(it.data) {
		it.err = statusErrorf(StatusInval,
			"block %d of %d bytes overruns the %d-byte image",
			it.index, size, len(it.data))
		return false
	}
	it.block = it.data[it.offset : it.offset+size]
	it.offset += size
	it.index++
	return true
}

// Block returns the current block. Valid after Next reports true.
func (it *BlockIter) Block() []byte { return it.block }

// Index returns the zero-based index of the current block.
func (it *BlockIter) Index() int { return it.index - 1 }

// Err returns the first error hit while walking the image, or nil if
// iteration ended cleanly.
func (it *BlockIter) Err() error { return it.err }
