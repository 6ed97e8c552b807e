// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package gini assembles GINI satellite images from the blocks of a
// NOAAPORT broadcast product, tolerating lost blocks by synthesizing
// blank scan lines in their place.
//
// # Product shape
//
// A GINI product is a short ASCII WMO header line, a fixed-layout
// product-definition block describing the image geometry and
// timestamp, and then scan-line data delivered as a sequence of
// blocks. Block 0 carries the headers; every later block carries a
// fixed number of scan lines (records). Products arrive either raw
// or with each block deflate-encoded as an independent zlib stream,
// and the two forms can be mixed within one broadcast: the outer
// protocol layer reports the compression state of each block as it
// hands it over.
//
// # Assembly
//
// An [Image] is driven through a start, feed, finish cycle by a
// single caller:
//
//	img, err := gini.NewImage(buf, registry)
//	...
//	err = img.Start(block0, recLen, recsPerBlock, compressed, prodType)
//	err = img.AddBlock(block1, compressed)
//	err = img.AddMissingBlocks(3) // blocks 2 went missing upstream
//	err = img.AddBlock(block3, compressed)
//	err = img.Finish()
//
// Start decodes the headers (inflating them first when the product is
// compressed), records the image's compression state, and appends the
// original first block verbatim. AddBlock appends data blocks,
// transcoding any block whose compression state disagrees with the
// image so the serialized form stays uniform. AddMissingBlocks and
// Finish draw all-zero scan lines from a shared [Registry] of
// precomputed blank payloads: AddMissingBlocks fills whole blocks the
// upstream layer reports lost, and Finish pads whatever the metadata
// block declared but the broadcast never delivered. After Finish the
// buffer holds the complete serialized image and the Image is idle,
// ready for the next Start.
//
// The engine never interprets pixel content. Scan-line payloads are
// opaque bytes; only the headers are decoded.
//
// # Blank payloads
//
// Blank fill must be bit-reproducible: two images with the same
// record geometry and compression get byte-identical padding. The
// Registry memoizes each payload the first time it is built (zeros,
// deflated when the image is compressed) under the key (record
// length, records per block, compressed), and every Image sharing the
// Registry reuses them. The registry is handed to NewImage
// explicitly; its caches live until the last Image using it is
// closed.
//
// # Errors
//
// Every fallible operation returns a [StatusError] carrying one of
// four classes: [StatusInval] for bad arguments or malformed input
// bytes, [StatusNoMem] for allocation failure, [StatusLogic] for
// calling a transition in the wrong state, and [StatusSystem] for
// codec failure. Failures leave partial progress in place; callers
// abandon the current image and the next Start clears the buffer.
package gini
