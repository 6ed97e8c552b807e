// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import (
	"time"

	"github.com/downlink-project/downlink/lib/dynabuf"
)

// headerScratchSize bounds the decompressed header-bearing portion of
// a start block: WMO header plus product-definition block plus slack.
// Headers that inflate past this fail Start cleanly instead of
// growing the scratch buffer.
const headerScratchSize = 6000

// startWindowSize is how many leading bytes of a compressed start
// block are fed to the decompressor when recovering headers. The
// header stream of every product on the broadcast ends well inside
// this window.
const startWindowSize = 540

// Product types reported by the transport layer alongside each
// product. The assembler carries the value through; it never
// validates or interprets it.
const (
	ProductGOESEast = 1
	ProductGOESWest = 2
	ProductNonGOES  = 3 // non-GOES imagery and DCP
)

// Image assembles one satellite image at a time. A single caller
// drives it through start, feed, finish cycles; the same Image is
// reused across many products. It appends the serialized image into
// the caller's dynabuf and draws blank fill from the shared Registry.
//
// Not safe for concurrent use; the shared Registry is.
type Image struct {
	registry *Registry
	buf      *dynabuf.Buffer
	filler   filler
	scratch  []byte

	started bool
	closed  bool

	wmoHeader    string
	pdb          productDefinition
	compressed   bool
	prodType     int
	recLen       int
	recsPerBlock int
	blocks       int
	blockZeroLen int
}

// NewImage returns an assembler that serializes products into buf.
// Close releases the hold on registry; its cached blank payloads are
// dropped when the last Image using it closes.
func NewImage(buf *dynabuf.Buffer, registry *Registry) (*Image, error) {
	if buf == nil {
		return nil, statusErrorf(StatusInval, "nil output buffer")
	}
	if registry == nil {
		return nil, statusErrorf(StatusInval, "nil blank-space registry")
	}
	registry.retain()
	return &Image{
		registry: registry,
		buf:      buf,
		scratch:  make([]byte, headerScratchSize),
	}, nil
}

// Close releases the image's hold on the shared registry. The Image
// must not be used afterwards. Close is idempotent.
func (img *Image) Close() {
	if img.closed {
		return
	}
	img.closed = true
	img.registry.release()
}

// Accessors are valid while the Image holds an in-progress or
// completed product, from the first successful Start or Deserialize
// until the next Start clears it. Before that they return zero
// values.

// WMOHeader returns the textual header line, carriage returns
// stripped.
func (img *Image) WMOHeader() string { return img.wmoHeader }

// Compressed reports whether the serialized image is deflate-encoded.
func (img *Image) Compressed() bool { return img.compressed }

// ProductType returns the transport-layer product type supplied to
// Start: ProductGOESEast, ProductGOESWest, or ProductNonGOES.
// Deserialized images report zero; the serialized form does not
// record it.
func (img *Image) ProductType() int { return img.prodType }

// Source returns the source id from the product-definition block.
func (img *Image) Source() int { return img.pdb.source }

// CreatingEntity returns the creating-entity code.
func (img *Image) CreatingEntity() int { return img.pdb.creatingEntity }

// Sector returns the sector code.
func (img *Image) Sector() int { return img.pdb.sectorID }

// PhysicalElement returns the physical-element (channel) code.
func (img *Image) PhysicalElement() int { return img.pdb.physicalElement }

// DeclaredRecords returns the scan-line count the product-definition
// block declares. The finished image holds at least this many.
func (img *Image) DeclaredRecords() int { return img.pdb.numLogicalRecs }

// RecordLength returns the scan-line size in bytes the image was
// started with (for deserialized images, the size the metadata block
// records).
func (img *Image) RecordLength() int { return img.recLen }

// DeclaredRecordLength returns the scan-line size the metadata block
// itself declares. Start trusts the transport-supplied geometry over
// this field; the two agree on a well-formed feed.
func (img *Image) DeclaredRecordLength() int { return img.pdb.logicalRecSize }

// MetadataLength returns the declared byte length of the metadata
// block, trailing padding included, so callers can locate the first
// scan line within the header block.
func (img *Image) MetadataLength() int { return img.pdb.length }

// RecordsPerBlock returns how many scan lines each data block
// carries.
func (img *Image) RecordsPerBlock() int { return img.recsPerBlock }

// BlockCount returns the number of blocks appended so far, the
// header block included.
func (img *Image) BlockCount() int { return img.blocks }

// ExpectedBlocks returns the block count of a complete image: the
// header block plus the declared scan lines at RecordsPerBlock per
// block, rounded up.
func (img *Image) ExpectedBlocks() int {
	if img.recsPerBlock < 1 {
		return 0
	}
	return 1 + (img.pdb.numLogicalRecs+img.recsPerBlock-1)/img.recsPerBlock
}

// Year returns the full creation year; the two-digit year in the
// metadata block is resolved to the 1900s above 70 and the 2000s
// otherwise.
func (img *Image) Year() int { return img.pdb.year }

// Month returns the creation month as recorded, unvalidated.
func (img *Image) Month() int { return img.pdb.month }

// Day returns the creation day as recorded, unvalidated.
func (img *Image) Day() int { return img.pdb.day }

// Hour returns the creation hour as recorded, unvalidated.
func (img *Image) Hour() int { return img.pdb.hour }

// Minute returns the creation minute as recorded, unvalidated.
func (img *Image) Minute() int { return img.pdb.minute }

// Second returns the creation second as recorded, unvalidated.
func (img *Image) Second() int { return img.pdb.second }

// Centisecond returns the creation centisecond as recorded.
func (img *Image) Centisecond() int { return img.pdb.centisecond }

// Time assembles the metadata timestamp as UTC. Out-of-range field
// values are normalized the way the time package normalizes them;
// the raw fields stay available through the individual accessors.
func (img *Image) Time() time.Time {
	return time.Date(img.pdb.year, time.Month(img.pdb.month), img.pdb.day,
		img.pdb.hour, img.pdb.minute, img.pdb.second,
		img.pdb.centisecond*int(10*time.Millisecond), time.UTC)
}

// Width returns the pixels per scan line (nx).
func (img *Image) Width() int { return img.pdb.nx }

// Height returns the scan-line count of the raster (ny).
func (img *Image) Height() int { return img.pdb.ny }

// Resolution returns the image resolution code in kilometers.
func (img *Image) Resolution() int { return img.pdb.imageRes }

// Version returns the format-version id from the metadata block.
func (img *Image) Version() int { return img.pdb.version }

// Bytes returns the serialized image assembled so far. The slice
// aliases the output buffer and is invalidated by further assembly.
func (img *Image) Bytes() []byte { return img.buf.Bytes() }

// Len returns the serialized image size in bytes.
func (img *Image) Len() int { return img.buf.Len() }
