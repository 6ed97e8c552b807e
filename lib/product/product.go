// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package product derives stable identifiers and catalog metadata
// from assembled satellite images.
//
// Every finished image gets two handles. The identity string is the
// human-readable path-style key downstream consumers route on, built
// from the image's platform, channel, timestamp, and sector. The
// signature is a BLAKE3 keyed hash of the serialized image bytes and
// is what the store deduplicates on: two transmissions of the same
// product yield the same signature even when they arrive on
// different channels.
package product

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/downlink-project/downlink/lib/gini"
	"github.com/downlink-project/downlink/lib/wmo"
	"github.com/zeebo/blake3"
)

// Signature is a 32-byte BLAKE3 keyed digest of a serialized image.
type Signature [32]byte

// productDomainKey is the fixed key for BLAKE3 keyed hashing of
// product bytes. Changing it invalidates every signature in existing
// stores. The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps
// without sacrificing any cryptographic property.
var productDomainKey = [32]byte{
	'd', 'o', 'w', 'n', 'l', 'i', 'n', 'k', '.',
	'p', 'r', 'o', 'd', 'u', 'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sign computes the product-domain signature of serialized image
// bytes. Signatures are computed on the bytes as stored, so a
// compressed and an uncompressed rendition of the same scene sign
// differently.
func Sign(data []byte) Signature {
	// NewKeyed requires exactly 32 bytes, which the fixed-size key
	// guarantees. The error is only returned for wrong key length,
	// so this cannot fail.
	hasher, err := blake3.NewKeyed(productDomainKey[:])
	if err != nil {
		panic("product: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sig Signature
	copy(sig[:], hasher.Sum(nil))
	return sig
}

// String returns the hex encoding of the signature. This is the
// canonical form used in store paths, logs, and CLI output.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSignature parses a 64-character hex string into a Signature.
func ParseSignature(hexString string) (Signature, error) {
	var sig Signature
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return sig, fmt.Errorf("parsing product signature: %w", err)
	}
	if len(decoded) != len(sig) {
		return sig, fmt.Errorf("product signature is %d bytes, want %d", len(decoded), len(sig))
	}
	copy(sig[:], decoded)
	return sig, nil
}

// Identity composes the routing identity for an assembled image:
//
//	satz/ch1/GOES-16/IR/20260821 1230/EAST-CONUS/4km/ TIGE05 KNES 211230
//
// The leading segment is "satz" for zlib-compressed products and
// "sat" for uncompressed ones, so consumers that cannot inflate can
// filter by prefix. The channel number is the feed's product type,
// not the imaging band; the band appears by name after the platform.
// The space before the trailing WMO header is part of the format.
func Identity(img *gini.Image) string {
	scheme := "sat"
	if img.Compressed() {
		scheme = "satz"
	}
	return fmt.Sprintf("%s/ch%d/%s/%s/%04d%02d%02d %02d%02d/%s/%dkm/ %s",
		scheme,
		img.ProductType(),
		PlatformName(img.CreatingEntity()),
		ChannelName(img.PhysicalElement()),
		img.Year(), img.Month(), img.Day(),
		img.Hour(), img.Minute(),
		SectorName(img.Sector()),
		img.Resolution(),
		img.WMOHeader())
}

// Info is the catalog record kept alongside each stored product.
// It is serialized with lib/codec (deterministic CBOR), so field
// names here are the on-disk schema.
type Info struct {
	// Identity is the routing identity from [Identity].
	Identity string `cbor:"identity" json:"identity"`

	// Signature is the product-domain digest of the serialized
	// image, hex-encoded. Also the store's dedup key.
	Signature string `cbor:"signature" json:"signature"`

	// WMOHeader is the decoded WMO abbreviated heading line,
	// without its line terminator.
	WMOHeader string `cbor:"wmo_header" json:"wmo_header"`

	// Originator is the issuing centre (CCCC) parsed from the WMO
	// heading, empty when the heading does not parse as one.
	Originator string `cbor:"originator" json:"originator"`

	Platform string `cbor:"platform" json:"platform"`
	Channel  string `cbor:"channel" json:"channel"`
	Sector   string `cbor:"sector" json:"sector"`

	// ProductType is the feed-assigned channel number (1 GOES-East,
	// 2 GOES-West, 3 non-GOES). Zero when the image was
	// deserialized from storage rather than assembled from a feed.
	ProductType int `cbor:"product_type" json:"product_type"`

	Compressed bool `cbor:"compressed" json:"compressed"`

	// ResolutionKM is the nominal pixel resolution in kilometers.
	ResolutionKM int `cbor:"resolution_km" json:"resolution_km"`

	Width  int `cbor:"width" json:"width"`
	Height int `cbor:"height" json:"height"`

	// Records is the declared logical record count from the product
	// definition block, which the assembler pads the image out to.
	Records int `cbor:"records" json:"records"`

	// RecordLength is the serialized length of one logical record
	// in bytes.
	RecordLength int `cbor:"record_length" json:"record_length"`

	// ValidTime is the observation timestamp from the product
	// definition block.
	ValidTime time.Time `cbor:"valid_time" json:"valid_time"`

	// ArrivedAt is when assembly of this product finished.
	ArrivedAt time.Time `cbor:"arrived_at" json:"arrived_at"`

	// Size is the serialized image length in bytes.
	Size int `cbor:"size" json:"size"`
}

// InfoFromImage builds the catalog record for a finished image.
// The signature is computed over the image's current serialized
// bytes, so call this after assembly completes.
func InfoFromImage(img *gini.Image, arrivedAt time.Time) Info {
	info := Info{
		Identity:     Identity(img),
		Signature:    Sign(img.Bytes()).String(),
		WMOHeader:    img.WMOHeader(),
		Platform:     PlatformName(img.CreatingEntity()),
		Channel:      ChannelName(img.PhysicalElement()),
		Sector:       SectorName(img.Sector()),
		ProductType:  img.ProductType(),
		Compressed:   img.Compressed(),
		ResolutionKM: img.Resolution(),
		Width:        img.Width(),
		Height:       img.Height(),
		Records:      img.DeclaredRecords(),
		RecordLength: img.RecordLength(),
		ValidTime:    img.Time(),
		ArrivedAt:    arrivedAt.UTC(),
		Size:         img.Len(),
	}
	// The heading is identification, not structure: a product whose
	// heading does not parse still gets cataloged, just without the
	// originator field.
	if heading, err := wmo.Parse(info.WMOHeader); err == nil {
		info.Originator = heading.CCCC
	}
	return info
}
