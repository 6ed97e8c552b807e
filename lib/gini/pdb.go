// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import "encoding/binary"

// pdbMinLength is how many leading bytes of the product-definition
// block the decoder reads. The block is conventionally 512 bytes per
// the NESDIS interface specification; only the first 46 carry fields
// this engine needs, and the declared length field tells the caller
// how much input the whole block, padding included, occupies.
const pdbMinLength = 46

// productDefinition is the decoded product-definition block. Integer
// codes (source, creating entity, sector, physical element,
// resolution) are passed through as the format defines them, not
// validated; downstream layers interpret them. Immutable once
// decoded; a new one is decoded fresh on every image start.
type productDefinition struct {
	source          int
	creatingEntity  int
	sectorID        int
	physicalElement int
	numLogicalRecs  int
	logicalRecSize  int
	year            int
	month           int
	day             int
	hour            int
	minute          int
	second          int
	centisecond     int
	nx              int
	ny              int
	imageRes        int
	isCompressed    bool
	version         int
	length          int
}

// decodePDB extracts the fixed-offset fields from the front of buf.
// Multi-byte integers are big-endian. The two-digit year is restored
// to a full year: values above 70 are in the 1900s, the rest in the
// 2000s. INVAL if buf holds fewer than 46 bytes.
func decodePDB(buf []byte) (productDefinition, error) {
	if len(buf) < pdbMinLength {
		return productDefinition{}, statusErrorf(StatusInval,
			"product-definition block is %d bytes, need at least %d",
			len(buf), pdbMinLength)
	}
	century := 2000
	if buf[8] > 70 {
		century = 1900
	}
	return productDefinition{
		source:          int(buf[0]),
		creatingEntity:  int(buf[1]),
		sectorID:        int(buf[2]),
		physicalElement: int(buf[3]),
		numLogicalRecs:  int(binary.BigEndian.Uint16(buf[4:])),
		logicalRecSize:  int(binary.BigEndian.Uint16(buf[6:])),
		year:            century + int(buf[8]),
		month:           int(buf[9]),
		day:             int(buf[10]),
		hour:            int(buf[11]),
		minute:          int(buf[12]),
		second:          int(buf[13]),
		centisecond:     int(buf[14]),
		nx:              int(binary.BigEndian.Uint16(buf[16:])),
		ny:              int(binary.BigEndian.Uint16(buf[18:])),
		imageRes:        int(buf[41]),
		isCompressed:    buf[42] != 0,
		version:         int(buf[43]),
		length:          int(binary.BigEndian.Uint16(buf[44:])),
	}, nil
}
