// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package product

import "strconv"

// PlatformName returns the conventional name for a creating-entity
// code from a product definition block. Codes outside the published
// table are rendered as their decimal value so unknown satellites
// still produce stable, distinguishable identifiers.
func PlatformName(code int) string {
	switch code {
	case 2:
		return "MISC"
	case 3:
		return "JERS"
	case 4:
		return "ERS"
	case 5:
		return "POES"
	case 6:
		return "COMP"
	case 7:
		return "DMSP"
	case 8:
		return "GMS"
	case 9:
		return "METEOSAT"
	case 10:
		return "GOES-7"
	case 11:
		return "GOES-8"
	case 12:
		return "GOES-9"
	case 13:
		return "GOES-10"
	case 14:
		return "GOES-11"
	case 15:
		return "GOES-12"
	case 16:
		return "GOES-13"
	case 17:
		return "GOES-14"
	case 18:
		return "GOES-15"
	case 19:
		return "GOES-16"
	case 27, 28:
		// Temporary POES assignments carried over from the feed.
		return "POES"
	}
	return strconv.Itoa(code)
}

// ChannelName returns the conventional name for a physical-element
// code. Numeric channels (3.9, 12.0, ...) are band wavelengths in
// micrometers. Unknown codes are rendered as their decimal value.
func ChannelName(code int) string {
	switch code {
	case 1:
		return "VIS"
	case 2:
		return "3.9"
	case 3:
		return "WV"
	case 4:
		return "IR"
	case 5:
		return "12.0"
	case 6:
		return "13.3"
	case 7:
		return "1.3"
	case 16:
		return "LI"
	case 17:
		return "PW"
	case 18:
		return "SFC-T"
	case 19:
		return "CAPE"
	case 27:
		return "CTP"
	case 28:
		return "CLD"
	case 29:
		return "PRXX"
	case 41:
		return "SOUND-14.71"
	case 42:
		return "SOUND-14.37"
	case 43:
		return "SOUND-14.06"
	case 44:
		return "SOUND-13.64"
	case 45:
		return "SOUND-13.37"
	case 46:
		return "SOUND-12.66"
	case 47:
		return "SOUND-12.02"
	case 48:
		return "SOUND-11.03"
	case 49:
		return "SOUND-9.71"
	case 50:
		return "SOUND-7.43"
	case 51:
		return "SOUND-7.02"
	case 52:
		return "SOUND-6.51"
	case 53:
		return "SOUND-4.57"
	case 54:
		return "SOUND-4.52"
	case 55:
		return "SOUND-4.45"
	case 56:
		return "SOUND-4.13"
	case 57:
		return "SOUND-3.98"
	case 58:
		return "SOUND-3.74"
	case 59:
		return "SOUND-VIS"
	case 61:
		return "VIS"
	case 63:
		return "3.74"
	case 64:
		return "11.0"
	}
	return strconv.Itoa(code)
}

// SectorName returns the conventional name for a sector code.
// Unknown codes are rendered as their decimal value.
func SectorName(code int) string {
	switch code {
	case 0:
		return "NHEM-COMP"
	case 1:
		return "EAST-CONUS"
	case 2:
		return "WEST-CONUS"
	case 3:
		return "AK-REGIONAL"
	case 4:
		return "AK-NATIONAL"
	case 5:
		return "HI-REGIONAL"
	case 6:
		return "HI-NATIONAL"
	case 7:
		return "PR-REGIONAL"
	case 8:
		return "PR-NATIONAL"
	case 9:
		return "SUPER-NATIONAL"
	case 10:
		return "NHEM-MULTICOMP"
	}
	return strconv.Itoa(code)
}
