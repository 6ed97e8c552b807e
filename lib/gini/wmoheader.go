// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

// wmoHeaderMaxEncodedLen bounds the scan for the line feed that
// terminates a WMO header: 22 significant characters plus carriage
// returns and the terminator.
const wmoHeaderMaxEncodedLen = 25

// decodeWMOHeader extracts the WMO header line from the front of buf:
// every byte up to the first line feed, with carriage returns
// dropped. It returns the header text and the number of input bytes
// consumed, terminator included, so the caller can advance past it.
// INVAL if no line feed occurs within the scan window.
func decodeWMOHeader(buf []byte) (header string, consumed int, err error) {
	window := min(len(buf), wmoHeaderMaxEncodedLen)
	text := make([]byte, 0, window)
	for i := 0; i < window; i++ {
		switch buf[i] {
		case '\n':
			return string(text), i + 1, nil
		case '\r':
		default:
			text = append(text, buf[i])
		}
	}
	return "", 0, statusErrorf(StatusInval,
		"no line feed in the first %d bytes of the WMO header", window)
}
