// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package gini

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zlib"
)

// The codec is single-shot: each call compresses or decompresses one
// whole buffer into a fixed-capacity destination, with no streaming
// state carried between calls. A destination too small for the full
// result is a SYSTEM-class failure and is never retried; callers
// derive capacities that are sufficient by construction
// (transcodeBound, the uncompressed size for all-zero input, the
// header scratch buffer).

// errWriterFull reports a write past the end of a capWriter.
var errWriterFull = errors.New("destination buffer full")

// capWriter is a fixed-capacity io.Writer over a caller-provided
// slice.
type capWriter struct {
	dst []byte
	n   int
}

func (w *capWriter) Write(p []byte) (int, error) {
	n := copy(w.dst[w.n:], p)
	w.n += n
	if n < len(p) {
		return n, errWriterFull
	}
	return n, nil
}

// pack deflates src into dst at maximum compression and returns the
// encoded size.
func pack(src, dst []byte) (int, error) {
	w := capWriter{dst: dst}
	zw, err := zlib.NewWriterLevel(&w, zlib.BestCompression)
	if err != nil {
		// Only an out-of-range level constant can fail here.
		panic("gini: zlib writer: " + err.Error())
	}
	if _, err := zw.Write(src); err != nil {
		return 0, statusErrorf(StatusSystem,
			"compress %d bytes into %d-byte destination: %w",
			len(src), len(dst), err)
	}
	if err := zw.Close(); err != nil {
		return 0, statusErrorf(StatusSystem,
			"compress %d bytes into %d-byte destination: %w",
			len(src), len(dst), err)
	}
	return w.n, nil
}

// unpack inflates exactly one zlib stream from the front of src into
// dst. It returns the decompressed size and how many src bytes the
// stream occupied; input past the end of the stream is left unread,
// which is how block boundaries are found in a serialized compressed
// image. SYSTEM if the stream is corrupt, truncated, or inflates past
// len(dst).
func unpack(src, dst []byte) (written, consumed int, err error) {
	r := bytes.NewReader(src)
	zr, err := zlib.NewReader(r)
	if err != nil {
		return 0, 0, statusErrorf(StatusSystem,
			"decompress %d bytes: %w", len(src), err)
	}
	defer zr.Close()
	for written < len(dst) {
		n, rerr := zr.Read(dst[written:])
		written += n
		if rerr == io.EOF {
			return written, len(src) - r.Len(), nil
		}
		if rerr != nil {
			return 0, 0, statusErrorf(StatusSystem,
				"decompress %d bytes: %w", len(src), rerr)
		}
	}
	// The destination is full, so the stream must end exactly here.
	var probe [1]byte
	for {
		n, rerr := zr.Read(probe[:])
		if n > 0 {
			return 0, 0, statusErrorf(StatusSystem,
				"decompressed output exceeds %d-byte destination", len(dst))
		}
		if rerr == io.EOF {
			return written, len(src) - r.Len(), nil
		}
		if rerr != nil {
			return 0, 0, statusErrorf(StatusSystem,
				"decompress %d bytes: %w", len(src), rerr)
		}
	}
}

// measure walks one zlib stream at the front of src, discarding the
// output, and returns the inflated size and the stream's encoded
// length. limit bounds the inflated size so a corrupt or hostile
// stream cannot balloon.
func measure(src []byte, limit int) (inflated, consumed int, err error) {
	r := bytes.NewReader(src)
	zr, err := zlib.NewReader(r)
	if err != nil {
		return 0, 0, statusErrorf(StatusSystem,
			"measure compressed block: %w", err)
	}
	defer zr.Close()
	var sink [4096]byte
	for {
		n, rerr := zr.Read(sink[:])
		inflated += n
		if inflated > limit {
			return 0, 0, statusErrorf(StatusSystem,
				"compressed block inflates past %d bytes", limit)
		}
		if rerr == io.EOF {
			return inflated, len(src) - r.Len(), nil
		}
		if rerr != nil {
			return 0, 0, statusErrorf(StatusSystem,
				"measure compressed block: %w", rerr)
		}
	}
}

// transcodeBound returns a destination size sufficient for either
// direction of a block transcode, for blocks of at most n bytes
// uncompressed: n covers the decompress direction, and the margin
// covers worst-case deflate expansion in the compress direction
// (stored blocks add 5 bytes per 16 KiB of input, plus the 2-byte
// zlib header and 4-byte checksum).
func transcodeBound(n int) int {
	return n + n/1000 + 64
}

// isZlibHeader reports whether b starts with a plausible zlib stream:
// deflate compression method in CMF and a valid header check value.
func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	if b[0]&0x0f != 8 {
		return false
	}
	return (uint(b[0])<<8|uint(b[1]))%31 == 0
}
