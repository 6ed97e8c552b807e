// Copyright 2026 The Downlink Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the whole-file compression applied to a
// stored product. The algorithm is recorded in the product file's
// extension, so a store remains readable after the configured
// algorithm changes.
type Compression uint8

const (
	// CompressionNone stores product bytes as-is. The right choice
	// for feeds that are already zlib-compressed end to end, where
	// recompression burns CPU for nothing.
	CompressionNone Compression = 0

	// CompressionLZ4 applies LZ4 block compression. Fast default
	// with modest ratios; decode speed keeps Get cheap.
	CompressionLZ4 Compression = 1

	// CompressionZstd applies zstd at its default level. Better
	// ratios for uncompressed imagery, which is long runs of
	// similar pixels.
	CompressionZstd Compression = 2
)

// String returns the human-readable name of a compression setting.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression setting from its string
// representation.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression setting: %q", name)
	}
}

// extension returns the product file suffix for this compression.
func (c Compression) extension() string {
	switch c {
	case CompressionLZ4:
		return ".gini.lz4"
	case CompressionZstd:
		return ".gini.zst"
	default:
		return ".gini"
	}
}

// compressionForExtension is the inverse of extension.
func compressionForExtension(ext string) (Compression, error) {
	switch ext {
	case ".gini":
		return CompressionNone, nil
	case ".gini.lz4":
		return CompressionLZ4, nil
	case ".gini.zst":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown product file extension: %q", ext)
	}
}

// errIncompressible reports that compression would not shrink the
// data. The caller stores the original bytes instead.
var errIncompressible = errors.New("data is incompressible")

// compress applies the given algorithm. For CompressionNone the
// input is returned unchanged (no copy). errIncompressible means the
// output would be at least as large as the input.
func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression setting: %d", c)
	}
}

// decompress reverses compress. The uncompressedSize must match the
// original length exactly; a mismatch means the stored file is
// damaged.
func decompress(compressed []byte, c Compression, uncompressedSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("stored product: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression setting: %d", c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also reject output no smaller than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder
// are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
