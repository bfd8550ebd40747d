// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm of a sealed
// transcript. The tag is stored alongside the blob (1 byte). These
// values are storage constants — changing them breaks existing
// archives.
type CompressionTag uint8

const (
	// CompressionNone marks uncompressed data. Chosen automatically
	// when compression would not shrink the transcript.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 marks LZ4 block compression. Fast with a modest
	// ratio; for deployments where archive CPU cost matters more
	// than disk.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd marks zstd at the default level. Transcripts
	// are short repetitive text, so zstd typically achieves 3-5x and
	// is the default.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation, as used in configuration files.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
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
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible is returned when compressed output would be no
// smaller than the input. Callers fall back to CompressionNone.
var errIncompressible = fmt.Errorf("data is incompressible")

// IsIncompressible reports whether err indicates that data could not
// be compressed smaller than its original size.
func IsIncompressible(err error) bool {
	return err == errIncompressible
}

// Compress compresses data with the given algorithm. For
// CompressionNone the input is returned unchanged (no copy).
func Compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Decompress reverses Compress. The plainSize must match the original
// length exactly; a mismatch is an error.
func Decompress(compressed []byte, tag CompressionTag, plainSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != plainSize {
			return nil, fmt.Errorf("uncompressed blob: size %d does not match expected %d",
				len(compressed), plainSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, plainSize)
	case CompressionZstd:
		return decompressZstd(compressed, plainSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input; also reject
	// output that is not actually smaller.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, plainSize int) ([]byte, error) {
	destination := make([]byte, plainSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != plainSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, plainSize)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, plainSize int) ([]byte, error) {
	destination := make([]byte, 0, plainSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != plainSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), plainSize)
	}
	return result, nil
}
