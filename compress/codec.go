package compress

import (
	"fmt"
	"io"
)

// Compressor compresses a complete, already-in-memory payload: the
// bulk-compressed block_hashes/block_sizes vectors in a BlockEncoding,
// whose size is known up front.
type Compressor interface {
	// Compress compresses data and returns the compressed result.
	//
	// The returned slice is newly allocated and owned by the caller;
	// data is never modified.
	Compress(data []byte) ([]byte, error)
}

// Decompressor mirrors Compressor for the decompression direction.
// Compressor and Decompressor are kept separate so an algorithm can
// implement asymmetric cost/complexity on either side if needed.
type Decompressor interface {
	// Decompress reverses a prior Compress call, returning an error if
	// data is corrupt or was produced by a different algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines Compressor and Decompressor.
type Codec interface {
	Compressor
	Decompressor
}

// StreamCodec compresses a payload whose size isn't known up front: a
// PAYLOAD_DATA body, written and read one block at a time as the
// encoder/installer stream blocks past. Unlike Codec, a StreamCodec's
// Write/Read boundaries don't need to align with block boundaries — the
// underlying compressed stream is self-delimiting (XZ index, Zstd frame
// magic, and so on), so the reader side simply reads until EOF of its
// own stream regardless of how many blocks it decompresses into.
type StreamCodec interface {
	// NewWriter wraps w so that bytes written to the result are
	// compressed into w. Callers must Close the returned writer to
	// flush the final frame.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader wraps r so that reads from the result are decompressed
	// from r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// CompressionStats summarizes the outcome of compressing one payload,
// useful for encoder diagnostics and manifest-authoring tools choosing
// an algorithm.
type CompressionStats struct {
	Algorithm           Algorithm
	OriginalSize        int64
	CompressedSize      int64
	CompressionTimeNs   int64
	DecompressionTimeNs int64
}

// CompressionRatio returns CompressedSize / OriginalSize; values below
// 1.0 indicate the data shrank.
func (s CompressionStats) CompressionRatio() float64 {
	if s.OriginalSize == 0 {
		return 0.0
	}

	return float64(s.CompressedSize) / float64(s.OriginalSize)
}

// SpaceSavings returns the space saved as a percentage (0-100).
func (s CompressionStats) SpaceSavings() float64 {
	return (1.0 - s.CompressionRatio()) * 100.0
}

// CreateCodec builds a buffer-oriented Codec for algorithm. target names
// the caller's field, used only to make the error message for an
// unsupported algorithm actionable.
func CreateCodec(algorithm Algorithm, target string) (Codec, error) {
	switch algorithm {
	case None:
		return NewIdentityCompressor(), nil
	case XZ:
		return NewXZCompressor(xzDefaultLevel), nil
	case Zstd:
		return NewZstdCompressor(), nil
	case S2:
		return NewS2Compressor(), nil
	case LZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("compress: invalid %s compression algorithm: %q", target, algorithm)
	}
}

// CreateCodecWithLevel is CreateCodec with an explicit level, used to
// bulk-compress a BlockEncoding's block_hashes/block_sizes vectors under
// the same algorithm as the payload's per-block bodies. Only XZ takes
// the level; Zstd's buffer codec always uses its default level, and
// every other algorithm is built by CreateCodec.
func CreateCodecWithLevel(algorithm Algorithm, level int, target string) (Codec, error) {
	switch algorithm {
	case XZ:
		return NewXZCompressor(level), nil
	case Zstd:
		return NewZstdCompressor(), nil
	default:
		return CreateCodec(algorithm, target)
	}
}

// CreateStreamCodec builds a streaming StreamCodec for algorithm, used
// for PAYLOAD_DATA bodies. level is algorithm-specific compression
// effort and is ignored by algorithms (S2, LZ4) that don't expose one.
func CreateStreamCodec(algorithm Algorithm, level int) (StreamCodec, error) {
	switch algorithm {
	case None:
		return identityStreamCodec{}, nil
	case XZ:
		return xzStreamCodec{level: level}, nil
	case Zstd:
		return zstdStreamCodec{level: level}, nil
	case S2:
		return s2StreamCodec{}, nil
	case LZ4:
		return lz4StreamCodec{}, nil
	default:
		return nil, fmt.Errorf("compress: invalid streaming compression algorithm: %q", algorithm)
	}
}

var builtinCodecs = map[Algorithm]Codec{
	None: NewIdentityCompressor(),
	XZ:   NewXZCompressor(xzDefaultLevel),
	Zstd: NewZstdCompressor(),
	S2:   NewS2Compressor(),
	LZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves a shared, stateless Codec for algorithm.
func GetCodec(algorithm Algorithm) (Codec, error) {
	if codec, ok := builtinCodecs[algorithm]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("compress: unsupported algorithm: %q", algorithm)
}
