package compress

// ZstdCompressor provides Zstandard compression, favoring ratio over
// speed relative to LZ4 or S2. Suited to:
//   - payloads installed infrequently, where decode speed doesn't matter
//   - bulk-compressed manifest vectors (block_hashes, block_sizes)
//   - bandwidth-constrained distribution channels
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
