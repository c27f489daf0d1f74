// Package compress provides compression and decompression codecs for
// bundle block and bulk payload bytes.
//
// Compression is applied after content-defined chunking and dedup, as an
// additional layer of space savings on top of the blocks a BlockEncoding
// actually has to ship. A BLOCK_ENCODING's optional compression field
// selects the algorithm; the identity algorithm ("none") means the
// chunked, deduplicated blocks are stored as-is.
//
// # Architecture
//
// The package defines two families of interface, matched to two
// different use sites:
//
//	type Compressor interface {
//	    Compress(data []byte) ([]byte, error)
//	}
//
//	type Decompressor interface {
//	    Decompress(data []byte) ([]byte, error)
//	}
//
//	type Codec interface {
//	    Compressor
//	    Decompressor
//	}
//
//	type StreamCodec interface {
//	    NewWriter(w io.Writer) (io.WriteCloser, error)
//	    NewReader(r io.Reader) (io.ReadCloser, error)
//	}
//
// Codec operates on a complete, already-sized buffer: the bulk-compressed
// block_hashes/block_sizes vectors in a BlockEncoding, whose size is
// known before compression starts. StreamCodec operates on an open-ended
// stream: the encoder compresses PAYLOAD_DATA bodies block by block as
// it chunks the source, and the installer decompresses them block by
// block as it reconstructs the target, in both cases without knowing the
// total size up front.
//
// # Supported Algorithms
//
// **Identity** ("none")
//
//	codec := compress.NewIdentityCompressor()
//	compressed, _ := codec.Compress(data)  // Returns data unchanged
//
// Use when a payload is already incompressible (media, ciphertext) or
// when the CPU cost of compressing would exceed the bytes it would save.
//
// **XZ** ("xz") — the primary algorithm
//
//	codec := compress.NewXZCompressor(6)
//	compressed, _ := codec.Compress(data)
//
// LZMA2 via github.com/ulikunitz/xz. Favors compression ratio over
// speed; the default choice for bundle block bodies distributed over a
// constrained network, where every byte saved in transit outweighs the
// extra CPU spent compressing once at build time and decompressing once
// per install.
//
// **Zstandard** ("zstd"), **S2** ("s2"), **LZ4** ("lz4")
//
// Additional selectable algorithms, each trading ratio for throughput
// differently:
//
//	Algorithm | Ratio vs XZ | Decompression speed | Best for
//	----------|-------------|----------------------|------------------------
//	Zstd      | close       | fast                 | archival mirrors
//	S2        | lower       | very fast            | low-latency installs
//	LZ4       | lowest      | fastest              | CPU-constrained devices
//
// # Algorithm Selection
//
// A manifest author picks the algorithm per BlockEncoding, trading build
// time and install time CPU against transfer size:
//
//	Constraint               | Recommended
//	--------------------------|------------
//	Bandwidth-constrained     | xz
//	Install-time CPU-constrained | lz4 or s2
//	Already-compressed payload | none
//
// # Thread Safety
//
// All codec implementations are safe to share across goroutines; none
// hold per-call mutable state outside of the buffers passed to them.
// Stateful resources (zstd encoders/decoders, lz4 compressors) are
// pooled internally with sync.Pool.
//
// # Error Handling
//
// Decompress returns an error when the input doesn't match the expected
// container format — truncated data, the wrong algorithm selected for a
// given block, or corruption. Compress errors are rare and generally
// indicate a misconfigured codec (for example, an out-of-range XZ
// dictionary size).
package compress
