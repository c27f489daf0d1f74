// Package encoder assembles a manifest and a set of payload files into
// one STLV-encoded bundle, per the wire tree in package wire: hash each
// payload's logical bytes, optionally split and deduplicate its body
// into content-defined blocks, compress what's actually emitted, and
// stream the result into a BUNDLE segment.
package encoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"math"
	"os"

	"github.com/edgeupdate/bundle/blockindex"
	"github.com/edgeupdate/bundle/bundleerr"
	"github.com/edgeupdate/bundle/compress"
	"github.com/edgeupdate/bundle/format"
	"github.com/edgeupdate/bundle/hashalgo"
	"github.com/edgeupdate/bundle/internal/options"
	"github.com/edgeupdate/bundle/internal/pool"
	"github.com/edgeupdate/bundle/manifest"
	"github.com/edgeupdate/bundle/schema"
	"github.com/edgeupdate/bundle/wire"
)

// readBufSize is how much of a payload's logical bytes is pulled from
// its io.ReaderAt per call when a payload without block encoding is
// copied to its temp file.
const readBufSize = 64 * 1024

// Encoder builds a bundle from a manifest and a set of payload readers.
// The zero value is not usable; construct with New.
type Encoder struct {
	hashAlgorithm hashalgo.Algorithm
	tempDir       string
	baseCtx       context.Context
}

// New creates an Encoder configured by opts.
func New(opts ...options.Option[*Encoder]) (*Encoder, error) {
	e := &Encoder{tempDir: os.TempDir()}
	if err := options.Apply(e, opts...); err != nil {
		return nil, err
	}

	return e, nil
}

// WithHashAlgorithm overrides the bundle-wide hash algorithm used when
// the manifest itself doesn't set hash_algorithm (manifest's own value,
// when present, always wins).
func WithHashAlgorithm(alg hashalgo.Algorithm) options.Option[*Encoder] {
	return options.New(func(e *Encoder) error {
		if !alg.Valid() {
			return fmt.Errorf("encoder: unknown hash algorithm %q", alg)
		}
		e.hashAlgorithm = alg

		return nil
	})
}

// WithTempDir sets the directory used for the per-payload temp files
// block-encoded bodies are assembled into before being streamed into
// the final bundle. Defaults to os.TempDir().
func WithTempDir(dir string) options.Option[*Encoder] {
	return options.NoError(func(e *Encoder) { e.tempDir = dir })
}

// WithCancel sets a base context used by Encode when called with a nil
// ctx. Encode's own ctx argument always takes precedence when non-nil.
func WithCancel(ctx context.Context) options.Option[*Encoder] {
	return options.NoError(func(e *Encoder) { e.baseCtx = ctx })
}

// preparedPayload is the intermediate result of encoding one payload's
// body to a temp file, before the final streaming pass writes it into
// the bundle.
type preparedPayload struct {
	entry    *wire.PayloadEntry
	header   *wire.PayloadHeader
	tempPath string
	bodySize int64
}

// Encode writes a complete bundle to out: one BUNDLE segment containing
// the encoded header (manifest JSON, hash algorithm, payload index) and
// one PAYLOADS segment with one PAYLOAD per manifest entry, in manifest
// order. payloads must have one entry per manifest payload, keyed by
// filename.
func (e *Encoder) Encode(ctx context.Context, m *manifest.Manifest, payloads map[string]io.ReaderAt, out io.Writer) error {
	if ctx == nil {
		ctx = e.baseCtx
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resolvedAlg, err := m.ResolvedHashAlgorithm()
	if err != nil {
		return bundleerr.Unsupported(err.Error())
	}
	if m.HashAlgorithm == "" && e.hashAlgorithm != "" {
		resolvedAlg = e.hashAlgorithm
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return bundleerr.Format(fmt.Sprintf("marshaling manifest: %v", err), "BUNDLE_HEADER")
	}

	prepared := make([]*preparedPayload, 0, len(m.Payloads))
	defer func() {
		for _, p := range prepared {
			os.Remove(p.tempPath)
		}
	}()

	for i, p := range m.Payloads {
		if err := ctx.Err(); err != nil {
			return bundleerr.Cancelled("BUNDLE", fmt.Sprintf("PAYLOAD[%d]", i))
		}

		r, ok := payloads[p.Filename]
		if !ok {
			return bundleerr.Resource(fmt.Sprintf("no reader supplied for payload %q", p.Filename), "BUNDLE", fmt.Sprintf("PAYLOAD[%d]", i))
		}

		pp, err := e.prepareOne(ctx, p, r, resolvedAlg, i)
		if err != nil {
			return err
		}
		prepared = append(prepared, pp)
	}

	header := &wire.BundleHeader{
		Manifest:      manifestJSON,
		HashAlgorithm: string(resolvedAlg),
	}
	for _, pp := range prepared {
		header.Payloads = append(header.Payloads, pp.entry)
	}

	w := format.NewWriter(out)
	defer w.Release()

	if err := w.WriteSegmentStart(format.BundleTag); err != nil {
		return bundleerr.Transport("opening bundle", err)
	}

	if err := schema.EncodeSegment(schema.NewEncoder(w), format.BundleHeaderTag, header); err != nil {
		return bundleerr.Wrap(bundleerr.Format("encoding bundle header", "BUNDLE", "BUNDLE_HEADER"), err)
	}

	if err := w.WriteSegmentStart(format.PayloadsTag); err != nil {
		return bundleerr.Transport("opening payloads", err)
	}

	for i, pp := range prepared {
		if err := ctx.Err(); err != nil {
			return bundleerr.Cancelled("BUNDLE", "PAYLOADS", fmt.Sprintf("PAYLOAD[%d]", i))
		}

		if err := w.WriteSegmentStart(format.PayloadTag); err != nil {
			return bundleerr.Transport("opening payload", err)
		}
		if err := schema.EncodeSegment(schema.NewEncoder(w), format.PayloadHeaderTag, pp.header); err != nil {
			return bundleerr.Wrap(bundleerr.Format("encoding payload header", "BUNDLE", "PAYLOADS", fmt.Sprintf("PAYLOAD[%d]", i)), err)
		}
		if err := streamBody(w, pp.tempPath, pp.bodySize); err != nil {
			return bundleerr.Wrap(bundleerr.Transport("streaming payload body", nil, "BUNDLE", "PAYLOADS", fmt.Sprintf("PAYLOAD[%d]", i)), err)
		}
		if err := w.WriteSegmentEnd(format.PayloadTag); err != nil {
			return bundleerr.Transport("closing payload", err)
		}
	}

	if err := w.WriteSegmentEnd(format.PayloadsTag); err != nil {
		return bundleerr.Transport("closing payloads", err)
	}
	if err := w.WriteSegmentEnd(format.BundleTag); err != nil {
		return bundleerr.Transport("closing bundle", err)
	}

	return nil
}

// streamBody writes the PAYLOAD_DATA value header through
// w.WriteValueHeader, then copies tempPath's contents after it through
// w.RawWrite, so the body is streamed from the file rather than held in
// memory as one value.
func streamBody(w *format.Writer, tempPath string, size int64) error {
	if err := w.WriteValueHeader(format.PayloadDataTag, uint64(size)); err != nil {
		return err
	}

	f, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(bodyWriter{w}, f)

	return err
}

// bodyWriter exposes format.Writer's underlying io.Writer for streaming
// a value's body after its header has already been written.
type bodyWriter struct {
	w *format.Writer
}

func (b bodyWriter) Write(p []byte) (int, error) {
	return b.w.RawWrite(p)
}

// prepareOne hashes payload p's logical bytes, optionally block-encodes
// its body to a temp file, and builds the PayloadEntry/PayloadHeader
// pair describing it.
func (e *Encoder) prepareOne(ctx context.Context, p manifest.Payload, r io.ReaderAt, bundleAlg hashalgo.Algorithm, index int) (*preparedPayload, error) {
	path := fmt.Sprintf("PAYLOAD[%d]", index)

	tempFile, err := os.CreateTemp(e.tempDir, "bundle-encode-*.body")
	if err != nil {
		return nil, bundleerr.Resource(fmt.Sprintf("creating temp file: %v", err), path)
	}
	defer tempFile.Close()

	fileHasher, err := hashalgo.New(bundleAlg)
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}

	payloadHeader := &wire.PayloadHeader{}

	if p.BlockEncoding == nil {
		if _, err := copyRaw(ctx, r, fileHasher, tempFile); err != nil {
			return nil, err
		}
	} else {
		blockEncoding, err := e.encodeBlocks(ctx, p, r, fileHasher, bundleAlg, tempFile, path)
		if err != nil {
			return nil, err
		}
		payloadHeader.BlockEncoding = blockEncoding
	}

	if err := tempFile.Sync(); err != nil {
		return nil, bundleerr.Resource(fmt.Sprintf("flushing temp file: %v", err), path)
	}
	info, err := tempFile.Stat()
	if err != nil {
		return nil, bundleerr.Resource(fmt.Sprintf("stat temp file: %v", err), path)
	}

	fileHash := hashalgo.Digest{Algorithm: bundleAlg, Sum: fileHasher.Sum(nil)}

	headerBytes, err := encodeHeaderBytes(payloadHeader)
	if err != nil {
		return nil, bundleerr.Wrap(bundleerr.Format("encoding payload header for hashing", path), err)
	}
	headerDigest, err := hashalgo.Sum(bundleAlg, headerBytes)
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}

	entry := &wire.PayloadEntry{
		HeaderHash: headerDigest.Sum,
		FileHash:   fileHash.Sum,
	}
	switch p.Delivery.Kind {
	case manifest.DeliverySlot:
		entry.Kind = wire.DeliverySlot
		entry.SlotName = p.Delivery.Slot
	case manifest.DeliveryExecute:
		entry.Kind = wire.DeliveryExecute
		entry.ExecHandler = p.Delivery.Execute
	default:
		return nil, bundleerr.Format(fmt.Sprintf("payload %q has no delivery variant", p.Filename), path)
	}

	return &preparedPayload{
		entry:    entry,
		header:   payloadHeader,
		tempPath: tempFile.Name(),
		bodySize: info.Size(),
	}, nil
}

// encodeHeaderBytes encodes h's PAYLOAD_HEADER segment into a standalone
// buffer, used both to compute header_hash and (indirectly, by being
// re-encoded) to write the final bundle.
func encodeHeaderBytes(h *wire.PayloadHeader) ([]byte, error) {
	var buf bytes.Buffer
	w := format.NewWriter(&buf)
	defer w.Release()

	if err := schema.EncodeSegment(schema.NewEncoder(w), format.PayloadHeaderTag, h); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// copyRaw streams r's entire logical content into tempFile unmodified,
// used for a payload with no block_encoding.
func copyRaw(ctx context.Context, r io.ReaderAt, fileHasher hash.Hash, tempFile *os.File) (int64, error) {
	buf := make([]byte, readBufSize)
	var offset, total int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, bundleerr.Cancelled()
		}

		n, rerr := r.ReadAt(buf, offset)
		if n > 0 {
			if _, werr := tempFile.Write(buf[:n]); werr != nil {
				return 0, bundleerr.Resource(fmt.Sprintf("writing temp file: %v", werr))
			}
			fileHasher.Write(buf[:n])
			offset += int64(n)
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return 0, bundleerr.Transport("reading payload", rerr)
		}
	}
}

// readerAtSeq adapts an io.ReaderAt into the sequential io.Reader that
// blockindex.Build (and, beneath it, chunk.Chunker) expect: a
// forward-only stream, since chunking and the running file hash both
// need bytes delivered in order exactly once.
type readerAtSeq struct {
	r      io.ReaderAt
	offset int64
}

func (s *readerAtSeq) Read(p []byte) (int, error) {
	n, err := s.r.ReadAt(p, s.offset)
	s.offset += int64(n)

	return n, err
}

// encodeBlocks splits r into content-defined blocks with the chunker
// p.BlockEncoding names, deduplicates and compresses them per its
// settings, and writes the emitted bytes to tempFile.
func (e *Encoder) encodeBlocks(
	ctx context.Context,
	p manifest.Payload,
	r io.ReaderAt,
	fileHasher hash.Hash,
	bundleAlg hashalgo.Algorithm,
	tempFile *os.File,
	path string,
) (*wire.BlockEncoding, error) {
	be := p.BlockEncoding

	chunkerSpec, err := manifest.ParseChunkerSpec(be.Chunker)
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}

	blockAlg, err := be.ResolvedHashAlgorithm(bundleAlg)
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}

	compSpec, err := be.CompressionSpec()
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}
	streamAlg := compSpec.Algorithm
	if streamAlg == "" {
		streamAlg = compress.None
	}
	streamCodec, err := compress.CreateStreamCodec(streamAlg, compSpec.Level)
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}

	// One forward pass locates every block's offset_in_payload, size, and
	// digest (and, incidentally, the whole-file hash, fed via TeeReader
	// as the index-building pass consumes r).
	idx, err := blockindex.Build(io.TeeReader(&readerAtSeq{r: r}, fileHasher), chunkerSpec.New(), blockAlg)
	if err != nil {
		return nil, bundleerr.Format(fmt.Sprintf("chunking payload: %v", err), path)
	}

	sizesPresent := !(chunkerSpec.Kind == manifest.ChunkerFixed && compSpec.Algorithm == "")

	var (
		blockHashes []byte
		// sizesByOrdinal records every logical block's stored size,
		// indexed by ordinal, purely so a later duplicate can look up
		// its first occurrence's size without recompressing. storedSizes
		// is the wire block_sizes vector: one entry per distinct stored
		// block, in storage (first-occurrence) order, per spec.
		sizesByOrdinal []uint32
		storedSizes    []uint32
	)

	for ordinal, rec := range idx.Records {
		if err := ctx.Err(); err != nil {
			return nil, bundleerr.Cancelled(path)
		}

		blockHashes = append(blockHashes, rec.Digest.Sum...)

		// be.Deduplicate gates whether this payload's encoding actually
		// reuses Index's dedup finding: with it off, every block is
		// stored separately regardless of content, even if Build found
		// it identical to an earlier one.
		isNew := true
		firstIdx := ordinal
		if be.Deduplicate {
			isNew = rec.IsNew
			if !isNew {
				firstIdx = rec.FirstOccurrence
			}
		}

		var storedSize uint32
		if isNew {
			bb := pool.GetBlockBuffer()
			bb.Reset()
			bb.ExtendOrGrow(int(rec.Size))
			block := bb.Bytes()
			if _, rerr := r.ReadAt(block, rec.Offset); rerr != nil && rerr != io.EOF {
				pool.PutBlockBuffer(bb)
				return nil, bundleerr.Transport("reading payload block", rerr, path)
			}
			compressed, cerr := compressBlock(streamCodec, block)
			pool.PutBlockBuffer(bb)
			if cerr != nil {
				return nil, bundleerr.Format(fmt.Sprintf("compressing block: %v", cerr), path)
			}
			if len(compressed) > math.MaxUint32 {
				return nil, bundleerr.Format("block exceeds 4 GiB", path)
			}
			storedSize = uint32(len(compressed))
			if _, werr := tempFile.Write(compressed); werr != nil {
				return nil, bundleerr.Resource(fmt.Sprintf("writing temp file: %v", werr), path)
			}
			storedSizes = append(storedSizes, storedSize)
		} else {
			storedSize = sizesByOrdinal[firstIdx]
		}
		sizesByOrdinal = append(sizesByOrdinal, storedSize)
	}

	var totalLogicalSize int64
	if n := len(idx.Records); n > 0 {
		last := idx.Records[n-1]
		totalLogicalSize = last.Offset + int64(last.Size)
	}

	var blockSizesBytes []byte
	if sizesPresent {
		blockSizesBytes = make([]byte, 4*len(storedSizes))
		for i, s := range storedSizes {
			binary.BigEndian.PutUint32(blockSizesBytes[i*4:], s)
		}
	}

	bulkHashes, err := bulkCompress(blockHashes, compSpec)
	if err != nil {
		return nil, bundleerr.Format(fmt.Sprintf("compressing block_hashes: %v", err), path)
	}
	bulkSizes := blockSizesBytes
	if sizesPresent {
		bulkSizes, err = bulkCompress(blockSizesBytes, compSpec)
		if err != nil {
			return nil, bundleerr.Format(fmt.Sprintf("compressing block_sizes: %v", err), path)
		}
	}

	return &wire.BlockEncoding{
		Chunker:          be.Chunker,
		HashAlgorithm:    string(blockAlg),
		Deduplicated:     be.Deduplicate,
		Compression:      compSpec.String(),
		BlockHashes:      bulkHashes,
		BlockSizes:       bulkSizes,
		TotalLogicalSize: uint64(totalLogicalSize),
	}, nil
}

// compressBlock compresses data as one self-contained stream: a fresh
// writer is opened, written to once, and closed, so the result is a
// complete frame regardless of algorithm.
func compressBlock(sc compress.StreamCodec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := sc.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// bulkCompress compresses data under spec's algorithm as a single
// buffer, used for the block_hashes/block_sizes vectors. An unset spec
// leaves data unchanged.
func bulkCompress(data []byte, spec compress.Spec) ([]byte, error) {
	if spec.Algorithm == "" || spec.Algorithm == compress.None {
		return data, nil
	}
	codec, err := compress.CreateCodecWithLevel(spec.Algorithm, spec.Level, "block_encoding.compression")
	if err != nil {
		return nil, err
	}

	return codec.Compress(data)
}
