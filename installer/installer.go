// Package installer consumes a bundle produced by package encoder in a
// single forward pass: it verifies the bundle header, dispatches each
// payload to a slot or an execute handler, reconstructs block-encoded
// bodies (deduplicating and decompressing as it goes), and verifies
// every hash the bundle declares before committing anything.
package installer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/edgeupdate/bundle/blockindex"
	"github.com/edgeupdate/bundle/bundleerr"
	"github.com/edgeupdate/bundle/compress"
	"github.com/edgeupdate/bundle/exec"
	"github.com/edgeupdate/bundle/format"
	"github.com/edgeupdate/bundle/hashalgo"
	"github.com/edgeupdate/bundle/internal/options"
	"github.com/edgeupdate/bundle/manifest"
	"github.com/edgeupdate/bundle/schema"
	"github.com/edgeupdate/bundle/slot"
	"github.com/edgeupdate/bundle/source"
	"github.com/edgeupdate/bundle/wire"
)

// readBufSize is how much of a raw (non-block-encoded) payload body is
// copied per Read while streaming it to its sink.
const readBufSize = 64 * 1024

// Installer reconstructs bundle payloads onto slots and execute
// handlers. The zero value is not usable; construct with New.
type Installer struct {
	tempDir string
	baseCtx context.Context
}

// New creates an Installer configured by opts.
func New(opts ...options.Option[*Installer]) (*Installer, error) {
	in := &Installer{tempDir: os.TempDir()}
	if err := options.Apply(in, opts...); err != nil {
		return nil, err
	}

	return in, nil
}

// WithTempDir sets the directory used to stage an execute-delivery
// payload's reconstructed body before its handler runs. Defaults to
// os.TempDir().
func WithTempDir(dir string) options.Option[*Installer] {
	return options.NoError(func(in *Installer) { in.tempDir = dir })
}

// WithCancel sets a base context used by Install when called with a
// nil ctx. Install's own ctx argument always takes precedence when
// non-nil.
func WithCancel(ctx context.Context) options.Option[*Installer] {
	return options.NoError(func(in *Installer) { in.baseCtx = ctx })
}

// Install reads one complete bundle from src, verifying every hash the
// bundle declares, and writes each payload's reconstructed bytes to the
// slot or execute handler its PayloadEntry names. A hash mismatch, an
// unknown required tag, or a source I/O error aborts the remaining
// install and leaves the slot whose body was in flight unfinalized; a
// slot.Writer committed by an earlier payload this call is not rolled
// back, matching spec's per-slot idempotent-overwrite semantics.
func (in *Installer) Install(ctx context.Context, src source.Source, slots slot.Registry, execs exec.Registry, provider slot.StoredBlockProvider) error {
	if ctx == nil {
		ctx = in.baseCtx
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := format.NewReader(src, format.DefaultReaderOptions())

	if err := expectSegmentStart(r, format.BundleTag); err != nil {
		return err
	}

	if err := expectSegmentStart(r, format.BundleHeaderTag, "BUNDLE"); err != nil {
		return err
	}
	headerSeg, err := schema.ParseSegment(r, format.BundleHeaderTag)
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format("parsing bundle header", "BUNDLE", "BUNDLE_HEADER"), err)
	}
	header := &wire.BundleHeader{}
	if err := schema.Decode(headerSeg, header); err != nil {
		return bundleerr.Wrap(bundleerr.Format("decoding bundle header", "BUNDLE", "BUNDLE_HEADER"), err)
	}

	bundleAlg := hashalgo.Algorithm(header.HashAlgorithm)
	if !bundleAlg.Valid() {
		return bundleerr.Unsupported(fmt.Sprintf("unknown bundle hash algorithm %q", header.HashAlgorithm), "BUNDLE", "BUNDLE_HEADER")
	}

	if err := expectSegmentStart(r, format.PayloadsTag, "BUNDLE"); err != nil {
		return err
	}

	for i, entry := range header.Payloads {
		if err := ctx.Err(); err != nil {
			return bundleerr.Cancelled("BUNDLE", "PAYLOADS", fmt.Sprintf("PAYLOAD[%d]", i))
		}
		if err := in.installOne(ctx, r, entry, i, bundleAlg, slots, execs, provider); err != nil {
			return err
		}
	}

	if err := expectSegmentEnd(r, format.PayloadsTag, "BUNDLE"); err != nil {
		return err
	}
	if err := expectSegmentEnd(r, format.BundleTag); err != nil {
		return err
	}

	head, ok, err := r.ReadAtomHead()
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format("reading trailing bytes after bundle end"), err)
	}
	if ok {
		return bundleerr.Format(fmt.Sprintf("unexpected %s after bundle end", head.Tag))
	}

	return nil
}

func (in *Installer) installOne(
	ctx context.Context,
	r *format.Reader,
	entry *wire.PayloadEntry,
	index int,
	bundleAlg hashalgo.Algorithm,
	slots slot.Registry,
	execs exec.Registry,
	provider slot.StoredBlockProvider,
) error {
	path := fmt.Sprintf("PAYLOAD[%d]", index)

	if err := expectSegmentStart(r, format.PayloadTag, "BUNDLE", "PAYLOADS"); err != nil {
		return err
	}

	if err := expectSegmentStart(r, format.PayloadHeaderTag, "BUNDLE", "PAYLOADS", path); err != nil {
		return err
	}
	headerSeg, err := schema.ParseSegment(r, format.PayloadHeaderTag)
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format("parsing payload header", "BUNDLE", "PAYLOADS", path), err)
	}
	payloadHeader := &wire.PayloadHeader{}
	if err := schema.Decode(headerSeg, payloadHeader); err != nil {
		return bundleerr.Wrap(bundleerr.Format("decoding payload header", "BUNDLE", "PAYLOADS", path), err)
	}

	headerBytes, err := encodeHeaderForHash(payloadHeader)
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format("re-encoding payload header for verification", "BUNDLE", "PAYLOADS", path), err)
	}
	gotHeaderDigest, err := hashalgo.Sum(bundleAlg, headerBytes)
	if err != nil {
		return bundleerr.Unsupported(err.Error(), "BUNDLE", "PAYLOADS", path)
	}
	wantHeaderDigest := hashalgo.Digest{Algorithm: bundleAlg, Sum: entry.HeaderHash}
	if !gotHeaderDigest.Equal(wantHeaderDigest) {
		return bundleerr.Integrity("payload header hash mismatch", wantHeaderDigest, gotHeaderDigest, "BUNDLE", "PAYLOADS", path)
	}

	sink, finish, err := in.openSink(ctx, entry, slots, execs, path)
	if err != nil {
		return err
	}

	fileHasher, err := hashalgo.New(bundleAlg)
	if err != nil {
		finish(false)

		return bundleerr.Unsupported(err.Error(), "BUNDLE", "PAYLOADS", path)
	}

	dataHead, ok, err := r.ReadAtomHead()
	if err != nil {
		finish(false)

		return bundleerr.Wrap(bundleerr.Format("reading payload data header", "BUNDLE", "PAYLOADS", path), err)
	}
	if !ok || dataHead.Kind != format.Value || dataHead.Tag != format.PayloadDataTag {
		finish(false)

		return bundleerr.Format("expected PAYLOAD_DATA", "BUNDLE", "PAYLOADS", path)
	}

	if payloadHeader.BlockEncoding == nil {
		if err := streamRaw(ctx, r, dataHead.Length, sink, fileHasher, path); err != nil {
			finish(false)

			return err
		}
	} else {
		if err := reconstructBlocks(ctx, r, dataHead.Length, payloadHeader.BlockEncoding, bundleAlg, sink, fileHasher, provider, path); err != nil {
			finish(false)

			return err
		}
	}

	wantFileDigest := hashalgo.Digest{Algorithm: bundleAlg, Sum: entry.FileHash}
	gotFileDigest := hashalgo.Digest{Algorithm: bundleAlg, Sum: fileHasher.Sum(nil)}
	if !gotFileDigest.Equal(wantFileDigest) {
		finish(false)

		return bundleerr.Integrity("payload file hash mismatch", wantFileDigest, gotFileDigest, "BUNDLE", "PAYLOADS", path)
	}

	if err := expectSegmentEnd(r, format.PayloadTag, "BUNDLE", "PAYLOADS"); err != nil {
		finish(false)

		return err
	}

	if err := finish(true); err != nil {
		return bundleerr.Wrap(bundleerr.Resource("committing payload", "BUNDLE", "PAYLOADS", path), err)
	}

	return nil
}

// sinkFinisher commits or discards the bytes written to a payload's
// sink: Finalize/Abort for a slot.Writer, or sync-close-and-run-handler
// for an execute delivery's temp file.
type sinkFinisher func(commit bool) error

func (in *Installer) openSink(ctx context.Context, entry *wire.PayloadEntry, slots slot.Registry, execs exec.Registry, path string) (io.Writer, sinkFinisher, error) {
	switch entry.Kind {
	case wire.DeliverySlot:
		w, err := slots.Open(entry.SlotName)
		if err != nil {
			return nil, nil, bundleerr.Resource(fmt.Sprintf("opening slot %q: %v", entry.SlotName, err), "BUNDLE", "PAYLOADS", path)
		}

		return w, func(commit bool) error {
			if !commit {
				return w.Abort()
			}

			return w.Finalize()
		}, nil

	case wire.DeliveryExecute:
		f, err := os.CreateTemp(in.tempDir, "bundle-install-*.body")
		if err != nil {
			return nil, nil, bundleerr.Resource(fmt.Sprintf("creating temp file: %v", err), "BUNDLE", "PAYLOADS", path)
		}

		return f, func(commit bool) error {
			defer os.Remove(f.Name())

			if !commit {
				f.Close()

				return nil
			}
			if err := f.Sync(); err != nil {
				f.Close()

				return fmt.Errorf("flushing temp file: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing temp file: %w", err)
			}

			return execs.Run(ctx, entry.ExecHandler, f.Name())
		}, nil

	default:
		return nil, nil, bundleerr.Format("payload entry has no delivery variant", "BUNDLE", "PAYLOADS", path)
	}
}

// streamRaw copies length bytes directly from r to sink, feeding every
// byte to fileHasher, for a payload with no block_encoding.
func streamRaw(ctx context.Context, r *format.Reader, length uint64, sink io.Writer, fileHasher hash.Hash, path string) error {
	buf := make([]byte, readBufSize)
	remaining := length
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return bundleerr.Cancelled(path)
		}

		n := uint64(len(buf))
		if remaining < n {
			n = remaining
		}
		if err := r.ReadRaw(buf[:n]); err != nil {
			return bundleerr.Transport("reading payload body", err, path)
		}
		if _, err := sink.Write(buf[:n]); err != nil {
			return bundleerr.Resource(fmt.Sprintf("writing sink: %v", err), path)
		}
		fileHasher.Write(buf[:n])
		remaining -= n
	}

	return nil
}

// encodeHeaderForHash re-encodes h's PAYLOAD_HEADER segment to the same
// bytes the encoder hashed when it produced PayloadEntry.header_hash,
// used to verify that hash without keeping the original wire bytes
// around.
func encodeHeaderForHash(h *wire.PayloadHeader) ([]byte, error) {
	var buf bytes.Buffer
	w := format.NewWriter(&buf)
	defer w.Release()

	if err := schema.EncodeSegment(schema.NewEncoder(w), format.PayloadHeaderTag, h); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// reconstructBlocks reads a block-encoded PAYLOAD_DATA body of
// dataLength bytes, reversing the encoder's content-defined chunking,
// dedup, and compression, and writes the resulting logical bytes to
// sink in order. be's block_hashes is one digest per logical block
// (including duplicates); block_sizes, when present, is one u32 per
// distinct stored block in storage (first-occurrence) order, matching
// how the encoder wrote them.
//
// source.Source has no backward-seek capability, so a within-pass
// duplicate can't be served by re-reading the bundle stream: this
// keeps every first-occurrence block's decompressed bytes in an
// in-memory cache, keyed by digest, until the payload is done.
func reconstructBlocks(
	ctx context.Context,
	r *format.Reader,
	dataLength uint64,
	be *wire.BlockEncoding,
	bundleAlg hashalgo.Algorithm,
	sink io.Writer,
	fileHasher hash.Hash,
	provider slot.StoredBlockProvider,
	path string,
) error {
	chunkerSpec, err := manifest.ParseChunkerSpec(be.Chunker)
	if err != nil {
		return bundleerr.Unsupported(err.Error(), path)
	}

	blockAlg := hashalgo.Algorithm(be.HashAlgorithm)
	if be.HashAlgorithm == "" {
		blockAlg = bundleAlg
	}
	if !blockAlg.Valid() {
		return bundleerr.Unsupported(fmt.Sprintf("unknown block hash algorithm %q", be.HashAlgorithm), path)
	}
	digestSize := blockAlg.Size()

	compSpec, err := compress.ParseSpec(be.Compression)
	if err != nil {
		return bundleerr.Unsupported(err.Error(), path)
	}
	streamAlg := compSpec.Algorithm
	if streamAlg == "" {
		streamAlg = compress.None
	}
	streamCodec, err := compress.CreateStreamCodec(streamAlg, compSpec.Level)
	if err != nil {
		return bundleerr.Unsupported(err.Error(), path)
	}

	blockHashes, err := bulkDecompress(be.BlockHashes, compSpec, path)
	if err != nil {
		return err
	}
	if digestSize == 0 || len(blockHashes)%digestSize != 0 {
		return bundleerr.Format("block_hashes length is not a multiple of the digest size", path)
	}
	n := len(blockHashes) / digestSize

	sizesPresent := !(chunkerSpec.Kind == manifest.ChunkerFixed && compSpec.Algorithm == "")

	var storedSizes []uint32
	if sizesPresent {
		rawSizes, err := bulkDecompress(be.BlockSizes, compSpec, path)
		if err != nil {
			return err
		}
		if len(rawSizes)%4 != 0 {
			return bundleerr.Format("block_sizes length is not a multiple of 4", path)
		}
		storedSizes = make([]uint32, len(rawSizes)/4)
		for i := range storedSizes {
			storedSizes[i] = binary.BigEndian.Uint32(rawSizes[i*4:])
		}
	} else if chunkerSpec.Kind != manifest.ChunkerFixed {
		return bundleerr.Format("block_sizes is required unless the chunker is fixed-size with no compression", path)
	}

	table := blockindex.NewTable()
	decoded := make(map[string][]byte)

	var consumed uint64
	var storageIdx int

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return bundleerr.Cancelled(path)
		}

		wantDigest := hashalgo.Digest{Algorithm: blockAlg, Sum: blockHashes[i*digestSize : (i+1)*digestSize]}

		isNew := true
		firstIdx := i
		if be.Deduplicated {
			firstIdx, isNew = table.Insert(wantDigest, i)
		}

		if !isNew {
			logical, ok := decoded[string(wantDigest.Sum)]
			if !ok {
				return bundleerr.Format(fmt.Sprintf("duplicate block %d references unseen first occurrence %d", i, firstIdx), path)
			}
			if _, err := sink.Write(logical); err != nil {
				return bundleerr.Resource(fmt.Sprintf("writing sink: %v", err), path)
			}
			fileHasher.Write(logical)

			continue
		}

		var storedSize uint32
		if sizesPresent {
			if storageIdx >= len(storedSizes) {
				return bundleerr.Format("block_sizes has fewer entries than distinct blocks", path)
			}
			storedSize = storedSizes[storageIdx]
		} else if be.TotalLogicalSize == 0 && i == n-1 && dataLength > consumed && dataLength-consumed <= uint64(chunkerSpec.FixedSize) {
			// Without total_logical_size, the final block is whatever
			// remains of the declared body after all prior blocks.
			storedSize = uint32(dataLength - consumed)
		} else {
			derived, derr := fixedBlockSize(chunkerSpec, i, n, be.TotalLogicalSize)
			if derr != nil {
				return bundleerr.Format(derr.Error(), path)
			}
			storedSize = derived
		}
		storageIdx++

		var logical []byte
		if provider != nil {
			if sb, ok := provider.Query(wantDigest); ok {
				if serr := r.SkipRaw(int64(storedSize)); serr != nil {
					return bundleerr.Transport("skipping block body", serr, path)
				}
				l, lerr := readStoredBlock(sb)
				if lerr != nil {
					return bundleerr.Wrap(bundleerr.Resource("reading locally stored block", path), lerr)
				}
				logical = l
			}
		}
		if logical == nil {
			stored := make([]byte, storedSize)
			if rerr := r.ReadRaw(stored); rerr != nil {
				return bundleerr.Transport("reading block body", rerr, path)
			}

			l, derr := decompressBlock(streamCodec, stored)
			if derr != nil {
				return bundleerr.Format(fmt.Sprintf("decompressing block: %v", derr), path)
			}
			logical = l
		}
		consumed += uint64(storedSize)

		gotDigest, herr := hashalgo.Sum(blockAlg, logical)
		if herr != nil {
			return bundleerr.Unsupported(herr.Error(), path)
		}
		if !gotDigest.Equal(wantDigest) {
			return bundleerr.Integrity("block hash mismatch", wantDigest, gotDigest, path)
		}

		if _, err := sink.Write(logical); err != nil {
			return bundleerr.Resource(fmt.Sprintf("writing sink: %v", err), path)
		}
		fileHasher.Write(logical)

		if be.Deduplicated {
			decoded[string(wantDigest.Sum)] = logical
		}
	}

	if consumed != dataLength {
		return bundleerr.Format(fmt.Sprintf("consumed %d of %d declared body bytes", consumed, dataLength), path)
	}

	return nil
}

// fixedBlockSize derives a block's stored size when block_sizes was
// omitted (a fixed-size chunker with no compression, where stored size
// always equals logical size): every logical block but the last is
// exactly spec.FixedSize; the last is whatever remains of
// total_logical_size, which can be shorter when the payload's length
// isn't a multiple of FixedSize. ordinal is the block's position in
// logical (block_hashes) order and total is the logical block count.
func fixedBlockSize(spec manifest.ChunkerSpec, ordinal, total int, totalLogicalSize uint64) (uint32, error) {
	if spec.FixedSize <= 0 {
		return 0, fmt.Errorf("fixed chunker has no size")
	}
	if ordinal != total-1 {
		return uint32(spec.FixedSize), nil
	}

	last := totalLogicalSize - uint64(ordinal)*uint64(spec.FixedSize)
	if last == 0 || last > uint64(spec.FixedSize) {
		return 0, fmt.Errorf("derived last block size %d is inconsistent with total_logical_size", last)
	}

	return uint32(last), nil
}

// decompressBlock reverses compressBlock: sc decompresses one
// self-contained frame in full.
func decompressBlock(sc compress.StreamCodec, compressed []byte) ([]byte, error) {
	rc, err := sc.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// readStoredBlock reads sb's bytes from the already-installed slot file
// a StoredBlockProvider located.
func readStoredBlock(sb slot.StoredBlock) ([]byte, error) {
	f, err := os.Open(sb.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, sb.Size)
	if _, err := f.ReadAt(buf, sb.Offset); err != nil {
		return nil, err
	}

	return buf, nil
}

// bulkDecompress reverses bulkCompress: an unset spec leaves data
// unchanged.
func bulkDecompress(data []byte, spec compress.Spec, path string) ([]byte, error) {
	if spec.Algorithm == "" || spec.Algorithm == compress.None {
		return data, nil
	}
	codec, err := compress.CreateCodecWithLevel(spec.Algorithm, spec.Level, "block_encoding.compression")
	if err != nil {
		return nil, bundleerr.Unsupported(err.Error(), path)
	}
	out, err := codec.Decompress(data)
	if err != nil {
		return nil, bundleerr.Format(fmt.Sprintf("decompressing: %v", err), path)
	}

	return out, nil
}

func expectSegmentStart(r *format.Reader, tag format.Tag, path ...string) error {
	head, ok, err := r.ReadAtomHead()
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format(fmt.Sprintf("reading atom head, expected %s", tag), path...), err)
	}
	if !ok {
		return bundleerr.Format(fmt.Sprintf("stream ended expecting %s", tag), path...)
	}
	if head.Kind != format.SegmentStart || head.Tag != tag {
		return bundleerr.Format(fmt.Sprintf("expected start of %s, got %s", tag, head.Tag), path...)
	}

	return nil
}

func expectSegmentEnd(r *format.Reader, tag format.Tag, path ...string) error {
	head, ok, err := r.ReadAtomHead()
	if err != nil {
		return bundleerr.Wrap(bundleerr.Format(fmt.Sprintf("reading atom head, expected end of %s", tag), path...), err)
	}
	if !ok {
		return bundleerr.Format(fmt.Sprintf("stream ended expecting end of %s", tag), path...)
	}
	if head.Kind != format.SegmentEnd || head.Tag != tag {
		return bundleerr.Format(fmt.Sprintf("expected end of %s, got %s", tag, head.Tag), path...)
	}

	return nil
}
