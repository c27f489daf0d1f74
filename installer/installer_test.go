package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/bundle/compress"
	"github.com/edgeupdate/bundle/encoder"
	"github.com/edgeupdate/bundle/exec"
	"github.com/edgeupdate/bundle/hashalgo"
	"github.com/edgeupdate/bundle/manifest"
	"github.com/edgeupdate/bundle/slot"
)

// memSource is the test-side source.Source: a forward-only reader over
// an in-memory buffer, with Skip implemented by seeking past bytes and
// counted in skipped.
type memSource struct {
	r       *bytes.Reader
	skipped int64
}

func newMemSource(data []byte) *memSource {
	return &memSource{r: bytes.NewReader(data)}
}

func (m *memSource) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

func (m *memSource) ReadFull(p []byte) error {
	_, err := io.ReadFull(m.r, p)

	return err
}

func (m *memSource) Skip(n int64) error {
	_, err := m.r.Seek(n, io.SeekCurrent)
	if err == nil {
		m.skipped += n
	}

	return err
}

// noStoredBlocks is a StoredBlockProvider that never has a local copy,
// for tests that don't exercise the dedup-against-an-installed-slot
// fast path.
type noStoredBlocks struct{}

func (noStoredBlocks) Query(hashalgo.Digest) (slot.StoredBlock, bool) { return slot.StoredBlock{}, false }
func (noStoredBlocks) HasStoredBlocks() bool                         { return false }

// singleBlockProvider is a StoredBlockProvider that serves exactly one
// block's bytes from an on-disk file, regardless of how it was named.
type singleBlockProvider struct {
	digest hashalgo.Digest
	file   string
	size   int64
}

func (p singleBlockProvider) Query(h hashalgo.Digest) (slot.StoredBlock, bool) {
	if !h.Equal(p.digest) {
		return slot.StoredBlock{}, false
	}

	return slot.StoredBlock{File: p.file, Offset: 0, Size: p.size}, true
}

func (p singleBlockProvider) HasStoredBlocks() bool { return true }

func encodeTestBundle(t *testing.T, m *manifest.Manifest, payloads map[string]io.ReaderAt) []byte {
	t.Helper()
	enc, err := encoder.New()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), m, payloads, &out))

	return out.Bytes()
}

func TestInstall_RawPayload(t *testing.T) {
	body := []byte("firmware image contents, unsplit")
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{Filename: "root.img", Delivery: manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "root-a"}},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"root.img": bytes.NewReader(body)})

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	require.NoError(t, in.Install(context.Background(), newMemSource(bundle), slots, execs, noStoredBlocks{}))

	w, ok := slots.Slot("root-a")
	require.True(t, ok)
	assert.Equal(t, body, w.Bytes())
}

func TestInstall_FixedBlockDedup(t *testing.T) {
	block := bytes.Repeat([]byte{0xab}, 4096)
	body := bytes.Repeat(block, 16)
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{
				Filename: "data.bin",
				Delivery: manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "data-a"},
				BlockEncoding: &manifest.BlockEncoding{
					Chunker:     "fixed:4096",
					Deduplicate: true,
				},
			},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"data.bin": bytes.NewReader(body)})

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	require.NoError(t, in.Install(context.Background(), newMemSource(bundle), slots, execs, noStoredBlocks{}))

	w, ok := slots.Slot("data-a")
	require.True(t, ok)
	assert.Equal(t, body, w.Bytes(), "every duplicate block is reconstructed from the cached first occurrence")
}

func TestInstall_StoredBlockProviderHitSkipsBundleBodyBytes(t *testing.T) {
	block := bytes.Repeat([]byte{0x42}, 4096)
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{
				Filename:      "data.bin",
				Delivery:      manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "data-a"},
				BlockEncoding: &manifest.BlockEncoding{Chunker: "fixed:4096"},
			},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"data.bin": bytes.NewReader(block)})

	digest, err := hashalgo.Sum(hashalgo.SHA512256, block)
	require.NoError(t, err)

	storedFile := filepath.Join(t.TempDir(), "stored-block")
	require.NoError(t, os.WriteFile(storedFile, block, 0o644))
	provider := singleBlockProvider{digest: digest, file: storedFile, size: int64(len(block))}

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	src := newMemSource(bundle)
	require.NoError(t, in.Install(context.Background(), src, slots, execs, provider))

	w, ok := slots.Slot("data-a")
	require.True(t, ok)
	assert.Equal(t, block, w.Bytes(), "the block is reconstructed from the provider, not the bundle's stored copy")
	assert.Equal(t, int64(len(block)), src.skipped, "the bundle's stored copy of the block is skipped, not read")
}

func TestInstall_NilProviderDoesNotPanicOnBlockEncodedPayload(t *testing.T) {
	block := bytes.Repeat([]byte{0x07}, 4096)
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{
				Filename:      "data.bin",
				Delivery:      manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "data-a"},
				BlockEncoding: &manifest.BlockEncoding{Chunker: "fixed:4096"},
			},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"data.bin": bytes.NewReader(block)})

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	require.NoError(t, in.Install(context.Background(), newMemSource(bundle), slots, execs, nil))

	w, ok := slots.Slot("data-a")
	require.True(t, ok)
	assert.Equal(t, block, w.Bytes())
}

func TestInstall_XZCompressedBlocksToExecuteHandler(t *testing.T) {
	body := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{
				Filename: "app.bin",
				Delivery: manifest.Delivery{Kind: manifest.DeliveryExecute, Execute: "apply-app"},
				BlockEncoding: &manifest.BlockEncoding{
					Chunker:     "casync:2048,8192,65536",
					Compression: compress.Spec{Algorithm: compress.XZ, Level: 6},
				},
			},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"app.bin": bytes.NewReader(body)})

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()
	var gotBody []byte
	execs.Register("apply-app", func(ctx context.Context, bodyPath string) error {
		b, rerr := os.ReadFile(bodyPath)
		gotBody = b

		return rerr
	})

	require.NoError(t, in.Install(context.Background(), newMemSource(bundle), slots, execs, noStoredBlocks{}))
	assert.Equal(t, body, gotBody, "the execute handler sees the fully reconstructed, decompressed body")
}

func TestInstall_DedupWithCompressionRoundTrips(t *testing.T) {
	block := bytes.Repeat([]byte("repeat-me "), 512)
	body := append(append([]byte{}, block...), block...)
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{
				Filename: "data.bin",
				Delivery: manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "data-a"},
				BlockEncoding: &manifest.BlockEncoding{
					Chunker:     fmt.Sprintf("fixed:%d", len(block)),
					Deduplicate: true,
					Compression: compress.Spec{Algorithm: compress.XZ, Level: 6},
				},
			},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"data.bin": bytes.NewReader(body)})

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	require.NoError(t, in.Install(context.Background(), newMemSource(bundle), slots, execs, noStoredBlocks{}))

	w, ok := slots.Slot("data-a")
	require.True(t, ok)
	assert.Equal(t, body, w.Bytes())
}

func TestInstall_CorruptedFileHashFailsAndAbortsSlot(t *testing.T) {
	body := []byte("firmware image contents, unsplit")
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{Filename: "root.img", Delivery: manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "root-a"}},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"root.img": bytes.NewReader(body)})

	// Flip a byte inside the payload body so file_hash no longer matches.
	corrupted := append([]byte(nil), bundle...)
	idx := bytes.LastIndex(corrupted, []byte("unsplit"))
	require.GreaterOrEqual(t, idx, 0)
	corrupted[idx] ^= 0xff

	in, err := New()
	require.NoError(t, err)

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	err = in.Install(context.Background(), newMemSource(corrupted), slots, execs, noStoredBlocks{})
	require.Error(t, err)

	w, ok := slots.Slot("root-a")
	require.True(t, ok)
	_, writeErr := w.Write([]byte("x"))
	assert.Error(t, writeErr, "slot was aborted on the file hash mismatch and refuses further writes")
}

func TestInstall_CancelledContextFails(t *testing.T) {
	body := []byte("firmware image contents, unsplit")
	m := &manifest.Manifest{
		UpdateType: manifest.Full,
		Payloads: []manifest.Payload{
			{Filename: "root.img", Delivery: manifest.Delivery{Kind: manifest.DeliverySlot, Slot: "root-a"}},
		},
	}
	bundle := encodeTestBundle(t, m, map[string]io.ReaderAt{"root.img": bytes.NewReader(body)})

	in, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slots := slot.NewMemoryRegistry()
	execs := exec.NewMapRegistry()

	err = in.Install(ctx, newMemSource(bundle), slots, execs, noStoredBlocks{})
	assert.Error(t, err)
}
