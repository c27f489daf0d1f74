package slot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/bundle/chunk"
	"github.com/edgeupdate/bundle/hashalgo"
)

func TestMemoryWriter_WriteAndFinalize(t *testing.T) {
	w := NewMemoryWriter()
	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)

	require.NoError(t, w.Finalize())
	assert.Equal(t, "hello world", string(w.Bytes()))

	_, err = w.Write([]byte("more"))
	assert.Error(t, err, "write after finalize must fail")
}

func TestMemoryWriter_AbortThenFinalizeFails(t *testing.T) {
	w := NewMemoryWriter()
	require.NoError(t, w.Abort())
	assert.Error(t, w.Finalize())
}

func TestMemoryRegistry_OpenTracksSlots(t *testing.T) {
	reg := NewMemoryRegistry()
	w, err := reg.Open("root-b")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.(*MemoryWriter).Finalize())

	got, ok := reg.Slot("root-b")
	require.True(t, ok)
	assert.Equal(t, "payload", string(got.Bytes()))
}

func TestFileWriter_WriteAtOffsetAndFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.img")
	w, err := OpenFileWriter(path)
	require.NoError(t, err)

	_, err = w.Write([]byte("AAAA"))
	require.NoError(t, err)
	_, err = w.Write([]byte("BBBB"))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data))
}

func TestFileRegistry_OpenWritesUnderDir(t *testing.T) {
	dir := t.TempDir()
	reg := NewFileRegistry(dir)

	w, err := reg.Open("root-a")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(filepath.Join(dir, "root-a"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestDirScanProvider_FindsExistingBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.img")
	content := []byte("AAAABBBBCCCCDDDD")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	provider := NewDirScanProvider(path, func() chunk.Chunker { return chunk.NewFixed(4) }, hashalgo.SHA256)

	assert.True(t, provider.HasStoredBlocks())

	digest, err := hashalgo.Sum(hashalgo.SHA256, []byte("BBBB"))
	require.NoError(t, err)

	block, ok := provider.Query(digest)
	require.True(t, ok)
	assert.Equal(t, path, block.File)
	assert.Equal(t, int64(4), block.Offset)
	assert.Equal(t, int64(4), block.Size)
}

func TestDirScanProvider_MissingBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.img")
	require.NoError(t, os.WriteFile(path, []byte("AAAABBBB"), 0o644))

	provider := NewDirScanProvider(path, func() chunk.Chunker { return chunk.NewFixed(4) }, hashalgo.SHA256)

	digest, err := hashalgo.Sum(hashalgo.SHA256, []byte("ZZZZ"))
	require.NoError(t, err)

	_, ok := provider.Query(digest)
	assert.False(t, ok)
}

func TestDirScanProvider_MissingFileHasNoStoredBlocks(t *testing.T) {
	provider := NewDirScanProvider(
		filepath.Join(t.TempDir(), "does-not-exist.img"),
		func() chunk.Chunker { return chunk.NewFixed(4) },
		hashalgo.SHA256,
	)

	assert.False(t, provider.HasStoredBlocks())
}

func TestRecordingBootFlow_RecordsInOrder(t *testing.T) {
	flow := NewRecordingBootFlow()
	require.NoError(t, flow.Committed("root-a"))
	require.NoError(t, flow.Committed("root-b"))

	assert.Equal(t, []string{"root-a", "root-b"}, flow.CommittedSlots())
}
