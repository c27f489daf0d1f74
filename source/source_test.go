package source

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_ReadAndSkip(t *testing.T) {
	src := NewMemorySource([]byte("hello world"))

	buf := make([]byte, 5)
	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, src.Skip(1))

	rest, err := io.ReadAll(readerFunc(src.Read))
	require.NoError(t, err)
	assert.Equal(t, "world", string(rest))
}

func TestMemorySource_SkipPastEnd(t *testing.T) {
	src := NewMemorySource([]byte("short"))
	assert.Error(t, src.Skip(100))
}

func TestFileSource_ReadAndSkip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bundle-*.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src, err := OpenFile(f.Name())
	require.NoError(t, err)
	defer src.Close()

	buf := make([]byte, 3)
	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "012", string(buf))

	require.NoError(t, src.Skip(4))

	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "789", string(buf))
}

func TestHTTPSource_RangeSkipAndSmallSkip(t *testing.T) {
	body := append(append([]byte("abcdefghij"), make([]byte, 40000)...), "0123456789"...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.WriteHeader(http.StatusOK)
			w.Write(body)

			return
		}
		var from int
		fmt.Sscanf(rng, "bytes=%d-", &from)
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[from:])
	}))
	defer srv.Close()

	src, err := NewHTTPSource(nil, srv.URL)
	require.NoError(t, err)
	defer src.Close()

	buf := make([]byte, 4)
	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "abcd", string(buf))

	require.NoError(t, src.Skip(2)) // small skip, reads through

	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "ghij", string(buf))

	require.NoError(t, src.Skip(40000)) // past skipRangeThreshold, reopens with a Range header

	require.NoError(t, src.ReadFull(buf))
	assert.Equal(t, "0123", string(buf))
}

func TestSourceHasher_HashesReadsAndSkips(t *testing.T) {
	data := []byte("the quick brown fox")
	src := NewMemorySource(data)
	hasher := NewSourceHasher(src, sha256.New())

	buf := make([]byte, 4)
	require.NoError(t, hasher.ReadFull(buf))
	require.NoError(t, hasher.Skip(6))
	rest, err := io.ReadAll(readerFunc(hasher.Read))
	require.NoError(t, err)

	want := sha256.Sum256(data)
	assert.Equal(t, want[:], hasher.Sum())
	assert.Equal(t, "brown fox", string(rest))
}

func TestSequentialMultiSource_ReadsAcrossComponents(t *testing.T) {
	multi := NewSequentialMultiSource(
		NewMemorySource([]byte("foo")),
		NewMemorySource([]byte("bar")),
	)

	got, err := io.ReadAll(readerFunc(multi.Read))
	require.NoError(t, err)
	assert.Equal(t, "foobar", string(got))
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
