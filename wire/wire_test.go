package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeupdate/bundle/format"
	"github.com/edgeupdate/bundle/schema"
)

type byteSourceReader struct {
	r *bytes.Reader
}

func (b *byteSourceReader) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *byteSourceReader) ReadFull(p []byte) error {
	_, err := io.ReadFull(b.r, p)

	return err
}

func encodeSegment(t *testing.T, tag format.Tag, v schema.Type) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := format.NewWriter(&buf)
	defer w.Release()

	require.NoError(t, w.WriteSegmentStart(tag))
	c := schema.NewEncoder(w)
	v.Fields(c)
	require.NoError(t, c.Err())
	require.NoError(t, w.WriteSegmentEnd(tag))

	return buf.Bytes()
}

func decodeSegment(t *testing.T, data []byte, tag format.Tag, v schema.Type) {
	t.Helper()
	src := &byteSourceReader{r: bytes.NewReader(data)}
	r := format.NewReader(src, format.DefaultReaderOptions())

	head, ok, err := r.ReadAtomHead()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tag, head.Tag)

	seg, err := schema.ParseSegment(r, head.Tag)
	require.NoError(t, err)

	c := schema.NewDecoder(seg)
	v.Fields(c)
	require.NoError(t, c.Err())
}

func TestPayloadEntry_SlotRoundTrip(t *testing.T) {
	original := &PayloadEntry{
		Kind:       DeliverySlot,
		SlotName:   "root-a",
		HeaderHash: []byte{0x01, 0x02},
		FileHash:   []byte{0x03, 0x04},
	}

	data := encodeSegment(t, format.PayloadEntryTag, original)

	decoded := &PayloadEntry{}
	decodeSegment(t, data, format.PayloadEntryTag, decoded)

	assert.Equal(t, DeliverySlot, decoded.Kind)
	assert.Equal(t, "root-a", decoded.SlotName)
	assert.Empty(t, decoded.ExecHandler)
	assert.Equal(t, original.HeaderHash, decoded.HeaderHash)
	assert.Equal(t, original.FileHash, decoded.FileHash)
}

func TestPayloadEntry_ExecuteRoundTrip(t *testing.T) {
	original := &PayloadEntry{
		Kind:        DeliveryExecute,
		ExecHandler: "apply-firmware",
		HeaderHash:  []byte{0xaa},
		FileHash:    []byte{0xbb},
	}

	data := encodeSegment(t, format.PayloadEntryTag, original)

	decoded := &PayloadEntry{}
	decodeSegment(t, data, format.PayloadEntryTag, decoded)

	assert.Equal(t, DeliveryExecute, decoded.Kind)
	assert.Equal(t, "apply-firmware", decoded.ExecHandler)
	assert.Empty(t, decoded.SlotName)
}

func TestPayloadEntry_EncodeFailsWithNoVariantSet(t *testing.T) {
	var buf bytes.Buffer
	w := format.NewWriter(&buf)
	defer w.Release()

	require.NoError(t, w.WriteSegmentStart(format.PayloadEntryTag))
	c := schema.NewEncoder(w)
	(&PayloadEntry{}).Fields(c)
	assert.Error(t, c.Err())
}

func TestPayloadEntry_DecodeFailsWithNoVariantPresent(t *testing.T) {
	var buf bytes.Buffer
	w := format.NewWriter(&buf)
	defer w.Release()
	require.NoError(t, w.WriteSegmentStart(format.PayloadEntryTag))
	require.NoError(t, w.WriteValue(format.PayloadEntryHeaderHashTag, []byte{0x01}))
	require.NoError(t, w.WriteValue(format.PayloadEntryFileHashTag, []byte{0x02}))
	require.NoError(t, w.WriteSegmentEnd(format.PayloadEntryTag))

	decoded := &PayloadEntry{}
	decodeSegmentExpectErr(t, buf.Bytes(), format.PayloadEntryTag, decoded)
}

func decodeSegmentExpectErr(t *testing.T, data []byte, tag format.Tag, v schema.Type) {
	t.Helper()
	src := &byteSourceReader{r: bytes.NewReader(data)}
	r := format.NewReader(src, format.DefaultReaderOptions())

	head, ok, err := r.ReadAtomHead()
	require.NoError(t, err)
	require.True(t, ok)

	seg, err := schema.ParseSegment(r, head.Tag)
	require.NoError(t, err)

	c := schema.NewDecoder(seg)
	v.Fields(c)
	assert.Error(t, c.Err())
}

func TestBundleHeader_RoundTrip(t *testing.T) {
	original := &BundleHeader{
		Manifest:      []byte(`{"update_type":"full"}`),
		HashAlgorithm: "sha256",
		Payloads: []*PayloadEntry{
			{Kind: DeliverySlot, SlotName: "root-a", HeaderHash: []byte{1}, FileHash: []byte{2}},
			{Kind: DeliveryExecute, ExecHandler: "post-install", HeaderHash: []byte{3}, FileHash: []byte{4}},
		},
	}

	data := encodeSegment(t, format.BundleHeaderTag, original)

	decoded := &BundleHeader{}
	decodeSegment(t, data, format.BundleHeaderTag, decoded)

	assert.Equal(t, original.Manifest, decoded.Manifest)
	assert.Equal(t, original.HashAlgorithm, decoded.HashAlgorithm)
	require.Len(t, decoded.Payloads, 2)
	assert.Equal(t, "root-a", decoded.Payloads[0].SlotName)
	assert.Equal(t, "post-install", decoded.Payloads[1].ExecHandler)
}

func TestBundleHeader_NoManifestIsOptional(t *testing.T) {
	original := &BundleHeader{
		HashAlgorithm: "sha512-256",
		Payloads: []*PayloadEntry{
			{Kind: DeliverySlot, SlotName: "root-b", HeaderHash: []byte{1}, FileHash: []byte{2}},
		},
	}

	data := encodeSegment(t, format.BundleHeaderTag, original)

	decoded := &BundleHeader{}
	decodeSegment(t, data, format.BundleHeaderTag, decoded)

	assert.Empty(t, decoded.Manifest)
	assert.Equal(t, "sha512-256", decoded.HashAlgorithm)
}

func TestPayloadHeader_WithBlockEncoding(t *testing.T) {
	original := &PayloadHeader{
		BlockEncoding: &BlockEncoding{
			Chunker:          "fixed:65536",
			HashAlgorithm:    "sha256",
			Deduplicated:     true,
			Compression:      "xz:6",
			BlockHashes:      []byte{0x01, 0x02, 0x03, 0x04},
			BlockSizes:       []byte{0x00, 0x00, 0x01, 0x00},
			TotalLogicalSize: 1048576,
		},
	}

	data := encodeSegment(t, format.PayloadHeaderTag, original)

	decoded := &PayloadHeader{}
	decodeSegment(t, data, format.PayloadHeaderTag, decoded)

	require.NotNil(t, decoded.BlockEncoding)
	assert.Equal(t, "fixed:65536", decoded.BlockEncoding.Chunker)
	assert.True(t, decoded.BlockEncoding.Deduplicated)
	assert.Equal(t, "xz:6", decoded.BlockEncoding.Compression)
	assert.Equal(t, uint64(1048576), decoded.BlockEncoding.TotalLogicalSize)
}

func TestPayloadHeader_WithoutBlockEncoding(t *testing.T) {
	original := &PayloadHeader{}

	data := encodeSegment(t, format.PayloadHeaderTag, original)

	decoded := &PayloadHeader{}
	decodeSegment(t, data, format.PayloadHeaderTag, decoded)

	assert.Nil(t, decoded.BlockEncoding)
}

func TestBlockEncoding_NoCompressionOmitsField(t *testing.T) {
	original := &BlockEncoding{
		Chunker:       "casync:2048,8192,65536",
		HashAlgorithm: "sha256",
		Deduplicated:  false,
		BlockHashes:   []byte{0xff},
	}

	data := encodeSegment(t, format.PayloadHeaderBlockEncodingTag, original)

	decoded := &BlockEncoding{}
	decodeSegment(t, data, format.PayloadHeaderBlockEncodingTag, decoded)

	assert.Empty(t, decoded.Compression)
	assert.False(t, decoded.Deduplicated)
	assert.Equal(t, uint64(0), decoded.TotalLogicalSize)
}
