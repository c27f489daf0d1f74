package compress

import (
	"io"

	"github.com/klauspost/compress/s2"
)

// S2Compressor is a Snappy-compatible algorithm tuned for very high
// throughput at the cost of ratio, suited to block bodies where decode
// speed on the installer side matters more than transfer size.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor creates a new S2 compressor with default options.
func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}

type s2StreamCodec struct{}

var _ StreamCodec = s2StreamCodec{}

func (s2StreamCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(w), nil
}

func (s2StreamCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}
