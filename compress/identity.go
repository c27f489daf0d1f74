package compress

import "io"

// IdentityCompressor is the "none" algorithm: it returns its input
// unchanged, with no allocation. Encoders select it when a payload is
// already incompressible (media, ciphertext) or when compression would
// cost more in CPU than it saves in transfer size.
type IdentityCompressor struct{}

var _ Codec = (*IdentityCompressor)(nil)

// NewIdentityCompressor returns the identity Codec.
func NewIdentityCompressor() IdentityCompressor {
	return IdentityCompressor{}
}

func (c IdentityCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c IdentityCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

type identityStreamCodec struct{}

var _ StreamCodec = identityStreamCodec{}

func (identityStreamCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (identityStreamCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
