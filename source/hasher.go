package source

import "hash"

// SourceHasher wraps a Source, feeding every byte that passes through
// Read or Skip into h, so the caller can obtain a running digest of
// everything consumed without a second pass over the data.
type SourceHasher struct {
	Source
	h hash.Hash
}

var _ Source = (*SourceHasher)(nil)

// NewSourceHasher wraps src, hashing bytes read or skipped through it.
func NewSourceHasher(src Source, h hash.Hash) *SourceHasher {
	return &SourceHasher{Source: src, h: h}
}

func (s *SourceHasher) Read(p []byte) (int, error) {
	n, err := s.Source.Read(p)
	if n > 0 {
		s.h.Write(p[:n])
	}

	return n, err
}

func (s *SourceHasher) ReadFull(p []byte) error {
	if err := s.Source.ReadFull(p); err != nil {
		return err
	}
	s.h.Write(p)

	return nil
}

// Skip hashes the skipped span by reading it through rather than
// delegating to the wrapped Source's own Skip, since skipped bytes still
// need to contribute to the digest.
func (s *SourceHasher) Skip(n int64) error {
	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}
		if err := s.Source.ReadFull(buf[:chunk]); err != nil {
			return err
		}
		s.h.Write(buf[:chunk])
		n -= chunk
	}

	return nil
}

// Sum returns the digest of everything read or skipped so far, without
// resetting the underlying hash.
func (s *SourceHasher) Sum() []byte {
	return s.h.Sum(nil)
}
