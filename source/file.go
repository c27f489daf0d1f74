package source

import (
	"bufio"
	"os"
)

// FileSource reads a bundle from a local file through a buffered reader.
type FileSource struct {
	f *os.File
	r *bufio.Reader
}

var _ Source = (*FileSource)(nil)

// OpenFile opens path for reading and wraps it as a FileSource.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &FileSource{f: f, r: bufio.NewReaderSize(f, 64*1024)}, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *FileSource) ReadFull(p []byte) error {
	return readFull(s.r, p)
}

// Skip discards n bytes by reading and discarding them through the
// buffered reader rather than seeking the underlying file, so bytes
// already buffered ahead of the file's actual offset aren't lost.
func (s *FileSource) Skip(n int64) error {
	_, err := s.r.Discard(int(n))

	return err
}

// Close releases the underlying file descriptor.
func (s *FileSource) Close() error {
	return s.f.Close()
}
