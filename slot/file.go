package slot

import (
	"fmt"
	"os"
)

// FileWriter writes a slot's bytes to a regular file or block device
// path opened O_RDWR. It performs no partition lookup or mount logic;
// path must already name a writable target.
type FileWriter struct {
	f         *os.File
	offset    int64
	finalized bool
}

var _ Writer = (*FileWriter)(nil)

// OpenFileWriter opens path for random-access writing, creating it if
// it doesn't already exist.
func OpenFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	return &FileWriter{f: f}, nil
}

// Write writes p at the writer's current offset and advances it. Since
// writes are always issued in sequential, idempotent order by the
// installer, re-issuing the same write after a retry lands at the same
// offset and produces identical bytes on disk.
func (w *FileWriter) Write(p []byte) (int, error) {
	if w.finalized {
		return 0, fmt.Errorf("slot: write to finalized file writer")
	}

	n, err := w.f.WriteAt(p, w.offset)
	w.offset += int64(n)

	return n, err
}

// Finalize syncs and closes the file.
func (w *FileWriter) Finalize() error {
	if err := w.f.Sync(); err != nil {
		return err
	}
	w.finalized = true

	return w.f.Close()
}

// Abort closes the file without syncing, leaving the slot's on-disk
// contents as whatever was last written.
func (w *FileWriter) Abort() error {
	return w.f.Close()
}

// FileRegistry opens slot names as files under a root directory.
type FileRegistry struct {
	dir string
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry creates a registry rooted at dir. dir is not created;
// the caller is responsible for it existing.
func NewFileRegistry(dir string) *FileRegistry {
	return &FileRegistry{dir: dir}
}

func (r *FileRegistry) Open(name string) (Writer, error) {
	return OpenFileWriter(r.dir + "/" + name)
}
