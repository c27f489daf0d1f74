package format

import (
	"fmt"
	"io"

	"github.com/edgeupdate/bundle/internal/pool"
)

// Writer encodes atoms onto an underlying io.Writer, tracking the open
// segment stack so that WriteSegmentEnd can catch a caller bug (closing
// the wrong segment) before it corrupts the stream.
type Writer struct {
	w       io.Writer
	stack   []Tag
	scratch *pool.ByteBuffer
}

// NewWriter creates a Writer that appends atoms to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, scratch: pool.GetBlobBuffer()}
}

// Release returns the writer's scratch buffer to its pool. Safe to call
// more than once; the Writer must not be used afterward.
func (w *Writer) Release() {
	if w.scratch != nil {
		pool.PutBlobBuffer(w.scratch)
		w.scratch = nil
	}
}

// Depth returns the current segment nesting depth.
func (w *Writer) Depth() int {
	return len(w.stack)
}

// WriteSegmentStart opens a nested segment tagged tag.
func (w *Writer) WriteSegmentStart(tag Tag) error {
	if err := w.writeHead(SegmentStart, tag); err != nil {
		return err
	}
	w.stack = append(w.stack, tag)

	return nil
}

// WriteSegmentEnd closes the most recently opened segment, which must be
// tagged tag.
func (w *Writer) WriteSegmentEnd(tag Tag) error {
	if len(w.stack) == 0 || w.stack[len(w.stack)-1] != tag {
		return fmt.Errorf("%w: closing %s with no matching open segment", ErrUnbalanced, tag)
	}
	if err := w.writeHead(SegmentEnd, tag); err != nil {
		return err
	}
	w.stack = w.stack[:len(w.stack)-1]

	return nil
}

// WriteValue writes a complete leaf value atom.
func (w *Writer) WriteValue(tag Tag, data []byte) error {
	w.scratch.Reset()
	buf := w.scratch.Bytes()
	buf = append(buf, encodeHead(Value))
	buf = putTag(buf, tag)
	buf = appendLength(buf, uint64(len(data)))

	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.w.Write(data); err != nil {
			return err
		}
	}

	return nil
}

// RawWrite writes p directly to the underlying writer, bypassing atom
// framing. Used by callers (the encoder) that have already written a
// value's header via WriteValueHeader and need to stream its body from
// a separate source (e.g. a temp file) without buffering it in memory.
func (w *Writer) RawWrite(p []byte) (int, error) {
	return w.w.Write(p)
}

// WriteValueHeader writes just the head of a Value atom of the given
// length, letting the caller stream the payload bytes separately (used
// by the encoder for PAYLOAD_DATA, whose body may be many blocks).
func (w *Writer) WriteValueHeader(tag Tag, length uint64) error {
	w.scratch.Reset()
	buf := w.scratch.Bytes()
	buf = append(buf, encodeHead(Value))
	buf = putTag(buf, tag)
	buf = appendLength(buf, length)

	_, err := w.w.Write(buf)

	return err
}

func (w *Writer) writeHead(kind AtomKind, tag Tag) error {
	w.scratch.Reset()
	buf := w.scratch.Bytes()
	buf = append(buf, encodeHead(kind))
	buf = putTag(buf, tag)
	_, err := w.w.Write(buf)

	return err
}
