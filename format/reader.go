package format

import (
	"errors"
	"fmt"
	"io"
)

// ByteSource is the minimal read capability the decoder needs from a
// bundle source: a streaming Read that signals end-of-stream by
// returning 0 bytes (per spec §4.D), and a ReadFull that loops until the
// buffer is filled or fails with ErrUnexpectedEOF-compatible semantics.
// source.Source satisfies this interface, but format has no import
// dependency on the source package so it can be used standalone (e.g.
// directly over a bytes.Reader in tests).
type ByteSource interface {
	Read(p []byte) (int, error)
	ReadFull(p []byte) error
}

// ReaderOptions configures decode-time limits.
type ReaderOptions struct {
	// MaxValueLen bounds the length of non-PAYLOAD_DATA value atoms.
	// Zero means unbounded. Defaults to 64 KiB per spec §4.A.
	MaxValueLen uint64
}

// DefaultReaderOptions returns the spec-mandated defaults.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{MaxValueLen: 64 * 1024}
}

// Reader decodes a lazy sequence of atoms from a ByteSource in stream
// order, tracking segment nesting so unbalanced streams are rejected.
type Reader struct {
	src   ByteSource
	opts  ReaderOptions
	stack []Tag
}

// NewReader creates a Reader over src with the given options. Passing
// the zero ReaderOptions disables the value-length limit entirely; most
// callers should start from DefaultReaderOptions().
func NewReader(src ByteSource, opts ReaderOptions) *Reader {
	return &Reader{src: src, opts: opts}
}

// Depth returns the current segment nesting depth.
func (r *Reader) Depth() int {
	return len(r.stack)
}

// ReadAtomHead reads the next atom's head. The second return value is
// false only at a clean end of stream (no bytes read, and no segments
// left open); any other failure to reach a clean boundary is
// ErrUnexpectedEOF.
func (r *Reader) ReadAtomHead() (AtomHead, bool, error) {
	var headByte [1]byte

	n, err := r.src.Read(headByte[:])
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return AtomHead{}, false, err
		}
		if len(r.stack) != 0 {
			return AtomHead{}, false, fmt.Errorf("%w: %d segment(s) still open at end of stream", ErrUnexpectedEOF, len(r.stack))
		}

		return AtomHead{}, false, nil
	}

	kind, err := decodeHead(headByte[0])
	if err != nil {
		return AtomHead{}, false, err
	}

	tag, err := readTag(r.src)
	if err != nil {
		return AtomHead{}, false, fmt.Errorf("%w: reading tag: %v", ErrUnexpectedEOF, err)
	}

	switch kind {
	case SegmentStart:
		r.stack = append(r.stack, tag)

		return AtomHead{Kind: SegmentStart, Tag: tag}, true, nil

	case SegmentEnd:
		if len(r.stack) == 0 || r.stack[len(r.stack)-1] != tag {
			return AtomHead{}, false, fmt.Errorf("%w: end of %s does not match open segment", ErrUnbalanced, tag)
		}
		r.stack = r.stack[:len(r.stack)-1]

		return AtomHead{Kind: SegmentEnd, Tag: tag}, true, nil

	default: // Value
		length, err := decodeLength(r.src)
		if err != nil {
			if errors.Is(err, ErrLengthOverflow) {
				return AtomHead{}, false, err
			}

			return AtomHead{}, false, fmt.Errorf("%w: reading length of %s: %v", ErrUnexpectedEOF, tag, err)
		}

		limit := r.opts.MaxValueLen
		if tag == PayloadDataTag {
			limit = 0 // unbounded, per spec §4.A
		}
		if limit != 0 && length > limit {
			return AtomHead{}, false, fmt.Errorf("%w: %s value length %d exceeds limit %d", ErrValueTooLarge, tag, length, limit)
		}

		return AtomHead{Kind: Value, Tag: tag, Length: length}, true, nil
	}
}

// ReadValue reads the Length bytes of payload that follow a Value
// AtomHead just returned by ReadAtomHead.
func (r *Reader) ReadValue(head AtomHead) ([]byte, error) {
	buf := make([]byte, head.Length)
	if err := r.src.ReadFull(buf); err != nil {
		return nil, fmt.Errorf("%w: reading value of %s: %v", ErrUnexpectedEOF, head.Tag, err)
	}

	return buf, nil
}

// ReadRaw reads exactly len(p) bytes directly from the underlying
// source, bypassing atom framing. Used by a caller that has already
// consumed a Value atom's head and knows, from data encoded elsewhere
// in the stream (e.g. a BlockEncoding's block_sizes vector), exactly
// how many of the value's bytes make up the next sub-span it needs.
func (r *Reader) ReadRaw(p []byte) error {
	return r.src.ReadFull(p)
}

// byteSkipper is implemented by a ByteSource that can advance past bytes
// without transferring them, e.g. seeking a file or issuing a ranged
// HTTP request. source.Source satisfies it; a plain bytes.Reader-backed
// test source generally doesn't.
type byteSkipper interface {
	Skip(n int64) error
}

// SkipRaw discards n bytes directly from the underlying source, the raw
// counterpart to ReadRaw: used by a caller that already knows a raw
// span's length and doesn't need its bytes (e.g. a stored block already
// available from elsewhere). When src supports byteSkipper, no bytes are
// actually transferred; otherwise SkipRaw falls back to reading and
// discarding them in fixed-size chunks.
func (r *Reader) SkipRaw(n int64) error {
	if sk, ok := r.src.(byteSkipper); ok {
		return sk.Skip(n)
	}

	const chunkSize = 32 * 1024
	var buf [chunkSize]byte
	for remaining := n; remaining > 0; {
		m := int64(chunkSize)
		if remaining < m {
			m = remaining
		}
		if err := r.src.ReadFull(buf[:m]); err != nil {
			return err
		}
		remaining -= m
	}

	return nil
}

// SkipValue discards the Length bytes of payload that follow a Value
// AtomHead without retaining them; used when an unknown optional tag is
// encountered and the field is not needed.
func (r *Reader) SkipValue(head AtomHead) error {
	const chunk = 32 * 1024

	remaining := head.Length
	var buf [chunk]byte
	for remaining > 0 {
		n := uint64(chunk)
		if remaining < n {
			n = remaining
		}
		if err := r.src.ReadFull(buf[:n]); err != nil {
			return fmt.Errorf("%w: skipping value of %s: %v", ErrUnexpectedEOF, head.Tag, err)
		}
		remaining -= n
	}

	return nil
}

// SkipSegment discards an entire balanced sub-segment whose SegmentStart
// was just returned by ReadAtomHead, including nested segments and
// values, stopping after the matching SegmentEnd.
func (r *Reader) SkipSegment(start AtomHead) error {
	depth := 1
	for depth > 0 {
		head, ok, err := r.ReadAtomHead()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: stream ended while skipping %s", ErrUnexpectedEOF, start.Tag)
		}

		switch head.Kind {
		case SegmentStart:
			depth++
		case SegmentEnd:
			depth--
		case Value:
			if err := r.SkipValue(head); err != nil {
				return err
			}
		}
	}

	return nil
}
