package format

import "encoding/binary"

// head byte layout: the top two bits select the atom kind, the bottom six
// bits are reserved and must be zero. This is the concrete, internally
// consistent choice for the "reserved length encoding" spec §3 requires
// to distinguish segment markers from values; spec §6 explicitly leaves
// the exact bit layout implementation-defined as long as encoder and
// decoder agree, which this package does by construction.
const (
	kindValue        = 0
	kindSegmentStart = 1
	kindSegmentEnd   = 2
	kindShift        = 6
	kindMask         = 0xC0
)

func encodeHead(kind AtomKind) byte {
	return byte(kind) << kindShift
}

func decodeHead(b byte) (AtomKind, error) {
	if b&^byte(kindMask) != 0 {
		return 0, ErrReservedBits
	}

	switch b >> kindShift {
	case kindValue:
		return Value, nil
	case kindSegmentStart:
		return SegmentStart, nil
	case kindSegmentEnd:
		return SegmentEnd, nil
	default:
		return 0, ErrReservedKind
	}
}

// maxLengthBytes is the largest number of continuation-bearing bytes a
// length prefix may occupy, per spec §3/§4.A.
const maxLengthBytes = 9

// lengthSize returns the number of 7-bit groups needed to encode v,
// most-significant group first.
func lengthSize(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}

	return n
}

// appendLength appends the big-endian, continuation-bit varint encoding
// of v to dst and returns the extended slice.
func appendLength(dst []byte, v uint64) []byte {
	n := lengthSize(v)
	for i := n - 1; i >= 0; i-- {
		b := byte((v >> (7 * uint(i))) & 0x7f)
		if i != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}

	return dst
}

// decodeLength reads a big-endian, continuation-bit varint from src, one
// byte at a time, stopping at the first byte without the continuation
// bit. It fails with ErrLengthOverflow past maxLengthBytes.
func decodeLength(src ByteSource) (uint64, error) {
	var (
		v   uint64
		buf [1]byte
	)

	for i := 0; i < maxLengthBytes; i++ {
		if err := src.ReadFull(buf[:]); err != nil {
			return 0, err
		}

		b := buf[0]
		v = (v << 7) | uint64(b&0x7f)

		if b&0x80 == 0 {
			return v, nil
		}

		if i == maxLengthBytes-1 {
			return 0, ErrLengthOverflow
		}
	}

	return v, nil
}

func putTag(dst []byte, tag Tag) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(tag))

	return append(dst, buf[:]...)
}

func readTag(src ByteSource) (Tag, error) {
	var buf [4]byte
	if err := src.ReadFull(buf[:]); err != nil {
		return 0, err
	}

	return Tag(binary.BigEndian.Uint32(buf[:])), nil
}
