package format

import "errors"

// Sentinel errors for the STLV codec. Callers that need spec §7's error
// taxonomy (Format/Integrity/Transport/...) classify these with
// errors.Is and wrap them into a bundleerr.Error that carries the
// struct/segment field path; format itself stays taxonomy-agnostic since
// it has no notion of "which field" a caller is decoding.
var (
	// ErrUnbalanced is returned when a SegmentEnd does not match the tag
	// of the most recently opened, still-open SegmentStart.
	ErrUnbalanced = errors.New("format: unbalanced segment end")

	// ErrUnexpectedEOF is returned when the input ends mid-atom, or ends
	// with open segments still unclosed.
	ErrUnexpectedEOF = errors.New("format: unexpected end of stream")

	// ErrLengthOverflow is returned when a length prefix needs more than
	// 9 continuation-bearing bytes to encode.
	ErrLengthOverflow = errors.New("format: length prefix longer than 9 bytes")

	// ErrValueTooLarge is returned when a decoded Value atom's length
	// exceeds the caller-configured limit.
	ErrValueTooLarge = errors.New("format: value length exceeds configured limit")

	// ErrReservedKind is returned when an atom head's kind bits decode to
	// the reserved, unused pattern.
	ErrReservedKind = errors.New("format: reserved atom kind")

	// ErrReservedBits is returned when an atom head's reserved bits are
	// non-zero.
	ErrReservedBits = errors.New("format: reserved header bits set")

	// ErrUnknownRequiredTag is returned when a decoded segment carries a
	// value or child atom tagged required that no DefineXxx call in the
	// target type's Fields method consumed.
	ErrUnknownRequiredTag = errors.New("format: unknown required tag")
)
