// Package bundleerr classifies every failure the encoder and installer
// can surface into a small taxonomy of kinds, each carrying the field
// chain that led to it and, for integrity failures, the expected and
// actual digests. Errors are ordinary Go errors (Unwrap-compatible, so
// errors.Is/errors.As work normally); Report renders a human-readable
// cause tree on top, for a caller that wants to print or log one.
package bundleerr

import (
	"fmt"
	"strings"

	"github.com/edgeupdate/bundle/hashalgo"
)

// Kind classifies why an operation failed, per the six-way taxonomy:
// malformed wire data, a hash mismatch, an I/O failure talking to a
// source or slot, an unavailable local resource, cooperative
// cancellation, or an unrecognized algorithm name.
type Kind int

const (
	KindFormat Kind = iota
	KindIntegrity
	KindTransport
	KindResource
	KindCancelled
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindIntegrity:
		return "integrity"
	case KindTransport:
		return "transport"
	case KindResource:
		return "resource"
	case KindCancelled:
		return "cancelled"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a classified failure. Path records the struct/segment field
// chain that led to it (outermost first), e.g.
// ["BUNDLE", "PAYLOADS", "PAYLOAD[2]", "PAYLOAD_HEADER"]. Expected and
// Actual are set only for KindIntegrity errors caused by a digest
// mismatch; Cause, if non-nil, is the underlying error this one wraps.
type Error struct {
	Kind     Kind
	Message  string
	Path     []string
	Expected *hashalgo.Digest
	Actual   *hashalgo.Digest
	Cause    error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	if len(e.Path) > 0 {
		b.WriteString(strings.Join(e.Path, "/"))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Expected != nil && e.Actual != nil {
		fmt.Fprintf(&b, " (expected %x, got %x)", e.Expected.Sum, e.Actual.Sum)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	return b.String()
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithPath returns a copy of e with prefix prepended to its Path, for a
// caller one level up the struct/segment tree to annotate where in its
// own scope the error originated.
func (e *Error) WithPath(prefix string) *Error {
	out := *e
	out.Path = append([]string{prefix}, e.Path...)

	return &out
}

// Format builds a KindFormat error: malformed STLV, unbalanced
// segments, an unknown required tag, a missing required field, a
// value-length overflow, non-UTF-8 text, or an invalid enumeration
// name.
func Format(msg string, path ...string) *Error {
	return &Error{Kind: KindFormat, Message: msg, Path: path}
}

// Integrity builds a KindIntegrity error for a hash mismatch, carrying
// both the expected and actual digests.
func Integrity(msg string, expected, actual hashalgo.Digest, path ...string) *Error {
	return &Error{Kind: KindIntegrity, Message: msg, Expected: &expected, Actual: &actual, Path: path}
}

// Transport builds a KindTransport error for an I/O failure reading a
// bundle source or writing a slot.
func Transport(msg string, cause error, path ...string) *Error {
	return &Error{Kind: KindTransport, Message: msg, Cause: cause, Path: path}
}

// Resource builds a KindResource error: an unavailable slot, a full
// disk, or a required stored-block provider that wasn't supplied.
func Resource(msg string, path ...string) *Error {
	return &Error{Kind: KindResource, Message: msg, Path: path}
}

// Cancelled builds a KindCancelled error for cooperative cancellation.
func Cancelled(path ...string) *Error {
	return &Error{Kind: KindCancelled, Message: "cancelled", Path: path}
}

// Unsupported builds a KindUnsupported error for an unrecognized hash,
// chunker, or compression algorithm name.
func Unsupported(msg string, path ...string) *Error {
	return &Error{Kind: KindUnsupported, Message: msg, Path: path}
}

// Wrap attaches cause to an otherwise-built Error, for a caller that
// constructs the classification first and learns the underlying error
// afterward (e.g. after a failed format.Reader call).
func Wrap(e *Error, cause error) *Error {
	out := *e
	out.Cause = cause

	return &out
}
