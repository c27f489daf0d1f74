// Package schema gives the wire types in the wire package a single place
// to declare their field layout once and have that declaration drive
// both encoding and decoding, mirroring the encoder/decoder-union Codec
// idiom from ssz-style generic serializers. Unlike a positional format,
// STLV segments are self-describing (every field carries its own tag),
// so decoding first buffers a segment's atoms into a Segment value and
// then replays the same Define calls as lookups against it.
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/edgeupdate/bundle/format"
)

// Type is implemented by any struct whose wire layout is expressed as
// Codec.DefineXxx calls in a single Fields method.
type Type interface {
	Fields(c *Codec)
}

// Segment is a fully buffered, decoded view of one STLV segment: an
// ordered list of child atoms, each either a leaf value or another
// nested Segment.
type Segment struct {
	Tag      format.Tag
	values   map[format.Tag][][]byte
	children map[format.Tag][]*Segment
	order    []format.Tag // first-seen tag order, reserved for future diagnostics
}

// ParseSegment decodes the body of an already-opened segment (whose
// SegmentStart was just consumed by the caller) into a Segment tree,
// stopping at the matching SegmentEnd. src must be the same reader the
// SegmentStart came from.
func ParseSegment(r *format.Reader, tag format.Tag) (*Segment, error) {
	seg := &Segment{
		Tag:      tag,
		values:   make(map[format.Tag][][]byte),
		children: make(map[format.Tag][]*Segment),
	}

	for {
		head, ok, err := r.ReadAtomHead()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: stream ended inside %s", format.ErrUnexpectedEOF, tag)
		}

		switch head.Kind {
		case format.SegmentEnd:
			return seg, nil

		case format.SegmentStart:
			child, err := ParseSegment(r, head.Tag)
			if err != nil {
				return nil, err
			}
			seg.children[head.Tag] = append(seg.children[head.Tag], child)
			seg.order = append(seg.order, head.Tag)

		case format.Value:
			val, err := r.ReadValue(head)
			if err != nil {
				return nil, err
			}
			seg.values[head.Tag] = append(seg.values[head.Tag], val)
			seg.order = append(seg.order, head.Tag)
		}
	}
}

// value returns the first value atom recorded under tag, if any.
func (s *Segment) value(tag format.Tag) ([]byte, bool) {
	vs, ok := s.values[tag]
	if !ok || len(vs) == 0 {
		return nil, false
	}

	return vs[0], true
}

// child returns every nested segment recorded under tag, in stream order.
func (s *Segment) child(tag format.Tag) ([]*Segment, bool) {
	cs, ok := s.children[tag]

	return cs, ok
}

// unknownRequired returns the first tag buffered in s that is marked
// required but is absent from consumed, or false if every required tag
// present in s was looked up by some DefineXxx call.
func (s *Segment) unknownRequired(consumed map[format.Tag]bool) (format.Tag, bool) {
	for tag := range s.values {
		if tag.IsRequired() && !consumed[tag] {
			return tag, true
		}
	}
	for tag := range s.children {
		if tag.IsRequired() && !consumed[tag] {
			return tag, true
		}
	}

	return 0, false
}

// Codec is either an encoder (backed by a format.Writer, writing fields
// in Define-call order) or a decoder (backed by a parsed Segment, fields
// looked up by tag regardless of call order). Exactly one of the two is
// non-nil at a time.
type Codec struct {
	w        *format.Writer
	seg      *Segment
	err      error
	consumed map[format.Tag]bool // decode mode only: tags looked up by a DefineXxx call
}

// NewEncoder creates a Codec that writes fields onto w.
func NewEncoder(w *format.Writer) *Codec {
	return &Codec{w: w}
}

// NewDecoder creates a Codec that reads fields out of seg. Prefer Decode
// over calling this directly: NewDecoder alone does not check for
// unknown required tags left over in seg once Fields returns.
func NewDecoder(seg *Segment) *Codec {
	return &Codec{seg: seg, consumed: make(map[format.Tag]bool)}
}

// Encoding reports whether c is in encode mode.
func (c *Codec) Encoding() bool {
	return c.w != nil
}

// markConsumed records that tag was looked up during decoding, whether or
// not it was actually present in the segment.
func (c *Codec) markConsumed(tag format.Tag) {
	if c.consumed != nil {
		c.consumed[tag] = true
	}
}

// checkUnknownRequired fails decoding if seg still carries a
// required-tagged atom that no DefineXxx call in this Fields pass
// consumed, per spec §4.C's unknown-required-tag hard stop.
func (c *Codec) checkUnknownRequired() {
	if c.seg == nil || c.err != nil {
		return
	}
	if tag, found := c.seg.unknownRequired(c.consumed); found {
		c.setErr(fmt.Errorf("%w: %s in %s", format.ErrUnknownRequiredTag, tag, c.seg.Tag))
	}
}

// EncodeSegment runs v.Fields inside a newly opened segment tagged tag.
func EncodeSegment(c *Codec, tag format.Tag, v Type) error {
	if err := c.w.WriteSegmentStart(tag); err != nil {
		return err
	}
	v.Fields(c)
	if c.err != nil {
		return c.err
	}

	return c.w.WriteSegmentEnd(tag)
}

// Decode runs v.Fields against seg in decode mode and, once Fields
// returns, rejects any atom in seg tagged required that v's Fields method
// never looked up via a DefineXxx call — an implementation encountering
// such a tag has no way to know whether skipping it silently changes the
// decoded value, so spec §4.C requires treating it as a hard format
// error rather than the "ignore and carry on" treatment unknown optional
// tags get. Every top-level and nested segment decode in this package
// goes through Decode so that hard stop is never accidentally bypassed.
func Decode(seg *Segment, v Type) error {
	c := NewDecoder(seg)
	v.Fields(c)
	if c.err != nil {
		return c.err
	}
	c.checkUnknownRequired()

	return c.err
}

// Define calls are meant to read as a flat declarative list rather than
// each threading an error return through the caller, so a failing write
// or a missing required field is stashed here and surfaced once by
// EncodeSegment/DefineSegment/the top-level caller.
func (c *Codec) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Fail records a custom validation error from within a Fields method,
// for checks a DefineXxx call can't express (e.g. a mutually exclusive
// group of fields where exactly one must be set).
func (c *Codec) Fail(err error) {
	c.setErr(err)
}

// Err returns the first error recorded on c, if any.
func (c *Codec) Err() error {
	return c.err
}

// DefineUint64 declares a required or optional fixed-width uint64 field.
func DefineUint64(c *Codec, tag format.Tag, v *uint64) {
	if c.Encoding() {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], *v)
		c.setErr(c.w.WriteValue(tag, buf[:]))

		return
	}

	c.markConsumed(tag)
	raw, ok := c.seg.value(tag)
	if !ok {
		if tag.IsRequired() {
			c.setErr(fmt.Errorf("%w: missing required field %s", format.ErrUnexpectedEOF, tag))
		}

		return
	}
	if len(raw) != 8 {
		c.setErr(fmt.Errorf("schema: field %s: want 8 bytes, got %d", tag, len(raw)))

		return
	}
	*v = binary.BigEndian.Uint64(raw)
}

// DefineUint32 declares a required or optional fixed-width uint32 field.
func DefineUint32(c *Codec, tag format.Tag, v *uint32) {
	if c.Encoding() {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], *v)
		c.setErr(c.w.WriteValue(tag, buf[:]))

		return
	}

	c.markConsumed(tag)
	raw, ok := c.seg.value(tag)
	if !ok {
		if tag.IsRequired() {
			c.setErr(fmt.Errorf("%w: missing required field %s", format.ErrUnexpectedEOF, tag))
		}

		return
	}
	if len(raw) != 4 {
		c.setErr(fmt.Errorf("schema: field %s: want 4 bytes, got %d", tag, len(raw)))

		return
	}
	*v = binary.BigEndian.Uint32(raw)
}

// DefineBytes declares a required or optional variable-length byte
// string field. An optional field whose value is empty is not written.
func DefineBytes(c *Codec, tag format.Tag, v *[]byte) {
	if c.Encoding() {
		if len(*v) == 0 && tag.IsOptional() {
			return
		}
		c.setErr(c.w.WriteValue(tag, *v))

		return
	}

	c.markConsumed(tag)
	raw, ok := c.seg.value(tag)
	if !ok {
		if tag.IsRequired() {
			c.setErr(fmt.Errorf("%w: missing required field %s", format.ErrUnexpectedEOF, tag))
		}

		return
	}
	*v = raw
}

// DefineString declares a required or optional UTF-8 string field.
func DefineString(c *Codec, tag format.Tag, v *string) {
	var raw []byte
	if c.Encoding() {
		raw = []byte(*v)
		DefineBytes(c, tag, &raw)

		return
	}

	DefineBytes(c, tag, &raw)
	*v = string(raw)
}

// DefineSegment declares a required or optional nested object field.
func DefineSegment[T interface {
	*U
	Type
}, U any](c *Codec, tag format.Tag, v *T) {
	if c.Encoding() {
		if *v == nil {
			if tag.IsRequired() {
				c.setErr(fmt.Errorf("schema: nil value for required field %s", tag))
			}

			return
		}
		c.setErr(EncodeSegment(c, tag, *v))

		return
	}

	c.markConsumed(tag)
	children, ok := c.seg.child(tag)
	if !ok || len(children) == 0 {
		if tag.IsRequired() {
			c.setErr(fmt.Errorf("%w: missing required field %s", format.ErrUnexpectedEOF, tag))
		}

		return
	}

	obj := new(U)
	if err := Decode(children[0], T(obj)); err != nil {
		c.setErr(err)

		return
	}
	*v = obj
}

// DefineOneOfSegment declares one member of a mutually exclusive group of
// nested object fields, such as a delivery target that is either a slot
// name or an execute handler. Unlike DefineSegment, a missing segment is
// never an error here regardless of tag's required/optional bit — that
// bit still governs whether an implementation that has never heard of
// tag must fail if it's present, but presence itself is decided by the
// group, not by any one member. The caller is responsible for checking
// that exactly one member of the group ended up set after decoding.
func DefineOneOfSegment[T interface {
	*U
	Type
}, U any](c *Codec, tag format.Tag, v *T) {
	if c.Encoding() {
		if *v == nil {
			return
		}
		c.setErr(EncodeSegment(c, tag, *v))

		return
	}

	c.markConsumed(tag)
	children, ok := c.seg.child(tag)
	if !ok || len(children) == 0 {
		return
	}

	obj := new(U)
	if err := Decode(children[0], T(obj)); err != nil {
		c.setErr(err)

		return
	}
	*v = obj
}

// DefineSliceOfSegments declares a repeated nested object field.
func DefineSliceOfSegments[T interface {
	*U
	Type
}, U any](c *Codec, tag format.Tag, v *[]T) {
	if c.Encoding() {
		for _, item := range *v {
			if err := EncodeSegment(c, tag, item); err != nil {
				c.setErr(err)

				return
			}
		}

		return
	}

	c.markConsumed(tag)
	children, _ := c.seg.child(tag)
	out := make([]T, 0, len(children))
	for _, child := range children {
		obj := new(U)
		if err := Decode(child, T(obj)); err != nil {
			c.setErr(err)

			return
		}
		out = append(out, obj)
	}
	*v = out
}
