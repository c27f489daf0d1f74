// Package format implements the STLV (Segment/Tag-Length-Value) wire
// envelope used by update bundles: a self-describing byte stream of
// segment-start, segment-end, and value atoms, each carrying a 32-bit
// tag whose top bit marks it optional (skippable by older readers) or
// required (a hard format error if unrecognized).
//
// The package also hosts the bundle's tag registry (tags.go), which
// assigns every field in the wire format in spec §6 a globally unique
// tag and enforces that uniqueness at package init time.
package format
