// Package slot defines the consumer-facing contracts an installer uses
// to write a payload's reconstructed bytes onto a device: an open/
// write/finalize/abort Writer, a Registry mapping slot names to
// Writers, a StoredBlockProvider over an already-installed slot for
// dedup reuse, and a BootFlow notified once a slot install completes.
//
// Boot-loader integration, partition layout, and device mounting are
// explicitly out of scope; the concrete Writer implementations here
// (MemoryWriter, FileWriter) only ever touch a plain file or buffer.
package slot

import "github.com/edgeupdate/bundle/hashalgo"

// Writer receives a slot's reconstructed bytes in strictly sequential
// order. Write must be idempotent under retry at the same byte offset
// within one install: re-writing identical bytes at a position already
// written must succeed and leave the slot unchanged.
type Writer interface {
	Write(p []byte) (int, error)

	// Finalize commits the slot's contents. After Finalize returns nil,
	// the slot is a candidate for a BootFlow switch.
	Finalize() error

	// Abort discards any partially-written state, leaving the slot in
	// whatever condition it was in before this Writer was opened (or
	// explicitly marked incomplete, if that isn't possible).
	Abort() error
}

// Registry opens a Writer for a named slot, as declared by a payload's
// delivery.slot manifest field.
type Registry interface {
	Open(name string) (Writer, error)
}

// StoredBlock locates a previously-installed block's bytes, found by a
// StoredBlockProvider.Query.
type StoredBlock struct {
	File   string
	Offset int64
	Size   int64
}

// StoredBlockProvider is a read-only, concurrency-safe view over an
// already-installed slot, used to satisfy a dedup install without
// re-downloading a block whose hash is already present on disk.
type StoredBlockProvider interface {
	Query(h hashalgo.Digest) (StoredBlock, bool)
	HasStoredBlocks() bool
}

// BootFlow is notified once a slot's install completes successfully.
// Install never calls BootFlow itself on failure; a slot left
// incomplete by a failed or cancelled install is simply never reported.
type BootFlow interface {
	// Committed reports that slot was finalized successfully and is a
	// candidate for the next boot. BootFlow decides independently
	// whether and when to actually switch the active boot target.
	Committed(slot string) error
}
