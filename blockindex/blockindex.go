// Package blockindex deduplicates content-addressed blocks during bundle
// encoding. A block is identified by its full cryptographic digest, but
// for speed the lookup table buckets by the digest's first 64 bits and
// only falls back to a full digest compare within a bucket, so two
// digests that share a prefix are still told apart.
package blockindex

import (
	"io"

	"github.com/edgeupdate/bundle/chunk"
	"github.com/edgeupdate/bundle/hashalgo"
)

type entry struct {
	digest hashalgo.Digest
	index  int
}

// Table maps block digests to the index of their first occurrence.
type Table struct {
	buckets map[uint64][]entry
	count   int
}

// NewTable creates an empty block index.
func NewTable() *Table {
	return &Table{buckets: make(map[uint64][]entry)}
}

// Lookup reports the index of a previously inserted block with the same
// digest, if any. A 64-bit prefix match with a differing full digest is
// a hash collision, not a match, and is reported as not found.
func (t *Table) Lookup(d hashalgo.Digest) (int, bool) {
	for _, e := range t.buckets[d.Prefix64()] {
		if e.digest.Equal(d) {
			return e.index, true
		}
	}

	return 0, false
}

// Insert records a block's digest at index, unless an identical digest
// is already present (in which case the existing index is returned and
// the table is unchanged). The returned bool reports whether this call
// actually added a new entry.
func (t *Table) Insert(d hashalgo.Digest, index int) (existingIndex int, inserted bool) {
	if idx, ok := t.Lookup(d); ok {
		return idx, false
	}

	prefix := d.Prefix64()
	t.buckets[prefix] = append(t.buckets[prefix], entry{digest: d, index: index})
	t.count++

	return index, true
}

// Count returns the number of distinct blocks recorded.
func (t *Table) Count() int {
	return t.count
}

// Reset clears the table, preserving bucket capacity for reuse across
// encoder runs.
func (t *Table) Reset() {
	for k := range t.buckets {
		delete(t.buckets, k)
	}
	t.count = 0
}

// Record describes one content-defined block located by Build: its
// digest, the byte offset within the scanned reader where it starts, its
// logical (pre-compression) size, and whether this is the first time its
// digest was seen. For a duplicate (IsNew false), FirstOccurrence is the
// ordinal (index into Index.Records) of the block it duplicates.
type Record struct {
	Digest          hashalgo.Digest
	Offset          int64
	Size            uint32
	IsNew           bool
	FirstOccurrence int
}

// Index is the ordered list of blocks located in one payload's logical
// byte stream, along with the Table used to detect duplicates among
// them.
type Index struct {
	Records []Record
	Table   *Table
}

// Build scans r using c's content-defined boundaries, hashing each
// located block under algo and recording its offset_in_payload and size.
// It consumes r in a single forward pass, growing a staging buffer only
// as far as the chunker needs to recognize a boundary.
func Build(r io.Reader, c chunk.Chunker, algo hashalgo.Algorithm) (*Index, error) {
	idx := &Index{Table: NewTable()}

	var (
		current []byte
		readBuf [64 * 1024]byte
		offset  int64
		eof     bool
	)

	for {
		cut, err := c.Scan(current, eof)
		if err != nil {
			return nil, err
		}

		if cut > 0 {
			block := current[:cut]

			digest, err := hashalgo.Sum(algo, block)
			if err != nil {
				return nil, err
			}

			rec := Record{Digest: digest, Offset: offset, Size: uint32(len(block))}
			if firstIdx, inserted := idx.Table.Insert(digest, len(idx.Records)); inserted {
				rec.IsNew = true
			} else {
				rec.FirstOccurrence = firstIdx
			}
			idx.Records = append(idx.Records, rec)

			offset += int64(cut)
			current = append([]byte(nil), current[cut:]...)
			c.Reset()

			continue
		}

		if eof {
			break
		}

		n, rerr := r.Read(readBuf[:])
		if n > 0 {
			current = append(current, readBuf[:n]...)
		}
		if rerr == io.EOF {
			eof = true
		} else if rerr != nil {
			return nil, rerr
		}
	}

	return idx, nil
}
