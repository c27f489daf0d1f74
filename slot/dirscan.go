package slot

import (
	"fmt"
	"os"
	"sync"

	"github.com/edgeupdate/bundle/chunk"
	"github.com/edgeupdate/bundle/hashalgo"
	internalhash "github.com/edgeupdate/bundle/internal/hash"
)

type storedEntry struct {
	digest hashalgo.Digest
	block  StoredBlock
}

// dirscanCache memoizes a file's block index across repeated
// DirScanProvider constructions against the same unchanged slot, keyed
// by path plus mtime so a changed file invalidates its own entry.
var dirscanCache sync.Map // map[uint64][]storedEntry

// DirScanProvider is a StoredBlockProvider over an already-installed
// slot file: it chunks and hashes the file with the same chunker and
// hash algorithm the incoming bundle declares, lazily building a
// hash-to-location index on first Query.
type DirScanProvider struct {
	path       string
	newChunker func() chunk.Chunker
	hashAlg    hashalgo.Algorithm

	once    sync.Once
	scanErr error
	buckets map[uint64][]storedEntry
}

var _ StoredBlockProvider = (*DirScanProvider)(nil)

// NewDirScanProvider builds a provider over path. newChunker must
// return a fresh, zero-state Chunker each call, since scanning reuses
// one per block boundary.
func NewDirScanProvider(path string, newChunker func() chunk.Chunker, hashAlg hashalgo.Algorithm) *DirScanProvider {
	return &DirScanProvider{path: path, newChunker: newChunker, hashAlg: hashAlg}
}

func (p *DirScanProvider) ensureScanned() {
	p.once.Do(func() {
		info, err := os.Stat(p.path)
		if err != nil {
			p.scanErr = err

			return
		}

		cacheKey := internalhash.PathID(fmt.Sprintf("%s@%d:%d", p.path, info.ModTime().UnixNano(), info.Size()))
		if cached, ok := dirscanCache.Load(cacheKey); ok {
			p.buckets = cached.(map[uint64][]storedEntry)

			return
		}

		buckets, err := p.scan()
		if err != nil {
			p.scanErr = err

			return
		}
		p.buckets = buckets
		dirscanCache.Store(cacheKey, buckets)
	})
}

func (p *DirScanProvider) scan() (map[uint64][]storedEntry, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}

	buckets := make(map[uint64][]storedEntry)
	var offset int64
	buf := data
	for len(buf) > 0 {
		c := p.newChunker()
		cut, err := c.Scan(buf, true)
		if err != nil {
			return nil, err
		}
		if cut == 0 {
			break
		}

		block := buf[:cut]
		digest, err := hashalgo.Sum(p.hashAlg, block)
		if err != nil {
			return nil, err
		}

		entry := storedEntry{
			digest: digest,
			block:  StoredBlock{File: p.path, Offset: offset, Size: int64(cut)},
		}
		prefix := digest.Prefix64()
		buckets[prefix] = append(buckets[prefix], entry)

		offset += int64(cut)
		buf = buf[cut:]
	}

	return buckets, nil
}

// Query reports the location of a previously-installed block with
// digest h, if this slot's scan found one.
func (p *DirScanProvider) Query(h hashalgo.Digest) (StoredBlock, bool) {
	p.ensureScanned()
	if p.scanErr != nil {
		return StoredBlock{}, false
	}

	for _, e := range p.buckets[h.Prefix64()] {
		if e.digest.Equal(h) {
			return e.block, true
		}
	}

	return StoredBlock{}, false
}

// HasStoredBlocks reports whether the scan found any blocks at all.
func (p *DirScanProvider) HasStoredBlocks() bool {
	p.ensureScanned()

	return len(p.buckets) > 0
}
