// Package hash provides a fast, non-cryptographic hash used for cache
// keys (not block identity, which uses hashalgo's cryptographic digests).
package hash

import "github.com/cespare/xxhash/v2"

// PathID computes the xxHash64 of path. slot.DirScanProvider passes it
// the slot file's path joined with its mtime and size, and uses the
// result as the cache key of its already-installed block index.
func PathID(path string) uint64 {
	return xxhash.Sum64String(path)
}
