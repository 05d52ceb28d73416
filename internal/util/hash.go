// Package util contains internal helpers (hashing, sharding, locking).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// Hash returns the sharding hash of a key.
// xxhash is fast and uniformly distributed over short strings, which is all
// bucket selection needs.
func Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// BucketIndex maps key to a bucket index given mask = buckets-1.
// The bucket count must be a power of two.
func BucketIndex(key string, mask uint32) uint32 {
	return uint32(Hash(key)) & mask
}
