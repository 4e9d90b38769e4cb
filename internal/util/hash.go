// Package util contains internal helpers (hashing, partition sizing, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// XXHash64 hashes a string key with xxHash64.
// It is the default router hash: fast, allocation-free and stable across
// processes, so the same key maps to the same partition after a restart.
func XXHash64(key string) uint64 {
	return xxhash.Sum64String(key)
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes a string key using 64-bit FNV-1a without allocating.
func Fnv64a(key string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= fnvPrime64
	}
	return h
}
