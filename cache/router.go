package cache

import (
	"strings"

	"github.com/IvanBrykalov/objcache/internal/util"
)

// HashFNV is an alternative HashFunc (64-bit FNV-1a).
var HashFNV HashFunc = util.Fnv64a

// Router maps keys to partition indexes. It is immutable and safe for
// concurrent use. The same canonicalization is applied before hashing and
// before storage, so keys equal after canonicalization always meet in the
// same partition under the same map key.
type Router struct {
	n             int
	caseSensitive bool
	hash          HashFunc
}

// NewRouter returns a router over n partitions (n < 1 is treated as 1).
// A nil hash defaults to xxHash64.
func NewRouter(n int, caseSensitive bool, hash HashFunc) Router {
	if n < 1 {
		n = 1
	}
	if hash == nil {
		hash = util.XXHash64
	}
	return Router{n: n, caseSensitive: caseSensitive, hash: hash}
}

// Partitions returns the partition count.
func (r Router) Partitions() int { return r.n }

// Canonical returns the storage form of key.
func (r Router) Canonical(key string) string {
	if r.caseSensitive {
		return key
	}
	return strings.ToLower(key)
}

// PartitionOf returns the partition index of key in [0, Partitions()).
func (r Router) PartitionOf(key string) int {
	return r.indexOf(r.Canonical(key))
}

// indexOf routes an already canonical key.
func (r Router) indexOf(canonical string) int {
	return util.ShardIndex(r.hash(canonical), r.n)
}
