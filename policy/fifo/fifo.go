// Package fifo implements an insertion-order eviction order.
package fifo

import "github.com/IvanBrykalov/objcache/policy"

type fifo struct{}

// New returns the FIFO ordering: oldest entries (by creation) go first,
// regardless of how often or how recently they were read.
func New() policy.Policy { return fifo{} }

func (fifo) Name() string { return "fifo" }

func (fifo) Less(a, b *policy.Candidate) bool {
	if a.Created != b.Created {
		return a.Created < b.Created
	}
	return a.Key < b.Key
}
