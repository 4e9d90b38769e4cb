// Package lfu implements a least-frequently-read eviction order.
package lfu

import "github.com/IvanBrykalov/objcache/policy"

type lfu struct{}

// New returns the LFU ordering: entries with the fewest reads are evicted
// first. Equal read counts fall back to the LRU order, so a cold entry that
// was never read loses to an equally cold but older one.
func New() policy.Policy { return lfu{} }

func (lfu) Name() string { return "lfu" }

func (lfu) Less(a, b *policy.Candidate) bool {
	if a.Reads != b.Reads {
		return a.Reads < b.Reads
	}
	return policy.ByRecency(a, b)
}
