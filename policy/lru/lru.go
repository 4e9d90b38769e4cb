// Package lru implements the least-recently-read eviction order.
package lru

import "github.com/IvanBrykalov/objcache/policy"

type lru struct{}

// New returns the LRU ordering: entries with the oldest last read are
// evicted first, ties broken by oldest last write, then by key.
func New() policy.Policy { return lru{} }

func (lru) Name() string { return "lru" }

func (lru) Less(a, b *policy.Candidate) bool { return policy.ByRecency(a, b) }
