package util

import "runtime"

// MaxPartitions caps the automatic partition count.
const MaxPartitions = 256

// ReasonableShardCount picks a practical default partition count based on CPU
// parallelism. Heuristic: nextPow2(2*GOMAXPROCS), clamped to [1..MaxPartitions].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n < 1 {
		n = 1
	}
	if n > MaxPartitions {
		n = MaxPartitions
	}
	return n
}

// ShardIndex maps a 64-bit hash to a partition index in [0, shards).
// Uses a mask when the count is a power of two, modulo otherwise.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// SplitBudget divides a total byte budget across n partitions. The shares
// add up to exactly total: every partition gets total/n and the first
// total%n partitions one byte more. A zero total stays zero (unbounded).
// When total < n every partition still gets 1 byte, since a zero share
// would read as unbounded.
func SplitBudget(total uint64, n int) []uint64 {
	if n < 1 {
		n = 1
	}
	shares := make([]uint64, n)
	if total == 0 {
		return shares
	}
	base, rem := total/uint64(n), total%uint64(n)
	for i := range shares {
		shares[i] = base
		if uint64(i) < rem {
			shares[i]++
		}
		if shares[i] == 0 {
			shares[i] = 1
		}
	}
	return shares
}

// FitPartitions lowers a power-of-two partition count until each partition
// gets at least minShare bytes of total, stopping at 1.
func FitPartitions(n int, total, minShare uint64) int {
	if n < 1 {
		return 1
	}
	for n > 1 && total/uint64(n) < minShare {
		n /= 2
	}
	return n
}
