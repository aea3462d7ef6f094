package util

import "runtime"

// MaxShards caps automatically chosen and user supplied shard counts.
const MaxShards = 256

// ReasonableShardCount picks a practical default shard count based on CPU
// parallelism. Heuristic: nextPow2(2*GOMAXPROCS), clamped to [1..MaxShards].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return ShardCount(p * 2)
}

// ShardCount normalizes a requested shard count: non-positive values pick
// ReasonableShardCount, everything else is rounded up to a power of two and
// clamped to MaxShards.
func ShardCount(n int) int {
	if n <= 0 {
		return ReasonableShardCount()
	}
	n = int(NextPow2(uint64(n)))
	if n > MaxShards {
		n = MaxShards
	}
	return n
}

// ShardIndex maps a 64-bit hash to a shard index.
// Assumes shard count is a power of two for the fast mask path,
// but remains correct for arbitrary shard counts (uses modulo).
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}

// NextPow2 returns the smallest power of two >= x (1 for x <= 1).
// Values above 1<<63 are clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	p := uint64(1)
	for p < x {
		p <<= 1
	}
	return p
}
