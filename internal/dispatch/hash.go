package dispatch

import "golang.org/x/crypto/blake2b"

// shardFor computes hash(id) mod shardCount (spec §4.2). blake2b (keyed with
// a fixed, process-local key) is used instead of hash/fnv so that an
// adversary who can choose session ids cannot cheaply engineer a hot shard —
// la2go pulls in golang.org/x/crypto directly, this is the home that dep
// gets in the core.
var shardHashKey = []byte("zealnet-shard-routing-key-000000")

func shardFor(id string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	h, err := blake2b.New256(shardHashKey[:32])
	if err != nil {
		// blake2b.New256 only fails on an invalid key size; our key is
		// fixed at 32 bytes, so this path is unreachable in practice.
		return 0
	}
	_, _ = h.Write([]byte(id))
	sum := h.Sum(nil)
	var v uint64
	for _, b := range sum[:8] {
		v = v<<8 | uint64(b)
	}
	return int(v % uint64(shardCount))
}
